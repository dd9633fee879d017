package testutil

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet of a fixture workbook. The first row is the header.
type Sheet struct {
	Name string
	Rows [][]any
}

// BuildWorkbook returns the xlsx bytes of a workbook holding sheets in order.
func BuildWorkbook(t *testing.T, sheets ...Sheet) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet.Name); err != nil {
				t.Fatalf("failed to rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			t.Fatalf("failed to add sheet %q: %v", sheet.Name, err)
		}

		for r, row := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("invalid cell: %v", err)
			}
			values := row
			if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
				t.Fatalf("failed to write row %d of %q: %v", r, sheet.Name, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("failed to serialise workbook: %v", err)
	}
	return buf.Bytes()
}

// AdSheet builds a sheet with the six aggregated columns followed by rows.
func AdSheet(name string, rows ...[]any) Sheet {
	header := []any{"event", "property", "page", "price_type", "total_impressions", "total_rate"}
	return Sheet{Name: name, Rows: append([][]any{header}, rows...)}
}
