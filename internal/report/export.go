package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"adrollup/pkg/contracts/domain"
)

// ContentType is the MIME type of exported workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Fixed export file names.
const (
	EventReportDefaultName    = "aggregated_data.xlsx"
	PropertyReportDefaultName = "property_aggregated_data.xlsx"
	EventSummaryName          = "event_summary.xlsx"
	PropertySummaryName       = "property_summary.xlsx"
)

const exportSheet = "Sheet1"

// View identifies one downloadable report.
type View string

const (
	ViewEvents          View = "events"
	ViewProperties      View = "properties"
	ViewEventSummary    View = "event-summary"
	ViewPropertySummary View = "property-summary"
)

// AllViews lists every downloadable report.
var AllViews = []View{ViewEvents, ViewEventSummary, ViewProperties, ViewPropertySummary}

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	for _, v := range AllViews {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown report view: %q", s)
}

// Download is a rendered report file.
type Download struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Render builds the download for view. selection filters the event and
// property reports and is ignored by summaries.
func Render(set *domain.CombinedRowSet, view View, selection string) (*Download, error) {
	var (
		name string
		data []byte
		err  error
	)

	switch view {
	case ViewEvents, ViewProperties:
		var records []domain.Record
		if view == ViewEvents {
			records, err = FilterByEvent(set, selection)
			name = ReportFileName(selection, EventReportDefaultName)
		} else {
			records, err = FilterByProperty(set, selection)
			name = ReportFileName(selection, PropertyReportDefaultName)
		}
		if err != nil {
			return nil, err
		}
		data, err = ExportRecords(records)
	case ViewEventSummary, ViewPropertySummary:
		dimension, fileName := domain.DimensionEvent, EventSummaryName
		if view == ViewPropertySummary {
			dimension, fileName = domain.DimensionProperty, PropertySummaryName
		}
		var summary domain.Summary
		if summary, err = Summarize(set, dimension); err != nil {
			return nil, err
		}
		name = fileName
		data, err = ExportSummary(summary)
	default:
		return nil, fmt.Errorf("unknown report view: %q", view)
	}
	if err != nil {
		return nil, err
	}
	return &Download{FileName: name, ContentType: ContentType, Data: data}, nil
}

// ReportFileName names a filtered report: "<selection>_report.xlsx", or
// fallback when nothing is selected.
func ReportFileName(selection, fallback string) string {
	if selection == "" || selection == SelectAll {
		return fallback
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(selection) + "_report.xlsx"
}

// ExportRecords writes records with the six projection columns.
func ExportRecords(records []domain.Record) ([]byte, error) {
	header := make([]any, len(domain.ProjectionColumns))
	for i, c := range domain.ProjectionColumns {
		header[i] = c
	}

	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{
			r.Event,
			r.Property,
			r.Page,
			r.PriceType,
			decimalCell(r.TotalImpressions.String()),
			decimalCell(r.TotalRate.String()),
		}
	}
	return writeWorkbook(header, rows)
}

// ExportSummary writes a summary with its display-unit columns.
func ExportSummary(summary domain.Summary) ([]byte, error) {
	header := []any{string(summary.Dimension), domain.ImpressionsMillionsLabel, domain.RateCroresLabel}

	rows := make([][]any, len(summary.Rows))
	for i, r := range summary.Rows {
		rows[i] = []any{r.Key, r.ImpressionsMillions, r.RateCrores}
	}
	return writeWorkbook(header, rows)
}

// decimalCell is a plain-notation decimal written as a number cell with its
// digits unchanged.
type decimalCell string

func writeWorkbook(header []any, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
		for j, v := range row {
			d, ok := v.(decimalCell)
			if !ok {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellDefault(exportSheet, ref, string(d)); err != nil {
				return nil, fmt.Errorf("failed to write %s: %w", ref, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialise workbook: %w", err)
	}
	return buf.Bytes(), nil
}
