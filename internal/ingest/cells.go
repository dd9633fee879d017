package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

type cellKind int

const (
	cellEmpty cellKind = iota
	cellText
	cellNumber
)

// cell is one worksheet value with the kind excelize reports for it.
type cell struct {
	value string
	kind  cellKind
}

// Timestamp layouts used for date-formatted number cells.
const (
	dateTimeLayout = "2006-01-02 15:04:05"
	timeLayout     = "15:04:05"
)

// builtinDateFormats are the built-in number format IDs that render dates or
// times, including the East Asian variants.
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	45: true, 46: true, 47: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

// sheetReader reads typed cells from one workbook.
type sheetReader struct {
	file       *excelize.File
	date1904   bool
	dateStyles map[int]bool
}

func newSheetReader(f *excelize.File) *sheetReader {
	r := &sheetReader{file: f, dateStyles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		r.date1904 = *props.Date1904
	}
	return r
}

// Rows returns the cells of sheet. String, inline string, formula string,
// error and ISO date cells are text. Number and boolean cells are numbers,
// except numbers with a date format, which become timestamp text.
func (r *sheetReader) Rows(sheet string) ([][]cell, error) {
	raw, err := r.file.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	rows := make([][]cell, len(raw))
	for i, values := range raw {
		row := make([]cell, len(values))
		for j, value := range values {
			if value == "" {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return nil, err
			}
			if row[j], err = r.cell(sheet, ref, value); err != nil {
				return nil, fmt.Errorf("cell %s: %w", ref, err)
			}
		}
		rows[i] = row
	}
	return rows, nil
}

func (r *sheetReader) cell(sheet, ref, value string) (cell, error) {
	typ, err := r.file.GetCellType(sheet, ref)
	if err != nil {
		return cell{}, err
	}

	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeBool:
	default:
		return cell{value: value, kind: cellText}, nil
	}

	serial, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return cell{value: value, kind: cellText}, nil
	}
	if typ != excelize.CellTypeBool {
		isDate, err := r.isDateCell(sheet, ref)
		if err != nil {
			return cell{}, err
		}
		if isDate {
			if stamp, ok := r.timestamp(serial); ok {
				return cell{value: stamp, kind: cellText}, nil
			}
		}
	}
	return cell{value: value, kind: cellNumber}, nil
}

func (r *sheetReader) isDateCell(sheet, ref string) (bool, error) {
	styleID, err := r.file.GetCellStyle(sheet, ref)
	if err != nil {
		return false, err
	}
	if isDate, ok := r.dateStyles[styleID]; ok {
		return isDate, nil
	}

	isDate := false
	if styleID != 0 {
		style, err := r.file.GetStyle(styleID)
		if err != nil {
			return false, err
		}
		isDate = builtinDateFormats[style.NumFmt] ||
			(style.CustomNumFmt != nil && isDateFormat(*style.CustomNumFmt))
	}
	r.dateStyles[styleID] = isDate
	return isDate, nil
}

func (r *sheetReader) timestamp(serial float64) (string, bool) {
	t, err := excelize.ExcelDateToTime(serial, r.date1904)
	if err != nil {
		return "", false
	}
	t = t.Round(time.Second)
	if serial >= 0 && serial < 1 {
		return t.Format(timeLayout), true
	}
	return t.Format(dateTimeLayout), true
}

// isDateFormat reports whether a custom number format code renders a date or
// time. Quoted literals, escaped characters and bracketed colour or locale
// sections are ignored; elapsed-time sections such as [h] count.
func isDateFormat(code string) bool {
	inQuote := false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch == '"':
			inQuote = !inQuote
		case inQuote:
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		case ch == '[':
			end := strings.IndexByte(code[i:], ']')
			if end < 0 {
				return false
			}
			inner := strings.ToLower(code[i+1 : i+end])
			if inner != "" && strings.Trim(inner, "hms") == "" {
				return true
			}
			i += end
		default:
			switch ch | 0x20 {
			case 'y', 'm', 'd', 'h', 's':
				return true
			}
		}
	}
	return false
}
