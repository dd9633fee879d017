package ingest

import (
	"path/filepath"
	"strings"
)

var storeIDReplacer = strings.NewReplacer(" ", "_", "-", "_", "/", "_", "\\", "_")

// WorkbookStem returns the workbook file name without directory or extension.
func WorkbookStem(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// StoreID names the store holding one sheet of a workbook.
func StoreID(workbookName, sheet string) string {
	return storeIDReplacer.Replace(WorkbookStem(workbookName) + "_" + sheet + ".db")
}

// TableName names the table materialised from a sheet.
func TableName(sheet string) string {
	return strings.ReplaceAll(sheet, " ", "_")
}
