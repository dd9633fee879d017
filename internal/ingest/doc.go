// Package ingest converts an uploaded workbook into relational stores.
//
// Every sheet becomes one table inside its own store. The store identifier is
// derived from the workbook stem and the sheet name ("<stem>_<sheet>.db" with
// spaces, hyphens and path separators replaced by underscores) and the table
// is named after the sheet. The first row of a sheet is its header; cell
// values are read raw so numbers keep the precision they were saved with.
//
// Ingestion is all-or-nothing per workbook: if any sheet fails, the stores
// already created for that workbook are removed before the error is returned.
package ingest
