// Package shared holds helpers used by more than one package.
//
// The testutil subpackage provides a capturing slog handler for log
// assertions and an in-test workbook builder so ingestion, pipeline and
// transport tests can share the same fixtures:
//
//	logger, logs := testutil.NewTestLogger(t)
//	data := testutil.BuildWorkbook(t, testutil.Sheet{
//	    Name: "Sheet1",
//	    Rows: [][]any{{"event", "total_rate"}, {"E1", 10}},
//	})
package shared
