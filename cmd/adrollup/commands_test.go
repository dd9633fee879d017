package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adrollup/internal/report"
	"adrollup/internal/shared/testutil"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("ADROLLUP_PATHS_BASE_DIR", base)
	t.Setenv("ADROLLUP_LOGGING_LEVEL", "error")
	return base
}

func writeWorkbook(t *testing.T, dir, name string, sheets ...testutil.Sheet) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, testutil.BuildWorkbook(t, sheets...), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRunWritesReports(t *testing.T) {
	base := setupEnv(t)
	out := filepath.Join(base, "out")
	path := writeWorkbook(t, base, "march.xlsx",
		testutil.AdSheet("North",
			[]any{"E1", "P1", "home", "CPM", 1_000_000, 10_000_000},
			[]any{"E2", "P2", "home", "CPM", 2_000_000, 4_000_000},
		),
		testutil.AdSheet("South", []any{"E1", "P1", "home", "CPM", 500_000, 5_000_000}),
	)

	stdout, err := execute(t, "run", path, "--out", out, "--event", "E1", "--store", "memory")
	require.NoError(t, err)

	var summary struct {
		Status  string `json:"status"`
		Records int    `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, "completed", summary.Status)
	assert.Equal(t, 2, summary.Records)

	for _, name := range []string{
		"E1_report.xlsx",
		report.PropertyReportDefaultName,
		report.EventSummaryName,
		report.PropertySummaryName,
	} {
		assert.FileExists(t, filepath.Join(out, name))
	}
}

func TestRunWithoutQualifyingData(t *testing.T) {
	base := setupEnv(t)
	out := filepath.Join(base, "out")
	path := writeWorkbook(t, base, "notes.xlsx", testutil.Sheet{
		Name: "Notes",
		Rows: [][]any{{"event", "comment"}, {"E1", "hello"}},
	})

	stdout, err := execute(t, "run", path, "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"status": "empty"`)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunArchivesReports(t *testing.T) {
	base := setupEnv(t)
	t.Setenv("ADROLLUP_ARCHIVE_BACKEND", "local")
	path := writeWorkbook(t, base, "march.xlsx",
		testutil.AdSheet("North", []any{"E1", "P1", "home", "CPM", 1_000_000, 10_000_000}),
	)

	_, err := execute(t, "run", path, "--out", filepath.Join(base, "out"), "--archive")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(base, "data", "reports"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRunRejectsBadInput(t *testing.T) {
	base := setupEnv(t)
	notes := filepath.Join(base, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("plain text"), 0644))
	workbook := writeWorkbook(t, base, "march.xlsx",
		testutil.AdSheet("North", []any{"E1", "P1", "home", "CPM", 1, 1}),
	)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing argument", []string{"run"}, "accepts 1 arg"},
		{"not a workbook", []string{"run", notes}, "xlsx"},
		{"missing file", []string{"run", filepath.Join(base, "absent.xlsx")}, "absent.xlsx"},
		{"unknown store", []string{"run", workbook, "--store", "redis"}, "unknown store backend"},
		{"notify without email", []string{"run", workbook, "--notify", "--out", filepath.Join(base, "out")}, "not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
