package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adrollup/internal/config"
	"adrollup/internal/shared/testutil"
)

func newTestApplication(t *testing.T, mutate func(*config.Config)) *Application {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.BaseDir = t.TempDir()
	cfg.Security.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	logger, _ := testutil.NewTestLogger(t)
	a, err := NewApplication(cfg, WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func serve(a *Application, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, name string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/runs", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestNewApplicationWiring(t *testing.T) {
	a := newTestApplication(t, nil)

	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.HealthService)
	assert.NotNil(t, a.Sessions)
	assert.Nil(t, a.Archive, "archive is disabled by default")
	assert.DirExists(t, a.Paths.WorkDir)
	assert.Equal(t, ":8080", a.Server.Addr)
}

func TestNewApplicationRejectsUnknownArchive(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.BaseDir = t.TempDir()
	cfg.Archive.Backend = "ftp"

	logger, _ := testutil.NewTestLogger(t)
	_, err := NewApplication(cfg, WithLogger(logger))
	assert.ErrorContains(t, err, "report archive")
}

func TestRouterHealthAndMetrics(t *testing.T) {
	a := newTestApplication(t, nil)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(a, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(a, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRouterProblemResponses(t *testing.T) {
	a := newTestApplication(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"unknown route", http.MethodGet, "/nowhere", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/api/runs", http.StatusMethodNotAllowed},
		{"unknown run", http.MethodGet, "/api/runs/0b6f4c1e-2d7a-4f3b-9c55-1a2b3c4d5e6f", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(a, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var problem map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, rec.Header().Get("X-Request-ID"), problem["trace_id"])
		})
	}
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	a := newTestApplication(t, func(cfg *config.Config) {
		cfg.Archive.Backend = "local"
	})

	workbook := testutil.BuildWorkbook(t,
		testutil.AdSheet("North", []any{"E1", "P1", "home", "CPM", 1_000_000, 10_000_000}),
		testutil.AdSheet("South", []any{"E1", "P1", "home", "CPM", 500_000, 5_000_000}),
	)

	rec := serve(a, uploadRequest(t, "march.xlsx", workbook))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data struct {
			ID      string `json:"id"`
			Status  string `json:"status"`
			Records int    `json:"records"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "completed", created.Data.Status)
	assert.Equal(t, 1, created.Data.Records)
	base := "/api/runs/" + created.Data.ID

	rec = serve(a, httptest.NewRequest(http.MethodGet, base+"/events/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_imps (Millions)":1.5`)

	rec = serve(a, httptest.NewRequest(http.MethodGet, base+"/download/events?selection=E1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "E1.xlsx")

	rec = serve(a, httptest.NewRequest(http.MethodPost, base+"/validate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "email is not configured in tests")

	rec = serve(a, httptest.NewRequest(http.MethodPost, base+"/archive", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	entries, err := os.ReadDir(a.Paths.ReportsDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	rec = serve(a, httptest.NewRequest(http.MethodDelete, base, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(a, httptest.NewRequest(http.MethodGet, base, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	a := newTestApplication(t, func(cfg *config.Config) {
		cfg.Server.Port = 0
	})
	a.Server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	cancel()

	assert.NoError(t, <-done)
}
