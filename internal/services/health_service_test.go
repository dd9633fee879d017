package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adrollup/internal/archive"
	"adrollup/internal/config"
	"adrollup/internal/shared/testutil"
	"adrollup/internal/store"
)

func TestHealthServiceReadiness(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	paths := &config.Paths{WorkDir: filepath.Join(t.TempDir(), "work")}

	notifier := &mockNotifier{}
	notifier.On("Configured").Return(false)
	sessions := NewSessionStore(time.Minute, nil)
	pipeline, err := NewPipelineService(PipelineOptions{
		Backends: NewBackendFactory(store.KindFile, paths),
		Sessions: sessions,
		Notifier: notifier,
		Archive:  archive.NewLocalSink(t.TempDir(), ""),
		Logger:   logger,
	})
	require.NoError(t, err)

	hs := NewHealthService(HealthOptions{
		Version:     "1.2.3",
		BackendKind: store.KindFile,
		Paths:       paths,
		Pipeline:    pipeline,
		Sessions:    sessions,
		Logger:      logger,
	})

	status := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, ServiceHealth{Status: "ready", Message: paths.WorkDir}, status.Services["work_dir"])
	assert.Equal(t, "disabled", status.Services["notifications"].(ServiceHealth).Status)
	assert.Equal(t, ServiceHealth{Status: "ready", Message: archive.KindLocal}, status.Services["archive"])
	assert.Equal(t, map[string]any{"active_runs": 0}, status.Services["sessions"])

	entries, err := os.ReadDir(paths.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "readiness probe must not leave files behind")
}

func TestHealthServiceNotReady(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	hs := NewHealthService(HealthOptions{
		Version:     "dev",
		BackendKind: store.KindFile,
		Paths:       &config.Paths{WorkDir: filepath.Join(blocker, "work")},
	})

	ready := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "not_ready", ready.Status)

	health := hs.HealthCheck(context.Background())
	assert.Equal(t, "degraded", health.Status)
	assert.Contains(t, health.Runtime, "goroutines")
}

func TestHealthServiceMemoryBackendNeedsNoWorkDir(t *testing.T) {
	hs := NewHealthService(HealthOptions{Version: "dev", BackendKind: store.KindMemory})

	assert.Equal(t, "ready", hs.ReadinessCheck(context.Background()).Status)
	assert.Equal(t, "disabled", hs.ReadinessCheck(context.Background()).Services["archive"].(ServiceHealth).Status)
}

func TestHealthServiceLivenessAndVersion(t *testing.T) {
	hs := NewHealthService(HealthOptions{Version: "2.0.0"})

	live := hs.LivenessCheck(context.Background())
	assert.Equal(t, "alive", live.Status)
	assert.Contains(t, live.Runtime, "uptime")

	version := hs.Version()
	assert.Equal(t, "2.0.0", version["version"])
	assert.NotEmpty(t, version["go_version"])
}
