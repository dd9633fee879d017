package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"adrollup/internal/archive"
	"adrollup/internal/config"
	"adrollup/internal/infrastructure"
	"adrollup/internal/store"
)

// HealthService provides health check functionality
type HealthService struct {
	version     string
	backendKind string
	paths       *config.Paths
	pipeline    *PipelineService
	sessions    *SessionStore
	system      *infrastructure.SystemMetrics
	startTime   time.Time
	logger      *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Runtime   map[string]any `json:"runtime,omitempty"`
	Services  map[string]any `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthOptions holds the dependencies of a HealthService. Only Version is
// required; absent dependencies are reported as not configured.
type HealthOptions struct {
	Version     string
	BackendKind string
	Paths       *config.Paths
	Pipeline    *PipelineService
	Sessions    *SessionStore
	System      *infrastructure.SystemMetrics
	Logger      *slog.Logger
}

// NewHealthService creates a new health service
func NewHealthService(opts HealthOptions) *HealthService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &HealthService{
		version:     opts.Version,
		backendKind: opts.BackendKind,
		paths:       opts.Paths,
		pipeline:    opts.Pipeline,
		sessions:    opts.Sessions,
		system:      opts.System,
		startTime:   time.Now(),
		logger:      infrastructure.WithComponent(opts.Logger, "health_service"),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	ready := hs.ReadinessCheck(ctx)
	status := HealthStatus{
		Status:    "ok",
		Timestamp: ready.Timestamp,
		Version:   hs.version,
		Services:  ready.Services,
		Runtime:   hs.runtimeStats(ctx),
	}
	if ready.Status != "ready" {
		status.Status = "degraded"
	}

	hs.logger.DebugContext(ctx, "health check completed",
		slog.String("status", status.Status))
	return status
}

// ReadinessCheck returns readiness status. Only the work directory gates
// readiness; mail and archive are optional.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services:  make(map[string]any),
	}

	work := hs.checkWorkDir()
	status.Services["work_dir"] = work
	status.Services["store"] = ServiceHealth{Status: "ready", Message: hs.backendKind}
	status.Services["notifications"] = hs.checkNotifications()
	status.Services["archive"] = hs.checkArchive()
	if hs.sessions != nil {
		status.Services["sessions"] = map[string]any{"active_runs": hs.sessions.Len()}
	}

	if work.Status != "ready" {
		status.Status = "not_ready"
		hs.logger.WarnContext(ctx, "service not ready", slog.String("reason", work.Message))
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]any{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]any {
	return map[string]any{
		"version":    hs.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     time.Since(hs.startTime).Seconds(),
		"start_time": hs.startTime.Format(time.RFC3339),
	}
}

func (hs *HealthService) runtimeStats(ctx context.Context) map[string]any {
	if hs.system == nil {
		return map[string]any{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"goroutines": runtime.NumGoroutine(),
		}
	}
	return hs.system.Collect(ctx).FormatStats()
}

// checkWorkDir verifies the directory holding per-run stores is writable.
func (hs *HealthService) checkWorkDir() ServiceHealth {
	if hs.backendKind == store.KindMemory {
		return ServiceHealth{Status: "ready", Message: "in-memory stores"}
	}
	if hs.paths == nil || hs.paths.WorkDir == "" {
		return ServiceHealth{Status: "not_ready", Message: "work directory not configured"}
	}
	if err := os.MkdirAll(hs.paths.WorkDir, 0755); err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("cannot create work directory: %v", err),
		}
	}
	probe, err := os.CreateTemp(hs.paths.WorkDir, ".health-*")
	if err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("cannot write to work directory: %v", err),
		}
	}
	probe.Close()
	os.Remove(probe.Name())

	return ServiceHealth{Status: "ready", Message: hs.paths.WorkDir}
}

func (hs *HealthService) checkNotifications() ServiceHealth {
	if hs.pipeline == nil || !hs.pipeline.NotificationsConfigured() {
		return ServiceHealth{Status: "disabled", Message: "email recipients not configured"}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkArchive() ServiceHealth {
	if hs.pipeline == nil {
		return ServiceHealth{Status: "disabled"}
	}
	kind := hs.pipeline.ArchiveKind()
	if kind == archive.KindNone {
		return ServiceHealth{Status: "disabled"}
	}
	return ServiceHealth{Status: "ready", Message: kind}
}
