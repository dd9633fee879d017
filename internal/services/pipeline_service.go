package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"adrollup/internal/aggregate"
	"adrollup/internal/archive"
	"adrollup/internal/config"
	apierrors "adrollup/internal/errors"
	"adrollup/internal/infrastructure"
	"adrollup/internal/ingest"
	"adrollup/internal/notify"
	"adrollup/internal/report"
	"adrollup/internal/store"
	"adrollup/pkg/contracts/domain"
)

// RunStatus is the outcome of a pipeline run.
type RunStatus string

const (
	// RunCompleted means at least one qualifying row was aggregated.
	RunCompleted RunStatus = "completed"
	// RunEmpty means the workbook was read but no table qualified.
	RunEmpty RunStatus = "empty"
	// RunIngestFailed means the workbook could not be ingested; nothing was
	// processed.
	RunIngestFailed RunStatus = "ingest_failed"
)

// SheetStore pairs a sheet with the store holding its table.
type SheetStore struct {
	Sheet string `json:"sheet"`
	Store string `json:"store"`
}

// CleanupFailure records a store that could not be removed after a run.
type CleanupFailure struct {
	Store string `json:"store,omitempty"`
	Error string `json:"error"`
}

// RunSummary describes a run without its row data.
type RunSummary struct {
	ID              string                `json:"id"`
	Workbook        string                `json:"workbook"`
	Status          RunStatus             `json:"status"`
	CreatedAt       time.Time             `json:"created_at"`
	DurationMS      int64                 `json:"duration_ms"`
	Sheets          []SheetStore          `json:"sheets"`
	Records         int                   `json:"records"`
	TablesRead      int                   `json:"tables_read"`
	SkippedTables   []domain.SkippedTable `json:"skipped_tables"`
	DroppedRows     int                   `json:"dropped_rows"`
	CleanupFailures []CleanupFailure      `json:"cleanup_failures,omitempty"`
	IngestError     string                `json:"ingest_error,omitempty"`
	EventOptions    []string              `json:"event_options,omitempty"`
	PropertyOptions []string              `json:"property_options,omitempty"`
}

// Run is a completed pipeline run held for follow-up requests. Views is nil
// when Rows is empty.
type Run struct {
	Summary RunSummary
	Rows    *domain.CombinedRowSet
	Views   *report.Views
}

// DigestSender emails the validation digest of a run.
type DigestSender interface {
	Configured() bool
	Notify(ctx context.Context, events, properties domain.Summary) error
}

// BackendFactory returns the store backend of one run.
type BackendFactory func(runID string) (store.Backend, error)

// NewBackendFactory returns a factory creating kind backends. File backends
// live in a per-run directory under the work dir so concurrent runs of the
// same workbook never share a store.
func NewBackendFactory(kind string, paths *config.Paths) BackendFactory {
	return func(runID string) (store.Backend, error) {
		return store.NewBackend(kind, paths.RunWorkDir(runID))
	}
}

// PipelineOptions holds the dependencies of a PipelineService.
type PipelineOptions struct {
	Backends BackendFactory
	Sessions *SessionStore
	Notifier DigestSender
	// Archive may be nil when archiving is disabled.
	Archive archive.Sink
	Metrics *infrastructure.BusinessMetrics
	Logger  *slog.Logger
}

// PipelineService runs ingest, aggregate and report building for an uploaded
// workbook and serves the follow-up interactions on the result.
type PipelineService struct {
	backends BackendFactory
	sessions *SessionStore
	notifier DigestSender
	archive  archive.Sink
	metrics  *infrastructure.BusinessMetrics
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipelineService creates a pipeline service.
func NewPipelineService(opts PipelineOptions) (*PipelineService, error) {
	if opts.Backends == nil {
		return nil, errors.New("pipeline service requires a backend factory")
	}
	if opts.Sessions == nil {
		return nil, errors.New("pipeline service requires a session store")
	}
	if opts.Notifier == nil {
		return nil, errors.New("pipeline service requires a notifier")
	}
	return &PipelineService{
		backends: opts.Backends,
		sessions: opts.Sessions,
		notifier: opts.Notifier,
		archive:  opts.Archive,
		metrics:  opts.Metrics,
		tracer:   otel.Tracer(infrastructure.MeterName),
		logger:   infrastructure.WithComponent(opts.Logger, "pipeline_service"),
		now:      time.Now,
	}, nil
}

// Run processes wb once and keeps the result for follow-up requests.
// Ingestion failures are not errors: the run is returned with status
// ingest_failed and nothing processed. Stores are removed before Run returns
// whatever the outcome; removal failures are recorded on the summary.
func (s *PipelineService) Run(ctx context.Context, wb ingest.Workbook) (*Run, error) {
	start := s.now()
	runID := uuid.NewString()
	ctx = infrastructure.WithRunID(ctx, runID)
	ctx, span := s.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("workbook", wb.Name),
	))
	defer span.End()

	run := &Run{
		Summary: RunSummary{
			ID:            runID,
			Workbook:      wb.Name,
			Status:        RunCompleted,
			CreatedAt:     start,
			Sheets:        []SheetStore{},
			SkippedTables: []domain.SkippedTable{},
		},
		Rows: &domain.CombinedRowSet{},
	}

	backend, err := s.backends(runID)
	if err != nil {
		s.recordFailure(ctx, start, err)
		return nil, apierrors.NewStorageError("failed to prepare run storage", err)
	}

	ingested, err := ingest.NewIngestor(backend, s.logger).Ingest(ctx, wb)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.cleanup(ctx, backend, nil, run)
			s.recordFailure(ctx, start, ctxErr)
			return nil, ctxErr
		}
		run.Summary.Status = RunIngestFailed
		run.Summary.IngestError = err.Error()
		infrastructure.RecordError(ctx, err)
		s.logger.WarnContext(ctx, "workbook ingestion failed",
			slog.String("workbook", wb.Name),
			slog.String("error", err.Error()))
	}

	if ingested != nil {
		for _, sheet := range ingested.Order {
			run.Summary.Sheets = append(run.Summary.Sheets, SheetStore{Sheet: sheet, Store: ingested.Stores[sheet]})
		}
	}
	storeIDs := ingested.StoreIDs()

	if len(storeIDs) > 0 {
		result, aggErr := aggregate.NewAggregator(backend, s.logger).Aggregate(ctx, storeIDs)
		if aggErr != nil {
			s.cleanup(ctx, backend, storeIDs, run)
			s.recordFailure(ctx, start, aggErr)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, apierrors.NewStorageError("failed to aggregate sheet stores", aggErr).
				WithContext("run_id", runID)
		}
		run.Rows = result.Rows
		run.Summary.TablesRead = result.TablesRead
		run.Summary.DroppedRows = result.DroppedRows
		if len(result.Skipped) > 0 {
			run.Summary.SkippedTables = result.Skipped
		}
	}

	s.cleanup(ctx, backend, storeIDs, run)

	if run.Rows.IsEmpty() {
		if run.Summary.Status == RunCompleted {
			run.Summary.Status = RunEmpty
		}
	} else {
		views, buildErr := report.Build(run.Rows)
		if buildErr != nil {
			s.recordFailure(ctx, start, buildErr)
			return nil, fmt.Errorf("failed to build report views: %w", buildErr)
		}
		run.Views = views
		run.Summary.EventOptions = views.EventOptions
		run.Summary.PropertyOptions = views.PropertyOptions
	}

	duration := s.now().Sub(start)
	run.Summary.Records = run.Rows.Len()
	run.Summary.DurationMS = duration.Milliseconds()
	s.sessions.Put(run)

	infrastructure.RecordRunMetrics(ctx, s.metrics, infrastructure.RunOutcome{
		Status:          string(run.Summary.Status),
		Duration:        duration,
		Sheets:          len(run.Summary.Sheets),
		SkippedTables:   len(run.Summary.SkippedTables),
		DroppedRows:     run.Summary.DroppedRows,
		CleanupFailures: len(run.Summary.CleanupFailures),
	})
	s.logger.InfoContext(ctx, "pipeline run completed",
		slog.String("workbook", wb.Name),
		slog.String("status", string(run.Summary.Status)),
		slog.Int("sheets", len(run.Summary.Sheets)),
		slog.Int("records", run.Summary.Records),
		slog.Int("skipped_tables", len(run.Summary.SkippedTables)),
		slog.Int("dropped_rows", run.Summary.DroppedRows),
		slog.Duration("duration", duration))
	return run, nil
}

// cleanup removes every store of the run and releases the backend. Failures
// are logged and recorded, never returned.
func (s *PipelineService) cleanup(ctx context.Context, backend store.Backend, storeIDs []string, run *Run) {
	for _, id := range storeIDs {
		if err := backend.Remove(id); err != nil {
			run.Summary.CleanupFailures = append(run.Summary.CleanupFailures, CleanupFailure{Store: id, Error: err.Error()})
			s.logger.WarnContext(ctx, "failed to remove store",
				slog.String("store", id),
				slog.String("error", err.Error()))
		}
	}
	if err := backend.Release(); err != nil {
		run.Summary.CleanupFailures = append(run.Summary.CleanupFailures, CleanupFailure{Error: err.Error()})
		s.logger.WarnContext(ctx, "failed to release store backend",
			slog.String("backend", backend.Kind()),
			slog.String("error", err.Error()))
	}
}

func (s *PipelineService) recordFailure(ctx context.Context, start time.Time, err error) {
	infrastructure.RecordError(ctx, err)
	infrastructure.RecordRunMetrics(ctx, s.metrics, infrastructure.RunOutcome{
		Status:   "failed",
		Duration: s.now().Sub(start),
	})
	s.logger.ErrorContext(ctx, "pipeline run failed", slog.String("error", err.Error()))
}

// Get returns the run with id.
func (s *PipelineService) Get(id string) (*Run, error) {
	run, ok := s.sessions.Get(id)
	if !ok {
		return nil, apierrors.NewAppError(apierrors.ErrTypeNotFound, "run not found or expired", ErrRunNotFound).
			WithContext("run_id", id)
	}
	return run, nil
}

// Delete drops the run with id.
func (s *PipelineService) Delete(id string) error {
	if !s.sessions.Delete(id) {
		return apierrors.NewAppError(apierrors.ErrTypeNotFound, "run not found or expired", ErrRunNotFound).
			WithContext("run_id", id)
	}
	return nil
}

// withData returns the run with id, refusing runs with an empty row set.
func (s *PipelineService) withData(id string) (*Run, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if run.Views == nil {
		return nil, apierrors.NewConflictError("no data available for the selected sheets", ErrNoData).
			WithContext("run_id", id).
			WithContext("run_status", string(run.Summary.Status))
	}
	return run, nil
}

// Records returns the combined row set of a run.
func (s *PipelineService) Records(id string) ([]domain.Record, error) {
	run, err := s.withData(id)
	if err != nil {
		return nil, err
	}
	return run.Rows.Records, nil
}

// EventReport returns the records of a run filtered by event.
func (s *PipelineService) EventReport(id, selection string) ([]domain.Record, error) {
	run, err := s.withData(id)
	if err != nil {
		return nil, err
	}
	return report.FilterByEvent(run.Rows, selection)
}

// PropertyReport returns the records of a run filtered by property.
func (s *PipelineService) PropertyReport(id, selection string) ([]domain.Record, error) {
	run, err := s.withData(id)
	if err != nil {
		return nil, err
	}
	return report.FilterByProperty(run.Rows, selection)
}

// Summary returns the event or property summary of a run.
func (s *PipelineService) Summary(id string, dimension domain.Dimension) (domain.Summary, error) {
	run, err := s.withData(id)
	if err != nil {
		return domain.Summary{}, err
	}
	switch dimension {
	case domain.DimensionEvent:
		return run.Views.EventSummary, nil
	case domain.DimensionProperty:
		return run.Views.PropertySummary, nil
	default:
		return domain.Summary{}, apierrors.NewAppValidationError(fmt.Sprintf("unknown summary dimension %q", dimension))
	}
}

// Download renders one report of a run as an xlsx file.
func (s *PipelineService) Download(id string, view report.View, selection string) (*report.Download, error) {
	run, err := s.withData(id)
	if err != nil {
		return nil, err
	}
	return report.Render(run.Rows, view, selection)
}

// Reports renders all four unfiltered reports of a run.
func (s *PipelineService) Reports(id string) ([]*report.Download, error) {
	run, err := s.withData(id)
	if err != nil {
		return nil, err
	}
	downloads := make([]*report.Download, 0, len(report.AllViews))
	for _, view := range report.AllViews {
		d, err := report.Render(run.Rows, view, report.SelectAll)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s report: %w", view, err)
		}
		downloads = append(downloads, d)
	}
	return downloads, nil
}

// Validate emails the digest of a run's summaries. It makes one attempt.
func (s *PipelineService) Validate(ctx context.Context, id string) error {
	run, err := s.withData(id)
	if err != nil {
		return err
	}
	ctx = infrastructure.WithRunID(ctx, id)

	err = s.notifier.Notify(ctx, run.Views.EventSummary, run.Views.PropertySummary)
	switch {
	case err == nil:
		infrastructure.RecordNotification(ctx, s.metrics, "sent")
		return nil
	case errors.Is(err, notify.ErrNotConfigured):
		infrastructure.RecordNotification(ctx, s.metrics, "not_configured")
		return apierrors.NewConfigError("email notification is not configured", err)
	case errors.Is(err, notify.ErrTransport):
		infrastructure.RecordNotification(ctx, s.metrics, "failed")
		return apierrors.NewNetworkError("email delivery failed", err).WithContext("run_id", id)
	default:
		infrastructure.RecordNotification(ctx, s.metrics, "failed")
		return err
	}
}

// NotificationsConfigured reports whether Validate can send mail.
func (s *PipelineService) NotificationsConfigured() bool {
	return s.notifier.Configured()
}

// ArchiveKind names the configured archive sink, or "none".
func (s *PipelineService) ArchiveKind() string {
	if s.archive == nil {
		return archive.KindNone
	}
	return s.archive.Kind()
}

// Archive writes the four reports of a run to the archive sink. Reports
// already archived for the run are left untouched.
func (s *PipelineService) Archive(ctx context.Context, id string) (*archive.Result, error) {
	if s.archive == nil {
		return nil, apierrors.NewConfigError("report archive is disabled", ErrArchiveDisabled)
	}
	downloads, err := s.Reports(id)
	if err != nil {
		return nil, err
	}
	ctx = infrastructure.WithRunID(ctx, id)

	objects := make([]archive.Object, 0, len(downloads))
	for _, d := range downloads {
		objects = append(objects, archive.Object{Name: d.FileName, ContentType: d.ContentType, Data: d.Data})
	}

	result, err := s.archive.Put(ctx, id, objects)
	if err != nil {
		s.logger.ErrorContext(ctx, "report archive failed",
			slog.String("sink", s.archive.Kind()),
			slog.String("error", err.Error()))
		return nil, apierrors.NewStorageError("report archive failed", err).WithContext("run_id", id)
	}
	if s.metrics != nil {
		s.metrics.ArchivedObjects.Add(ctx, int64(len(result.Written)))
	}
	s.logger.InfoContext(ctx, "reports archived",
		slog.String("sink", s.archive.Kind()),
		slog.Int("written", len(result.Written)),
		slog.Int("existing", len(result.Existing)))
	return result, nil
}
