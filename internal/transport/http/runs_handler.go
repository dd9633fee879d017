package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "adrollup/internal/errors"
	"adrollup/internal/ingest"
	"adrollup/internal/middleware"
	"adrollup/internal/report"
	"adrollup/internal/services"
	"adrollup/internal/validation"
	"adrollup/pkg/contracts/domain"
)

// uploadField is the multipart field carrying the workbook.
const uploadField = "file"

// multipartOverhead is allowed on top of the workbook size for boundaries
// and part headers.
const multipartOverhead = 1 << 20

// RunsHandler handles workbook uploads and every follow-up request on a run
type RunsHandler struct {
	service        RunServiceInterface
	files          *validation.FileValidator
	validator      *middleware.RequestValidator
	errorHandler   *apierrors.ErrorHandler
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(
	service RunServiceInterface,
	maxUploadBytes int64,
	errorHandler *apierrors.ErrorHandler,
	logger *slog.Logger,
) *RunsHandler {
	return &RunsHandler{
		service:        service,
		files:          validation.NewFileValidator(logger),
		validator:      middleware.NewRequestValidator(logger),
		errorHandler:   errorHandler,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "runs_handler")),
	}
}

// runParams identifies a run in the URL
type runParams struct {
	RunID string `query:"runID" validate:"required,uuid4"`
}

// selectionQuery is the optional report filter
type selectionQuery struct {
	Selection string `query:"selection" validate:"max=256,selection"`
}

// downloadParams selects one report download
type downloadParams struct {
	View      string `query:"view" validate:"required,oneof=events event-summary properties property-summary"`
	Selection string `query:"selection" validate:"max=256,selection"`
}

// Routes returns the run routes
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(h.errorHandler.NotFound)
	r.MethodNotAllowed(h.errorHandler.MethodNotAllowed)

	r.With(middleware.ContentTypeValidator(h.errorHandler, "multipart/form-data")).Post("/", h.CreateRun)

	r.Route("/{runID}", func(r chi.Router) {
		r.Use(h.RunCtx)
		r.Get("/", h.GetRun)
		r.Delete("/", h.DeleteRun)
		r.Get("/rows", h.GetRows)
		r.Get("/events", h.GetEvents)
		r.Get("/events/summary", h.GetEventSummary)
		r.Get("/properties", h.GetProperties)
		r.Get("/properties/summary", h.GetPropertySummary)
		r.Get("/download/{view}", h.Download)
		r.Post("/validate", h.Validate)
		r.Post("/archive", h.Archive)
	})

	return r
}

// RunCtx middleware validates the run ID parameter
func (h *RunsHandler) RunCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.validator.ValidateStruct(runParams{RunID: chi.URLParam(r, "runID")}); err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateRun handles POST /api/runs
func (h *RunsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation(uploadField, "a workbook file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.errorHandler.HandleError(w, r, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	if err := h.files.ValidateUpload(header.Filename, int64(len(data)), h.maxUploadBytes, data); err != nil {
		h.errorHandler.HandleError(w, r, uploadError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "workbook uploaded",
		slog.String("workbook", header.Filename),
		slog.Int("size", len(data)))

	run, err := h.service.Run(r.Context(), ingest.Workbook{Name: header.Filename, Data: bytes.NewReader(data)})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]any{
		"status": "success",
		"data":   run.Summary,
	})
}

// uploadError maps a file validation failure onto an API error
func uploadError(err error) error {
	switch {
	case errors.Is(err, validation.ErrTooLarge):
		return apierrors.NewWithDetails(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			apierrors.ErrPayloadTooLarge.Message, err.Error())
	case errors.Is(err, validation.ErrNotWorkbook):
		return apierrors.NewWithDetails(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
			"Only .xlsx workbooks are accepted", err.Error())
	case errors.Is(err, validation.ErrEmptyFile):
		return apierrors.ErrValidation(uploadField, "the uploaded workbook is empty")
	default:
		return apierrors.InvalidRequestWithError(err)
	}
}

// GetRun handles GET /api/runs/{runID}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Get(chi.URLParam(r, "runID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"status": "success",
		"data":   run.Summary,
	})
}

// DeleteRun handles DELETE /api/runs/{runID}
func (h *RunsHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(chi.URLParam(r, "runID")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRows handles GET /api/runs/{runID}/rows
func (h *RunsHandler) GetRows(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Records(chi.URLParam(r, "runID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.renderRecords(w, r, records, report.SelectAll)
}

// GetEvents handles GET /api/runs/{runID}/events?event=
func (h *RunsHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	selection, ok := h.selection(w, r, "event")
	if !ok {
		return
	}
	records, err := h.service.EventReport(chi.URLParam(r, "runID"), selection)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.renderRecords(w, r, records, selection)
}

// GetProperties handles GET /api/runs/{runID}/properties?property=
func (h *RunsHandler) GetProperties(w http.ResponseWriter, r *http.Request) {
	selection, ok := h.selection(w, r, "property")
	if !ok {
		return
	}
	records, err := h.service.PropertyReport(chi.URLParam(r, "runID"), selection)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.renderRecords(w, r, records, selection)
}

// GetEventSummary handles GET /api/runs/{runID}/events/summary
func (h *RunsHandler) GetEventSummary(w http.ResponseWriter, r *http.Request) {
	h.renderSummary(w, r, domain.DimensionEvent)
}

// GetPropertySummary handles GET /api/runs/{runID}/properties/summary
func (h *RunsHandler) GetPropertySummary(w http.ResponseWriter, r *http.Request) {
	h.renderSummary(w, r, domain.DimensionProperty)
}

// Download handles GET /api/runs/{runID}/download/{view}?selection=
func (h *RunsHandler) Download(w http.ResponseWriter, r *http.Request) {
	params := downloadParams{
		View:      chi.URLParam(r, "view"),
		Selection: r.URL.Query().Get("selection"),
	}
	if err := h.validator.ValidateStruct(params); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	view, err := report.ParseView(params.View)
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("view", err.Error()))
		return
	}
	if params.Selection == "" {
		params.Selection = report.SelectAll
	}

	d, err := h.service.Download(chi.URLParam(r, "runID"), view, params.Selection)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(d.Data); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write download",
			slog.String("file", d.FileName),
			slog.String("error", err.Error()))
	}
}

// Validate handles POST /api/runs/{runID}/validate
func (h *RunsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Validate(r.Context(), chi.URLParam(r, "runID")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"status":  "success",
		"message": "Validation email sent",
	})
}

// Archive handles POST /api/runs/{runID}/archive
func (h *RunsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Archive(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"status": "success",
		"data":   result,
	})
}

// selection reads and validates the named filter query parameter. An absent
// filter selects everything.
func (h *RunsHandler) selection(w http.ResponseWriter, r *http.Request, param string) (string, bool) {
	q := selectionQuery{Selection: r.URL.Query().Get(param)}
	if err := h.validator.ValidateStruct(q); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation(param, err.Error()))
		return "", false
	}
	if q.Selection == "" {
		return report.SelectAll, true
	}
	return q.Selection, true
}

func (h *RunsHandler) renderRecords(w http.ResponseWriter, r *http.Request, records []domain.Record, selection string) {
	render.JSON(w, r, map[string]any{
		"status":    "success",
		"selection": selection,
		"data":      records,
		"count":     len(records),
	})
}

func (h *RunsHandler) renderSummary(w http.ResponseWriter, r *http.Request, dimension domain.Dimension) {
	summary, err := h.service.Summary(chi.URLParam(r, "runID"), dimension)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"status": "success",
		"data":   summary,
		"totals": map[string]float64{
			domain.ImpressionsMillionsLabel: summary.TotalImpressionsMillions(),
			domain.RateCroresLabel:          summary.TotalRateCrores(),
		},
	})
}

// handleServiceError maps run lookups onto their dedicated API errors and
// hands everything else to the error handler
func (h *RunsHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	runID := chi.URLParam(r, "runID")
	switch {
	case errors.Is(err, services.ErrRunNotFound):
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			apierrors.ErrRunNotFound.StatusCode,
			apierrors.ErrRunNotFound.ErrorCode,
			apierrors.ErrRunNotFound.Message,
			map[string]any{"run_id": runID},
		))
	case errors.Is(err, services.ErrNoData):
		h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
			apierrors.ErrNoData.StatusCode,
			apierrors.ErrNoData.ErrorCode,
			apierrors.ErrNoData.Message,
			map[string]any{"run_id": runID},
		))
	default:
		h.errorHandler.HandleError(w, r, err)
	}
}
