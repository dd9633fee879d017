package http

import (
	"context"

	"adrollup/internal/archive"
	"adrollup/internal/ingest"
	"adrollup/internal/report"
	"adrollup/internal/services"
	"adrollup/pkg/contracts/domain"
)

// RunServiceInterface defines the pipeline operations exposed over HTTP
type RunServiceInterface interface {
	Run(ctx context.Context, wb ingest.Workbook) (*services.Run, error)
	Get(id string) (*services.Run, error)
	Delete(id string) error

	Records(id string) ([]domain.Record, error)
	EventReport(id, selection string) ([]domain.Record, error)
	PropertyReport(id, selection string) ([]domain.Record, error)
	Summary(id string, dimension domain.Dimension) (domain.Summary, error)
	Download(id string, view report.View, selection string) (*report.Download, error)

	Validate(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) (*archive.Result, error)
}
