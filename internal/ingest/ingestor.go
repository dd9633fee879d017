package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"adrollup/internal/store"
)

// ErrInvalidWorkbook is returned when the upload cannot be parsed as a workbook.
var ErrInvalidWorkbook = errors.New("invalid workbook")

// Workbook is an uploaded spreadsheet.
type Workbook struct {
	Name string
	Data io.Reader
}

// IngestResult maps each sheet to the store holding its table.
type IngestResult struct {
	Stores map[string]string
	// Order lists sheet names in workbook order.
	Order []string
}

// StoreIDs returns the distinct store identifiers in sheet order. Two sheets
// whose names sanitise identically share a store.
func (r *IngestResult) StoreIDs() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Order))
	ids := make([]string, 0, len(r.Order))
	for _, sheet := range r.Order {
		id := r.Stores[sheet]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Ingestor persists every sheet of a workbook into its own store.
type Ingestor struct {
	backend store.Backend
	logger  *slog.Logger
}

// NewIngestor creates an ingestor writing to backend.
func NewIngestor(backend store.Backend, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		backend: backend,
		logger:  logger.With(slog.String("component", "ingestor")),
	}
}

// Ingest reads the workbook and writes one table per sheet. On any failure
// every store created so far is removed and the error is returned.
func (i *Ingestor) Ingest(ctx context.Context, wb Workbook) (result *IngestResult, err error) {
	f, err := excelize.OpenReader(wb.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidWorkbook, wb.Name, err)
	}
	defer f.Close()

	created := make(map[string]*store.Store)
	var createdOrder []string
	defer func() {
		for _, id := range createdOrder {
			if cerr := created[id].Close(); cerr != nil {
				i.logger.Warn("failed to close store", slog.String("store", id), slog.String("error", cerr.Error()))
			}
		}
		if err != nil {
			i.discard(createdOrder)
		}
	}()

	reader := newSheetReader(f)
	result = &IngestResult{Stores: make(map[string]string)}
	for _, sheet := range f.GetSheetList() {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		rows, rerr := reader.Rows(sheet)
		if rerr != nil {
			err = fmt.Errorf("%w: failed to read sheet %q: %v", ErrInvalidWorkbook, sheet, rerr)
			return nil, err
		}

		id := StoreID(wb.Name, sheet)
		s, ok := created[id]
		if !ok {
			s, err = i.backend.Create(ctx, id)
			if err != nil {
				err = fmt.Errorf("failed to create store for sheet %q: %w", sheet, err)
				return nil, err
			}
			created[id] = s
			createdOrder = append(createdOrder, id)
		}

		table := buildTable(TableName(sheet), rows)
		if len(table.Columns) > 0 {
			if err = s.WriteTable(ctx, table); err != nil {
				err = fmt.Errorf("failed to write sheet %q: %w", sheet, err)
				return nil, err
			}
		}

		result.Stores[sheet] = id
		result.Order = append(result.Order, sheet)
		i.logger.Debug("sheet ingested",
			slog.String("workbook", wb.Name),
			slog.String("sheet", sheet),
			slog.String("store", id),
			slog.Int("rows", len(table.Rows)))
	}

	i.logger.Info("workbook ingested",
		slog.String("workbook", wb.Name),
		slog.Int("sheets", len(result.Order)))
	return result, nil
}

func (i *Ingestor) discard(ids []string) {
	for _, id := range ids {
		if err := i.backend.Remove(id); err != nil {
			i.logger.Warn("failed to remove store after ingest failure",
				slog.String("store", id),
				slog.String("error", err.Error()))
		}
	}
}
