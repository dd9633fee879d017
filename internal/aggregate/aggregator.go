// Package aggregate unions the ingested sheet tables and groups them by the
// (event, property, page, price_type) key.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"adrollup/internal/store"
	"adrollup/pkg/contracts/domain"
)

// Skip reasons recorded on domain.SkippedTable.
const (
	ReasonMissingColumns = "missing required columns"
	ReasonNonNumeric     = "non-numeric measure value"
)

// Result is the outcome of one aggregation.
type Result struct {
	Rows    *domain.CombinedRowSet
	Skipped []domain.SkippedTable
	// DroppedRows counts rows discarded because a key field was NULL.
	DroppedRows int
	// TablesRead counts tables that contributed to Rows.
	TablesRead int
}

// Opener opens stores by identifier.
type Opener interface {
	Open(ctx context.Context, id string) (*store.Store, error)
}

// Aggregator reads every table of a set of stores.
type Aggregator struct {
	stores Opener
	logger *slog.Logger
}

// NewAggregator creates an aggregator reading from stores.
func NewAggregator(stores Opener, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		stores: stores,
		logger: logger.With(slog.String("component", "aggregator")),
	}
}

type group struct {
	impressions domain.Amount
	rate        domain.Amount
}

// Aggregate combines all qualifying tables of the given stores. Tables lacking
// the projection columns or holding non-numeric measures are skipped. The
// result is sorted by key and is empty, not an error, when nothing qualifies.
func (a *Aggregator) Aggregate(ctx context.Context, storeIDs []string) (*Result, error) {
	groups := make(map[domain.Key]*group)
	result := &Result{}

	for _, id := range storeIDs {
		if err := a.aggregateStore(ctx, id, groups, result); err != nil {
			return nil, err
		}
	}

	keys := make([]domain.Key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	records := make([]domain.Record, len(keys))
	for i, k := range keys {
		g := groups[k]
		records[i] = domain.Record{
			Event:            k.Event,
			Property:         k.Property,
			Page:             k.Page,
			PriceType:        k.PriceType,
			TotalImpressions: g.impressions,
			TotalRate:        g.rate,
		}
	}
	result.Rows = &domain.CombinedRowSet{Records: records}

	a.logger.Info("aggregation complete",
		slog.Int("stores", len(storeIDs)),
		slog.Int("tables", result.TablesRead),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("dropped_rows", result.DroppedRows),
		slog.Int("groups", len(records)))
	return result, nil
}

func (a *Aggregator) aggregateStore(ctx context.Context, id string, groups map[domain.Key]*group, result *Result) error {
	s, err := a.stores.Open(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to open store %s: %w", id, err)
	}
	defer s.Close()

	tables, err := s.Tables(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tables of %s: %w", id, err)
	}

	for _, table := range tables {
		rows, err := s.Select(ctx, table, domain.ProjectionColumns)
		if errors.Is(err, store.ErrMissingColumn) {
			a.skip(result, id, table, ReasonMissingColumns)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s in %s: %w", table, id, err)
		}

		partial := make(map[domain.Key]*group)
		dropped := 0
		ok := true
		for _, row := range rows {
			key, valid := rowKey(row)
			if !valid {
				dropped++
				continue
			}
			impressions, ierr := toAmount(row[4])
			rate, rerr := toAmount(row[5])
			if ierr != nil || rerr != nil {
				ok = false
				break
			}
			g, exists := partial[key]
			if !exists {
				g = &group{impressions: domain.ZeroAmount(), rate: domain.ZeroAmount()}
				partial[key] = g
			}
			g.impressions = g.impressions.Add(impressions)
			g.rate = g.rate.Add(rate)
		}
		if !ok {
			a.skip(result, id, table, ReasonNonNumeric)
			continue
		}

		for k, pg := range partial {
			g, exists := groups[k]
			if !exists {
				groups[k] = pg
				continue
			}
			g.impressions = g.impressions.Add(pg.impressions)
			g.rate = g.rate.Add(pg.rate)
		}
		result.DroppedRows += dropped
		result.TablesRead++
	}
	return nil
}

func (a *Aggregator) skip(result *Result, storeID, table, reason string) {
	result.Skipped = append(result.Skipped, domain.SkippedTable{Store: storeID, Table: table, Reason: reason})
	a.logger.Warn("table skipped",
		slog.String("store", storeID),
		slog.String("table", table),
		slog.String("reason", reason))
}

// rowKey extracts the grouping key. Rows with any NULL key field are invalid.
func rowKey(row []any) (domain.Key, bool) {
	var parts [4]string
	for i := range parts {
		s, ok := keyString(row[i])
		if !ok {
			return domain.Key{}, false
		}
		parts[i] = s
	}
	return domain.Key{Event: parts[0], Property: parts[1], Page: parts[2], PriceType: parts[3]}, true
}

func keyString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return fmt.Sprint(x), true
	}
}

// toAmount converts a measure cell. NULL counts as zero.
func toAmount(v any) (domain.Amount, error) {
	switch x := v.(type) {
	case nil:
		return domain.ZeroAmount(), nil
	case int64:
		return domain.AmountFromInt64(x), nil
	case float64:
		return domain.AmountFromFloat64(x)
	case string:
		return domain.ParseAmount(strings.TrimSpace(x))
	case []byte:
		return domain.ParseAmount(strings.TrimSpace(string(x)))
	default:
		return domain.Amount{}, fmt.Errorf("unsupported measure type %T", v)
	}
}
