package aggregate

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adrollup/internal/ingest"
	"adrollup/internal/shared/testutil"
	"adrollup/internal/store"
	"adrollup/pkg/contracts/domain"
)

var adColumns = []store.Column{
	{Name: "event", Affinity: store.AffinityText},
	{Name: "property", Affinity: store.AffinityText},
	{Name: "page", Affinity: store.AffinityText},
	{Name: "price_type", Affinity: store.AffinityText},
	{Name: "total_impressions", Affinity: store.AffinityInteger},
	{Name: "total_rate", Affinity: store.AffinityReal},
}

func writeStore(t *testing.T, backend store.Backend, id string, tables ...store.Table) {
	t.Helper()
	ctx := context.Background()
	s, err := backend.Create(ctx, id)
	require.NoError(t, err)
	defer s.Close()
	for _, table := range tables {
		require.NoError(t, s.WriteTable(ctx, table))
	}
}

func adTable(name string, rows ...[]any) store.Table {
	return store.Table{Name: name, Columns: adColumns, Rows: rows}
}

func TestAggregateSumsAcrossStores(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Release()

	writeStore(t, backend, "a.db", adTable("Sheet1", []any{"E1", "P1", "pg1", "CPM", int64(1_000_000), 10_000_000.0}))
	writeStore(t, backend, "b.db", adTable("Sheet2", []any{"E1", "P1", "pg1", "CPM", int64(500_000), 5_000_000.0}))

	result, err := NewAggregator(backend, nil).Aggregate(context.Background(), []string{"a.db", "b.db"})
	require.NoError(t, err)

	require.Equal(t, 1, result.Rows.Len())
	rec := result.Rows.Records[0]
	assert.Equal(t, domain.Key{Event: "E1", Property: "P1", Page: "pg1", PriceType: "CPM"}, rec.Key())
	assert.Equal(t, "1500000", rec.TotalImpressions.String())
	assert.Equal(t, "15000000", rec.TotalRate.String())
	assert.Equal(t, 2, result.TablesRead)
	assert.Empty(t, result.Skipped)
}

func TestAggregateIngestedWorkbookKeepsTextKeys(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	defer backend.Release()

	day := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	data := testutil.BuildWorkbook(t, testutil.AdSheet("Sheet1",
		[]any{"E1", day, "007", "CPM", 10, 100},
		[]any{"E1", day, "7", "CPM", 20, 200},
		[]any{"E1", day, "007", "CPM", 5, 50},
	))

	ingested, err := ingest.NewIngestor(backend, nil).Ingest(ctx, ingest.Workbook{Name: "book.xlsx", Data: bytes.NewReader(data)})
	require.NoError(t, err)

	result, err := NewAggregator(backend, nil).Aggregate(ctx, ingested.StoreIDs())
	require.NoError(t, err)

	require.Equal(t, 2, result.Rows.Len())
	first, second := result.Rows.Records[0], result.Rows.Records[1]
	assert.Equal(t, domain.Key{Event: "E1", Property: "2024-03-01 00:00:00", Page: "007", PriceType: "CPM"}, first.Key())
	assert.Equal(t, "15", first.TotalImpressions.String())
	assert.Equal(t, domain.Key{Event: "E1", Property: "2024-03-01 00:00:00", Page: "7", PriceType: "CPM"}, second.Key())
	assert.Equal(t, "20", second.TotalImpressions.String())
}

func TestAggregateSkipsTableMissingColumns(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Release()
	logger, logs := testutil.NewTestLogger(t)

	noPage := store.Table{
		Name: "NoPage",
		Columns: []store.Column{
			{Name: "event", Affinity: store.AffinityText},
			{Name: "property", Affinity: store.AffinityText},
			{Name: "price_type", Affinity: store.AffinityText},
			{Name: "total_impressions", Affinity: store.AffinityInteger},
			{Name: "total_rate", Affinity: store.AffinityInteger},
		},
		Rows: [][]any{{"E9", "P9", "CPC", int64(1), int64(1)}},
	}
	writeStore(t, backend, "a.db", noPage, adTable("Good", []any{"E1", "P1", "pg1", "CPM", int64(10), 1.0}))

	result, err := NewAggregator(backend, logger).Aggregate(context.Background(), []string{"a.db"})
	require.NoError(t, err)

	require.Equal(t, 1, result.Rows.Len())
	assert.Equal(t, "E1", result.Rows.Records[0].Event)
	assert.Equal(t, []domain.SkippedTable{{Store: "a.db", Table: "NoPage", Reason: ReasonMissingColumns}}, result.Skipped)
	testutil.AssertLogContains(t, logs, slog.LevelWarn, "table skipped")
	testutil.AssertLogAttr(t, logs, "table", "NoPage")
}

func TestAggregateSkipsNonNumericMeasures(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Release()

	textMeasures := store.Table{
		Name: "Text",
		Columns: []store.Column{
			{Name: "event", Affinity: store.AffinityText},
			{Name: "property", Affinity: store.AffinityText},
			{Name: "page", Affinity: store.AffinityText},
			{Name: "price_type", Affinity: store.AffinityText},
			{Name: "total_impressions", Affinity: store.AffinityText},
			{Name: "total_rate", Affinity: store.AffinityText},
		},
		Rows: [][]any{
			{"E1", "P1", "pg1", "CPM", "12", "3"},
			{"E1", "P1", "pg1", "CPM", "n/a", "3"},
		},
	}
	writeStore(t, backend, "a.db", textMeasures)

	result, err := NewAggregator(backend, nil).Aggregate(context.Background(), []string{"a.db"})
	require.NoError(t, err)
	assert.True(t, result.Rows.IsEmpty())
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, ReasonNonNumeric, result.Skipped[0].Reason)
}

func TestAggregateDropsNullKeys(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Release()

	writeStore(t, backend, "a.db", adTable("Sheet1",
		[]any{"E1", "P1", "pg1", "CPM", int64(5), nil},
		[]any{nil, "P1", "pg1", "CPM", int64(7), 1.0},
		[]any{"E1", "P1", nil, "CPM", int64(9), 1.0},
	))

	result, err := NewAggregator(backend, nil).Aggregate(context.Background(), []string{"a.db"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Rows.Len())
	assert.Equal(t, 2, result.DroppedRows)
	assert.Equal(t, "5", result.Rows.Records[0].TotalImpressions.String())
	assert.True(t, result.Rows.Records[0].TotalRate.IsZero())
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Release()

	writeStore(t, backend, "a.db", adTable("S",
		[]any{"E2", "P1", "pg1", "CPM", int64(3), 0.1},
		[]any{"E1", "P2", "pg1", "CPC", int64(4), 0.2},
	))
	writeStore(t, backend, "b.db", adTable("S",
		[]any{"E1", "P2", "pg1", "CPC", int64(5), 0.3},
		[]any{"E1", "P1", "pg2", "CPM", int64(6), 0.7},
	))
	writeStore(t, backend, "c.db", adTable("S",
		[]any{"E2", "P1", "pg1", "CPM", int64(7), 0.2},
	))

	agg := NewAggregator(backend, nil)
	forward, err := agg.Aggregate(context.Background(), []string{"a.db", "b.db", "c.db"})
	require.NoError(t, err)
	backward, err := agg.Aggregate(context.Background(), []string{"c.db", "b.db", "a.db"})
	require.NoError(t, err)

	require.Equal(t, forward.Rows.Len(), backward.Rows.Len())
	for i := range forward.Rows.Records {
		f, b := forward.Rows.Records[i], backward.Rows.Records[i]
		assert.Equal(t, f.Key(), b.Key())
		assert.Equal(t, 0, f.TotalImpressions.Cmp(b.TotalImpressions))
		assert.Equal(t, 0, f.TotalRate.Cmp(b.TotalRate))
	}

	keys := make([]domain.Key, forward.Rows.Len())
	for i, r := range forward.Rows.Records {
		keys[i] = r.Key()
	}
	assert.Equal(t, []domain.Key{
		{Event: "E1", Property: "P1", Page: "pg2", PriceType: "CPM"},
		{Event: "E1", Property: "P2", Page: "pg1", PriceType: "CPC"},
		{Event: "E2", Property: "P1", Page: "pg1", PriceType: "CPM"},
	}, keys)
	assert.Equal(t, "0.5", forward.Rows.Records[1].TotalRate.String())
	assert.Equal(t, "0.3", forward.Rows.Records[2].TotalRate.String())
}

func TestAggregateNoQualifyingRows(t *testing.T) {
	backend := store.NewMemoryBackend()
	defer backend.Release()
	writeStore(t, backend, "empty.db")

	result, err := NewAggregator(backend, nil).Aggregate(context.Background(), []string{"empty.db"})
	require.NoError(t, err)
	assert.True(t, result.Rows.IsEmpty())

	result, err = NewAggregator(backend, nil).Aggregate(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Rows.IsEmpty())
}

func TestAggregateUnknownStore(t *testing.T) {
	backend := store.NewMemoryBackend()
	_, err := NewAggregator(backend, nil).Aggregate(context.Background(), []string{"missing.db"})
	assert.ErrorIs(t, err, store.ErrStoreNotFound)
}

func TestKeyString(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{nil, "", false},
		{"E1", "E1", true},
		{[]byte("P1"), "P1", true},
		{int64(42), "42", true},
		{2.5, "2.5", true},
	}
	for _, tt := range tests {
		got, ok := keyString(tt.in)
		assert.Equal(t, tt.ok, ok)
		assert.Equal(t, tt.want, got)
	}
}
