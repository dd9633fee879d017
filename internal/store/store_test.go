package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	return Table{
		Name: "Sheet_1",
		Columns: []Column{
			{Name: "event", Affinity: AffinityText},
			{Name: "total_impressions", Affinity: AffinityInteger},
			{Name: "total_rate", Affinity: AffinityReal},
		},
		Rows: [][]any{
			{"E1", int64(10), 1.5},
			{nil, int64(20), nil},
		},
	}
}

func TestBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) Backend{
		KindFile: func(t *testing.T) Backend {
			return NewFileBackend(filepath.Join(t.TempDir(), "run"))
		},
		KindMemory: func(t *testing.T) Backend {
			return NewMemoryBackend()
		},
	}

	for kind, newBackend := range backends {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			backend := newBackend(t)
			assert.Equal(t, kind, backend.Kind())

			s, err := backend.Create(ctx, "Report_Sheet_1.db")
			require.NoError(t, err)
			require.NoError(t, s.WriteTable(ctx, sampleTable()))
			require.NoError(t, s.Close())

			reopened, err := backend.Open(ctx, "Report_Sheet_1.db")
			require.NoError(t, err)
			defer reopened.Close()

			tables, err := reopened.Tables(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"Sheet_1"}, tables)

			rows, err := reopened.Select(ctx, "Sheet_1", []string{"event", "total_impressions"})
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "E1", rows[0][0])
			assert.Equal(t, int64(10), rows[0][1])
			assert.Nil(t, rows[1][0])

			require.NoError(t, backend.Remove("Report_Sheet_1.db"))
			_, err = backend.Open(ctx, "Report_Sheet_1.db")
			assert.ErrorIs(t, err, ErrStoreNotFound)
			assert.NoError(t, backend.Release())
		})
	}
}

func TestWriteTableReplacesExisting(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	defer backend.Release()

	s, err := backend.Create(ctx, "a.db")
	require.NoError(t, err)
	require.NoError(t, s.WriteTable(ctx, sampleTable()))

	replacement := sampleTable()
	replacement.Rows = replacement.Rows[:1]
	require.NoError(t, s.WriteTable(ctx, replacement))

	rows, err := s.Select(ctx, "Sheet_1", []string{"event"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteTableRejectsEmptyColumns(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	defer backend.Release()

	s, err := backend.Create(ctx, "a.db")
	require.NoError(t, err)
	assert.Error(t, s.WriteTable(ctx, Table{Name: "empty"}))
}

func TestSelectMissingColumn(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	defer backend.Release()

	s, err := backend.Create(ctx, "a.db")
	require.NoError(t, err)
	require.NoError(t, s.WriteTable(ctx, sampleTable()))

	_, err = s.Select(ctx, "Sheet_1", []string{"event", "page"})
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestFileBackendReleaseKeepsNonEmptyDir(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "run")
	backend := NewFileBackend(dir)

	s, err := backend.Create(ctx, "a.db")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Error(t, backend.Release())
	_, err = os.Stat(dir)
	assert.NoError(t, err)

	require.NoError(t, backend.Remove("a.db"))
	assert.NoError(t, backend.Release())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(KindMemory, "")
	require.NoError(t, err)
	assert.Equal(t, KindMemory, b.Kind())

	b, err = NewBackend("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, KindFile, b.Kind())

	_, err = NewBackend("postgres", "")
	assert.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"plain"`, QuoteIdent("plain"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}
