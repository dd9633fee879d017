package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// ErrMissingColumn is returned by Select when the table does not expose every
// requested column.
var ErrMissingColumn = errors.New("table does not expose the requested columns")

// Affinity is the declared SQLite column type.
type Affinity string

const (
	AffinityInteger Affinity = "INTEGER"
	AffinityReal    Affinity = "REAL"
	AffinityText    Affinity = "TEXT"
)

// Column describes one column of a Table.
type Column struct {
	Name     string
	Affinity Affinity
}

// Table is a sheet materialised as rows of driver values (nil, int64,
// float64 or string).
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// Store is one relational database holding the tables of a single sheet.
type Store struct {
	id string
	db *sql.DB
	// shared stores are owned by their backend and stay open until removed
	shared bool
}

// ID returns the store identifier.
func (s *Store) ID() string {
	return s.id
}

// Close releases the handle. Stores owned by a memory backend stay open until
// the backend removes them.
func (s *Store) Close() error {
	if s.shared {
		return nil
	}
	return s.db.Close()
}

// WriteTable replaces the table with the given contents.
func (s *Store) WriteTable(ctx context.Context, t Table) (err error) {
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %q has no columns", t.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	name := QuoteIdent(t.Name)
	if _, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+name); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}

	defs := make([]string, len(t.Columns))
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = QuoteIdent(c.Name)
		defs[i] = cols[i] + " " + string(c.Affinity)
	}
	if _, err = tx.ExecContext(ctx, `CREATE TABLE `+name+` (`+strings.Join(defs, ", ")+`)`); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+name+` (`+strings.Join(cols, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", name, err)
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		if _, err = stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("failed to insert row %d into %s: %w", i, name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", name, err)
	}
	return nil
}

// Tables lists the tables of the store.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Select reads the given columns of every row in table. A table lacking any of
// the columns yields an error wrapping ErrMissingColumn.
func (s *Store) Select(ctx context.Context, table string, columns []string) ([][]any, error) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdent(c)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+strings.Join(quoted, ", ")+` FROM `+QuoteIdent(table))
	if err != nil {
		if strings.Contains(err.Error(), "no such column") {
			return nil, fmt.Errorf("%w: %v", ErrMissingColumn, err)
		}
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

// QuoteIdent quotes an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
