package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"adrollup/internal/store"
)

// buildTable turns the typed cells of a sheet into a table. The first row is
// the header; every following row is data. Rows shorter than the widest row
// are padded with empty cells.
func buildTable(name string, rows [][]cell) store.Table {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	table := store.Table{Name: name}
	if width == 0 {
		return table
	}

	header := padRow(rows[0], width)
	labels := make([]string, width)
	for i, c := range header {
		labels[i] = c.value
	}
	names := columnNames(labels)

	data := make([][]cell, 0, len(rows)-1)
	for _, row := range rows[1:] {
		data = append(data, padRow(row, width))
	}

	table.Columns = make([]store.Column, width)
	for col := 0; col < width; col++ {
		table.Columns[col] = store.Column{
			Name:     names[col],
			Affinity: inferAffinity(data, col),
		}
	}

	table.Rows = make([][]any, len(data))
	for i, row := range data {
		values := make([]any, width)
		for col, c := range row {
			values[col] = convertCell(c, table.Columns[col].Affinity)
		}
		table.Rows[i] = values
	}
	return table
}

func padRow(row []cell, width int) []cell {
	if len(row) >= width {
		return row
	}
	padded := make([]cell, width)
	copy(padded, row)
	return padded
}

// columnNames derives SQL column names from header cells. Empty headers
// become "Unnamed:_<index>" and repeated headers get ".1", ".2" suffixes.
// SQLite identifiers are case-insensitive, so repeats are detected that way.
func columnNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, cell := range header {
		base := cell
		if strings.TrimSpace(base) == "" {
			base = fmt.Sprintf("Unnamed: %d", i)
		}
		base = strings.ReplaceAll(base, " ", "_")

		name := base
		for {
			key := strings.ToLower(name)
			n, dup := seen[key]
			if !dup {
				seen[key] = 0
				break
			}
			n++
			seen[key] = n
			name = fmt.Sprintf("%s.%d", base, n)
		}
		names[i] = name
	}
	return names
}

// inferAffinity is INTEGER or REAL only when every non-empty cell of the
// column is a number cell. Any text cell makes the column TEXT.
func inferAffinity(rows [][]cell, col int) store.Affinity {
	affinity := store.AffinityInteger
	nonEmpty := 0
	for _, row := range rows {
		c := row[col]
		switch c.kind {
		case cellEmpty:
			continue
		case cellText:
			return store.AffinityText
		}
		nonEmpty++
		if affinity == store.AffinityInteger {
			if _, err := strconv.ParseInt(c.value, 10, 64); err == nil {
				continue
			}
			affinity = store.AffinityReal
		}
		if _, ok := parseFloat(c.value); !ok {
			return store.AffinityText
		}
	}
	if nonEmpty == 0 {
		return store.AffinityText
	}
	return affinity
}

func parseFloat(cell string) (float64, bool) {
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// convertCell returns the driver value of c. TEXT columns keep the cell text
// unchanged, numbers included, as SQLite text affinity would.
func convertCell(c cell, affinity store.Affinity) any {
	if c.kind == cellEmpty {
		return nil
	}
	switch affinity {
	case store.AffinityInteger:
		v, _ := strconv.ParseInt(c.value, 10, 64)
		return v
	case store.AffinityReal:
		v, _ := parseFloat(c.value)
		return v
	default:
		return c.value
	}
}
