// Package dataset holds the in-memory tabular data a chat session analyzes.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
)

// ErrNoColumn is returned when a column name does not resolve.
var ErrNoColumn = errors.New("no such column")

// Column describes one column of a Table.
type Column struct {
	Name string
	Kind Kind
	Unit string
}

// Table is an ordered set of named columns over string cells.
// Typed views (Float, Stats) are derived on demand. A Table is not safe for
// concurrent mutation; sessions serialize access per user.
type Table struct {
	Name string
	cols []Column
	rows [][]string
}

// New builds a table from a header and rows. Short rows are padded and long
// rows truncated to the header width; column kinds are inferred.
func New(name string, header []string, rows [][]string) *Table {
	t := &Table{Name: name, cols: make([]Column, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(h)
		_, unit := splitUnits(h)
		t.cols[i] = Column{Name: h, Unit: unit}
	}
	t.rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		t.rows = append(t.rows, normalizeRow(r, len(header)))
	}
	t.inferKinds()
	return t
}

func normalizeRow(r []string, n int) []string {
	out := make([]string, n)
	copy(out, r)
	return out
}

func (t *Table) inferKinds() {
	for j := range t.cols {
		t.cols[j].Kind = inferKind(t.columnValues(j))
	}
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.rows) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Columns returns column names in declaration order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Schema returns a copy of the column descriptors.
func (t *Table) Schema() []Column {
	out := make([]Column, len(t.cols))
	copy(out, t.cols)
	return out
}

// Index resolves a column name, exact match first, then case-insensitive.
// It returns -1 when nothing matches.
func (t *Table) Index(name string) int {
	for i, c := range t.cols {
		if c.Name == name {
			return i
		}
	}
	for i, c := range t.cols {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

func (t *Table) mustIndex(name string) int {
	idx := t.Index(name)
	if idx < 0 {
		panic(fmt.Errorf("%w: %q (have %s)", ErrNoColumn, name, strings.Join(t.Columns(), ", ")))
	}
	return idx
}

func (t *Table) columnValues(j int) []string {
	out := make([]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out
}

// Cell returns the raw cell at row i of the named column.
func (t *Table) Cell(i int, col string) string {
	return t.rows[i][t.mustIndex(col)]
}

// Strings returns a copy of the named column's raw cells.
func (t *Table) Strings(col string) []string {
	return t.columnValues(t.mustIndex(col))
}

// Float returns the named column parsed as numbers; unparsable or empty
// cells become NaN so positions stay aligned with rows.
func (t *Table) Float(col string) []float64 {
	j := t.mustIndex(col)
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		if x, ok := parseNumeric(r[j]); ok {
			out[i] = x
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Row returns row i keyed by column name.
func (t *Table) Row(i int) map[string]string {
	m := make(map[string]string, len(t.cols))
	for j, c := range t.cols {
		m[c.Name] = t.rows[i][j]
	}
	return m
}

// Records returns a copy of all rows in column order.
func (t *Table) Records() [][]string {
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = normalizeRow(r, len(r))
	}
	return out
}

// Head returns a new table holding the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.rows) {
		n = len(t.rows)
	}
	return t.derive(t.rows[:n])
}

// Filter returns a new table with the rows for which keep returns true.
func (t *Table) Filter(keep func(row map[string]string) bool) *Table {
	var kept [][]string
	for i, r := range t.rows {
		if keep(t.Row(i)) {
			kept = append(kept, r)
		}
	}
	return t.derive(kept)
}

// SortBy returns a new table ordered by the named column. Numeric columns
// sort numerically with NaN last; others sort lexically. The sort is stable.
func (t *Table) SortBy(col string, desc bool) *Table {
	j := t.mustIndex(col)
	rows := make([][]string, len(t.rows))
	copy(rows, t.rows)
	numeric := t.cols[j].Kind == KindNumeric
	sort.SliceStable(rows, func(a, b int) bool {
		va, vb := rows[a][j], rows[b][j]
		if !numeric {
			if desc {
				return va > vb
			}
			return va < vb
		}
		x, okx := parseNumeric(va)
		y, oky := parseNumeric(vb)
		switch {
		case okx && oky:
			if desc {
				return x > y
			}
			return x < y
		case okx:
			return true
		default:
			return false
		}
	})
	return t.derive(rows)
}

func (t *Table) derive(rows [][]string) *Table {
	out := &Table{Name: t.Name, cols: make([]Column, len(t.cols)), rows: make([][]string, len(rows))}
	copy(out.cols, t.cols)
	for i, r := range rows {
		out.rows[i] = normalizeRow(r, len(t.cols))
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table { return t.derive(t.rows) }

// Assign replaces t's columns and rows with src's. src must not be used
// afterwards.
func (t *Table) Assign(src *Table) {
	t.Name = src.Name
	t.cols = src.cols
	t.rows = src.rows
}

// SetCell overwrites one cell and re-infers that column's kind.
func (t *Table) SetCell(i int, col string, v string) error {
	j := t.Index(col)
	if j < 0 {
		return fmt.Errorf("%w: %q", ErrNoColumn, col)
	}
	if i < 0 || i >= len(t.rows) {
		return fmt.Errorf("row %d out of range [0,%d)", i, len(t.rows))
	}
	t.rows[i][j] = v
	t.cols[j].Kind = inferKind(t.columnValues(j))
	return nil
}

// AddColumn appends a column. values must have one entry per row.
func (t *Table) AddColumn(name string, values []string) error {
	if t.Index(name) >= 0 {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(values) != len(t.rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.rows))
	}
	_, unit := splitUnits(name)
	t.cols = append(t.cols, Column{Name: name, Unit: unit, Kind: inferKind(values)})
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], values[i])
	}
	return nil
}

// DropColumn removes the named column.
func (t *Table) DropColumn(name string) error {
	j := t.Index(name)
	if j < 0 {
		return fmt.Errorf("%w: %q", ErrNoColumn, name)
	}
	t.cols = append(t.cols[:j], t.cols[j+1:]...)
	for i, r := range t.rows {
		t.rows[i] = append(r[:j], r[j+1:]...)
	}
	return nil
}

// WriteCSV writes the header and rows as comma-separated values.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(t.rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// String renders the whole table as an aligned text grid.
func (t *Table) String() string {
	return renderGrid(t.Columns(), t.rows, 0)
}
