// Package table provides the in-memory relation used by the merge pipeline.
//
// Every cell is text: either a present value holding the raw CSV bytes or
// an absent value. Tables are treated as immutable once built; operations
// such as Filter and Rename return new tables that may share row storage
// with their input.
package table

import "fmt"

// Value is a single cell.
type Value struct {
	Text  string
	Valid bool
}

// Null is the absent value.
var Null = Value{}

// Str returns a present value.
func Str(s string) Value {
	return Value{Text: s, Valid: true}
}

// String returns the cell text, or "" for an absent value.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	return v.Text
}

// Row is one record, positionally aligned with Table.Columns.
type Row []Value

// Table is a named relation with ordered columns.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row

	index map[string]int
}

// New creates an empty table. Column names must be unique.
func New(name string, columns []string) (*Table, error) {
	t := &Table{
		Name:    name,
		Columns: append([]string(nil), columns...),
	}
	if err := t.buildIndex(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) buildIndex() error {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c]; dup {
			return &DuplicateColumnError{Table: t.Name, Column: c}
		}
		t.index[c] = i
	}
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Width returns the number of columns.
func (t *Table) Width() int {
	return len(t.Columns)
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t.index == nil {
		_ = t.buildIndex()
	}
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Append adds a row. The row length must match the column count.
func (t *Table) Append(row Row) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("table %s: row has %d values, want %d", t.Name, len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Column returns all values of the named column.
func (t *Table) Column(name string) ([]Value, bool) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil, false
	}
	out := make([]Value, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, true
}

// Filter returns a new table holding the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := &Table{Name: t.Name, Columns: t.Columns, index: t.index}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Rename returns a new table with column old renamed to new.
func (t *Table) Rename(old, new string) (*Table, error) {
	i := t.ColumnIndex(old)
	if i < 0 {
		return nil, &ColumnNotFoundError{Table: t.Name, Column: old}
	}
	cols := append([]string(nil), t.Columns...)
	cols[i] = new
	out := &Table{Name: t.Name, Columns: cols, Rows: t.Rows}
	if err := out.buildIndex(); err != nil {
		return nil, err
	}
	return out, nil
}

// WithColumn returns a new table with an extra column whose values are
// computed from each row.
func (t *Table) WithColumn(name string, compute func(Row) Value) (*Table, error) {
	cols := append(append([]string(nil), t.Columns...), name)
	out := &Table{Name: t.Name, Columns: cols, Rows: make([]Row, len(t.Rows))}
	if err := out.buildIndex(); err != nil {
		return nil, err
	}
	for i, row := range t.Rows {
		next := make(Row, len(row)+1)
		copy(next, row)
		next[len(row)] = compute(row)
		out.Rows[i] = next
	}
	return out, nil
}

// DuplicateColumnError is returned when a table would contain two columns
// with the same name.
type DuplicateColumnError struct {
	Table  string
	Column string
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("table %s: duplicate column %q", e.Table, e.Column)
}

// ColumnNotFoundError is returned when an operation references a column the
// table does not have.
type ColumnNotFoundError struct {
	Table  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("table %s: column %q not found", e.Table, e.Column)
}
