package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrColumnNotFound is returned when an operation names a column the
	// dataset does not have
	ErrColumnNotFound = errors.New("column not found")

	// ErrDuplicateColumn is returned when a dataset would carry the same
	// column name twice
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrRowWidth is returned when a row does not match the column count
	ErrRowWidth = errors.New("row width does not match column count")
)

// Dataset is an in-memory rectangular table with ordered, uniquely named
// columns. It is the unit every stage reads and writes.
type Dataset struct {
	columns []string
	index   map[string]int
	rows    [][]Value
}

// New creates an empty dataset with the given columns
func New(columns []string) (*Dataset, error) {
	d := &Dataset{
		columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	copy(d.columns, columns)
	for i, c := range columns {
		if _, exists := d.index[c]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, c)
		}
		d.index[c] = i
	}
	return d, nil
}

// MustNew is New for statically known column sets. It panics on a
// duplicate column.
func MustNew(columns ...string) *Dataset {
	d, err := New(columns)
	if err != nil {
		panic(err)
	}
	return d
}

// Columns returns a copy of the column names in order
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Width returns the number of columns
func (d *Dataset) Width() int {
	return len(d.columns)
}

// HasColumn reports whether the named column exists
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// ColumnIndex returns the position of the named column
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// Append adds a row. The row is copied.
func (d *Dataset) Append(row []Value) error {
	if len(row) != len(d.columns) {
		return fmt.Errorf("%w: got %d, want %d", ErrRowWidth, len(row), len(d.columns))
	}
	r := make([]Value, len(row))
	copy(r, row)
	d.rows = append(d.rows, r)
	return nil
}

// Row returns a copy of row i
func (d *Dataset) Row(i int) []Value {
	out := make([]Value, len(d.rows[i]))
	copy(out, d.rows[i])
	return out
}

// Value returns the cell at row i in the named column
func (d *Dataset) Value(i int, column string) (Value, bool) {
	c, ok := d.index[column]
	if !ok || i < 0 || i >= len(d.rows) {
		return Value{}, false
	}
	return d.rows[i][c], true
}

// Column returns a copy of every cell in the named column
func (d *Dataset) Column(name string) ([]Value, error) {
	c, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	out := make([]Value, len(d.rows))
	for i, r := range d.rows {
		out[i] = r[c]
	}
	return out, nil
}

// MapColumn rewrites every cell of the named column in place
func (d *Dataset) MapColumn(name string, fn func(Value) Value) error {
	c, ok := d.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	for _, r := range d.rows {
		r[c] = fn(r[c])
	}
	return nil
}

// AddColumn appends a column holding the given values, one per row
func (d *Dataset) AddColumn(name string, values []Value) error {
	if _, exists := d.index[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateColumn, name)
	}
	if len(values) != len(d.rows) {
		return fmt.Errorf("%w: column %s has %d values for %d rows", ErrRowWidth, name, len(values), len(d.rows))
	}
	d.index[name] = len(d.columns)
	d.columns = append(d.columns, name)
	for i := range d.rows {
		d.rows[i] = append(d.rows[i], values[i])
	}
	return nil
}

// Clone returns a deep copy
func (d *Dataset) Clone() *Dataset {
	out, _ := New(d.columns)
	out.rows = make([][]Value, len(d.rows))
	for i, r := range d.rows {
		out.rows[i] = make([]Value, len(r))
		copy(out.rows[i], r)
	}
	return out
}

// Drop returns a copy without the named columns. Names that do not exist
// are ignored.
func (d *Dataset) Drop(names ...string) *Dataset {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	keep := make([]string, 0, len(d.columns))
	for _, c := range d.columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	out, _ := d.Select(keep...)
	return out
}

// Select returns a copy holding only the named columns, in the given order
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	pos := make([]int, len(names))
	for i, n := range names {
		c, ok := d.index[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, n)
		}
		pos[i] = c
	}
	out, err := New(names)
	if err != nil {
		return nil, err
	}
	out.rows = make([][]Value, len(d.rows))
	for i, r := range d.rows {
		nr := make([]Value, len(pos))
		for j, c := range pos {
			nr[j] = r[c]
		}
		out.rows[i] = nr
	}
	return out, nil
}

// Distinct returns a copy with exact-duplicate rows removed, keeping the
// first occurrence of each row in its original position.
func (d *Dataset) Distinct() *Dataset {
	out, _ := New(d.columns)
	seen := make(map[string]bool, len(d.rows))
	for _, r := range d.rows {
		k := rowKey(r)
		if seen[k] {
			continue
		}
		seen[k] = true
		nr := make([]Value, len(r))
		copy(nr, r)
		out.rows = append(out.rows, nr)
	}
	return out
}

// Equal reports whether both datasets have the same columns in the same
// order and the same rows in the same order.
func (d *Dataset) Equal(o *Dataset) bool {
	if d == nil || o == nil {
		return d == o
	}
	if len(d.columns) != len(o.columns) || len(d.rows) != len(o.rows) {
		return false
	}
	for i, c := range d.columns {
		if o.columns[i] != c {
			return false
		}
	}
	for i, r := range d.rows {
		for j, v := range r {
			if !v.Equal(o.rows[i][j]) {
				return false
			}
		}
	}
	return true
}

// MissingColumns returns the names from want that the dataset lacks
func (d *Dataset) MissingColumns(want []string) []string {
	var missing []string
	for _, w := range want {
		if _, ok := d.index[w]; !ok {
			missing = append(missing, w)
		}
	}
	return missing
}
