package dataset

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNonNumeric is returned when an aggregation meets a cell that is not
// a number
var ErrNonNumeric = errors.New("non-numeric value in aggregation")

// Melt reshapes d from wide to long. Every column not in idVars becomes
// one (varName, valueName) pair per input row. Output rows are ordered by
// value column first, then by input row, and carry idVars in their given
// order followed by varName and valueName.
func Melt(d *Dataset, idVars []string, varName, valueName string) (*Dataset, error) {
	if missing := d.MissingColumns(idVars); len(missing) > 0 {
		return nil, fmt.Errorf("melt: %w: %v", ErrColumnNotFound, missing)
	}

	isID := make(map[string]bool, len(idVars))
	for _, c := range idVars {
		isID[c] = true
	}
	var valueVars []string
	for _, c := range d.columns {
		if !isID[c] {
			valueVars = append(valueVars, c)
		}
	}

	cols := append(append([]string{}, idVars...), varName, valueName)
	out, err := New(cols)
	if err != nil {
		return nil, fmt.Errorf("melt: %w", err)
	}

	idPos := make([]int, len(idVars))
	for i, c := range idVars {
		idPos[i] = d.index[c]
	}

	out.rows = make([][]Value, 0, len(valueVars)*len(d.rows))
	for _, vc := range valueVars {
		vpos := d.index[vc]
		label := Text(vc)
		for _, r := range d.rows {
			nr := make([]Value, 0, len(cols))
			for _, p := range idPos {
				nr = append(nr, r[p])
			}
			nr = append(nr, label, r[vpos])
			out.rows = append(out.rows, nr)
		}
	}
	return out, nil
}

// LeftJoin joins every left row with the right rows whose on column holds
// an equal value. Left rows with no match are kept once with nulls in the
// right-hand columns. Null keys never match. The output carries all left
// columns followed by the right columns other than on.
func LeftJoin(left, right *Dataset, on string) (*Dataset, error) {
	lk, ok := left.index[on]
	if !ok {
		return nil, fmt.Errorf("left join: left %w: %s", ErrColumnNotFound, on)
	}
	rk, ok := right.index[on]
	if !ok {
		return nil, fmt.Errorf("left join: right %w: %s", ErrColumnNotFound, on)
	}

	var rightCols []int
	cols := left.Columns()
	for i, c := range right.columns {
		if i == rk {
			continue
		}
		rightCols = append(rightCols, i)
		cols = append(cols, c)
	}
	out, err := New(cols)
	if err != nil {
		return nil, fmt.Errorf("left join: %w", err)
	}

	matches := make(map[string][]int, len(right.rows))
	for i, r := range right.rows {
		if r[rk].IsNull() {
			continue
		}
		k := r[rk].key()
		matches[k] = append(matches[k], i)
	}

	for _, lr := range left.rows {
		var hits []int
		if !lr[lk].IsNull() {
			hits = matches[lr[lk].key()]
		}
		if len(hits) == 0 {
			nr := make([]Value, len(cols))
			copy(nr, lr)
			out.rows = append(out.rows, nr)
			continue
		}
		for _, h := range hits {
			nr := make([]Value, 0, len(cols))
			nr = append(nr, lr...)
			for _, c := range rightCols {
				nr = append(nr, right.rows[h][c])
			}
			out.rows = append(out.rows, nr)
		}
	}
	return out, nil
}

// PivotSum groups d by the index columns and spreads the distinct values
// of the columns column into new columns, summing the values column inside
// each (group, category) cell.
//
// Groups are emitted in ascending Compare order of their index cells and
// categories in ascending lexical order. A cell with no contributing row is
// null. Rows with a null category contribute to no cell, but their group
// still appears in the output. Null values are skipped by the sum; text
// values fail with ErrNonNumeric.
func PivotSum(d *Dataset, index []string, columns, values string) (*Dataset, error) {
	if missing := d.MissingColumns(index); len(missing) > 0 {
		return nil, fmt.Errorf("pivot: index %w: %v", ErrColumnNotFound, missing)
	}
	cpos, ok := d.index[columns]
	if !ok {
		return nil, fmt.Errorf("pivot: %w: %s", ErrColumnNotFound, columns)
	}
	vpos, ok := d.index[values]
	if !ok {
		return nil, fmt.Errorf("pivot: %w: %s", ErrColumnNotFound, values)
	}

	idxPos := make([]int, len(index))
	for i, c := range index {
		idxPos[i] = d.index[c]
	}

	type group struct {
		keys  []Value
		cells map[string]float64
		seen  map[string]bool
	}
	groups := make(map[string]*group)
	var order []*group
	categories := make(map[string]bool)

	for i, r := range d.rows {
		keys := make([]Value, len(idxPos))
		for j, p := range idxPos {
			keys[j] = r[p]
		}
		gk := rowKey(keys)
		g, ok := groups[gk]
		if !ok {
			g = &group{keys: keys, cells: make(map[string]float64), seen: make(map[string]bool)}
			groups[gk] = g
			order = append(order, g)
		}

		cat := r[cpos]
		if cat.IsNull() {
			continue
		}
		name := cat.String()
		categories[name] = true

		v := r[vpos]
		switch v.Kind() {
		case KindNull:
			continue
		case KindText:
			return nil, fmt.Errorf("pivot: %w: row %d column %s holds %q", ErrNonNumeric, i, values, v.String())
		}
		f, _ := v.Float()
		g.cells[name] += f
		g.seen[name] = true
	}

	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := order[a].keys, order[b].keys
		for i := range ka {
			if c := Compare(ka[i], kb[i]); c != 0 {
				return c < 0
			}
		}
		return false
	})

	catNames := make([]string, 0, len(categories))
	for c := range categories {
		catNames = append(catNames, c)
	}
	sort.Strings(catNames)

	out, err := New(append(append([]string{}, index...), catNames...))
	if err != nil {
		return nil, fmt.Errorf("pivot: %w", err)
	}
	out.rows = make([][]Value, 0, len(order))
	for _, g := range order {
		nr := make([]Value, 0, len(index)+len(catNames))
		nr = append(nr, g.keys...)
		for _, c := range catNames {
			if g.seen[c] {
				nr = append(nr, Number(g.cells[c]))
			} else {
				nr = append(nr, Null())
			}
		}
		out.rows = append(out.rows, nr)
	}
	return out, nil
}
