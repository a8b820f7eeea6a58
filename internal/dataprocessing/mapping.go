package dataprocessing

import (
	"errors"
	"fmt"

	"leadscoring/internal/dataset"
)

// Interaction mapping columns
const (
	InteractionTypeColumn    = "interaction_type"
	InteractionMappingColumn = "interaction_mapping"
	InteractionValueColumn   = "interaction_value"
)

var (
	// ErrMissingColumn is returned when an input lacks a column a stage
	// cannot work without
	ErrMissingColumn = errors.New("required column missing")

	// ErrConflictingMapping is returned when one interaction type maps to
	// two different categories
	ErrConflictingMapping = errors.New("conflicting interaction mapping")
)

// LoadInteractionMapping reads the interaction_type to interaction_mapping
// table. Extra columns, such as a leading positional index, are ignored.
// Repeated identical entries collapse to one; an interaction type mapped to
// two categories is rejected.
func LoadInteractionMapping(path string) (*dataset.Dataset, error) {
	raw, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return NormalizeInteractionMapping(raw)
}

// NormalizeInteractionMapping validates and cleans a parsed mapping table.
// Both columns come back as text so they join against melted column names.
func NormalizeInteractionMapping(raw *dataset.Dataset) (*dataset.Dataset, error) {
	if missing := raw.MissingColumns([]string{InteractionTypeColumn, InteractionMappingColumn}); len(missing) > 0 {
		return nil, fmt.Errorf("interaction mapping: %w: %v", ErrMissingColumn, missing)
	}
	ti, _ := raw.ColumnIndex(InteractionTypeColumn)
	mi, _ := raw.ColumnIndex(InteractionMappingColumn)

	out := dataset.MustNew(InteractionTypeColumn, InteractionMappingColumn)
	seen := make(map[string]dataset.Value, raw.Len())
	for i := 0; i < raw.Len(); i++ {
		r := raw.Row(i)
		if r[ti].IsNull() {
			continue
		}
		typ := r[ti].String()
		category := dataset.Null()
		if !r[mi].IsNull() {
			category = dataset.Text(r[mi].String())
		}
		if prev, ok := seen[typ]; ok {
			if !prev.Equal(category) {
				return nil, fmt.Errorf("%w: %q maps to both %q and %q", ErrConflictingMapping, typ, prev.String(), category.String())
			}
			continue
		}
		seen[typ] = category
		if err := out.Append([]dataset.Value{dataset.Text(typ), category}); err != nil {
			return nil, err
		}
	}
	return out, nil
}
