package dataprocessing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"leadscoring/internal/config"
	"leadscoring/internal/dataset"
)

// FillZero returns a copy of d with missing cells of the given columns set
// to 0. Columns d does not have are skipped.
func FillZero(d *dataset.Dataset, columns []string) *dataset.Dataset {
	out := d.Clone()
	for _, c := range columns {
		if !out.HasColumn(c) {
			continue
		}
		_ = out.MapColumn(c, func(v dataset.Value) dataset.Value {
			if v.IsNull() {
				return dataset.Number(0)
			}
			return v
		})
	}
	return out
}

// MapCityTier replaces the city column with city_tier. Unmapped and
// missing cities take the default tier, so no row is dropped.
func MapCityTier(d *dataset.Dataset, m *config.Mappings) (*dataset.Dataset, error) {
	cities, err := d.Column(m.CityColumn())
	if err != nil {
		return nil, fmt.Errorf("map city tier: %w: %s", ErrMissingColumn, m.CityColumn())
	}
	tiers := make([]dataset.Value, len(cities))
	for i, c := range cities {
		if c.IsNull() {
			tiers[i] = dataset.Number(m.DefaultCityTier())
			continue
		}
		tiers[i] = dataset.Number(m.CityTier(c.String()))
	}

	out := d.Drop("city_tier")
	if err := out.AddColumn("city_tier", tiers); err != nil {
		return nil, fmt.Errorf("map city tier: %w", err)
	}
	return out.Drop(m.CityColumn()), nil
}

// CollapseCategoricals rewrites every value outside its column's
// allow-list to the others sentinel. The column set is unchanged.
func CollapseCategoricals(d *dataset.Dataset, m *config.Mappings) (*dataset.Dataset, error) {
	columns := m.CategoricalColumns()
	if missing := d.MissingColumns(columns); len(missing) > 0 {
		return nil, fmt.Errorf("map categorical variables: %w: %v", ErrMissingColumn, missing)
	}

	others := dataset.Text(m.OthersValue())
	out := d.Clone()
	for _, c := range columns {
		col := c
		_ = out.MapColumn(col, func(v dataset.Value) dataset.Value {
			if !v.IsNull() && m.IsSignificant(col, v.String()) {
				return v
			}
			return others
		})
	}
	return out, nil
}

// ResolveMode turns the configured mode into training or inference. Auto
// picks training exactly when d carries the label column.
func ResolveMode(mode string, d *dataset.Dataset, m *config.Mappings) string {
	switch mode {
	case config.ModeTraining, config.ModeInference:
		return mode
	}
	if d.HasColumn(m.LabelColumn()) {
		return config.ModeTraining
	}
	return config.ModeInference
}

// InteractionResult is the output of MapInteractions
type InteractionResult struct {
	Mode               string
	InteractionsMapped *dataset.Dataset
	ModelInput         *dataset.Dataset
	DuplicatesDropped  int
	UnmappedRows       int
	UnmappedTypes      []string
}

// MapInteractions pivots the per-event interaction columns of d into one
// summed column per canonical category.
//
// Every column outside the index set of mode is an interaction type.
// Rows are deduplicated, melted to (index, interaction_type,
// interaction_value) with missing values as 0, joined to mapping, and
// pivoted back on interaction_mapping. Types with no mapping entry keep a
// null category and so contribute to no feature column. Columns named in
// the not-features list are then dropped if present.
func MapInteractions(ctx context.Context, d, mapping *dataset.Dataset, m *config.Mappings, mode string, logger *slog.Logger) (*InteractionResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	index := m.IndexColumns(mode)
	if missing := d.MissingColumns(index); len(missing) > 0 {
		return nil, fmt.Errorf("map interactions (%s): index %w: %v", mode, ErrMissingColumn, missing)
	}

	deduped := d.Distinct()
	res := &InteractionResult{Mode: mode, DuplicatesDropped: d.Len() - deduped.Len()}

	long, err := dataset.Melt(deduped, index, InteractionTypeColumn, InteractionValueColumn)
	if err != nil {
		return nil, fmt.Errorf("map interactions: %w", err)
	}
	_ = long.MapColumn(InteractionValueColumn, func(v dataset.Value) dataset.Value {
		if v.IsNull() {
			return dataset.Number(0)
		}
		return v
	})

	joined, err := dataset.LeftJoin(long, mapping, InteractionTypeColumn)
	if err != nil {
		return nil, fmt.Errorf("map interactions: %w", err)
	}
	res.UnmappedTypes, res.UnmappedRows = unmapped(joined)
	warnUnmapped(ctx, logger, res.UnmappedTypes)

	pivoted, err := dataset.PivotSum(joined.Drop(InteractionTypeColumn), index, InteractionMappingColumn, InteractionValueColumn)
	if err != nil {
		return nil, fmt.Errorf("map interactions: %w", err)
	}
	res.InteractionsMapped = pivoted.Drop(m.NotFeatures()...)

	res.ModelInput, err = modelInput(res.InteractionsMapped, index)
	if err != nil {
		return nil, fmt.Errorf("map interactions: %w", err)
	}
	return res, nil
}

// modelInput orders the index columns first, then every feature column
func modelInput(d *dataset.Dataset, index []string) (*dataset.Dataset, error) {
	isIndex := make(map[string]bool, len(index))
	for _, c := range index {
		isIndex[c] = true
	}
	cols := append([]string{}, index...)
	for _, c := range d.Columns() {
		if !isIndex[c] {
			cols = append(cols, c)
		}
	}
	return d.Select(cols...)
}

func unmapped(joined *dataset.Dataset) ([]string, int) {
	ti, _ := joined.ColumnIndex(InteractionTypeColumn)
	mi, _ := joined.ColumnIndex(InteractionMappingColumn)
	types := make(map[string]bool)
	rows := 0
	for i := 0; i < joined.Len(); i++ {
		r := joined.Row(i)
		if r[mi].IsNull() {
			rows++
			types[r[ti].String()] = true
		}
	}
	out := make([]string, 0, len(types))
	for t := range types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, rows
}

// warnUnmapped logs the first few unmapped types individually, then at
// most one per second
func warnUnmapped(ctx context.Context, logger *slog.Logger, types []string) {
	if len(types) == 0 {
		return
	}
	sometimes := rate.Sometimes{First: 3, Interval: time.Second}
	for _, t := range types {
		sometimes.Do(func() {
			logger.WarnContext(ctx, "Interaction type has no mapping",
				slog.String("interaction_type", t))
		})
	}
	logger.InfoContext(ctx, "Unmapped interaction types",
		slog.Int("count", len(types)))
}
