package dataprocessing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscoring/internal/config"
	"leadscoring/internal/dataset"
)

var (
	num  = dataset.Number
	text = dataset.Text
	null = dataset.Null
)

func defaultMappings(t *testing.T) *config.Mappings {
	t.Helper()
	m, err := config.NewMappings(config.DefaultMappingsSpec())
	require.NoError(t, err)
	return m
}

func mappingsWith(t *testing.T, mutate func(*config.MappingsSpec)) *config.Mappings {
	t.Helper()
	spec := config.DefaultMappingsSpec()
	mutate(&spec)
	m, err := config.NewMappings(spec)
	require.NoError(t, err)
	return m
}

func TestFillZero(t *testing.T) {
	d := dataset.MustNew("total_leads_dropped", "other")
	require.NoError(t, d.Append([]dataset.Value{null(), null()}))
	require.NoError(t, d.Append([]dataset.Value{num(4), num(1)}))

	out := FillZero(d, []string{"total_leads_dropped", "referred_lead"})

	assert.Equal(t, []dataset.Value{num(0), null()}, out.Row(0), "only named columns are filled")
	assert.Equal(t, []dataset.Value{num(4), num(1)}, out.Row(1), "present values are unchanged")
	assert.True(t, d.Row(0)[0].IsNull(), "input is not modified")
}

func TestMapCityTier(t *testing.T) {
	m := defaultMappings(t)
	d := dataset.MustNew("created_date", "city_mapped")
	require.NoError(t, d.Append([]dataset.Value{text("d1"), text("bengaluru")}))
	require.NoError(t, d.Append([]dataset.Value{text("d2"), text("Mumbai")}))
	require.NoError(t, d.Append([]dataset.Value{text("d3"), null()}))

	out, err := MapCityTier(d, m)
	require.NoError(t, err)

	assert.Equal(t, []string{"created_date", "city_tier"}, out.Columns())
	tiers, _ := out.Column("city_tier")
	assert.Equal(t, []dataset.Value{num(1), num(3), num(3)}, tiers)
}

func TestMapCityTierMissingColumn(t *testing.T) {
	_, err := MapCityTier(dataset.MustNew("created_date"), defaultMappings(t))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestCollapseCategoricals(t *testing.T) {
	m := defaultMappings(t)
	d := dataset.MustNew("first_platform_c", "first_utm_medium_c", "first_utm_source_c", "x")
	require.NoError(t, d.Append([]dataset.Value{text("rare_channel"), text("Level0"), text("others"), num(1)}))
	require.NoError(t, d.Append([]dataset.Value{text("Level3"), null(), text("Level99"), num(2)}))

	out, err := CollapseCategoricals(d, m)
	require.NoError(t, err)

	assert.Equal(t, d.Columns(), out.Columns())
	assert.Equal(t, []dataset.Value{text("others"), text("Level0"), text("others"), num(1)}, out.Row(0))
	assert.Equal(t, []dataset.Value{text("Level3"), text("others"), text("others"), num(2)}, out.Row(1))

	for i := 0; i < out.Len(); i++ {
		for _, c := range m.CategoricalColumns() {
			v, _ := out.Value(i, c)
			s := v.String()
			assert.True(t, s == "others" || m.IsSignificant(c, s), "%s=%q escaped the allow-list", c, s)
		}
	}
}

func TestResolveMode(t *testing.T) {
	m := defaultMappings(t)
	withLabel := dataset.MustNew("app_complete_flag")
	without := dataset.MustNew("created_date")

	assert.Equal(t, config.ModeTraining, ResolveMode(config.ModeAuto, withLabel, m))
	assert.Equal(t, config.ModeInference, ResolveMode(config.ModeAuto, without, m))
	assert.Equal(t, config.ModeInference, ResolveMode(config.ModeInference, withLabel, m))
}

// smallMappings uses a two-column index so pivot tests stay readable
func smallMappings(t *testing.T, notFeatures ...string) *config.Mappings {
	return mappingsWith(t, func(s *config.MappingsSpec) {
		s.IndexColumns.Training = []string{"id", "app_complete_flag"}
		s.IndexColumns.Inference = []string{"id"}
		s.NotFeatures = notFeatures
	})
}

func interactionMapping(t *testing.T) *dataset.Dataset {
	t.Helper()
	m := dataset.MustNew(InteractionTypeColumn, InteractionMappingColumn)
	require.NoError(t, m.Append([]dataset.Value{text("email_opened"), text("email")}))
	require.NoError(t, m.Append([]dataset.Value{text("email_clicked"), text("email")}))
	require.NoError(t, m.Append([]dataset.Value{text("careers"), text("career_interaction")}))
	return m
}

func TestMapInteractionsCollapsesCategories(t *testing.T) {
	d := dataset.MustNew("id", "email_opened", "email_clicked", "careers", "unknown_event")
	require.NoError(t, d.Append([]dataset.Value{text("a"), num(5), num(3), null(), num(9)}))
	require.NoError(t, d.Append([]dataset.Value{text("a"), num(5), num(3), null(), num(9)}))
	require.NoError(t, d.Append([]dataset.Value{text("b"), num(1), null(), num(2), null()}))

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	res, err := MapInteractions(context.Background(), d, interactionMapping(t), smallMappings(t), config.ModeInference, logger)
	require.NoError(t, err)

	assert.Equal(t, 1, res.DuplicatesDropped)
	assert.Equal(t, []string{"unknown_event"}, res.UnmappedTypes)
	assert.Equal(t, 2, res.UnmappedRows)
	assert.Contains(t, logs.String(), "unknown_event")

	out := res.InteractionsMapped
	assert.Equal(t, []string{"id", "career_interaction", "email"}, out.Columns())
	require.Equal(t, 2, out.Len())
	assert.Equal(t, []dataset.Value{text("a"), num(0), num(8)}, out.Row(0), "email_opened 5 + email_clicked 3")
	assert.Equal(t, []dataset.Value{text("b"), num(2), num(1)}, out.Row(1))
	assert.True(t, out.Equal(res.ModelInput))
}

func TestMapInteractionsTrainingIndex(t *testing.T) {
	d := dataset.MustNew("id", "email_opened", "app_complete_flag")
	require.NoError(t, d.Append([]dataset.Value{text("a"), num(1), num(1)}))

	m := smallMappings(t)
	res, err := MapInteractions(context.Background(), d, interactionMapping(t), m, ResolveMode(config.ModeAuto, d, m), nil)
	require.NoError(t, err)

	assert.Equal(t, config.ModeTraining, res.Mode)
	assert.Equal(t, []string{"id", "app_complete_flag", "email"}, res.ModelInput.Columns())
}

func TestMapInteractionsNotFeatures(t *testing.T) {
	d := dataset.MustNew("id", "email_opened", "careers")
	require.NoError(t, d.Append([]dataset.Value{text("a"), num(1), num(1)}))

	res, err := MapInteractions(context.Background(), d, interactionMapping(t),
		smallMappings(t, "career_interaction", "not_a_column"), config.ModeInference, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "email"}, res.InteractionsMapped.Columns(), "absent excluded column is ignored")
}

func TestMapInteractionsErrors(t *testing.T) {
	m := smallMappings(t)

	_, err := MapInteractions(context.Background(), dataset.MustNew("email_opened"), interactionMapping(t), m, config.ModeInference, nil)
	assert.ErrorIs(t, err, ErrMissingColumn)

	d := dataset.MustNew("id", "email_opened")
	require.NoError(t, d.Append([]dataset.Value{text("a"), text("lots")}))
	_, err = MapInteractions(context.Background(), d, interactionMapping(t), m, config.ModeInference, nil)
	assert.ErrorIs(t, err, dataset.ErrNonNumeric)
}

func TestMapInteractionsNoRowLoss(t *testing.T) {
	d := dataset.MustNew("id", "email_opened", "careers")
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Append([]dataset.Value{text(id), num(1), num(2)}))
	}
	res, err := MapInteractions(context.Background(), d, interactionMapping(t), smallMappings(t), config.ModeInference, nil)
	require.NoError(t, err)

	cells := 0
	for i := 0; i < res.InteractionsMapped.Len(); i++ {
		for _, v := range res.InteractionsMapped.Row(i)[1:] {
			if !v.IsNull() {
				cells++
			}
		}
	}
	assert.Equal(t, 3*2, cells)
}

// TestStagesEndToEnd runs the row from the Mumbai scenario through every
// transform
func TestStagesEndToEnd(t *testing.T) {
	raw := `created_date,city_mapped,first_platform_c,first_utm_medium_c,first_utm_source_c,total_leads_dropped,referred_lead,app_complete_flag,email_opened,careers
2021-07-01,Mumbai,rare_channel,Level0,Level2,,0,1,5,1
`
	d, err := ParseCSV(strings.NewReader(raw))
	require.NoError(t, err)
	m := defaultMappings(t)

	loaded := FillZero(d, m.FillZeroColumns())
	tiered, err := MapCityTier(loaded, m)
	require.NoError(t, err)
	collapsed, err := CollapseCategoricals(tiered, m)
	require.NoError(t, err)
	res, err := MapInteractions(context.Background(), collapsed, interactionMapping(t), m,
		ResolveMode(config.ModeAuto, collapsed, m), nil)
	require.NoError(t, err)

	out := res.ModelInput
	require.Equal(t, 1, out.Len())
	get := func(c string) dataset.Value {
		v, ok := out.Value(0, c)
		require.True(t, ok, c)
		return v
	}
	assert.Equal(t, num(0), get("total_leads_dropped"))
	assert.Equal(t, num(3), get("city_tier"))
	assert.Equal(t, text("others"), get("first_platform_c"))
	assert.Equal(t, num(5), get("email"))
	assert.Equal(t, num(1), get("career_interaction"))
}
