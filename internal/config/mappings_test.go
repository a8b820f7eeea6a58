package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMappings(t *testing.T) {
	m, err := NewMappings(DefaultMappingsSpec())
	require.NoError(t, err)

	assert.Equal(t, "city_mapped", m.CityColumn())
	assert.Equal(t, 1.0, m.CityTier("bengaluru"))
	assert.Equal(t, 3.0, m.CityTier("Mumbai"), "unmapped city takes the default tier")
	assert.Equal(t, 3.0, m.DefaultCityTier())

	assert.Equal(t, []string{"first_platform_c", "first_utm_medium_c", "first_utm_source_c"}, m.CategoricalColumns())
	assert.True(t, m.IsSignificant("first_platform_c", "Level0"))
	assert.False(t, m.IsSignificant("first_platform_c", "rare_channel"))
	assert.False(t, m.IsSignificant("unknown_column", "Level0"))

	assert.Contains(t, m.IndexColumns(ModeTraining), "app_complete_flag")
	assert.NotContains(t, m.IndexColumns(ModeInference), "app_complete_flag")
	assert.Empty(t, m.NotFeatures())
}

func TestMappingsAreImmutable(t *testing.T) {
	spec := DefaultMappingsSpec()
	m, err := NewMappings(spec)
	require.NoError(t, err)

	spec.CityTiers["mumbai"] = 1.0
	spec.IndexColumns.Training[0] = "changed"
	got := m.IndexColumns(ModeTraining)
	got[1] = "changed too"

	assert.Equal(t, 3.0, m.CityTier("mumbai"))
	assert.Equal(t, "created_date", m.IndexColumns(ModeTraining)[0])
	assert.Equal(t, "first_platform_c", m.IndexColumns(ModeTraining)[1])
}

func TestNewMappingsValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MappingsSpec)
	}{
		{"label missing from training index", func(s *MappingsSpec) {
			s.IndexColumns.Training = s.IndexColumns.Inference
		}},
		{"label inside inference index", func(s *MappingsSpec) {
			s.IndexColumns.Inference = append(s.IndexColumns.Inference, s.LabelColumn)
		}},
		{"duplicate index column", func(s *MappingsSpec) {
			s.IndexColumns.Inference = append(s.IndexColumns.Inference, "city_tier")
		}},
		{"empty others value", func(s *MappingsSpec) { s.OthersValue = "" }},
		{"no default city tier", func(s *MappingsSpec) { s.DefaultCityTier = nil }},
		{"allow-list without column", func(s *MappingsSpec) {
			s.CategoricalLevels = append(s.CategoricalLevels, LevelSpec{Levels: []string{"a"}})
		}},
		{"column with two allow-lists", func(s *MappingsSpec) {
			s.CategoricalLevels = append(s.CategoricalLevels, LevelSpec{Column: "first_platform_c"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := DefaultMappingsSpec()
			tt.mutate(&spec)
			_, err := NewMappings(spec)
			assert.Error(t, err)
		})
	}
}

func TestLoadMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	content := `version: 2
city_tiers:
  mumbai: 1.0
categorical_levels:
  - column: first_platform_c
    levels: [Level0]
not_features: [social_interaction]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := LoadMappings(path)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Version())
	assert.Equal(t, 1.0, m.CityTier("mumbai"))
	assert.Equal(t, 3.0, m.CityTier("bengaluru"), "file tiers replace the defaults")
	assert.Equal(t, []string{"first_platform_c"}, m.CategoricalColumns())
	assert.Equal(t, []string{"social_interaction"}, m.NotFeatures())
	assert.Equal(t, "app_complete_flag", m.LabelColumn(), "unset keys keep defaults")
}

func TestLoadMappingsKeepsZeroDefaultTier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_city_tier: 0\n"), 0644))

	m, err := LoadMappings(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.DefaultCityTier())
	assert.Equal(t, 0.0, m.CityTier("shillong"))
	assert.Equal(t, 1.0, m.CityTier("pune"), "other keys keep defaults")
}

func TestLoadMappingsOrDefault(t *testing.T) {
	m, err := LoadMappingsOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Version())

	_, err = LoadMappings(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestShippedMappingsMatchDefaults(t *testing.T) {
	shipped, err := LoadMappings(filepath.Join("..", "..", DefaultConfigsDir, "mappings.yaml"))
	require.NoError(t, err)
	def, err := NewMappings(DefaultMappingsSpec())
	require.NoError(t, err)

	assert.Equal(t, def.Version(), shipped.Version())
	assert.Equal(t, def.CityColumn(), shipped.CityColumn())
	for _, city := range []string{"bengaluru", "pune", "jaipur", "Mumbai", ""} {
		assert.Equal(t, def.CityTier(city), shipped.CityTier(city), city)
	}
	assert.Equal(t, def.CategoricalColumns(), shipped.CategoricalColumns())
	for _, col := range def.CategoricalColumns() {
		for _, v := range []string{"Level0", "Level43", "Level14", "Level99"} {
			assert.Equal(t, def.IsSignificant(col, v), shipped.IsSignificant(col, v), col+"="+v)
		}
	}
	assert.Equal(t, def.IndexColumns(ModeTraining), shipped.IndexColumns(ModeTraining))
	assert.Equal(t, def.IndexColumns(ModeInference), shipped.IndexColumns(ModeInference))
	assert.ElementsMatch(t, def.NotFeatures(), shipped.NotFeatures())
	assert.Equal(t, def.FillZeroColumns(), shipped.FillZeroColumns())
	assert.Equal(t, def.RawSchema(), shipped.RawSchema())
	assert.Equal(t, def.ModelInputSchema(), shipped.ModelInputSchema())
}
