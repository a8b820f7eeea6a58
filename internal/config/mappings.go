package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v2"
)

// MappingsSpec is the on-disk shape of the static mapping data. It is
// only an input to NewMappings; stages receive the validated *Mappings.
type MappingsSpec struct {
	Version           int                `yaml:"version" validate:"gte=1"`
	CityColumn        string             `yaml:"city_column" validate:"required"`
	CityTiers         map[string]float64 `yaml:"city_tiers" validate:"dive,keys,required,endkeys"`
	DefaultCityTier   *float64           `yaml:"default_city_tier" validate:"required"`
	OthersValue       string             `yaml:"others_value" validate:"required"`
	CategoricalLevels []LevelSpec        `yaml:"categorical_levels" validate:"dive"`
	IndexColumns      IndexColumnsSpec   `yaml:"index_columns"`
	LabelColumn       string             `yaml:"label_column" validate:"required"`
	NotFeatures       []string           `yaml:"not_features" validate:"dive,required"`
	FillZeroColumns   []string           `yaml:"fill_zero_columns" validate:"dive,required"`
	RawSchema         []string           `yaml:"raw_schema" validate:"unique,dive,required"`
	ModelInputSchema  []string           `yaml:"model_input_schema" validate:"unique,dive,required"`
}

// LevelSpec is the allow-list for one categorical column
type LevelSpec struct {
	Column string   `yaml:"column" validate:"required"`
	Levels []string `yaml:"levels" validate:"unique"`
}

// IndexColumnsSpec holds the grouping keys for both pivot modes
type IndexColumnsSpec struct {
	Training  []string `yaml:"training" validate:"required,min=1,unique,dive,required"`
	Inference []string `yaml:"inference" validate:"required,min=1,unique,dive,required"`
}

// Mappings is the validated, read-only mapping configuration. All
// accessors return copies, so a *Mappings can be shared freely between
// stages and goroutines.
type Mappings struct {
	version          int
	cityColumn       string
	cityTiers        map[string]float64
	defaultCityTier  float64
	othersValue      string
	categorical      []string
	levels           map[string]map[string]struct{}
	training         []string
	inference        []string
	labelColumn      string
	notFeatures      []string
	fillZero         []string
	rawSchema        []string
	modelInputSchema []string
}

// NewMappings validates spec and freezes it
func NewMappings(spec MappingsSpec) (*Mappings, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, fmt.Errorf("invalid mappings: %w", err)
	}
	if !slices.Contains(spec.IndexColumns.Training, spec.LabelColumn) {
		return nil, fmt.Errorf("invalid mappings: training index must contain label column %q", spec.LabelColumn)
	}
	if slices.Contains(spec.IndexColumns.Inference, spec.LabelColumn) {
		return nil, fmt.Errorf("invalid mappings: inference index must not contain label column %q", spec.LabelColumn)
	}

	m := &Mappings{
		version:          spec.Version,
		cityColumn:       spec.CityColumn,
		cityTiers:        make(map[string]float64, len(spec.CityTiers)),
		defaultCityTier:  *spec.DefaultCityTier,
		othersValue:      spec.OthersValue,
		levels:           make(map[string]map[string]struct{}, len(spec.CategoricalLevels)),
		training:         slices.Clone(spec.IndexColumns.Training),
		inference:        slices.Clone(spec.IndexColumns.Inference),
		labelColumn:      spec.LabelColumn,
		notFeatures:      slices.Clone(spec.NotFeatures),
		fillZero:         slices.Clone(spec.FillZeroColumns),
		rawSchema:        slices.Clone(spec.RawSchema),
		modelInputSchema: slices.Clone(spec.ModelInputSchema),
	}
	for city, tier := range spec.CityTiers {
		m.cityTiers[city] = tier
	}
	for _, ls := range spec.CategoricalLevels {
		if _, dup := m.levels[ls.Column]; dup {
			return nil, fmt.Errorf("invalid mappings: column %q has more than one allow-list", ls.Column)
		}
		set := make(map[string]struct{}, len(ls.Levels))
		for _, l := range ls.Levels {
			set[l] = struct{}{}
		}
		m.levels[ls.Column] = set
		m.categorical = append(m.categorical, ls.Column)
	}
	return m, nil
}

// LoadMappings reads a YAML mapping file. Keys missing from the file take
// their DefaultMappingsSpec value.
func LoadMappings(path string) (*Mappings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mappings: %w", err)
	}
	var spec MappingsSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse mappings %s: %w", path, err)
	}
	spec.fillFrom(DefaultMappingsSpec())
	return NewMappings(spec)
}

// fillFrom copies every unset field from def. Maps and lists are taken
// whole, never merged.
func (s *MappingsSpec) fillFrom(def MappingsSpec) {
	if s.Version == 0 {
		s.Version = def.Version
	}
	if s.CityColumn == "" {
		s.CityColumn = def.CityColumn
	}
	if s.CityTiers == nil {
		s.CityTiers = def.CityTiers
	}
	if s.DefaultCityTier == nil {
		s.DefaultCityTier = def.DefaultCityTier
	}
	if s.OthersValue == "" {
		s.OthersValue = def.OthersValue
	}
	if s.CategoricalLevels == nil {
		s.CategoricalLevels = def.CategoricalLevels
	}
	if s.IndexColumns.Training == nil {
		s.IndexColumns.Training = def.IndexColumns.Training
	}
	if s.IndexColumns.Inference == nil {
		s.IndexColumns.Inference = def.IndexColumns.Inference
	}
	if s.LabelColumn == "" {
		s.LabelColumn = def.LabelColumn
	}
	if s.NotFeatures == nil {
		s.NotFeatures = def.NotFeatures
	}
	if s.FillZeroColumns == nil {
		s.FillZeroColumns = def.FillZeroColumns
	}
	if s.RawSchema == nil {
		s.RawSchema = def.RawSchema
	}
	if s.ModelInputSchema == nil {
		s.ModelInputSchema = def.ModelInputSchema
	}
}

// LoadMappingsOrDefault is LoadMappings, except that a missing file yields
// the built-in mappings
func LoadMappingsOrDefault(path string) (*Mappings, error) {
	if path == "" {
		return NewMappings(DefaultMappingsSpec())
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return NewMappings(DefaultMappingsSpec())
	}
	return LoadMappings(path)
}

// Version returns the mapping data version
func (m *Mappings) Version() int { return m.version }

// CityColumn returns the free-text city field replaced by city_tier
func (m *Mappings) CityColumn() string { return m.cityColumn }

// CityTier returns the tier of city, or the default tier when the city is
// not mapped
func (m *Mappings) CityTier(city string) float64 {
	if tier, ok := m.cityTiers[city]; ok {
		return tier
	}
	return m.defaultCityTier
}

// DefaultCityTier returns the tier given to unmapped and null cities
func (m *Mappings) DefaultCityTier() float64 { return m.defaultCityTier }

// OthersValue returns the sentinel long-tail values collapse to
func (m *Mappings) OthersValue() string { return m.othersValue }

// CategoricalColumns returns the collapsed columns in configuration order
func (m *Mappings) CategoricalColumns() []string { return slices.Clone(m.categorical) }

// IsSignificant reports whether value is on the allow-list of column
func (m *Mappings) IsSignificant(column, value string) bool {
	_, ok := m.levels[column][value]
	return ok
}

// IndexColumns returns the grouping keys for mode. Any mode other than
// ModeTraining yields the inference set.
func (m *Mappings) IndexColumns(mode string) []string {
	if mode == ModeTraining {
		return slices.Clone(m.training)
	}
	return slices.Clone(m.inference)
}

// LabelColumn returns the column whose presence marks training data
func (m *Mappings) LabelColumn() string { return m.labelColumn }

// NotFeatures returns the columns dropped after the interaction pivot
func (m *Mappings) NotFeatures() []string { return slices.Clone(m.notFeatures) }

// FillZeroColumns returns the columns whose missing values become 0 on load
func (m *Mappings) FillZeroColumns() []string { return slices.Clone(m.fillZero) }

// RawSchema returns the columns the raw file must carry
func (m *Mappings) RawSchema() []string { return slices.Clone(m.rawSchema) }

// ModelInputSchema returns the columns model_input must carry
func (m *Mappings) ModelInputSchema() []string { return slices.Clone(m.modelInputSchema) }

// DefaultMappingsSpec returns the built-in mapping data
func DefaultMappingsSpec() MappingsSpec {
	return MappingsSpec{
		Version:    1,
		CityColumn: "city_mapped",
		CityTiers: map[string]float64{
			"bengaluru":  1.0,
			"chennai":    1.0,
			"delhi":      1.0,
			"hyderabad":  1.0,
			"kolkata":    1.0,
			"pune":       1.0,
			"ahmedabad":  2.0,
			"chandigarh": 2.0,
			"coimbatore": 2.0,
			"indore":     2.0,
			"jaipur":     2.0,
			"kochi":      2.0,
			"lucknow":    2.0,
			"nagpur":     2.0,
		},
		DefaultCityTier: ptr(3.0),
		OthersValue:     "others",
		CategoricalLevels: []LevelSpec{
			{
				Column: "first_platform_c",
				Levels: []string{"Level0", "Level3", "Level7", "Level1", "Level2", "Level8"},
			},
			{
				Column: "first_utm_medium_c",
				Levels: []string{
					"Level0", "Level2", "Level6", "Level3", "Level4", "Level9", "Level11", "Level5", "Level8",
					"Level20", "Level13", "Level30", "Level33", "Level16", "Level10", "Level15", "Level26", "Level43",
				},
			},
			{
				Column: "first_utm_source_c",
				Levels: []string{"Level2", "Level0", "Level7", "Level4", "Level6", "Level16", "Level5", "Level14"},
			},
		},
		IndexColumns: IndexColumnsSpec{
			Training: []string{
				"created_date", "first_platform_c", "first_utm_medium_c", "first_utm_source_c",
				"total_leads_dropped", "city_tier", "referred_lead", "app_complete_flag",
			},
			Inference: []string{
				"created_date", "first_platform_c", "first_utm_medium_c", "first_utm_source_c",
				"total_leads_dropped", "city_tier", "referred_lead",
			},
		},
		LabelColumn:     "app_complete_flag",
		NotFeatures:     []string{},
		FillZeroColumns: []string{"total_leads_dropped", "referred_lead"},
		RawSchema: []string{
			"created_date", "city_mapped", "first_platform_c", "first_utm_medium_c",
			"first_utm_source_c", "total_leads_dropped", "referred_lead",
		},
		ModelInputSchema: []string{
			"total_leads_dropped", "city_tier", "referred_lead", "app_complete_flag",
			"first_platform_c", "first_utm_medium_c", "first_utm_source_c",
			"assistance_interaction", "career_interaction", "payment_interaction",
			"social_interaction", "syllabus_interaction",
		},
	}
}

func ptr[T any](v T) *T { return &v }
