package operations

import (
	"context"
	"fmt"
	"log/slog"

	"leadscoring/internal/config"
	"leadscoring/internal/dataprocessing"
	"leadscoring/internal/dataset"
	"leadscoring/internal/infrastructure"
	"leadscoring/internal/store"
	"leadscoring/internal/validation"
)

// StageOptions carries what the pipeline steps need. It is built once per
// process and shared read-only by every step.
type StageOptions struct {
	Paths            config.PathsConfig
	Mappings         *config.Mappings
	ValidationPolicy string
	Metrics          *infrastructure.PipelineMetrics
}

func (o *StageOptions) validate(stepID string, needRaw, needMapping bool) error {
	if o == nil || o.Mappings == nil {
		return fmt.Errorf("%s: mappings are not configured", stepID)
	}
	if o.Paths.DBFile == "" {
		return fmt.Errorf("%s: database path is not configured", stepID)
	}
	if needRaw && o.Paths.RawFile == "" {
		return fmt.Errorf("%s: raw data file is not configured", stepID)
	}
	if needMapping && o.Paths.InteractionMappingFile == "" {
		return fmt.Errorf("%s: interaction mapping file is not configured", stepID)
	}
	return nil
}

// withStore opens the store for the duration of fn and always closes it
func withStore(ctx context.Context, path string, logger *slog.Logger, fn func(*store.Store) error) (err error) {
	s, err := store.Open(ctx, path, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = &store.Error{Op: "close", Err: cerr}
		}
	}()
	return fn(s)
}

// transformTable reads table in, applies fn and replaces table out with
// the result. It returns the number of rows written.
func transformTable(ctx context.Context, o *StageOptions, logger *slog.Logger, in, out string, fn func(*dataset.Dataset) (*dataset.Dataset, error)) (int, error) {
	rows := 0
	err := withStore(ctx, o.Paths.DBFile, logger, func(s *store.Store) error {
		d, err := s.ReadTable(ctx, in)
		if err != nil {
			return err
		}
		result, err := fn(d)
		if err != nil {
			return err
		}
		if err := s.WriteTable(ctx, out, result); err != nil {
			return err
		}
		rows = result.Len()
		logger.InfoContext(ctx, "table_transformed",
			slog.String("input", in),
			slog.Int("rows_in", d.Len()),
			slog.String("output", out),
			slog.Int("rows_out", rows),
			slog.Int("columns_out", result.Width()))
		return nil
	})
	if err == nil {
		o.Metrics.RecordRows(ctx, out, rows)
	}
	return rows, err
}

// BuildDBStage creates the database file when it does not exist yet
type BuildDBStage struct {
	BaseStage
	logger  *slog.Logger
	options *StageOptions
}

// NewBuildDBStage creates the database step
func NewBuildDBStage(logger *slog.Logger, options *StageOptions) *BuildDBStage {
	return &BuildDBStage{
		BaseStage: NewBaseStage(config.StepBuildDB, StepNameBuildDB, nil),
		logger:    stageLogger(logger, config.StepBuildDB),
		options:   options,
	}
}

// Validate checks that a database path is configured
func (s *BuildDBStage) Validate(state *OperationState) error {
	if s.options == nil || s.options.Paths.DBFile == "" {
		return fmt.Errorf("%s: database path is not configured", s.ID())
	}
	return nil
}

// Execute creates the database if needed
func (s *BuildDBStage) Execute(ctx context.Context, state *OperationState) error {
	exists, err := store.Exists(s.options.Paths.DBFile)
	if err != nil {
		return &store.Error{Op: "stat", Err: err}
	}
	if exists {
		s.logger.InfoContext(ctx, "DB already exists", slog.String("path", s.options.Paths.DBFile))
		state.Report(s.ID(), 0, "DB already exists")
		return nil
	}

	if err := s.options.Paths.EnsureDirectories(); err != nil {
		return &store.Error{Op: "create", Err: err}
	}
	if err := withStore(ctx, s.options.Paths.DBFile, s.logger, func(*store.Store) error { return nil }); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "DB created", slog.String("path", s.options.Paths.DBFile))
	state.Report(s.ID(), 0, "DB created")
	return nil
}

// CheckRawSchemaStage compares the raw file header with the raw schema
type CheckRawSchemaStage struct {
	BaseStage
	logger  *slog.Logger
	options *StageOptions
}

// NewCheckRawSchemaStage creates the raw schema check step
func NewCheckRawSchemaStage(logger *slog.Logger, options *StageOptions) *CheckRawSchemaStage {
	return &CheckRawSchemaStage{
		BaseStage: NewBaseStage(config.StepCheckRawSchema, StepNameCheckRawSchema, []string{config.StepBuildDB}),
		logger:    stageLogger(logger, config.StepCheckRawSchema),
		options:   options,
	}
}

// Validate checks that the raw file and mappings are configured
func (s *CheckRawSchemaStage) Validate(state *OperationState) error {
	return s.options.validate(s.ID(), true, false)
}

// Execute runs the check. A mismatch fails the step only under the fail
// policy.
func (s *CheckRawSchemaStage) Execute(ctx context.Context, state *OperationState) error {
	v := validation.NewSchemaValidator(s.options.ValidationPolicy, s.logger)
	res, err := v.CheckRawSchema(ctx, s.options.Paths.RawFile, s.options.Mappings.RawSchema())
	state.SetContext(ContextKeyRawCheck, res)
	state.Report(s.ID(), 0, res.Message)
	return err
}

// LoadDataStage ingests the raw file into loaded_data
type LoadDataStage struct {
	BaseStage
	logger  *slog.Logger
	options *StageOptions
}

// NewLoadDataStage creates the ingestion step
func NewLoadDataStage(logger *slog.Logger, options *StageOptions) *LoadDataStage {
	return &LoadDataStage{
		BaseStage: NewBaseStage(config.StepLoadData, StepNameLoadData, []string{config.StepCheckRawSchema}),
		logger:    stageLogger(logger, config.StepLoadData),
		options:   options,
	}
}

// Validate checks that the raw file and mappings are configured
func (s *LoadDataStage) Validate(state *OperationState) error {
	return s.options.validate(s.ID(), true, false)
}

// Execute parses the raw file, fills the zero-default columns and replaces
// loaded_data
func (s *LoadDataStage) Execute(ctx context.Context, state *OperationState) error {
	raw, err := dataprocessing.ParseFile(s.options.Paths.RawFile)
	if err != nil {
		return fmt.Errorf("load raw data: %w", err)
	}
	s.logger.InfoContext(ctx, "raw_data_loaded",
		slog.String("path", s.options.Paths.RawFile),
		slog.Int("rows", raw.Len()),
		slog.Int("columns", raw.Width()))

	loaded := dataprocessing.FillZero(raw, s.options.Mappings.FillZeroColumns())
	err = withStore(ctx, s.options.Paths.DBFile, s.logger, func(st *store.Store) error {
		return st.WriteTable(ctx, config.TableLoadedData, loaded)
	})
	if err != nil {
		return err
	}
	s.options.Metrics.RecordRows(ctx, config.TableLoadedData, loaded.Len())
	state.Report(s.ID(), loaded.Len(), fmt.Sprintf("loaded %d rows and %d columns", loaded.Len(), loaded.Width()))
	return nil
}

// MapCityTierStage derives city_tier from the city column
type MapCityTierStage struct {
	BaseStage
	logger  *slog.Logger
	options *StageOptions
}

// NewMapCityTierStage creates the city tier step
func NewMapCityTierStage(logger *slog.Logger, options *StageOptions) *MapCityTierStage {
	return &MapCityTierStage{
		BaseStage: NewBaseStage(config.StepMapCityTier, StepNameMapCityTier, []string{config.StepLoadData}),
		logger:    stageLogger(logger, config.StepMapCityTier),
		options:   options,
	}
}

// Validate checks that the mappings are configured
func (s *MapCityTierStage) Validate(state *OperationState) error {
	return s.options.validate(s.ID(), false, false)
}

// Execute replaces city_tier_mapped from loaded_data
func (s *MapCityTierStage) Execute(ctx context.Context, state *OperationState) error {
	m := s.options.Mappings
	rows, err := transformTable(ctx, s.options, s.logger, config.TableLoadedData, config.TableCityTierMapped,
		func(d *dataset.Dataset) (*dataset.Dataset, error) {
			return dataprocessing.MapCityTier(d, m)
		})
	if err != nil {
		return err
	}
	state.Report(s.ID(), rows, fmt.Sprintf("mapped city tier for %d rows", rows))
	return nil
}

// MapCategoricalStage collapses rare categorical levels
type MapCategoricalStage struct {
	BaseStage
	logger  *slog.Logger
	options *StageOptions
}

// NewMapCategoricalStage creates the categorical step
func NewMapCategoricalStage(logger *slog.Logger, options *StageOptions) *MapCategoricalStage {
	return &MapCategoricalStage{
		BaseStage: NewBaseStage(config.StepMapCategorical, StepNameMapCategorical, []string{config.StepMapCityTier}),
		logger:    stageLogger(logger, config.StepMapCategorical),
		options:   options,
	}
}

// Validate checks that the mappings are configured
func (s *MapCategoricalStage) Validate(state *OperationState) error {
	return s.options.validate(s.ID(), false, false)
}

// Execute replaces categorical_variables_mapped from city_tier_mapped
func (s *MapCategoricalStage) Execute(ctx context.Context, state *OperationState) error {
	m := s.options.Mappings
	rows, err := transformTable(ctx, s.options, s.logger, config.TableCityTierMapped, config.TableCategoricalMapped,
		func(d *dataset.Dataset) (*dataset.Dataset, error) {
			return dataprocessing.CollapseCategoricals(d, m)
		})
	if err != nil {
		return err
	}
	state.Report(s.ID(), rows, fmt.Sprintf("collapsed %d categorical columns", len(m.CategoricalColumns())))
	return nil
}

// MapInteractionsStage pivots interaction columns into category features
// and writes interactions_mapped and model_input
type MapInteractionsStage struct {
	BaseStage
	logger  *slog.Logger
	options *StageOptions
}

// NewMapInteractionsStage creates the interaction pivot step
func NewMapInteractionsStage(logger *slog.Logger, options *StageOptions) *MapInteractionsStage {
	return &MapInteractionsStage{
		BaseStage: NewBaseStage(config.StepMapInteractions, StepNameMapInteractions, []string{config.StepMapCategorical}),
		logger:    stageLogger(logger, config.StepMapInteractions),
		options:   options,
	}
}

// Validate checks that the mapping file and mappings are configured
func (s *MapInteractionsStage) Validate(state *OperationState) error {
	return s.options.validate(s.ID(), false, true)
}

// Execute runs the pivot. The mapping file is read fresh on every run.
func (s *MapInteractionsStage) Execute(ctx context.Context, state *OperationState) error {
	mapping, err := dataprocessing.LoadInteractionMapping(s.options.Paths.InteractionMappingFile)
	if err != nil {
		return fmt.Errorf("load interaction mapping: %w", err)
	}

	var res *dataprocessing.InteractionResult
	err = withStore(ctx, s.options.Paths.DBFile, s.logger, func(st *store.Store) error {
		d, err := st.ReadTable(ctx, config.TableCategoricalMapped)
		if err != nil {
			return err
		}
		mode := dataprocessing.ResolveMode(state.GetString(ContextKeyMode), d, s.options.Mappings)
		res, err = dataprocessing.MapInteractions(ctx, d, mapping, s.options.Mappings, mode, s.logger)
		if err != nil {
			return err
		}
		return st.WriteTables(ctx,
			store.Table{Name: config.TableInteractionsMapped, Data: res.InteractionsMapped},
			store.Table{Name: config.TableModelInput, Data: res.ModelInput})
	})
	if err != nil {
		return err
	}

	s.options.Metrics.RecordRows(ctx, config.TableInteractionsMapped, res.InteractionsMapped.Len())
	s.options.Metrics.RecordRows(ctx, config.TableModelInput, res.ModelInput.Len())
	s.options.Metrics.RecordUnmapped(ctx, res.UnmappedRows)

	state.SetContext(ContextKeyResolvedMode, res.Mode)
	state.SetContext(ContextKeyUnmapped, res.UnmappedTypes)
	s.logger.InfoContext(ctx, "interactions_mapped",
		slog.String("mode", res.Mode),
		slog.Int("duplicates_dropped", res.DuplicatesDropped),
		slog.Int("unmapped_rows", res.UnmappedRows),
		slog.Int("rows", res.ModelInput.Len()),
		slog.Int("columns", res.ModelInput.Width()))
	state.Report(s.ID(), res.ModelInput.Len(),
		fmt.Sprintf("%s mode: %d rows, %d feature columns", res.Mode, res.ModelInput.Len(), res.ModelInput.Width()))
	return nil
}

// CheckModelInputSchemaStage compares model_input with the model input
// schema
type CheckModelInputSchemaStage struct {
	BaseStage
	logger  *slog.Logger
	options *StageOptions
}

// NewCheckModelInputSchemaStage creates the model input check step
func NewCheckModelInputSchemaStage(logger *slog.Logger, options *StageOptions) *CheckModelInputSchemaStage {
	return &CheckModelInputSchemaStage{
		BaseStage: NewBaseStage(config.StepCheckModelInputSchema, StepNameCheckModelInputSchema, []string{config.StepMapInteractions}),
		logger:    stageLogger(logger, config.StepCheckModelInputSchema),
		options:   options,
	}
}

// Validate checks that the mappings are configured
func (s *CheckModelInputSchemaStage) Validate(state *OperationState) error {
	return s.options.validate(s.ID(), false, false)
}

// Execute runs the check. A mismatch fails the step only under the fail
// policy.
func (s *CheckModelInputSchemaStage) Execute(ctx context.Context, state *OperationState) error {
	v := validation.NewSchemaValidator(s.options.ValidationPolicy, s.logger)
	res, err := v.CheckModelInputSchema(ctx, s.options.Paths.DBFile, s.options.Mappings.ModelInputSchema())
	state.SetContext(ContextKeyModelCheck, res)
	state.Report(s.ID(), 0, res.Message)
	return err
}

func stageLogger(logger *slog.Logger, stepID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("step", stepID))
}

// StageFactory creates the pipeline steps keyed by ID
func StageFactory(logger *slog.Logger, options *StageOptions) map[string]Step {
	steps := PipelineStages(logger, options)
	out := make(map[string]Step, len(steps))
	for _, s := range steps {
		out[s.ID()] = s
	}
	return out
}

// PipelineStages returns the pipeline steps in chain order
func PipelineStages(logger *slog.Logger, options *StageOptions) []Step {
	return []Step{
		NewBuildDBStage(logger, options),
		NewCheckRawSchemaStage(logger, options),
		NewLoadDataStage(logger, options),
		NewMapCityTierStage(logger, options),
		NewMapCategoricalStage(logger, options),
		NewMapInteractionsStage(logger, options),
		NewCheckModelInputSchemaStage(logger, options),
	}
}

// NewPipelineRegistry registers every pipeline step
func NewPipelineRegistry(logger *slog.Logger, options *StageOptions) (*Registry, error) {
	r := NewRegistry()
	for _, s := range PipelineStages(logger, options) {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	if err := r.ValidateDependencies(); err != nil {
		return nil, err
	}
	return r, nil
}

var (
	_ Step = (*BuildDBStage)(nil)
	_ Step = (*CheckRawSchemaStage)(nil)
	_ Step = (*LoadDataStage)(nil)
	_ Step = (*MapCityTierStage)(nil)
	_ Step = (*MapCategoricalStage)(nil)
	_ Step = (*MapInteractionsStage)(nil)
	_ Step = (*CheckModelInputSchemaStage)(nil)
)
