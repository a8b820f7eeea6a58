package config

import (
	"time"

	"leadscoring/pkg/contracts"
)

// Application constants
const (
	AppName    = "leadscoring"
	AppVersion = contracts.Version

	// EnvPrefix namespaces every environment variable (LEADSCORE_PATHS_DB_FILE, ...)
	EnvPrefix = "LEADSCORE"

	// File Paths (relative to the working directory)
	DefaultDataDir    = "data"
	DefaultLogsDir    = "logs"
	DefaultConfigsDir = "configs"
	DefaultExportsDir = "data/exports"

	DefaultDBFileName                 = "lead_scoring.db"
	DefaultRawFileName                = "leadscoring.csv"
	DefaultInteractionMappingFileName = "interaction_mapping.csv"
	DefaultMappingsFileName           = "mappings.yaml"

	// Log Settings
	DefaultLogLevel = "info"

	// Run policy
	DefaultRetries      = 1
	DefaultRetryDelay   = 5 * time.Second
	DefaultStageTimeout = 30 * time.Minute
	DefaultSchedule     = "@daily"

	// API Endpoints
	APIBasePath     = "/api/v1"
	HealthEndpoint  = "/healthz"
	MetricsEndpoint = "/metrics"
)

// Pipeline modes
const (
	ModeAuto      = "auto"
	ModeTraining  = "training"
	ModeInference = "inference"
)

// Validation policies
const (
	PolicyWarn = "warn"
	PolicyFail = "fail"
)

// Store table names. Each is written by exactly one stage.
const (
	TableLoadedData         = "loaded_data"
	TableCityTierMapped     = "city_tier_mapped"
	TableCategoricalMapped  = "categorical_variables_mapped"
	TableInteractionsMapped = "interactions_mapped"
	TableModelInput         = "model_input"
	TableRuns               = "pipeline_runs"
)

// Step identifiers in run order
const (
	StepBuildDB               = "build_db"
	StepCheckRawSchema        = "check_raw_schema"
	StepLoadData              = "load_data"
	StepMapCityTier           = "map_city_tier"
	StepMapCategorical        = "map_categorical_vars"
	StepMapInteractions       = "map_interactions"
	StepCheckModelInputSchema = "check_model_input_schema"
)

// StageTables lists the tables produced by pipeline stages, in chain order
var StageTables = []string{
	TableLoadedData,
	TableCityTierMapped,
	TableCategoricalMapped,
	TableInteractionsMapped,
	TableModelInput,
}

// PipelineSteps lists the step identifiers in run order
var PipelineSteps = []string{
	StepBuildDB,
	StepCheckRawSchema,
	StepLoadData,
	StepMapCityTier,
	StepMapCategorical,
	StepMapInteractions,
	StepCheckModelInputSchema,
}
