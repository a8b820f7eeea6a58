package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Scheduler SchedulerConfig `yaml:"scheduler" envconfig:"SCHEDULER"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

// PathsConfig locates every external resource the pipeline touches
type PathsConfig struct {
	DBFile                 string `yaml:"db_file" envconfig:"DB_FILE" validate:"required"`
	RawFile                string `yaml:"raw_file" envconfig:"RAW_FILE" validate:"required"`
	InteractionMappingFile string `yaml:"interaction_mapping_file" envconfig:"INTERACTION_MAPPING_FILE" validate:"required"`
	MappingsFile           string `yaml:"mappings_file" envconfig:"MAPPINGS_FILE"`
}

// PipelineConfig controls how stages run
type PipelineConfig struct {
	// Mode selects the index-column set used by the interaction pivot.
	// "auto" picks training when the label column is present.
	Mode string `yaml:"mode" envconfig:"MODE" validate:"oneof=auto training inference"`

	// ValidationPolicy decides whether a schema mismatch only warns or
	// halts the run.
	ValidationPolicy string `yaml:"validation_policy" envconfig:"VALIDATION_POLICY" validate:"oneof=warn fail"`

	Retries      int           `yaml:"retries" envconfig:"RETRIES" validate:"gte=0,lte=10"`
	RetryDelay   time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY" validate:"gte=0"`
	StageTimeout time.Duration `yaml:"stage_timeout" envconfig:"STAGE_TIMEOUT" validate:"gt=0"`
}

// SchedulerConfig contains the cadence used by the serve command
type SchedulerConfig struct {
	Cron       string `yaml:"cron" envconfig:"CRON" validate:"required"`
	Timezone   string `yaml:"timezone" envconfig:"TIMEZONE" validate:"required"`
	RunOnStart bool   `yaml:"run_on_start" envconfig:"RUN_ON_START"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`

	// RunRateLimit caps run submissions per second over HTTP; 0 disables it
	RunRateLimit float64 `yaml:"run_rate_limit" envconfig:"RUN_RATE_LIMIT" validate:"gte=0"`
	RunRateBurst int     `yaml:"run_rate_burst" envconfig:"RUN_RATE_BURST" validate:"gte=1"`
}

// TelemetryConfig selects OpenTelemetry exporters
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    DefaultLogLevel,
			Output:   "console",
			FilePath: filepath.Join(DefaultLogsDir, "pipeline.log"),
		},
		Paths: PathsConfig{
			DBFile:                 filepath.Join(DefaultDataDir, DefaultDBFileName),
			RawFile:                filepath.Join(DefaultDataDir, DefaultRawFileName),
			InteractionMappingFile: filepath.Join(DefaultConfigsDir, DefaultInteractionMappingFileName),
			MappingsFile:           filepath.Join(DefaultConfigsDir, DefaultMappingsFileName),
		},
		Pipeline: PipelineConfig{
			Mode:             ModeAuto,
			ValidationPolicy: PolicyWarn,
			Retries:          DefaultRetries,
			RetryDelay:       DefaultRetryDelay,
			StageTimeout:     DefaultStageTimeout,
		},
		Scheduler: SchedulerConfig{
			Cron:     DefaultSchedule,
			Timezone: "UTC",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RunRateLimit:    1,
			RunRateBurst:    3,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    AppName,
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at
// path (if path is non-empty or a default location exists), then
// LEADSCORE_* environment variables. Later sources win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg. Keys absent from the
// file keep their current values.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: %q fails %q", fe.Namespace(), fmt.Sprint(fe.Value()), fe.Tag())
		}
		return err
	}
	return nil
}

// findConfigFile returns the first config file found in the usual places
func findConfigFile() string {
	locations := []string{
		"pipeline.yaml",
		filepath.Join(DefaultConfigsDir, "pipeline.yaml"),
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())
