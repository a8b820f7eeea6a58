package operations

import (
	"time"

	"leadscoring/internal/config"
)

// Config represents the run execution configuration
type Config struct {
	// Step-specific timeouts; steps without an entry use DefaultTimeout
	StageTimeouts  map[string]time.Duration `json:"stage_timeouts"`
	DefaultTimeout time.Duration            `json:"default_timeout"`

	// Retry configuration for steps
	RetryConfig RetryConfig `json:"retry_config"`

	// DefaultMode is the pivot mode of runs that do not ask for one
	DefaultMode string `json:"default_mode"`

	// Whether later steps still run after a failure. The chain is a strict
	// data dependency, so this stays off for the pipeline.
	ContinueOnError bool `json:"continue_on_error"`
}

// NewConfig returns the default run configuration
func NewConfig() *Config {
	return &Config{
		StageTimeouts:  make(map[string]time.Duration),
		DefaultTimeout: config.DefaultStageTimeout,
		RetryConfig:    NewRetryConfig(),
		DefaultMode:    config.ModeAuto,
	}
}

// ConfigFromPipeline builds the run configuration from application config
func ConfigFromPipeline(p config.PipelineConfig) *Config {
	c := NewConfig()
	c.RetryConfig.MaxAttempts = p.Retries + 1
	c.RetryConfig.Delay = p.RetryDelay
	if p.Mode != "" {
		c.DefaultMode = p.Mode
	}
	if p.StageTimeout > 0 {
		c.DefaultTimeout = p.StageTimeout
	}
	return c
}

// GetStageTimeout returns the timeout for a specific Step
func (c *Config) GetStageTimeout(stepID string) time.Duration {
	if timeout, ok := c.StageTimeouts[stepID]; ok {
		return timeout
	}
	if c.DefaultTimeout > 0 {
		return c.DefaultTimeout
	}
	return config.DefaultStageTimeout
}

// SetStageTimeout sets the timeout for a specific Step
func (c *Config) SetStageTimeout(stepID string, timeout time.Duration) {
	if c.StageTimeouts == nil {
		c.StageTimeouts = make(map[string]time.Duration)
	}
	c.StageTimeouts[stepID] = timeout
}
