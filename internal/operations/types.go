package operations

import (
	"time"

	"leadscoring/internal/config"
	"leadscoring/internal/store"
)

// Step names
const (
	StepNameBuildDB               = "Build Database"
	StepNameCheckRawSchema        = "Check Raw Data Schema"
	StepNameLoadData              = "Load Data"
	StepNameMapCityTier           = "Map City Tier"
	StepNameMapCategorical        = "Map Categorical Variables"
	StepNameMapInteractions       = "Map Interactions"
	StepNameCheckModelInputSchema = "Check Model Input Schema"
)

// Context keys for operation state
const (
	ContextKeyMode         = "mode"
	ContextKeyResolvedMode = "resolved_mode"
	ContextKeyRawCheck     = "raw_schema_check"
	ContextKeyModelCheck   = "model_input_schema_check"
	ContextKeyUnmapped     = "unmapped_interaction_types"
)

// Run triggers recorded in the run log
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerAPI       = "api"
	TriggerStartup   = "startup"
	TriggerSingleRun = "single_step"
)

// RetryConfig defines retry behavior for steps. MaxAttempts counts the
// first attempt.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	Delay       time.Duration `json:"delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Multiplier  float64       `json:"multiplier"`
}

// NewRetryConfig returns one retry after five seconds
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: config.DefaultRetries + 1,
		Delay:       config.DefaultRetryDelay,
		MaxDelay:    time.Minute,
		Multiplier:  1.0,
	}
}

// RunRequest asks the manager for a run
type RunRequest struct {
	ID      string `json:"id,omitempty"`
	Trigger string `json:"trigger,omitempty"`
	// Mode overrides the configured pivot mode when set
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=auto training inference"`
	// Step runs a single step instead of the whole chain
	Step string `json:"step,omitempty"`
}

// RunResponse is the outcome of a run
type RunResponse struct {
	ID        string              `json:"id"`
	Trigger   string              `json:"trigger"`
	Status    RunStatus           `json:"status"`
	Mode      string              `json:"mode"`
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration"`
	Steps     []store.StepSummary `json:"steps"`
	Error     string              `json:"error,omitempty"`
}
