package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"leadscoring/internal/config"
	"leadscoring/internal/infrastructure"
	"leadscoring/internal/store"
)

// ErrRunInProgress is returned when a run is requested while another one
// holds the pipeline
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// RunLog persists the outcome of finished runs
type RunLog interface {
	RecordRun(ctx context.Context, r store.RunRecord) error
}

// Manager runs the registered steps one at a time in dependency order.
// Only one run executes at a time.
type Manager struct {
	registry *Registry
	config   *Config
	tracer   *OperationTracer
	runLog   RunLog
	logger   *slog.Logger

	runMu sync.Mutex
	wg    sync.WaitGroup

	mu     sync.RWMutex
	active *OperationState
}

// NewManager creates a manager. Nil config, tracer and logger take
// defaults; a nil runLog disables the run log.
func NewManager(registry *Registry, cfg *Config, tracer *OperationTracer, runLog RunLog, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if cfg == nil {
		cfg = NewConfig()
	}
	if tracer == nil {
		tracer, _ = NewOperationTracer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		config:   cfg,
		tracer:   tracer,
		runLog:   runLog,
		logger:   logger,
	}
}

// GetRegistry returns the registry for accessing registered steps
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Execute runs the pipeline, or the single step named by req.Step, and
// blocks until it finishes
func (m *Manager) Execute(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if !m.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer m.runMu.Unlock()
	return m.execute(ctx, req)
}

// Submit starts a run in the background and returns its ID. ctx bounds the
// run, so it should outlive the caller's request.
func (m *Manager) Submit(ctx context.Context, req RunRequest) (string, error) {
	if !m.runMu.TryLock() {
		return "", ErrRunInProgress
	}
	if req.ID == "" {
		req.ID = infrastructure.NewRunID()
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.runMu.Unlock()
		_, _ = m.execute(ctx, req)
	}()
	return req.ID, nil
}

// Wait blocks until background runs have finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) execute(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if req.ID == "" {
		req.ID = infrastructure.NewRunID()
	}
	if req.Trigger == "" {
		req.Trigger = TriggerManual
	}
	if req.Mode == "" {
		req.Mode = m.config.DefaultMode
	}

	ctx = infrastructure.WithRunID(ctx, req.ID)
	ctx, span := m.tracer.TraceRun(ctx, req.ID, req.Trigger)
	defer span.End()

	state := NewOperationState(req.ID)
	state.Trigger = req.Trigger
	state.SetContext(ContextKeyMode, req.Mode)

	m.setActive(state)
	defer m.setActive(nil)

	steps, err := m.plan(req)
	if err != nil {
		m.logOperationError(ctx, req.ID, err)
		state.Fail(err)
		return m.finish(ctx, span, state, err)
	}
	for _, step := range steps {
		state.AddStep(NewStepState(step.ID(), step.Name()))
	}

	state.Start()
	m.logOperationStart(ctx, req, len(steps))

	err = m.executeSequential(ctx, state, steps)
	switch {
	case err == nil:
		state.Complete()
	case GetErrorType(err) == ErrorTypeCancellation:
		state.Cancel(err)
	default:
		state.Fail(err)
	}
	return m.finish(ctx, span, state, err)
}

// plan returns the steps of a run
func (m *Manager) plan(req RunRequest) ([]Step, error) {
	switch req.Mode {
	case config.ModeAuto, config.ModeTraining, config.ModeInference:
	default:
		return nil, NewValidationError(req.Step, fmt.Sprintf("unknown mode %q", req.Mode))
	}
	if req.Step != "" {
		step, err := m.registry.Get(req.Step)
		if err != nil {
			return nil, err
		}
		return []Step{step}, nil
	}
	steps, err := m.registry.GetDependencyOrder()
	if err != nil {
		return nil, NewFatalError("failed to get dependency order", err)
	}
	return steps, nil
}

// executeSequential executes steps one by one. A failure skips every step
// that depends on it, directly or not; without ContinueOnError it also ends
// the run.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	var firstErr error
	for i, step := range steps {
		stepState := state.GetStep(step.ID())
		if stepState.Status == StepStatusSkipped {
			continue
		}

		if ctx.Err() != nil {
			m.logger.WarnContext(ctx, "operation_cancelled",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()))
			m.skipRemaining(steps[i:], state, "run was cancelled")
			return NewCancellationError(step.ID())
		}

		m.logger.InfoContext(ctx, "executing_stage",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(steps)))

		err := m.executeStage(ctx, state, step)
		if err == nil {
			continue
		}
		m.logStageError(ctx, state.ID, step.ID(), err)
		if firstErr == nil {
			firstErr = err
		}
		if !m.config.ContinueOnError || GetErrorType(err) == ErrorTypeCancellation {
			m.skipRemaining(steps[i+1:], state, fmt.Sprintf("step %s failed", step.ID()))
			return err
		}
		m.skipDependentStages(state, step.ID())
	}
	return firstErr
}

// executeStage executes a single step with retry logic
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step) error {
	stepState := state.GetStep(step.ID())
	if stepState == nil {
		return NewFatalError("step state not found", fmt.Errorf("step %s", step.ID()))
	}

	if err := m.checkDependencies(state, step); err != nil {
		stepState.Skip(err.Error())
		return err
	}

	if err := step.Validate(state); err != nil {
		vErr := NewValidationError(step.ID(), err.Error())
		stepState.Fail(vErr)
		return vErr
	}

	retryConfig := m.config.RetryConfig
	maxAttempts := max(retryConfig.MaxAttempts, 1)
	timeout := m.config.GetStageTimeout(step.ID())

	for attempt := 1; ; attempt++ {
		stepState.Start()
		m.logStageStart(ctx, state.ID, step.ID(), attempt)

		err := m.attempt(ctx, state, step, attempt, timeout)
		if err == nil {
			stepState.Complete()
			m.logStageComplete(ctx, state.ID, step.ID(), stepState.Duration(), stepState.Rows)
			return nil
		}

		if !IsRetryable(err) || attempt >= maxAttempts {
			stepState.Fail(err)
			return err
		}

		delay := m.calculateRetryDelay(attempt, retryConfig)
		m.logger.WarnContext(ctx, "stage_retry",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		m.tracer.RecordRetry(ctx, step.ID())

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			cErr := NewCancellationError(step.ID())
			cErr.Cause = err
			stepState.Fail(cErr)
			return cErr
		}
	}
}

// attempt runs one try of step under its own timeout
func (m *Manager) attempt(ctx context.Context, state *OperationState, step Step, attempt int, timeout time.Duration) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stepCtx, span := m.tracer.TraceStep(stepCtx, state.ID, step.ID(), attempt)
	defer span.End()

	start := time.Now()
	err := step.Execute(stepCtx, state)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			tErr := NewTimeoutError(step.ID(), timeout.String())
			tErr.Cause = err
			err = tErr
		} else {
			err = Classify(step.ID(), err)
		}
	}
	rows := 0
	if s := state.GetStep(step.ID()); s != nil {
		rows = s.Rows
	}
	m.tracer.RecordStepCompletion(stepCtx, span, step.ID(), duration, rows, err)
	return err
}

// checkDependencies verifies that the dependencies scheduled in this run
// completed. A dependency outside the run, as in a single-step run, is
// assumed to have produced its table earlier.
func (m *Manager) checkDependencies(state *OperationState, step Step) error {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStep(dep)
		if depState == nil {
			continue
		}
		if depState.Status != StepStatusCompleted {
			return NewDependencyError(step.ID(), dep)
		}
	}
	return nil
}

// skipDependentStages marks every pending step that depends on failedID,
// directly or through another step, as skipped
func (m *Manager) skipDependentStages(state *OperationState, failedID string) {
	for _, id := range m.registry.GetDependents(failedID) {
		s := state.GetStep(id)
		if s == nil || s.Status != StepStatusPending {
			continue
		}
		s.Skip(fmt.Sprintf("dependency %s failed", failedID))
		m.skipDependentStages(state, id)
	}
}

func (m *Manager) skipRemaining(steps []Step, state *OperationState, reason string) {
	for _, step := range steps {
		if s := state.GetStep(step.ID()); s != nil && s.Status == StepStatusPending {
			s.Skip(reason)
		}
	}
}

// calculateRetryDelay grows the delay by Multiplier per attempt, capped at
// MaxDelay
func (m *Manager) calculateRetryDelay(attempt int, rc RetryConfig) time.Duration {
	delay := rc.Delay
	if rc.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * rc.Multiplier)
		}
	}
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	return delay
}

// finish records the run and builds the response
func (m *Manager) finish(ctx context.Context, span trace.Span, state *OperationState, err error) (*RunResponse, error) {
	resp := m.createResponse(state)
	m.tracer.RecordRunCompletion(ctx, span, resp.Status, resp.Duration, err)
	m.logOperationComplete(ctx, resp)
	m.recordRun(ctx, resp)
	return resp, err
}

// recordRun writes resp to the run log. A run log failure is logged and
// never changes the outcome of the run.
func (m *Manager) recordRun(ctx context.Context, resp *RunResponse) {
	if m.runLog == nil {
		return
	}
	rec := store.RunRecord{
		ID:         resp.ID,
		Trigger:    resp.Trigger,
		Mode:       resp.Mode,
		Status:     string(resp.Status),
		Error:      resp.Error,
		StartedAt:  resp.StartedAt,
		FinishedAt: resp.StartedAt.Add(resp.Duration),
		Steps:      resp.Steps,
	}
	if err := m.runLog.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.WarnContext(ctx, "run_log_write_failed",
			slog.String("operation_id", resp.ID),
			slog.String("error", err.Error()))
	}
}

// createResponse snapshots state
func (m *Manager) createResponse(state *OperationState) *RunResponse {
	state.mu.RLock()
	resp := &RunResponse{
		ID:        state.ID,
		Trigger:   state.Trigger,
		Status:    state.Status,
		StartedAt: state.StartTime,
	}
	if state.Error != nil {
		resp.Error = state.Error.Error()
	}
	state.mu.RUnlock()

	resp.Duration = state.Duration()
	resp.Mode = state.GetString(ContextKeyResolvedMode)
	if resp.Mode == "" {
		resp.Mode = state.GetString(ContextKeyMode)
	}
	for _, s := range state.Steps() {
		resp.Steps = append(resp.Steps, s.Summary())
	}
	return resp
}

// Active returns a snapshot of the run in progress, or nil
func (m *Manager) Active() *RunResponse {
	m.mu.RLock()
	state := m.active
	m.mu.RUnlock()
	if state == nil {
		return nil
	}
	return m.createResponse(state)
}

func (m *Manager) setActive(state *OperationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = state
}
