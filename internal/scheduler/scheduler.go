// Package scheduler runs the pipeline on a cron cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"leadscoring/internal/config"
	"leadscoring/internal/infrastructure"
	"leadscoring/internal/operations"
)

const jobTag = "pipeline"

// Runner executes one pipeline run
type Runner interface {
	Execute(ctx context.Context, req operations.RunRequest) (*operations.RunResponse, error)
}

// Scheduler triggers full pipeline runs on a cron expression. Runs never
// overlap: a tick that arrives while a run is active is dropped.
type Scheduler struct {
	cron   *gocron.Scheduler
	job    *gocron.Job
	runner Runner
	cfg    config.SchedulerConfig
	logger *slog.Logger

	mu  sync.RWMutex
	ctx context.Context
}

// New validates the cadence and registers the pipeline job. Nothing runs
// until Run is called.
func New(cfg config.SchedulerConfig, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler: timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		cron:   gocron.NewScheduler(loc),
		runner: runner,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scheduler")),
		ctx:    context.Background(),
	}
	s.cron.SingletonModeAll()

	s.job, err = s.cron.Cron(cfg.Cron).Tag(jobTag).Do(func() {
		s.trigger(s.runContext(), operations.TriggerSchedule)
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: cron %q: %w", cfg.Cron, err)
	}
	return s, nil
}

// Run starts the cadence and blocks until ctx is done. With RunOnStart a
// run is triggered before the first tick is scheduled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.cfg.RunOnStart {
		s.trigger(ctx, operations.TriggerStartup)
	}

	s.cron.StartAsync()
	next, _ := s.NextRun()
	s.logger.InfoContext(ctx, "scheduler_started",
		slog.String("cron", s.cfg.Cron),
		slog.String("timezone", s.cfg.Timezone),
		slog.Time("next_run", next))

	<-ctx.Done()
	s.cron.Stop()
	s.logger.InfoContext(context.WithoutCancel(ctx), "scheduler_stopped")
	return nil
}

// NextRun returns the time of the next scheduled run
func (s *Scheduler) NextRun() (time.Time, bool) {
	if s.job == nil {
		return time.Time{}, false
	}
	next := s.job.NextRun()
	return next, !next.IsZero()
}

// IsRunning reports whether the cadence is active
func (s *Scheduler) IsRunning() bool {
	return s.cron.IsRunning()
}

func (s *Scheduler) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

func (s *Scheduler) trigger(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	ctx = infrastructure.EnsureTraceID(ctx)

	resp, err := s.runner.Execute(ctx, operations.RunRequest{Trigger: trigger})
	switch {
	case errors.Is(err, operations.ErrRunInProgress):
		s.logger.WarnContext(ctx, "scheduled_run_skipped",
			slog.String("trigger", trigger),
			slog.String("reason", "run in progress"))
	case err != nil:
		attrs := []any{slog.String("trigger", trigger), slog.String("error", err.Error())}
		if resp != nil {
			attrs = append(attrs, slog.String("operation_id", resp.ID))
		}
		s.logger.ErrorContext(ctx, "scheduled_run_failed", attrs...)
	default:
		s.logger.InfoContext(ctx, "scheduled_run_complete",
			slog.String("trigger", trigger),
			slog.String("operation_id", resp.ID),
			slog.Duration("duration", resp.Duration))
	}
}
