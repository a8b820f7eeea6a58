package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-playground/validator/v10"

	"leadscoring/internal/infrastructure"
	"leadscoring/internal/operations"
	"leadscoring/internal/store"
)

// RunManager is the part of operations.Manager the service drives
type RunManager interface {
	Submit(ctx context.Context, req operations.RunRequest) (string, error)
	Active() *operations.RunResponse
}

// RunView is a run as the API reports it: either the active run or a
// record from the run log
type RunView struct {
	ID         string              `json:"id"`
	Trigger    string              `json:"trigger"`
	Mode       string              `json:"mode"`
	Status     string              `json:"status"`
	Error      string              `json:"error,omitempty"`
	StartedAt  string              `json:"started_at"`
	FinishedAt string              `json:"finished_at,omitempty"`
	Active     bool                `json:"active"`
	Steps      []store.StepSummary `json:"steps"`
}

// OperationService starts pipeline runs and reports on them
type OperationService struct {
	manager  RunManager
	data     *DataService
	stepIDs  []string
	validate *validator.Validate
	baseCtx  context.Context
	logger   *slog.Logger
}

// NewOperationService creates the service. Runs started through it are
// bound to baseCtx rather than to the HTTP request that started them.
func NewOperationService(baseCtx context.Context, manager RunManager, data *DataService, stepIDs []string, logger *slog.Logger) *OperationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OperationService{
		manager:  manager,
		data:     data,
		stepIDs:  stepIDs,
		validate: validator.New(),
		baseCtx:  baseCtx,
		logger:   logger.With(slog.String("component", "operation_service")),
	}
}

// StartRun validates req and starts it in the background
func (s *OperationService) StartRun(ctx context.Context, req operations.RunRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", err
	}
	if req.Step != "" && !slices.Contains(s.stepIDs, req.Step) {
		return "", operations.NewNotFoundError(req.Step)
	}
	if req.Trigger == "" {
		req.Trigger = operations.TriggerAPI
	}
	if req.ID == "" {
		req.ID = infrastructure.NewRunID()
	}

	runCtx := s.baseCtx
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		runCtx = infrastructure.WithTraceID(runCtx, traceID)
	}
	id, err := s.manager.Submit(infrastructure.EnsureTraceID(runCtx), req)
	if err != nil {
		s.logger.WarnContext(ctx, "run rejected",
			slog.String("operation_id", req.ID),
			slog.String("error", err.Error()))
		return "", err
	}
	s.logger.InfoContext(ctx, "run accepted",
		slog.String("operation_id", id),
		slog.String("trigger", req.Trigger),
		slog.String("mode", req.Mode),
		slog.String("step", req.Step))
	return id, nil
}

// ActiveRun returns the run in progress, if any
func (s *OperationService) ActiveRun() (RunView, bool) {
	resp := s.manager.Active()
	if resp == nil {
		return RunView{}, false
	}
	return viewFromResponse(resp), true
}

// GetRun returns the active run with id, or the recorded one
func (s *OperationService) GetRun(ctx context.Context, id string) (RunView, error) {
	if active, ok := s.ActiveRun(); ok && active.ID == id {
		return active, nil
	}
	rec, err := s.data.Run(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDatabaseMissing) {
			return RunView{}, fmt.Errorf("run %s: %w", id, store.ErrRunNotFound)
		}
		return RunView{}, err
	}
	return viewFromRecord(rec), nil
}

// ListRuns returns the active run first, then the recorded runs
func (s *OperationService) ListRuns(ctx context.Context, limit int) ([]RunView, error) {
	recs, err := s.data.Runs(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunView, 0, len(recs)+1)
	active, ok := s.ActiveRun()
	if ok {
		out = append(out, active)
	}
	for _, r := range recs {
		if ok && r.ID == active.ID {
			continue
		}
		out = append(out, viewFromRecord(r))
	}
	return out, nil
}

const viewTimeLayout = "2006-01-02T15:04:05.000Z07:00"

func viewFromResponse(resp *operations.RunResponse) RunView {
	v := RunView{
		ID:      resp.ID,
		Trigger: resp.Trigger,
		Mode:    resp.Mode,
		Status:  string(resp.Status),
		Error:   resp.Error,
		Active:  true,
		Steps:   resp.Steps,
	}
	if !resp.StartedAt.IsZero() {
		v.StartedAt = resp.StartedAt.UTC().Format(viewTimeLayout)
	}
	return v
}

func viewFromRecord(r store.RunRecord) RunView {
	v := RunView{
		ID:        r.ID,
		Trigger:   r.Trigger,
		Mode:      r.Mode,
		Status:    r.Status,
		Error:     r.Error,
		StartedAt: r.StartedAt.UTC().Format(viewTimeLayout),
		Steps:     r.Steps,
	}
	if !r.FinishedAt.IsZero() {
		v.FinishedAt = r.FinishedAt.UTC().Format(viewTimeLayout)
	}
	if v.Steps == nil {
		v.Steps = []store.StepSummary{}
	}
	return v
}
