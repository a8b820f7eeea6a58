package operations

import (
	"context"
	"log/slog"
	"time"
)

// logOperationStart logs the start of a run
func (m *Manager) logOperationStart(ctx context.Context, req RunRequest, steps int) {
	m.logger.InfoContext(ctx, "operation_start",
		slog.String("operation_id", req.ID),
		slog.String("trigger", req.Trigger),
		slog.String("mode", req.Mode),
		slog.String("step", req.Step),
		slog.Int("step_count", steps))
}

// logOperationComplete logs the end of a run
func (m *Manager) logOperationComplete(ctx context.Context, resp *RunResponse) {
	level := slog.LevelInfo
	if resp.Status != RunStatusCompleted {
		level = slog.LevelError
	}
	m.logger.Log(ctx, level, "operation_complete",
		slog.String("operation_id", resp.ID),
		slog.String("status", string(resp.Status)),
		slog.String("mode", resp.Mode),
		slog.Duration("duration", resp.Duration))
}

// logOperationError logs a run that could not start
func (m *Manager) logOperationError(ctx context.Context, operationID string, err error) {
	m.logger.ErrorContext(ctx, "operation_error",
		slog.String("operation_id", operationID),
		slog.String("error", errorText(err)))
}

// logStageStart logs the start of a step attempt
func (m *Manager) logStageStart(ctx context.Context, operationID, stepID string, attempt int) {
	m.logger.InfoContext(ctx, "stage_start",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Int("attempt", attempt))
}

// logStageComplete logs the completion of a step
func (m *Manager) logStageComplete(ctx context.Context, operationID, stepID string, duration time.Duration, rows int) {
	m.logger.InfoContext(ctx, "stage_complete",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Duration("duration", duration),
		slog.Int("rows", rows))
}

// logStageError logs a step failure
func (m *Manager) logStageError(ctx context.Context, operationID, stepID string, err error) {
	m.logger.ErrorContext(ctx, "stage_error",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.String("error_type", string(GetErrorType(err))),
		slog.String("error", errorText(err)))
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
