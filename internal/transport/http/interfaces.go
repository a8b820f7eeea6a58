package http

import (
	"context"

	"leadscoring/internal/dataset"
	"leadscoring/internal/operations"
	"leadscoring/internal/services"
)

// RunService starts and reports pipeline runs
type RunService interface {
	StartRun(ctx context.Context, req operations.RunRequest) (string, error)
	GetRun(ctx context.Context, id string) (services.RunView, error)
	ListRuns(ctx context.Context, limit int) ([]services.RunView, error)
	ActiveRun() (services.RunView, bool)
}

// DataService reads persisted tables
type DataService interface {
	Tables(ctx context.Context) ([]services.TableInfo, error)
	Columns(ctx context.Context, table string) ([]string, error)
	Table(ctx context.Context, table string) (*dataset.Dataset, error)
}

// HealthService reports process health
type HealthService interface {
	HealthCheck(ctx context.Context) services.HealthStatus
	ReadinessCheck(ctx context.Context) services.HealthStatus
	LivenessCheck(ctx context.Context) services.HealthStatus
	Version() map[string]interface{}
}

var (
	_ RunService    = (*services.OperationService)(nil)
	_ DataService   = (*services.DataService)(nil)
	_ HealthService = (*services.HealthService)(nil)
)
