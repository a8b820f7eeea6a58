package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"leadscoring/internal/config"
	"leadscoring/pkg/contracts"
)

// SchedulerStatus is the part of the scheduler the health report reads
type SchedulerStatus interface {
	IsRunning() bool
	NextRun() (time.Time, bool)
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	paths     config.PathsConfig
	runs      RunManager
	scheduler SchedulerStatus
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service. runs and scheduler may be
// nil when the process does not have them.
func NewHealthService(version string, paths config.PathsConfig, runs RunManager, scheduler SchedulerStatus, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		paths:     paths,
		runs:      runs,
		scheduler: scheduler,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services:  make(map[string]interface{}),
	}
	if hs.runs != nil {
		if active := hs.runs.Active(); active != nil {
			status.Services["active_run"] = active.ID
		}
	}
	if hs.scheduler != nil {
		status.Services["scheduler"] = hs.checkSchedulerHealth()
	}
	return status
}

// ReadinessCheck reports whether the inputs a run needs are in place.
// A missing database is fine: build_db creates it.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]interface{}{
			"raw_file":            checkFile(hs.paths.RawFile),
			"interaction_mapping": checkFile(hs.paths.InteractionMappingFile),
			"database":            hs.checkDatabase(),
		},
	}
	for name, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status == "not_ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "readiness check failed",
				slog.String("service", name),
				slog.String("message", sh.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns build information and uptime
func (hs *HealthService) Version() map[string]interface{} {
	info := contracts.GetVersionInfo()
	return map[string]interface{}{
		"name":        config.AppName,
		"version":     hs.version,
		"build_time":  info.BuildTime,
		"git_commit":  info.GitCommit,
		"go_version":  info.GoVersion,
		"os":          info.OS,
		"arch":        info.Architecture,
		"data_format": info.DataFormat,
		"api_version": info.APIVersion,
		"uptime":      time.Since(hs.startTime).Seconds(),
		"start_time":  hs.startTime.Format(time.RFC3339),
	}
}

func (hs *HealthService) checkSchedulerHealth() ServiceHealth {
	if !hs.scheduler.IsRunning() {
		return ServiceHealth{Status: "stopped"}
	}
	next, ok := hs.scheduler.NextRun()
	if !ok {
		return ServiceHealth{Status: "running"}
	}
	return ServiceHealth{Status: "running", Message: "next run " + next.Format(time.RFC3339)}
}

func (hs *HealthService) checkDatabase() ServiceHealth {
	info, err := os.Stat(hs.paths.DBFile)
	switch {
	case os.IsNotExist(err):
		return ServiceHealth{Status: "ready", Message: "database will be created by build_db"}
	case err != nil:
		return ServiceHealth{Status: "not_ready", Message: err.Error()}
	case info.IsDir():
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("%s is a directory", hs.paths.DBFile)}
	}
	return ServiceHealth{Status: "ready"}
}

func checkFile(path string) ServiceHealth {
	if path == "" {
		return ServiceHealth{Status: "not_ready", Message: "path is not configured"}
	}
	if _, err := os.Stat(path); err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("file not found: %s", path)}
	}
	return ServiceHealth{Status: "ready"}
}
