package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"leadscoring/internal/config"
	"leadscoring/internal/infrastructure"
	"leadscoring/internal/middleware"
	"leadscoring/internal/operations"
	"leadscoring/internal/scheduler"
	"leadscoring/internal/services"
	handlers "leadscoring/internal/transport/http"
)

// Application is the container every command builds: configuration,
// telemetry and the run manager with its registered steps
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Mappings      *config.Mappings
	Registry      *operations.Registry
	Manager       *operations.Manager
	Data          *services.DataService

	// Populated by Serve
	Scheduler *scheduler.Scheduler
	Server    *http.Server
}

// NewApplication wires the application from a loaded configuration
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return newApplication(cfg, logger)
}

func newApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.String("mode", cfg.Pipeline.Mode),
		slog.String("validation_policy", cfg.Pipeline.ValidationPolicy))
	cfg.Paths.LogPaths(logger)

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	mappings, err := config.LoadMappingsOrDefault(cfg.Paths.MappingsFile)
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to load mappings: %w", err)
	}

	tracer, err := operations.NewOperationTracer(providers)
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize operation tracer: %w", err)
	}

	registry, err := operations.NewPipelineRegistry(logger, &operations.StageOptions{
		Paths:            cfg.Paths,
		Mappings:         mappings,
		ValidationPolicy: cfg.Pipeline.ValidationPolicy,
		Metrics:          tracer.Metrics(),
	})
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to register pipeline steps: %w", err)
	}

	runLog := &operations.StoreRunLog{Path: cfg.Paths.DBFile, Logger: logger}
	manager := operations.NewManager(registry, operations.ConfigFromPipeline(cfg.Pipeline), tracer, runLog, logger)

	return &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Mappings:      mappings,
		Registry:      registry,
		Manager:       manager,
		Data:          services.NewDataService(cfg.Paths.DBFile, logger),
	}, nil
}

// RunPipeline runs every step in chain order and waits for the result.
// An empty mode uses the configured one.
func (a *Application) RunPipeline(ctx context.Context, mode string) (*operations.RunResponse, error) {
	ctx = infrastructure.EnsureTraceID(ctx)
	return a.Manager.Execute(ctx, operations.RunRequest{
		Trigger: operations.TriggerManual,
		Mode:    mode,
	})
}

// RunStep runs one step on its own. The step's input table must already
// be in the database.
func (a *Application) RunStep(ctx context.Context, stepID, mode string) (*operations.RunResponse, error) {
	if !a.Registry.Has(stepID) {
		return nil, operations.NewNotFoundError(stepID)
	}
	ctx = infrastructure.EnsureTraceID(ctx)
	return a.Manager.Execute(ctx, operations.RunRequest{
		Trigger: operations.TriggerSingleRun,
		Mode:    mode,
		Step:    stepID,
	})
}

// Serve runs the scheduler and the HTTP API until ctx is cancelled, then
// shuts the server down and waits for any background run to finish
func (a *Application) Serve(ctx context.Context) error {
	sched, err := scheduler.New(a.Config.Scheduler, a.Manager, a.Logger)
	if err != nil {
		return err
	}
	a.Scheduler = sched

	handler, err := a.router(ctx)
	if err != nil {
		return err
	}
	a.Server = &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      handler,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Scheduler.Run(gctx)
	})
	g.Go(func() error {
		a.Logger.InfoContext(gctx, "HTTP server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		a.Logger.InfoContext(shutdownCtx, "Shutting down HTTP server")
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	err = g.Wait()
	a.waitForRuns()
	return err
}

// router builds the HTTP handler. Runs started over HTTP are bound to
// ctx rather than to the request that started them.
func (a *Application) router(ctx context.Context) (http.Handler, error) {
	otelMiddleware, err := middleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP telemetry: %w", err)
	}

	runs := services.NewOperationService(ctx, a.Manager, a.Data, a.Registry.ListIDs(), a.Logger)
	health := services.NewHealthService(config.AppVersion, a.Config.Paths, a.Manager, a.Scheduler, a.Logger)

	return handlers.NewRouter(handlers.RouterConfig{
		Health:         health,
		Runs:           runs,
		Data:           a.Data,
		Metrics:        a.OTelProviders.PrometheusHTTP,
		Telemetry:      otelMiddleware,
		RunLimiter:     middleware.NewRateLimiter(a.Config.Server.RunRateLimit, a.Config.Server.RunRateBurst, a.Logger),
		RequestTimeout: a.Config.Server.WriteTimeout,
		Logger:         a.Logger,
	}), nil
}

// waitForRuns lets a background run finish so its run log entry is
// written, giving up after the shutdown timeout
func (a *Application) waitForRuns() {
	done := make(chan struct{})
	go func() {
		a.Manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(a.Config.Server.ShutdownTimeout):
		a.Logger.Warn("Background run still active at shutdown")
	}
}

// Stop flushes telemetry and closes the log file
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	var errs []error
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	return errors.Join(errs...)
}
