package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leadscoring/internal/config"
	apierrors "leadscoring/internal/errors"
	"leadscoring/internal/middleware"
)

// RouterConfig wires the services behind the HTTP API
type RouterConfig struct {
	Health HealthService
	Runs   RunService
	Data   DataService

	// Metrics serves /metrics; promhttp.Handler() when nil
	Metrics http.Handler
	// Telemetry wraps every request in a span when set
	Telemetry *middleware.OTelMiddleware
	// RunLimiter guards POST /runs; nil disables limiting
	RunLimiter *middleware.RateLimiter

	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter builds the chi router for the serve command
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apierrors.NewErrorHandler(logger, false)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	if cfg.Telemetry != nil {
		r.Use(cfg.Telemetry.Handler)
	}
	r.Use(apierrors.NewErrorMiddleware(errorHandler, logger).Handler)

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Handle(config.MetricsEndpoint, metrics)

	health := NewHealthHandler(cfg.Health, logger)
	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get(config.HealthEndpoint, health.HealthCheck)
		r.Get(config.HealthEndpoint+"/ready", health.ReadinessCheck)
		r.Get(config.HealthEndpoint+"/live", health.LivenessCheck)
		r.Get("/version", health.Version)
	})

	runs := NewRunsHandler(cfg.Runs, cfg.RunLimiter, logger)
	tables := NewTablesHandler(cfg.Data, logger)
	r.Route(config.APIBasePath, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Mount("/runs", runs.Routes())
		r.Mount("/tables", tables.Routes())
	})

	return r
}
