package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"leadscoring/internal/config"
	apierrors "leadscoring/internal/errors"
	"leadscoring/internal/middleware"
	"leadscoring/internal/operations"
	api "leadscoring/pkg/contracts/api/v1"
)

// RunsHandler handles pipeline run requests
type RunsHandler struct {
	service      RunService
	limiter      *middleware.RateLimiter
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewRunsHandler creates a new runs handler. limiter guards run
// submission and may be nil.
func NewRunsHandler(service RunService, limiter *middleware.RateLimiter, logger *slog.Logger) *RunsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsHandler{
		service:      service,
		limiter:      limiter,
		logger:       logger.With(slog.String("handler", "runs")),
		errorHandler: apierrors.NewErrorHandler(logger, false),
	}
}

// Routes returns the runs routes
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.limiter.Handler).Post("/", h.StartRun)
	r.Get("/", h.ListRuns)
	r.Get("/active", h.ActiveRun)
	r.Get("/{id}", h.GetRun)

	return r
}

// StartRun handles POST /runs
func (h *RunsHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var body api.StartRunRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil && !errors.Is(err, io.EOF) {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := body.Bind(r); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	id, err := h.service.StartRun(r.Context(), operations.RunRequest{
		Trigger: operations.TriggerAPI,
		Mode:    body.Mode,
		Step:    body.Step,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "run accepted",
		slog.String("run_id", id),
		slog.String("mode", body.Mode),
		slog.String("step", body.Step))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, api.StartRunResponse{
		ID:      id,
		Status:  "accepted",
		PollURL: config.APIBasePath + "/runs/" + id,
	})
}

// ListRuns handles GET /runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.errorHandler.HandleError(w, r, apierrors.New(http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := h.service.ListRuns(r.Context(), limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// ActiveRun handles GET /runs/active
func (h *RunsHandler) ActiveRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.service.ActiveRun()
	if !ok {
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("active run"))
		return
	}
	render.JSON(w, r, run)
}

// GetRun handles GET /runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, run)
}
