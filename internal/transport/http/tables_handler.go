package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "leadscoring/internal/errors"
	"leadscoring/internal/exporter"
	api "leadscoring/pkg/contracts/api/v1"
)

// TablesHandler serves the tables persisted in the pipeline database
type TablesHandler struct {
	service      DataService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewTablesHandler creates a new tables handler
func NewTablesHandler(service DataService, logger *slog.Logger) *TablesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TablesHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "tables")),
		errorHandler: apierrors.NewErrorHandler(logger, false),
	}
}

// Routes returns the tables routes
func (h *TablesHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListTables)
	r.Get("/{name}/columns", h.GetColumns)
	r.Get("/{name}/export", h.ExportTable)

	return r
}

// ListTables handles GET /tables
func (h *TablesHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.service.Tables(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"tables": tables,
		"count":  len(tables),
	})
}

// GetColumns handles GET /tables/{name}/columns
func (h *TablesHandler) GetColumns(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cols, err := h.service.Columns(r.Context(), name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, api.ColumnsResponse{Table: name, Columns: cols})
}

// ExportTable handles GET /tables/{name}/export and streams the table as
// CSV
func (h *TablesHandler) ExportTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, err := h.service.Table(r.Context(), name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	w.WriteHeader(http.StatusOK)
	if err := exporter.WriteCSV(w, d, exporter.WriteOptions{}); err != nil {
		// Headers are gone; all that is left is to log it.
		h.logger.ErrorContext(r.Context(), "table export failed",
			slog.String("table", name),
			slog.String("error", err.Error()))
		return
	}
	h.logger.InfoContext(r.Context(), "table exported",
		slog.String("table", name),
		slog.Int("rows", d.Len()))
}
