package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscoring/internal/operations"
	"leadscoring/internal/services"
	"leadscoring/internal/store"
)

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorToProblem(t *testing.T) {
	h := NewErrorHandler(slog.Default(), false)
	r := httptest.NewRequest(http.MethodGet, "/api/v1/runs/r1", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"api error", ErrRunInProgress, http.StatusConflict, TypeRunActive},
		{"run in progress", operations.ErrRunInProgress, http.StatusConflict, TypeRunActive},
		{"run not found", fmt.Errorf("get run r1: %w", store.ErrRunNotFound), http.StatusNotFound, TypeRunNotFound},
		{"table not found", &store.Error{Op: "read", Table: "model_input", Err: store.ErrTableNotFound}, http.StatusNotFound, TypeDataNotFound},
		{"unknown step", operations.NewNotFoundError("train_model"), http.StatusNotFound, TypeNotFound},
		{"bad mode", operations.NewValidationError("", "unknown mode"), http.StatusBadRequest, TypeValidation},
		{"store", &store.Error{Op: "open", Err: errors.New("disk I/O error")}, http.StatusServiceUnavailable, TypeStore},
		{"no database", fmt.Errorf("%w: data/lead_scoring.db", services.ErrDatabaseMissing), http.StatusNotFound, TypeDataNotFound},
		{"bad table", fmt.Errorf("%w: \"x;\"", services.ErrInvalidTable), http.StatusBadRequest, TypeValidation},
		{"other", errors.New("boom"), http.StatusInternalServerError, TypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pd := h.ErrorToProblem(tt.err, r)
			assert.Equal(t, tt.wantStatus, pd.Status)
			assert.Equal(t, tt.wantType, pd.Type)
			assert.Equal(t, "/api/v1/runs/r1", pd.Instance)
		})
	}
}

func TestHandleError(t *testing.T) {
	h := NewErrorHandler(slog.Default(), false)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/tables/nope/columns", nil)

	h.HandleError(w, r, NotFoundError("table nope"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeProblem(t, w)
	assert.Equal(t, TypeNotFound, body["type"])
	assert.Equal(t, "NOT_FOUND", body["error_code"])
	assert.Equal(t, "table nope not found", body["detail"])
	assert.NotContains(t, body, "stack")
}

func TestHandleErrorNil(t *testing.T) {
	h := NewErrorHandler(nil, true)
	w := httptest.NewRecorder()
	h.HandleError(w, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Equal(t, 0, w.Body.Len())
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	h := NewErrorHandler(nil, false)

	w := httptest.NewRecorder()
	h.NotFound(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.MethodNotAllowed(w, httptest.NewRequest(http.MethodDelete, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Method DELETE is not allowed for this endpoint", decodeProblem(t, w)["detail"])
}

func TestErrorMiddlewareRecoversPanic(t *testing.T) {
	h := NewErrorHandler(nil, true)
	mw := NewErrorMiddleware(h, nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("stage table vanished")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeProblem(t, w)
	assert.Equal(t, "stage table vanished", body["panic"])
}

func TestErrorMiddlewarePassesThrough(t *testing.T) {
	mw := NewErrorMiddleware(NewErrorHandler(nil, false), nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestErrorMiddlewareLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	mw := NewErrorMiddleware(NewErrorHandler(logger, false), logger)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", "req-42")
		w.WriteHeader(http.StatusConflict)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/runs?x=1", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "x=1", entry["query"])
	assert.EqualValues(t, 409, entry["status"])
}
