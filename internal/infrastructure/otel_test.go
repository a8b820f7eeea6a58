package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscoring/internal/config"
)

func TestInitializeOTelDisabled(t *testing.T) {
	var buf bytes.Buffer
	providers, err := InitializeOTel(config.TelemetryConfig{
		ServiceName:    "test",
		TraceExporter:  "none",
		MetricExporter: "none",
	}, NewLogger(&buf, "info"))
	require.NoError(t, err)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)
	assert.Nil(t, providers.PrometheusHTTP)
	assert.NotNil(t, providers.Tracer, "no-op tracer is still usable")

	metrics, err := NewPipelineMetrics(providers.Meter)
	require.NoError(t, err)
	metrics.RecordStage(context.Background(), "load_data", time.Second, errors.New("boom"))
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitializeOTelPrometheus(t *testing.T) {
	var buf bytes.Buffer
	providers, err := InitializeOTel(config.TelemetryConfig{
		ServiceName:    "test",
		TraceExporter:  "stdout",
		MetricExporter: "prometheus",
		SampleRatio:    1,
	}, NewLogger(&buf, "info"))
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	require.NotNil(t, providers.TracerProvider)
	require.NotNil(t, providers.PrometheusHTTP)

	metrics, err := NewPipelineMetrics(providers.Meter)
	require.NoError(t, err)
	ctx := context.Background()
	metrics.RecordRun(ctx, "completed", 2*time.Second)
	metrics.RecordRows(ctx, "model_input", 42)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pipeline_runs_total")

	ctx, span := providers.Tracer.Start(ctx, "stage")
	assert.NotEmpty(t, GetTraceID(ctx), "span trace ID is visible to the logger")
	RecordError(ctx, errors.New("failed"))
	span.End()
}

func TestInitializeOTelRejectsUnknownExporter(t *testing.T) {
	var buf bytes.Buffer
	_, err := InitializeOTel(config.TelemetryConfig{TraceExporter: "otlp"}, NewLogger(&buf, "info"))
	assert.Error(t, err)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.RecordRun(context.Background(), "failed", time.Second)
		m.RecordRetry(context.Background(), "x")
		m.RecordUnmapped(context.Background(), 3)
	})
}
