package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscoring/internal/config"
	"leadscoring/internal/infrastructure"
	"leadscoring/internal/operations"
)

const testRawLeads = `created_date,city_mapped,first_platform_c,first_utm_medium_c,first_utm_source_c,total_leads_dropped,referred_lead,app_complete_flag,email_opened,careers
2021-07-01,Mumbai,Level0,Level0,Level2,1,0,1,5,1
2021-07-02,pune,Level3,Level11,Level0,,1,0,2,0
`

const testInteractionMapping = `interaction_type,interaction_mapping
email_opened,email
careers,career_interaction
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		DBFile:                 filepath.Join(dir, "data", "lead_scoring.db"),
		RawFile:                filepath.Join(dir, "leadscoring.csv"),
		InteractionMappingFile: filepath.Join(dir, "interaction_mapping.csv"),
	}
	cfg.Pipeline.RetryDelay = time.Millisecond
	cfg.Telemetry.TraceExporter = "none"
	cfg.Telemetry.MetricExporter = "none"
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 5 * time.Second
	writeFile(t, cfg.Paths.RawFile, testRawLeads)
	writeFile(t, cfg.Paths.InteractionMappingFile, testInteractionMapping)
	return cfg
}

func newTestApplication(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	a, err := newApplication(cfg, infrastructure.NewLogger(io.Discard, "debug"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a
}

func TestNewApplicationRegistersPipeline(t *testing.T) {
	a := newTestApplication(t, testConfig(t))

	assert.Equal(t, len(config.PipelineSteps), a.Registry.Count())
	for _, id := range config.PipelineSteps {
		assert.True(t, a.Registry.Has(id), id)
	}
	assert.Equal(t, "city_mapped", a.Mappings.CityColumn())
	assert.Nil(t, a.Scheduler, "scheduler is built by Serve")
}

func TestNewApplicationRejectsBadMappings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.MappingsFile = filepath.Join(t.TempDir(), "mappings.yaml")
	writeFile(t, cfg.Paths.MappingsFile, "city_tiers: [not, a, map]\n")

	_, err := newApplication(cfg, infrastructure.NewLogger(io.Discard, "info"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load mappings")
}

func TestRunPipelineRecordsRun(t *testing.T) {
	a := newTestApplication(t, testConfig(t))
	ctx := context.Background()

	resp, err := a.RunPipeline(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, operations.RunStatusCompleted, resp.Status)
	assert.Equal(t, operations.TriggerManual, resp.Trigger)

	cols, err := a.Data.Columns(ctx, config.TableModelInput)
	require.NoError(t, err)
	assert.Equal(t, []string{"career_interaction", "email"}, cols[len(cols)-2:])

	runs, err := a.Data.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, resp.ID, runs[0].ID)
	assert.Len(t, runs[0].Steps, len(config.PipelineSteps))
}

func TestRunStep(t *testing.T) {
	a := newTestApplication(t, testConfig(t))
	ctx := context.Background()

	_, err := a.RunStep(ctx, "score_leads", "")
	assert.Equal(t, operations.ErrorTypeNotFound, operations.GetErrorType(err))

	resp, err := a.RunStep(ctx, config.StepBuildDB, "")
	require.NoError(t, err)
	assert.Equal(t, operations.TriggerSingleRun, resp.Trigger)
	require.Len(t, resp.Steps, 1)
	assert.Equal(t, "DB created", resp.Steps[0].Message)
}

func TestServeStopsWithContext(t *testing.T) {
	a := newTestApplication(t, testConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Serve(ctx))
}

func TestServeRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.Cron = "every tuesday"
	a := newTestApplication(t, cfg)

	err := a.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler")
}
