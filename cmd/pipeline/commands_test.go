package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliRawLeads = `created_date,city_mapped,first_platform_c,first_utm_medium_c,first_utm_source_c,total_leads_dropped,referred_lead,app_complete_flag,email_opened,careers
2021-07-01,Mumbai,Level0,Level0,Level2,1,0,1,5,1
2021-07-02,pune,Level3,Level11,Level0,,1,0,2,0
`

const cliInteractionMapping = `interaction_type,interaction_mapping
email_opened,email
careers,career_interaction
`

type cliFixture struct {
	dir        string
	configPath string
	dbPath     string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	f := &cliFixture{
		dir:        dir,
		configPath: filepath.Join(dir, "pipeline.yaml"),
		dbPath:     filepath.Join(dir, "data", "lead_scoring.db"),
	}
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write("leadscoring.csv", cliRawLeads)
	write("interaction_mapping.csv", cliInteractionMapping)
	write("pipeline.yaml", `
logging:
  level: error
  output: console
paths:
  db_file: data/lead_scoring.db
  raw_file: leadscoring.csv
  interaction_mapping_file: interaction_mapping.csv
telemetry:
  trace_exporter: none
  metric_exporter: none
`)
	return f
}

func (f *cliFixture) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--config", f.configPath, "--base-dir", f.dir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestHelp(t *testing.T) {
	var stdout bytes.Buffer
	cmd := NewRootCommand(&stdout, &stdout)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())
	for _, sub := range []string{"init-db", "run", "stage", "check", "export", "serve"} {
		assert.Contains(t, stdout.String(), sub)
	}
}

func TestInitDBCommand(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.exec(t, "init-db")
	require.NoError(t, err)
	assert.Contains(t, out, "DB created")
	assert.FileExists(t, f.dbPath)

	out, err = f.exec(t, "init-db")
	require.NoError(t, err)
	assert.Contains(t, out, "DB already exists")
}

func TestRunAndExport(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.exec(t, "run", "--mode", "training")
	require.NoError(t, err)
	assert.Contains(t, out, "completed (mode training")
	assert.Contains(t, out, "map_interactions")

	target := filepath.Join(f.dir, "exports", "model_input.csv")
	out, err = f.exec(t, "export", "model_input", target)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 rows from model_input")
	assert.FileExists(t, target)

	_, err = f.exec(t, "export", "scores", filepath.Join(f.dir, "scores.csv"))
	assert.Error(t, err)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.exec(t, "run", "--mode", "nightly")
	assert.Error(t, err)
}

func TestStageCommand(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.exec(t, "stage", "score_leads")
	assert.Error(t, err)

	out, err := f.exec(t, "stage", "build_db")
	require.NoError(t, err)
	assert.Contains(t, out, "build_db")
	assert.FileExists(t, f.dbPath)
}

func TestCheckCommand(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.exec(t, "check", "model-input")
	require.Error(t, err)
	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "missing_database", res["status"])
	assert.NoFileExists(t, f.dbPath)

	_, err = f.exec(t, "check", "scores")
	assert.Error(t, err)

	out, _ = f.exec(t, "check", "raw")
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "raw_schema", res["check"])
}
