package operations_test

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscoring/internal/config"
	"leadscoring/internal/dataset"
	"leadscoring/internal/operations"
	"leadscoring/internal/operations/testutil"
	"leadscoring/internal/store"
	"leadscoring/internal/validation"
)

const rawLeads = `created_date,city_mapped,first_platform_c,first_utm_medium_c,first_utm_source_c,total_leads_dropped,referred_lead,app_complete_flag,email_opened,email_clicked,careers
2021-07-01,Mumbai,rare_channel,Level0,Level2,,0,1,5,3,1
2021-07-02,bengaluru,Level0,Level99,Level0,2,1,0,,1,0
2021-07-02,bengaluru,Level0,Level99,Level0,2,1,0,,1,0
`

const interactionMappingCSV = `interaction_type,interaction_mapping
email_opened,email
email_clicked,email
careers,career_interaction
`

type pipelineFixture struct {
	options *operations.StageOptions
	manager *operations.Manager
	runLog  *testutil.MockRunLog
}

func newPipelineFixture(t *testing.T, policy string) *pipelineFixture {
	t.Helper()
	dir := t.TempDir()
	mappings, err := config.NewMappings(config.DefaultMappingsSpec())
	require.NoError(t, err)

	options := &operations.StageOptions{
		Paths: config.PathsConfig{
			DBFile:                 filepath.Join(dir, "data", "lead_scoring.db"),
			RawFile:                testutil.WriteFile(t, dir, "leadscoring.csv", rawLeads),
			InteractionMappingFile: testutil.WriteFile(t, dir, "interaction_mapping.csv", interactionMappingCSV),
		},
		Mappings:         mappings,
		ValidationPolicy: policy,
	}
	logger := slog.New(testutil.NewMockSlogHandler())
	registry, err := operations.NewPipelineRegistry(logger, options)
	require.NoError(t, err)

	runLog := &testutil.MockRunLog{}
	return &pipelineFixture{
		options: options,
		manager: operations.NewManager(registry, testutil.CreateTestConfig(), nil, runLog, logger),
		runLog:  runLog,
	}
}

func (f *pipelineFixture) read(t *testing.T, table string) *dataset.Dataset {
	t.Helper()
	s, err := store.Open(context.Background(), f.options.Paths.DBFile, nil)
	require.NoError(t, err)
	defer s.Close()
	d, err := s.ReadTable(context.Background(), table)
	require.NoError(t, err)
	return d
}

func TestPipelineEndToEnd(t *testing.T) {
	f := newPipelineFixture(t, config.PolicyWarn)

	resp, err := f.manager.Execute(context.Background(), operations.RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, operations.RunStatusCompleted, resp.Status)
	assert.Equal(t, config.ModeTraining, resp.Mode, "label column present")
	assert.Equal(t, "DB created", resp.Steps[0].Message)

	loaded := f.read(t, config.TableLoadedData)
	assert.Equal(t, 3, loaded.Len())
	dropped, _ := loaded.Value(0, "total_leads_dropped")
	assert.Equal(t, dataset.Number(0), dropped)

	tiered := f.read(t, config.TableCityTierMapped)
	assert.False(t, tiered.HasColumn("city_mapped"))
	tier, _ := tiered.Value(0, "city_tier")
	assert.Equal(t, dataset.Number(3), tier)

	collapsed := f.read(t, config.TableCategoricalMapped)
	assert.Equal(t, tiered.Columns(), collapsed.Columns())
	platform, _ := collapsed.Value(0, "first_platform_c")
	assert.Equal(t, dataset.Text("others"), platform)

	model := f.read(t, config.TableModelInput)
	require.Equal(t, 2, model.Len(), "duplicate rows collapse")
	assert.Equal(t, []string{"career_interaction", "email"}, model.Columns()[model.Width()-2:])
	email, _ := model.Value(0, "email")
	assert.Equal(t, dataset.Number(8), email, "email_opened and email_clicked sum into email")
	email, _ = model.Value(1, "email")
	assert.Equal(t, dataset.Number(1), email, "missing interaction counts as zero")

	// the built-in model input schema expects categories this mapping lacks
	check := resp.Steps[len(resp.Steps)-1]
	assert.Equal(t, config.StepCheckModelInputSchema, check.ID)
	assert.Equal(t, "completed", check.Status)
	assert.Equal(t, "Models input schema is NOT in line with the configured schema", check.Message)

	rec, ok := f.runLog.Last()
	require.True(t, ok)
	assert.Equal(t, resp.ID, rec.ID)
	assert.Equal(t, "completed", rec.Status)
	assert.Len(t, rec.Steps, 7)
}

func TestPipelineIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t, config.PolicyWarn)

	_, err := f.manager.Execute(context.Background(), operations.RunRequest{})
	require.NoError(t, err)
	first := f.read(t, config.TableModelInput)

	resp, err := f.manager.Execute(context.Background(), operations.RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, "DB already exists", resp.Steps[0].Message)
	assert.True(t, first.Equal(f.read(t, config.TableModelInput)))
}

func TestPipelineFailPolicyStopsOnMismatch(t *testing.T) {
	f := newPipelineFixture(t, config.PolicyFail)

	resp, err := f.manager.Execute(context.Background(), operations.RunRequest{})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeSchemaMismatch, operations.GetErrorType(err))
	assert.ErrorIs(t, err, validation.ErrSchemaMismatch)
	assert.Equal(t, operations.RunStatusFailed, resp.Status)
	assert.Equal(t, "completed", resp.Steps[5].Status, "tables are written before the check")
}

func TestPipelineInferenceMode(t *testing.T) {
	f := newPipelineFixture(t, config.PolicyWarn)

	resp, err := f.manager.Execute(context.Background(), operations.RunRequest{Mode: config.ModeInference})
	require.NoError(t, err)
	assert.Equal(t, config.ModeInference, resp.Mode)

	model := f.read(t, config.TableModelInput)
	assert.False(t, model.HasColumn("app_complete_flag"))
}

func TestPipelineMissingRawFile(t *testing.T) {
	f := newPipelineFixture(t, config.PolicyWarn)
	f.options.Paths.RawFile = filepath.Join(t.TempDir(), "absent.csv")

	resp, err := f.manager.Execute(context.Background(), operations.RunRequest{})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeResourceMissing, operations.GetErrorType(err))
	assert.Equal(t, "load_data", resp.Steps[2].ID)
	assert.Equal(t, "failed", resp.Steps[2].Status)
	assert.Equal(t, "skipped", resp.Steps[3].Status)
}

func TestStageWithoutPriorTable(t *testing.T) {
	f := newPipelineFixture(t, config.PolicyWarn)

	_, err := f.manager.Execute(context.Background(), operations.RunRequest{Step: config.StepBuildDB})
	require.NoError(t, err)

	_, err = f.manager.Execute(context.Background(), operations.RunRequest{Step: config.StepMapCityTier})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeResourceMissing, operations.GetErrorType(err))
	assert.ErrorIs(t, err, store.ErrTableNotFound)
}

func TestStoreRunLog(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	l := &operations.StoreRunLog{Path: path}

	require.NoError(t, l.RecordRun(ctx, store.RunRecord{ID: "r1", Trigger: "manual", Mode: "auto", Status: "failed"}))
	ok, err := store.Exists(path)
	require.NoError(t, err)
	assert.False(t, ok, "no database is created for the run log")

	s, err := store.Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, l.RecordRun(ctx, store.RunRecord{ID: "r2", Trigger: "manual", Mode: "auto", Status: "completed"}))
	s, err = store.Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetRun(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
}

func TestMapInteractionsFailureKeepsBothTables(t *testing.T) {
	f := newPipelineFixture(t, config.PolicyWarn)
	ctx := context.Background()

	_, err := f.manager.Execute(ctx, operations.RunRequest{})
	require.NoError(t, err)
	before := f.read(t, config.TableInteractionsMapped)
	require.Equal(t, 2, before.Len())

	db, err := sql.Open("sqlite", f.options.Paths.DBFile)
	require.NoError(t, err)
	for _, q := range []string{
		`DELETE FROM categorical_variables_mapped WHERE rowid NOT IN (SELECT MIN(rowid) FROM categorical_variables_mapped)`,
		`DROP TABLE model_input`,
		`CREATE VIEW model_input AS SELECT 1 AS x`,
	} {
		_, err := db.ExecContext(ctx, q)
		require.NoError(t, err, q)
	}
	require.NoError(t, db.Close())

	_, err = f.manager.Execute(ctx, operations.RunRequest{Step: config.StepMapInteractions})
	require.Error(t, err)
	assert.Equal(t, operations.ErrorTypeStore, operations.GetErrorType(err))

	after := f.read(t, config.TableInteractionsMapped)
	assert.Equal(t, before.Len(), after.Len())
	assert.Equal(t, before.Columns(), after.Columns())
}
