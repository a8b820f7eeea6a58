package validation

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscoring/internal/config"
	"leadscoring/internal/dataset"
	"leadscoring/internal/store"
)

func newValidator(policy string) (*SchemaValidator, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewSchemaValidator(policy, slog.New(slog.NewJSONHandler(&buf, nil))), &buf
}

func TestMissingColumns(t *testing.T) {
	tests := []struct {
		name     string
		expected []string
		actual   []string
		want     []string
	}{
		{"subset passes", []string{"a"}, []string{"a", "b"}, nil},
		{"empty expectation passes", nil, []string{"a"}, nil},
		{"empty expectation on empty data", nil, nil, nil},
		{"missing sorted", []string{"z", "a", "b"}, []string{"b"}, []string{"a", "z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MissingColumns(tt.expected, tt.actual))
		})
	}
}

func TestCheckRawSchema(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	require.NoError(t, os.WriteFile(good, []byte("created_date,city_mapped\n2021-07-01,pune\n"), 0644))
	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	broken := filepath.Join(dir, "broken.csv")
	require.NoError(t, os.WriteFile(broken, []byte("a,b\n1,2,3\n"), 0644))

	tests := []struct {
		name     string
		path     string
		expected []string
		want     Status
		message  string
	}{
		{"in line", good, []string{"city_mapped"}, StatusPassed, "Raw data schema is in line with the configured schema"},
		{"not in line", good, []string{"city_mapped", "referred_lead"}, StatusMismatch, "Raw data schema is NOT in line with the configured schema"},
		{"missing file", filepath.Join(dir, "nope.csv"), nil, StatusMissingFile, ""},
		{"empty file", empty, nil, StatusEmptyFile, ""},
		{"unparsable file", broken, nil, StatusUnreadable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newValidator(config.PolicyWarn)
			res, err := v.CheckRawSchema(context.Background(), tt.path, tt.expected)
			require.NoError(t, err, "warn policy never fails")
			assert.Equal(t, tt.want, res.Status)
			if tt.message != "" {
				assert.Equal(t, tt.message, res.Message)
			}
		})
	}
}

func TestFailPolicy(t *testing.T) {
	v, logs := newValidator(config.PolicyFail)
	res, err := v.CheckRawSchema(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), nil)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.False(t, res.Passed())
	assert.Contains(t, logs.String(), "WARN")
}

func TestCheckModelInputSchema(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v, _ := newValidator(config.PolicyWarn)
	dbPath := filepath.Join(dir, "lead_scoring.db")

	res, err := v.CheckModelInputSchema(ctx, dbPath, []string{"city_tier"})
	require.NoError(t, err)
	assert.Equal(t, StatusMissingDatabase, res.Status)
	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr), "check must not create the database")

	s, err := store.Open(ctx, dbPath, nil)
	require.NoError(t, err)
	res, err = v.CheckModelInputSchema(ctx, dbPath, []string{"city_tier"})
	require.NoError(t, err)
	assert.Equal(t, StatusMissingTable, res.Status)

	require.NoError(t, s.WriteTable(ctx, config.TableModelInput, dataset.MustNew("city_tier", "email")))
	require.NoError(t, s.Close())

	res, err = v.CheckModelInputSchema(ctx, dbPath, []string{"city_tier", "email"})
	require.NoError(t, err)
	assert.True(t, res.Passed())

	res, err = v.CheckModelInputSchema(ctx, dbPath, []string{"city_tier", "social_interaction"})
	require.NoError(t, err)
	assert.Equal(t, StatusMismatch, res.Status)
	assert.Equal(t, []string{"social_interaction"}, res.Missing)
}
