package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"leadscoring/internal/config"
	"leadscoring/internal/dataprocessing"
	"leadscoring/internal/store"
)

// ErrSchemaMismatch is returned by a check that did not pass under the
// fail policy
var ErrSchemaMismatch = errors.New("schema mismatch")

// Status classifies the outcome of a check
type Status string

const (
	StatusPassed          Status = "passed"
	StatusMismatch        Status = "mismatch"
	StatusMissingFile     Status = "missing_file"
	StatusEmptyFile       Status = "empty_file"
	StatusUnreadable      Status = "unreadable"
	StatusMissingDatabase Status = "missing_database"
	StatusMissingTable    Status = "missing_table"
)

// Result is the report of one check
type Result struct {
	Check   string   `json:"check"`
	Status  Status   `json:"status"`
	Message string   `json:"message"`
	Missing []string `json:"missing,omitempty"`
}

// Passed reports whether the check passed
func (r Result) Passed() bool { return r.Status == StatusPassed }

// SchemaValidator compares configured column sets with actual data
type SchemaValidator struct {
	policy string
	logger *slog.Logger
}

// NewSchemaValidator creates a validator. Under config.PolicyFail a check
// that does not pass also returns an error wrapping ErrSchemaMismatch;
// under config.PolicyWarn it only logs.
func NewSchemaValidator(policy string, logger *slog.Logger) *SchemaValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchemaValidator{policy: policy, logger: logger}
}

// MissingColumns returns the expected columns absent from actual, sorted.
// An empty expectation is always satisfied.
func MissingColumns(expected, actual []string) []string {
	have := make(map[string]bool, len(actual))
	for _, c := range actual {
		have[c] = true
	}
	var missing []string
	for _, c := range expected {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	return missing
}

// CheckRawSchema verifies that the raw file carries every expected column
func (v *SchemaValidator) CheckRawSchema(ctx context.Context, path string, expected []string) (Result, error) {
	res := Result{Check: "raw_schema"}

	d, err := dataprocessing.ParseFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		res.Status = StatusMissingFile
		res.Message = fmt.Sprintf("Raw data file not found: %s", path)
	case errors.Is(err, dataprocessing.ErrEmptyFile):
		res.Status = StatusEmptyFile
		res.Message = fmt.Sprintf("Raw data file is empty: %s", path)
	case err != nil:
		res.Status = StatusUnreadable
		res.Message = fmt.Sprintf("Raw data file could not be parsed: %v", err)
	default:
		res.Missing = MissingColumns(expected, d.Columns())
		if len(res.Missing) == 0 {
			res.Status = StatusPassed
			res.Message = "Raw data schema is in line with the configured schema"
		} else {
			res.Status = StatusMismatch
			res.Message = "Raw data schema is NOT in line with the configured schema"
		}
	}
	return v.report(ctx, res)
}

// CheckModelInputSchema verifies that the persisted model_input table
// carries every expected column. It never creates the database file.
func (v *SchemaValidator) CheckModelInputSchema(ctx context.Context, dbPath string, expected []string) (Result, error) {
	res := Result{Check: "model_input_schema"}

	ok, err := store.Exists(dbPath)
	if err != nil {
		res.Status = StatusUnreadable
		res.Message = fmt.Sprintf("Database file could not be checked: %v", err)
		return v.report(ctx, res)
	}
	if !ok {
		res.Status = StatusMissingDatabase
		res.Message = fmt.Sprintf("Database file not found: %s", dbPath)
		return v.report(ctx, res)
	}

	s, err := store.Open(ctx, dbPath, v.logger)
	if err != nil {
		res.Status = StatusUnreadable
		res.Message = fmt.Sprintf("Database could not be opened: %v", err)
		return v.report(ctx, res)
	}
	defer s.Close()

	cols, err := s.Columns(ctx, config.TableModelInput)
	switch {
	case errors.Is(err, store.ErrTableNotFound):
		res.Status = StatusMissingTable
		res.Message = fmt.Sprintf("Table %s not found in %s", config.TableModelInput, dbPath)
	case err != nil:
		res.Status = StatusUnreadable
		res.Message = fmt.Sprintf("Table %s could not be read: %v", config.TableModelInput, err)
	default:
		res.Missing = MissingColumns(expected, cols)
		if len(res.Missing) == 0 {
			res.Status = StatusPassed
			res.Message = "Models input schema is in line with the configured schema"
		} else {
			res.Status = StatusMismatch
			res.Message = "Models input schema is NOT in line with the configured schema"
		}
	}
	return v.report(ctx, res)
}

func (v *SchemaValidator) report(ctx context.Context, res Result) (Result, error) {
	if res.Passed() {
		v.logger.InfoContext(ctx, res.Message, slog.String("check", res.Check))
		return res, nil
	}
	v.logger.WarnContext(ctx, res.Message,
		slog.String("check", res.Check),
		slog.String("status", string(res.Status)),
		slog.Any("missing", res.Missing))
	if v.policy == config.PolicyFail {
		return res, fmt.Errorf("%w: %s", ErrSchemaMismatch, res.Message)
	}
	return res, nil
}
