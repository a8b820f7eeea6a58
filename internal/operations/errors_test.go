package operations_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"leadscoring/internal/dataprocessing"
	"leadscoring/internal/dataset"
	"leadscoring/internal/operations"
	"leadscoring/internal/store"
	"leadscoring/internal/validation"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      operations.ErrorType
		retryable bool
	}{
		{"missing raw file", fmt.Errorf("load raw data: %w", os.ErrNotExist), operations.ErrorTypeResourceMissing, false},
		{"missing prior table", &store.Error{Op: "read", Table: "loaded_data", Err: store.ErrTableNotFound}, operations.ErrorTypeResourceMissing, false},
		{"empty file", dataprocessing.ErrEmptyFile, operations.ErrorTypeResourceMalformed, false},
		{"unparsable file", fmt.Errorf("x: %w", dataprocessing.ErrMalformedFile), operations.ErrorTypeResourceMalformed, false},
		{"missing column", dataprocessing.ErrMissingColumn, operations.ErrorTypeResourceMalformed, false},
		{"conflicting mapping", dataprocessing.ErrConflictingMapping, operations.ErrorTypeResourceMalformed, false},
		{"text in aggregation", dataset.ErrNonNumeric, operations.ErrorTypeResourceMalformed, false},
		{"schema mismatch", fmt.Errorf("%w: raw", validation.ErrSchemaMismatch), operations.ErrorTypeSchemaMismatch, false},
		{"store failure", &store.Error{Op: "write", Table: "model_input", Err: errors.New("disk I/O error")}, operations.ErrorTypeStore, true},
		{"deadline", context.DeadlineExceeded, operations.ErrorTypeTimeout, true},
		{"cancelled", context.Canceled, operations.ErrorTypeCancellation, false},
		{"anything else", errors.New("boom"), operations.ErrorTypeExecution, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := operations.Classify("load_data", tt.err)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, "load_data", got.Step)
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.retryable, operations.IsRetryable(got))
		})
	}
}

func TestClassifyKeepsOperationErrors(t *testing.T) {
	orig := operations.NewValidationError("", "bad input")
	got := operations.Classify("map_city_tier", fmt.Errorf("wrapped: %w", orig))
	assert.Same(t, orig, got)
	assert.Equal(t, "map_city_tier", got.Step)
	assert.Nil(t, operations.Classify("x", nil))
}

func TestOperationErrorMessage(t *testing.T) {
	err := &operations.OperationError{
		Type:    operations.ErrorTypeStore,
		Step:    "load_data",
		Message: "store failure",
		Cause:   errors.New("locked"),
	}
	assert.Equal(t, "[store] load_data: store failure: locked", err.Error())
	assert.Equal(t, operations.ErrorTypeExecution, operations.GetErrorType(errors.New("plain")))
	assert.False(t, operations.IsRetryable(errors.New("plain")))
}
