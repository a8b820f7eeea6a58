package operations

import (
	"context"
	"errors"
	"fmt"
	"os"

	"leadscoring/internal/dataprocessing"
	"leadscoring/internal/dataset"
	"leadscoring/internal/store"
	"leadscoring/internal/validation"
)

// ErrorType represents the type of operation error
type ErrorType string

const (
	ErrorTypeResourceMissing   ErrorType = "resource_missing"
	ErrorTypeResourceMalformed ErrorType = "resource_malformed"
	ErrorTypeSchemaMismatch    ErrorType = "schema_mismatch"
	ErrorTypeStore             ErrorType = "store"
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeDependency        ErrorType = "dependency"
	ErrorTypeExecution         ErrorType = "execution"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeCancellation      ErrorType = "cancellation"
	ErrorTypeFatal             ErrorType = "fatal"
	ErrorTypeNotFound          ErrorType = "not_found"
)

// OperationError is a step failure with its class
type OperationError struct {
	Type      ErrorType `json:"type"`
	Step      string    `json:"step,omitempty"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Retryable bool      `json:"retryable"`
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e == nil {
		return "unknown operation error"
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(step, message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeValidation,
		Step:    step,
		Message: message,
	}
}

// NewDependencyError creates a new dependency error
func NewDependencyError(step, dependsOn string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeDependency,
		Step:    step,
		Message: fmt.Sprintf("dependency %s did not complete", dependsOn),
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(step string, timeout string) *OperationError {
	return &OperationError{
		Type:      ErrorTypeTimeout,
		Step:      step,
		Message:   fmt.Sprintf("step exceeded timeout of %s", timeout),
		Retryable: true,
	}
}

// NewCancellationError creates a new cancellation error
func NewCancellationError(step string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeCancellation,
		Step:    step,
		Message: "run was cancelled",
	}
}

// NewFatalError creates a new fatal error
func NewFatalError(message string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeFatal,
		Message: message,
		Cause:   cause,
	}
}

// NewNotFoundError reports an unknown step ID
func NewNotFoundError(step string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeNotFound,
		Step:    step,
		Message: "step is not registered",
	}
}

// Classify maps a step failure onto the error taxonomy. An
// *OperationError is returned as is with its step filled in. Only store
// failures and timeouts are retryable; the other classes fail the same way
// on every attempt.
func Classify(step string, err error) *OperationError {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		if opErr.Step == "" {
			opErr.Step = step
		}
		return opErr
	}

	e := &OperationError{Step: step, Cause: err}
	var storeErr *store.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Type, e.Message, e.Retryable = ErrorTypeTimeout, "step timed out", true
	case errors.Is(err, context.Canceled):
		e.Type, e.Message = ErrorTypeCancellation, "run was cancelled"
	case errors.Is(err, validation.ErrSchemaMismatch):
		e.Type, e.Message = ErrorTypeSchemaMismatch, "schema check failed"
	case errors.Is(err, os.ErrNotExist), errors.Is(err, store.ErrTableNotFound):
		e.Type, e.Message = ErrorTypeResourceMissing, "input not found"
	case errors.Is(err, dataprocessing.ErrEmptyFile),
		errors.Is(err, dataprocessing.ErrMalformedFile),
		errors.Is(err, dataprocessing.ErrUnsupportedFormat),
		errors.Is(err, dataprocessing.ErrMissingColumn),
		errors.Is(err, dataprocessing.ErrConflictingMapping),
		errors.Is(err, dataset.ErrNonNumeric),
		errors.Is(err, store.ErrNoColumns):
		e.Type, e.Message = ErrorTypeResourceMalformed, "input is malformed"
	case errors.As(err, &storeErr):
		e.Type, e.Message, e.Retryable = ErrorTypeStore, "store failure", true
	default:
		e.Type, e.Message = ErrorTypeExecution, "step execution failed"
	}
	return e
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Retryable
	}
	return false
}

// GetErrorType returns the type of the error
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Type
	}
	return ErrorTypeExecution
}
