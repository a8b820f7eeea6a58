package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"leadscoring/internal/operations"
	"leadscoring/internal/store"
)

// CreateTestConfig returns a run configuration with fast retries
func CreateTestConfig() *operations.Config {
	cfg := operations.NewConfig()
	cfg.RetryConfig = operations.RetryConfig{
		MaxAttempts: 2,
		Delay:       time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  1.0,
	}
	cfg.DefaultTimeout = 5 * time.Second
	return cfg
}

// CreateSuccessfulStage creates a step that always succeeds and reports
// one row
func CreateSuccessfulStage(id string, deps ...string) *MockStage {
	return &MockStage{
		IDValue:           id,
		NameValue:         id,
		DependenciesValue: deps,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			state.Report(id, 1, "ok")
			return nil
		},
	}
}

// CreateFailingStage creates a step that always fails with err
func CreateFailingStage(id string, err error, deps ...string) *MockStage {
	if err == nil {
		err = errors.New("step failed")
	}
	return &MockStage{
		IDValue:           id,
		NameValue:         id,
		DependenciesValue: deps,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			return err
		},
	}
}

// CreateRetryableStage creates a step whose first failCount attempts fail
// with a store error
func CreateRetryableStage(id string, failCount int, deps ...string) *MockStage {
	var attempts atomic.Int32
	return &MockStage{
		IDValue:           id,
		NameValue:         id,
		DependenciesValue: deps,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			if int(attempts.Add(1)) <= failCount {
				return &store.Error{Op: "write", Table: "loaded_data", Err: errors.New("database is locked")}
			}
			return nil
		},
	}
}

// CreateSlowStage creates a step that takes duration unless ctx ends first
func CreateSlowStage(id string, duration time.Duration, deps ...string) *MockStage {
	return &MockStage{
		IDValue:           id,
		NameValue:         id,
		DependenciesValue: deps,
		ExecuteFunc: func(ctx context.Context, state *operations.OperationState) error {
			timer := time.NewTimer(duration)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// CreateValidationFailingStage creates a step that never passes validation
func CreateValidationFailingStage(id string, validationErr error, deps ...string) *MockStage {
	return &MockStage{
		IDValue:           id,
		NameValue:         id,
		DependenciesValue: deps,
		ValidateFunc: func(state *operations.OperationState) error {
			return validationErr
		},
	}
}

// CreateRegistry registers steps in order
func CreateRegistry(t *testing.T, steps ...operations.Step) *operations.Registry {
	t.Helper()
	r := operations.NewRegistry()
	for _, s := range steps {
		if err := r.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.ID(), err)
		}
	}
	return r
}

// WriteFile writes content to dir/name and returns the path
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}
