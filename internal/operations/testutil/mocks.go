package testutil

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"leadscoring/internal/operations"
	"leadscoring/internal/store"
)

// MockStage is a configurable mock implementation of the step interface
type MockStage struct {
	IDValue           string
	NameValue         string
	DependenciesValue []string

	// Configurable functions
	ExecuteFunc  func(ctx context.Context, state *operations.OperationState) error
	ValidateFunc func(state *operations.OperationState) error

	// Call tracking
	mu            sync.Mutex
	ExecuteCalls  int
	ExecuteTimes  []time.Time
	ValidateCalls int
}

// ID returns the step ID
func (m *MockStage) ID() string {
	return m.IDValue
}

// Name returns the step name
func (m *MockStage) Name() string {
	return m.NameValue
}

// GetDependencies returns the step dependencies
func (m *MockStage) GetDependencies() []string {
	if m.DependenciesValue == nil {
		return []string{}
	}
	return m.DependenciesValue
}

// Execute runs the mock execute function
func (m *MockStage) Execute(ctx context.Context, state *operations.OperationState) error {
	m.mu.Lock()
	m.ExecuteCalls++
	m.ExecuteTimes = append(m.ExecuteTimes, time.Now())
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, state)
	}
	return nil
}

// Validate runs the mock validate function
func (m *MockStage) Validate(state *operations.OperationState) error {
	m.mu.Lock()
	m.ValidateCalls++
	m.mu.Unlock()

	if m.ValidateFunc != nil {
		return m.ValidateFunc(state)
	}
	return nil
}

// GetExecuteCalls returns the number of Execute calls
func (m *MockStage) GetExecuteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExecuteCalls
}

// MockRunLog captures recorded runs
type MockRunLog struct {
	mu   sync.Mutex
	Runs []store.RunRecord
	Err  error
}

// RecordRun implements operations.RunLog
func (l *MockRunLog) RecordRun(ctx context.Context, r store.RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Runs = append(l.Runs, r)
	return l.Err
}

// Last returns the most recent run
func (l *MockRunLog) Last() (store.RunRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.Runs) == 0 {
		return store.RunRecord{}, false
	}
	return l.Runs[len(l.Runs)-1], true
}

// MockSlogHandler captures slog records for testing
type MockSlogHandler struct {
	mu      *sync.Mutex
	records *[]MockLogRecord
	attrs   []slog.Attr
}

// MockLogRecord represents a captured slog record
type MockLogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]interface{}
}

// NewMockSlogHandler creates a new mock slog handler
func NewMockSlogHandler() *MockSlogHandler {
	return &MockSlogHandler{
		mu:      &sync.Mutex{},
		records: &[]MockLogRecord{},
	}
}

// Handle implements slog.Handler
func (h *MockSlogHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := make(map[string]interface{}, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, MockLogRecord{
		Level:   record.Level,
		Message: record.Message,
		Attrs:   attrs,
	})
	return nil
}

// Enabled implements slog.Handler
func (h *MockSlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// WithAttrs implements slog.Handler. The returned handler shares the
// captured records.
func (h *MockSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &MockSlogHandler{mu: h.mu, records: h.records, attrs: merged}
}

// WithGroup implements slog.Handler; groups are flattened
func (h *MockSlogHandler) WithGroup(name string) slog.Handler {
	return h
}

// GetRecords returns all captured log records
func (h *MockSlogHandler) GetRecords() []MockLogRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	records := make([]MockLogRecord, len(*h.records))
	copy(records, *h.records)
	return records
}

// Messages returns the messages of every captured record
func (h *MockSlogHandler) Messages() []string {
	var out []string
	for _, r := range h.GetRecords() {
		out = append(out, r.Message)
	}
	return out
}

// Find returns the first record with msg
func (h *MockSlogHandler) Find(msg string) (MockLogRecord, bool) {
	for _, r := range h.GetRecords() {
		if r.Message == msg {
			return r, true
		}
	}
	return MockLogRecord{}, false
}
