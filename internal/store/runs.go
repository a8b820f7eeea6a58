package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RunsTable is the run log table. No stage reads it.
const RunsTable = "pipeline_runs"

// timeLayout has fixed width so started_at sorts chronologically as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when a run ID is not in the run log
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one row of the run log
type RunRecord struct {
	ID         string        `json:"id"`
	Trigger    string        `json:"trigger"`
	Mode       string        `json:"mode"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Steps      []StepSummary `json:"steps"`
}

// StepSummary records the outcome of one step within a run
type StepSummary struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	DurationMS int64  `json:"duration_ms"`
	Rows       int    `json:"rows,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

const createRunsTable = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	trigger     TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	steps       TEXT NOT NULL
)`

// RecordRun inserts or replaces a run in the run log
func (s *Store) RecordRun(ctx context.Context, r RunRecord) error {
	if _, err := s.db.ExecContext(ctx, createRunsTable); err != nil {
		return &Error{Op: "record run", Table: RunsTable, Err: err}
	}
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return &Error{Op: "record run", Table: RunsTable, Err: err}
	}

	var finished any
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.UTC().Format(timeLayout)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pipeline_runs (id, trigger, mode, status, error, started_at, finished_at, steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Trigger, r.Mode, r.Status, nullString(r.Error),
		r.StartedAt.UTC().Format(timeLayout), finished, string(steps))
	if err != nil {
		return &Error{Op: "record run", Table: RunsTable, Err: err}
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A store without a
// run log returns no runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	ok, err := s.HasTable(ctx, RunsTable)
	if err != nil || !ok {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger, mode, status, error, started_at, finished_at, steps
		FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &Error{Op: "list runs", Table: RunsTable, Err: err}
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list runs", Table: RunsTable, Err: err}
	}
	return runs, nil
}

// GetRun returns the run with the given ID
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	ok, err := s.HasTable(ctx, RunsTable)
	if err != nil {
		return RunRecord{}, err
	}
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, trigger, mode, status, error, started_at, finished_at, steps
		FROM pipeline_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var (
		r                RunRecord
		errText, finText sql.NullString
		started, steps   string
	)
	if err := sc.Scan(&r.ID, &r.Trigger, &r.Mode, &r.Status, &errText, &started, &finText, &steps); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, &Error{Op: "scan run", Table: RunsTable, Err: err}
	}
	r.Error = errText.String
	var err error
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return r, &Error{Op: "scan run", Table: RunsTable, Err: err}
	}
	if finText.Valid {
		if r.FinishedAt, err = time.Parse(timeLayout, finText.String); err != nil {
			return r, &Error{Op: "scan run", Table: RunsTable, Err: err}
		}
	}
	if err := json.Unmarshal([]byte(steps), &r.Steps); err != nil {
		return r, &Error{Op: "scan run", Table: RunsTable, Err: err}
	}
	return r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
