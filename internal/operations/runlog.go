package operations

import (
	"context"
	"log/slog"

	"leadscoring/internal/store"
)

// StoreRunLog writes runs to the pipeline_runs table of the database file.
// A run that ends before the database exists is not recorded, so a failed
// build_db never leaves an empty database behind.
type StoreRunLog struct {
	Path   string
	Logger *slog.Logger
}

// RecordRun implements RunLog
func (l *StoreRunLog) RecordRun(ctx context.Context, r store.RunRecord) error {
	exists, err := store.Exists(l.Path)
	if err != nil {
		return err
	}
	if !exists {
		if l.Logger != nil {
			l.Logger.DebugContext(ctx, "run_log_skipped", slog.String("run_id", r.ID), slog.String("path", l.Path))
		}
		return nil
	}
	return withStore(ctx, l.Path, l.Logger, func(s *store.Store) error {
		return s.RecordRun(ctx, r)
	})
}
