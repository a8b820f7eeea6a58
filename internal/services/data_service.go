package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"leadscoring/internal/dataset"
	"leadscoring/internal/infrastructure"
	"leadscoring/internal/store"
)

// DefaultRunLimit caps run listings when the caller gives no limit
const DefaultRunLimit = 20

// TableInfo summarises one persisted table
type TableInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// DataService reads the pipeline database. Each call opens and closes its
// own connection and never creates the database file.
type DataService struct {
	dbPath string
	logger *slog.Logger
}

// NewDataService creates a data service over the database at dbPath
func NewDataService(dbPath string, logger *slog.Logger) *DataService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataService{
		dbPath: dbPath,
		logger: logger.With(slog.String("component", "data_service")),
	}
}

// DBPath returns the database file path
func (s *DataService) DBPath() string { return s.dbPath }

// Tables lists every table with its columns
func (s *DataService) Tables(ctx context.Context) ([]TableInfo, error) {
	var out []TableInfo
	err := s.withStore(ctx, "list_tables", func(st *store.Store) error {
		names, err := st.TableNames(ctx)
		if err != nil {
			return err
		}
		out = make([]TableInfo, 0, len(names))
		for _, name := range names {
			cols, err := st.Columns(ctx, name)
			if err != nil {
				return err
			}
			out = append(out, TableInfo{Name: name, Columns: cols})
		}
		return nil
	})
	return out, err
}

// Columns returns the columns of table
func (s *DataService) Columns(ctx context.Context, table string) ([]string, error) {
	if err := checkTableName(table); err != nil {
		return nil, err
	}
	var cols []string
	err := s.withStore(ctx, "columns", func(st *store.Store) error {
		var err error
		cols, err = st.Columns(ctx, table)
		return err
	})
	return cols, err
}

// Table reads the whole of table
func (s *DataService) Table(ctx context.Context, table string) (*dataset.Dataset, error) {
	if err := checkTableName(table); err != nil {
		return nil, err
	}
	var d *dataset.Dataset
	err := s.withStore(ctx, "read_table", func(st *store.Store) error {
		var err error
		d, err = st.ReadTable(ctx, table)
		return err
	})
	return d, err
}

// Runs returns the most recent runs, newest first. A missing database
// yields an empty list.
func (s *DataService) Runs(ctx context.Context, limit int) ([]store.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	runs := []store.RunRecord{}
	err := s.withStore(ctx, "list_runs", func(st *store.Store) error {
		got, err := st.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		runs = append(runs, got...)
		return nil
	})
	if err != nil && isMissing(err) {
		return runs, nil
	}
	return runs, err
}

// Run returns one recorded run
func (s *DataService) Run(ctx context.Context, id string) (store.RunRecord, error) {
	var rec store.RunRecord
	err := s.withStore(ctx, "get_run", func(st *store.Store) error {
		var err error
		rec, err = st.GetRun(ctx, id)
		return err
	})
	if err != nil && isMissing(err) {
		return rec, fmt.Errorf("run %s: %w", id, store.ErrRunNotFound)
	}
	return rec, err
}

func (s *DataService) withStore(ctx context.Context, action string, fn func(*store.Store) error) error {
	st, err := store.OpenExisting(ctx, s.dbPath, s.logger)
	if err != nil {
		if isMissing(err) {
			return fmt.Errorf("%w: %s", ErrDatabaseMissing, s.dbPath)
		}
		return err
	}
	defer st.Close()

	if err := fn(st); err != nil {
		logger := infrastructure.LoggerWithContext(ctx)
		logger.LogAttrs(ctx, slog.LevelDebug, "data service call failed",
			slog.String("component", "data_service"),
			slog.String("action", action),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

func isMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrDatabaseMissing)
}

// checkTableName rejects names that cannot be table identifiers
func checkTableName(name string) error {
	if name == "" || strings.ContainsAny(name, "\"'`;") {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}
