// Package store persists datasets as SQLite tables. Every write replaces
// the whole table inside one transaction, so readers see either the old
// table or the new one.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"leadscoring/internal/dataset"
)

var (
	// ErrTableNotFound is returned when a table has never been written
	ErrTableNotFound = errors.New("table not found")

	// ErrNoColumns is returned when writing a dataset without columns
	ErrNoColumns = errors.New("dataset has no columns")
)

// Error is a failure of the underlying database
type Error struct {
	Op    string
	Table string
	Err   error
}

func (e *Error) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Store is a handle on one SQLite database file
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (and if needed creates) the database at path
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	// One connection: stages run sequentially and SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: err}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: err}
	}
	return &Store{db: db, path: path, logger: logger}, nil
}

// OpenExisting is Open for a database file that must already exist
func OpenExisting(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	ok, err := Exists(path)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	if !ok {
		return nil, &Error{Op: "open", Err: fmt.Errorf("database %s: %w", path, os.ErrNotExist)}
	}
	return Open(ctx, path, logger)
}

// Exists reports whether the database file exists
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Path returns the database file path
func (s *Store) Path() string { return s.path }

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Table pairs a table name with the contents to write
type Table struct {
	Name string
	Data *dataset.Dataset
}

// WriteTable replaces table name with d
func (s *Store) WriteTable(ctx context.Context, name string, d *dataset.Dataset) error {
	return s.WriteTables(ctx, Table{Name: name, Data: d})
}

// WriteTables replaces every table in one transaction. Either all of them
// hold the new contents afterwards or none has changed.
func (s *Store) WriteTables(ctx context.Context, tables ...Table) error {
	for _, t := range tables {
		if len(t.Data.Columns()) == 0 {
			return &Error{Op: "write", Table: t.Name, Err: ErrNoColumns}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "write", Table: tableNames(tables), Err: err}
	}
	defer tx.Rollback()

	for _, t := range tables {
		if err := replaceTable(ctx, tx, t.Name, t.Data); err != nil {
			return &Error{Op: "write", Table: t.Name, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Op: "write", Table: tableNames(tables), Err: err}
	}
	for _, t := range tables {
		s.logger.DebugContext(ctx, "Table written",
			slog.String("table", t.Name),
			slog.Int("rows", t.Data.Len()),
			slog.Int("columns", t.Data.Width()))
	}
	return nil
}

// replaceTable drops, recreates and fills name inside tx
func replaceTable(ctx context.Context, tx *sql.Tx, name string, d *dataset.Dataset) error {
	cols := d.Columns()
	defs := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		defs[i] = strings.TrimSpace(quoted[i] + " " + columnType(d, c))
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+quoteIdent(name)+" ("+strings.Join(defs, ", ")+")"); err != nil {
		return err
	}

	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+quoteIdent(name)+" ("+strings.Join(quoted, ", ")+") VALUES ("+ph+")")
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for i := 0; i < d.Len(); i++ {
		for j, v := range d.Row(i) {
			args[j] = toSQL(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

func tableNames(tables []Table) string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return strings.Join(names, ",")
}

// ReadTable returns the full contents of table name
func (s *Store) ReadTable(ctx context.Context, name string) (*dataset.Dataset, error) {
	cols, err := s.Columns(ctx, name)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name)+" ORDER BY rowid")
	if err != nil {
		return nil, &Error{Op: "read", Table: name, Err: err}
	}
	defer rows.Close()

	d, err := dataset.New(cols)
	if err != nil {
		return nil, &Error{Op: "read", Table: name, Err: err}
	}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	row := make([]dataset.Value, len(cols))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &Error{Op: "read", Table: name, Err: err}
		}
		for i, v := range raw {
			row[i] = fromSQL(v)
		}
		if err := d.Append(row); err != nil {
			return nil, &Error{Op: "read", Table: name, Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "read", Table: name, Err: err}
	}
	return d, nil
}

// Columns returns the column names of table name in declaration order
func (s *Store) Columns(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", name)
	if err != nil {
		return nil, &Error{Op: "columns", Table: name, Err: err}
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, &Error{Op: "columns", Table: name, Err: err}
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "columns", Table: name, Err: err}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return cols, nil
}

// HasTable reports whether table name exists
func (s *Store) HasTable(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, &Error{Op: "lookup", Table: name, Err: err}
	}
	return n > 0, nil
}

// TableNames lists the user tables in name order
func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, &Error{Op: "list", Err: err}
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	return names, nil
}

// columnType picks REAL or TEXT when every non-null cell agrees, and no
// declared type otherwise
func columnType(d *dataset.Dataset, column string) string {
	values, _ := d.Column(column)
	var numbers, texts int
	for _, v := range values {
		switch v.Kind() {
		case dataset.KindNumber:
			numbers++
		case dataset.KindText:
			texts++
		}
	}
	switch {
	case texts == 0:
		return "REAL"
	case numbers == 0:
		return "TEXT"
	default:
		return ""
	}
}

func toSQL(v dataset.Value) any {
	switch v.Kind() {
	case dataset.KindNumber:
		f, _ := v.Float()
		return f
	case dataset.KindText:
		s, _ := v.Str()
		return s
	default:
		return nil
	}
}

func fromSQL(v any) dataset.Value {
	switch x := v.(type) {
	case nil:
		return dataset.Null()
	case int64:
		return dataset.Number(float64(x))
	case float64:
		return dataset.Number(x)
	case string:
		return dataset.Text(x)
	case []byte:
		return dataset.Text(string(x))
	case bool:
		if x {
			return dataset.Number(1)
		}
		return dataset.Number(0)
	default:
		return dataset.Text(fmt.Sprint(x))
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
