package exporter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"leadscoring/internal/dataset"
	"leadscoring/internal/store"
)

// ErrUnsupportedFormat is returned for an output path that is neither
// .csv nor .xlsx
var ErrUnsupportedFormat = errors.New("unsupported export format")

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteCSV writes d with a header row to w
func WriteCSV(w io.Writer, d *dataset.Dataset, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(d.Columns()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	record := make([]string, d.Width())
	for i := 0; i < d.Len(); i++ {
		for c, v := range d.Row(i) {
			record[c] = formatValue(v)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes d to a workbook at path with one sheet named sheet
func WriteXLSX(path, sheet string, d *dataset.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, d.Width())
	for c, name := range d.Columns() {
		header[c] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for i := 0; i < d.Len(); i++ {
		row := make([]interface{}, d.Width())
		for c, v := range d.Row(i) {
			row[c] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return f.SaveAs(path)
}

// WriteFile writes d to path, choosing the format from the extension
func WriteFile(path, name string, d *dataset.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create file: %w", err)
		}
		if err := WriteCSV(file, d, WriteOptions{}); err != nil {
			file.Close()
			return err
		}
		return file.Close()
	case ".xlsx":
		return WriteXLSX(path, name, d)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ExportTable reads table from the database at dbPath and writes it to
// outPath. The database must already exist. It returns the row count.
func ExportTable(ctx context.Context, dbPath, table, outPath string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := store.OpenExisting(ctx, dbPath, logger)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	d, err := s.ReadTable(ctx, table)
	if err != nil {
		return 0, err
	}
	if err := WriteFile(outPath, table, d); err != nil {
		return 0, err
	}

	logger.InfoContext(ctx, "table_exported",
		slog.String("table", table),
		slog.String("path", outPath),
		slog.Int("rows", d.Len()),
		slog.Int("columns", d.Width()))
	return d.Len(), nil
}
