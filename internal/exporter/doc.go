// Package exporter writes persisted pipeline tables to files.
//
// CSV output carries a header row; numbers are written in their shortest
// form and null cells are left empty, so a file written here parses back
// to the same table. XLSX output puts the table on a single sheet named
// after it.
//
// Example usage:
//
//	n, err := exporter.ExportTable(ctx, "data/lead_scoring.db", "model_input", "data/exports/model_input.csv", nil)
package exporter
