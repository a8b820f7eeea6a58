package exporter

import (
	"strconv"

	"leadscoring/internal/dataset"
)

// formatValue renders a cell for CSV output
func formatValue(v dataset.Value) string {
	switch v.Kind() {
	case dataset.KindNull:
		return ""
	case dataset.KindNumber:
		f, _ := v.Float()
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		s, _ := v.Str()
		return s
	}
}

// cellValue renders a cell for a spreadsheet. Nulls stay blank.
func cellValue(v dataset.Value) interface{} {
	switch v.Kind() {
	case dataset.KindNull:
		return nil
	case dataset.KindNumber:
		f, _ := v.Float()
		return f
	default:
		s, _ := v.Str()
		return s
	}
}
