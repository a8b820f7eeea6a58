package dataprocessing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"leadscoring/internal/dataset"
)

var (
	// ErrEmptyFile is returned for a file with no header row
	ErrEmptyFile = errors.New("file is empty")

	// ErrMalformedFile is returned when a file cannot be parsed as a table
	ErrMalformedFile = errors.New("file is malformed")

	// ErrUnsupportedFormat is returned for extensions other than .csv and .xlsx
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// naTokens are the cell spellings read as missing values
var naTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "n/a": true, "NaN": true, "nan": true, "-NaN": true,
	"-nan": true, "null": true, "NULL": true, "#N/A": true, "<NA>": true, "None": true,
}

// ParseFile reads a tabular file into a dataset. The format follows the
// extension: .csv (and .txt) or .xlsx. A missing file yields an error
// matching os.ErrNotExist.
func ParseFile(path string) (*dataset.Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		d, err := ParseCSV(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return d, nil
	case ".xlsx", ".xlsm":
		return parseXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ParseCSV reads comma-separated records. The first record is the header.
func ParseCSV(r io.Reader) (*dataset.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}

	var records [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		records = append(records, rec)
	}
	return buildDataset(header, records)
}

func parseXLSX(path string) (*dataset.Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFile, path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFile, path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	d, err := buildDataset(rows[0], rows[1:])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// buildDataset turns string records into typed cells. A column whose
// non-missing cells all parse as numbers becomes numeric; any other column
// keeps its text. A blank first header cell marks a positional index
// column, which is dropped.
func buildDataset(header []string, records [][]string) (*dataset.Dataset, error) {
	if len(header) == 1 && strings.TrimSpace(header[0]) == "" && len(records) == 0 {
		return nil, ErrEmptyFile
	}

	skipFirst := len(header) > 1 && strings.TrimSpace(header[0]) == ""
	names := uniqueNames(header)
	width := len(header)

	numeric := make([]bool, width)
	for c := range numeric {
		numeric[c] = true
	}
	for i, rec := range records {
		if len(rec) > width {
			return nil, fmt.Errorf("%w: record %d has %d fields, header has %d", ErrMalformedFile, i+2, len(rec), width)
		}
		for c, cell := range rec {
			if !numeric[c] || naTokens[strings.TrimSpace(cell)] {
				continue
			}
			if _, ok := parseNumber(strings.TrimSpace(cell)); !ok {
				numeric[c] = false
			}
		}
	}

	first := 0
	if skipFirst {
		first = 1
	}
	d, err := dataset.New(names[first:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}

	row := make([]dataset.Value, width-first)
	for _, rec := range records {
		for c := first; c < width; c++ {
			row[c-first] = parseCell(rec, c, numeric[c])
		}
		if err := d.Append(row); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
	}
	return d, nil
}

func parseCell(rec []string, c int, numeric bool) dataset.Value {
	if c >= len(rec) {
		return dataset.Null()
	}
	cell := strings.TrimSpace(rec[c])
	if naTokens[cell] {
		return dataset.Null()
	}
	if numeric {
		f, _ := parseNumber(cell)
		return dataset.Number(f)
	}
	return dataset.Text(rec[c])
}

// uniqueNames suffixes repeated header names with .1, .2 and so on
func uniqueNames(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, dup := seen[name]; dup {
			base := name
			for n := seen[base] + 1; ; n++ {
				candidate := fmt.Sprintf("%s.%d", base, n)
				if _, taken := seen[candidate]; !taken {
					seen[base] = n
					name = candidate
					break
				}
			}
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}

// parseNumber accepts plain decimal numbers only. Go literal forms such as
// digit separators (1_0) and hex floats (0x1p4) stay text.
func parseNumber(s string) (float64, bool) {
	if strings.ContainsRune(s, '_') {
		return 0, false
	}
	unsigned := strings.TrimLeft(s, "+-")
	if len(unsigned) > 1 && unsigned[0] == '0' && (unsigned[1] == 'x' || unsigned[1] == 'X') {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
