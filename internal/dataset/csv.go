package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Options controls how tabular sources are read and typed.
type Options struct {
	// Delimiter for CSV. If 0, picked from the file extension (tab for .tsv, else comma).
	Delimiter rune
	// MaxRows limits rows kept after empty-row filtering; 0 means unlimited.
	MaxRows int
	// Numeric parsing locale. Zero values mean plain Go float syntax.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// XLSX sheet selection. SheetIndex is 1-based; both empty selects the first sheet.
	SheetName  string
	SheetIndex int
	// HTTPTimeoutSec bounds URL downloads; 0 uses the client default.
	HTTPTimeoutSec int
}

// DefaultOptions returns reasonable defaults for loading datasets.
func DefaultOptions() Options {
	return Options{HTTPTimeoutSec: 60}
}

// ReadCSV reads a header row followed by records and types every cell.
// Rows whose cells are all empty are dropped.
func ReadCSV(r io.Reader, name string, opt Options) (*Table, error) {
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(name)
	}
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{Name: name}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	tbl := &Table{Name: name, Columns: normalizeHeader(header)}
	line := 1
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", line+1, err)
		}
		line++
		row := buildRow(tbl.Columns, rec, opt)
		if row.Empty() {
			continue
		}
		tbl.Rows = append(tbl.Rows, row)
		if opt.MaxRows > 0 && len(tbl.Rows) >= opt.MaxRows {
			break
		}
	}
	return tbl, nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, filepath.Base(path), opt)
}

func buildRow(columns []string, rec []string, opt Options) Row {
	row := make(Row, len(columns))
	for i, col := range columns {
		if i >= len(rec) {
			row[col] = Null()
			continue
		}
		row[col] = Coerce(rec[i], opt)
	}
	return row
}

// Coerce types a raw cell: blank is missing, a finite number is Number,
// anything else is Text.
func Coerce(raw string, opt Options) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Null()
	}
	if f, ok := parseNumeric(s, opt); ok {
		return Num(f)
	}
	return Str(s)
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

func sniffDelimiter(name string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	return ','
}

func parseNumeric(s string, opt Options) (float64, bool) {
	raw := strings.ReplaceAll(s, "\u00A0", " ")
	raw = strings.TrimSpace(raw)
	dec, thou := opt.DecimalSeparator, opt.ThousandsSeparator
	if thou != 0 && thou != dec {
		raw = strings.ReplaceAll(raw, string(thou), "")
	}
	if dec != 0 && dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	if !plainNumber(raw) {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// plainNumber rejects spellings ParseFloat accepts but a spreadsheet would
// keep as text: hex floats, "Inf", "NaN", underscores.
func plainNumber(s string) bool {
	if s == "" {
		return false
	}
	digits := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = true
		case c == '+' || c == '-' || c == '.' || c == 'e' || c == 'E':
		default:
			return false
		}
	}
	return digits
}
