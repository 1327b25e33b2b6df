package dataset

import (
	"math"
	"strconv"
	"strings"
)

// Kind tags the content of a single cell.
type Kind uint8

const (
	Missing Kind = iota
	Number
	Text
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case Text:
		return "text"
	default:
		return "missing"
	}
}

// Value is one table cell: missing, a number, or text.
type Value struct {
	kind Kind
	num  float64
	text string
}

// Null returns a missing cell.
func Null() Value { return Value{} }

// Num returns a numeric cell.
func Num(f float64) Value { return Value{kind: Number, num: f} }

// Str returns a text cell. An empty string is still text, not missing.
func Str(s string) Value { return Value{kind: Text, text: s} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsMissing() bool { return v.kind == Missing }

// Finite reports the numeric value of a Number cell when it is finite.
func (v Value) Finite() (float64, bool) {
	if v.kind != Number || math.IsNaN(v.num) || math.IsInf(v.num, 0) {
		return 0, false
	}
	return v.num, true
}

// Float converts the cell to a finite float. Text is parsed leniently
// (surrounding spaces ignored); anything else reports false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case Number:
		return v.Finite()
	case Text:
		return parseNumeric(strings.TrimSpace(v.text), Options{})
	}
	return 0, false
}

// String renders the cell the way it is compared during encoding:
// shortest round-trip decimal for numbers, raw text, "" for missing.
func (v Value) String() string {
	switch v.kind {
	case Number:
		switch {
		case math.IsNaN(v.num):
			return "NaN"
		case math.IsInf(v.num, 1):
			return "Infinity"
		case math.IsInf(v.num, -1):
			return "-Infinity"
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case Text:
		return v.text
	}
	return ""
}

// Row maps column names to cells. Absent columns read as missing.
type Row map[string]Value

// Get returns the cell for col, or a missing cell.
func (r Row) Get(col string) Value {
	if r == nil {
		return Null()
	}
	return r[col]
}

// Empty reports whether every cell is missing or blank text.
func (r Row) Empty() bool {
	for _, v := range r {
		switch v.kind {
		case Number:
			return false
		case Text:
			if v.text != "" {
				return false
			}
		}
	}
	return true
}

// Table is an ordered set of columns and the rows loaded for them.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}
