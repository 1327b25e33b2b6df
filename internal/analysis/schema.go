package analysis

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/tabula-cli/internal/dataset"
)

// Kind is the encoding family of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
)

// NumericThreshold is the share of finite numbers among non-null values a
// column must exceed to be numeric.
const NumericThreshold = 0.7

// Column describes one inferred column.
type Column struct {
	Name    string `json:"name" yaml:"name"`
	Kind    Kind   `json:"kind" yaml:"kind"`
	Unique  int    `json:"unique" yaml:"unique"`
	NonNull int    `json:"non_null" yaml:"non_null"`
}

// Schema is the ordered, immutable result of InferSchema.
type Schema struct {
	cols  []Column
	index map[string]int
}

// NewSchema builds a schema from explicit columns, in order.
func NewSchema(cols ...Column) *Schema {
	s := &Schema{cols: make([]Column, 0, len(cols)), index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if _, dup := s.index[c.Name]; dup {
			continue
		}
		s.index[c.Name] = len(s.cols)
		s.cols = append(s.cols, c)
	}
	return s
}

// InferSchema classifies every column of tbl. The table's column list is
// the universe; rows lacking a column count it as missing. A column with no
// non-null values is categorical. An empty table yields an empty schema.
func InferSchema(tbl *dataset.Table) *Schema {
	if tbl == nil {
		return NewSchema()
	}
	cols := make([]Column, 0, len(tbl.Columns))
	for _, name := range tbl.Columns {
		var nonNull, numeric int
		uniq := make(map[string]struct{})
		for _, r := range tbl.Rows {
			v := r.Get(name)
			if v.IsMissing() {
				continue
			}
			nonNull++
			if _, ok := v.Finite(); ok {
				numeric++
			}
			uniq[v.String()] = struct{}{}
		}
		kind := KindCategorical
		if nonNull > 0 && float64(numeric)/float64(nonNull) > NumericThreshold {
			kind = KindNumeric
		}
		cols = append(cols, Column{Name: name, Kind: kind, Unique: len(uniq), NonNull: nonNull})
	}
	return NewSchema(cols...)
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.cols)
}

// Columns returns column names in table order.
func (s *Schema) Columns() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.cols))
	for i, c := range s.cols {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by name.
func (s *Schema) Column(name string) (Column, bool) {
	if s == nil {
		return Column{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.cols[i], true
}

// Kind returns the kind of name, or "" when unknown.
func (s *Schema) Kind(name string) Kind {
	c, _ := s.Column(name)
	return c.Kind
}

// Counts returns how many columns are numeric and categorical.
func (s *Schema) Counts() (numeric, categorical int) {
	if s == nil {
		return 0, 0
	}
	for _, c := range s.cols {
		if c.Kind == KindNumeric {
			numeric++
		} else {
			categorical++
		}
	}
	return numeric, categorical
}

// Markdown renders the schema as a compact list.
func (s *Schema) Markdown() string {
	var b strings.Builder
	num, cat := s.Counts()
	b.WriteString("[SCHEMA]\n")
	b.WriteString(fmt.Sprintf("Columns: %d (numeric %d, categorical %d)\n", s.Len(), num, cat))
	if s == nil {
		return b.String()
	}
	for _, c := range s.cols {
		b.WriteString(fmt.Sprintf("- %s: %s (unique %d)\n", safeName(c.Name), c.Kind, c.Unique))
	}
	return b.String()
}
