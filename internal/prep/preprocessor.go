package prep

import (
	"fmt"

	"github.com/KaramelBytes/tabula-cli/internal/analysis"
	"github.com/KaramelBytes/tabula-cli/internal/dataset"
)

const (
	// MaxCategories caps a categorical vocabulary. Later categories encode
	// as an all-zero segment.
	MaxCategories = 200
	// Epsilon keeps min-max scaling finite when min == max.
	Epsilon = 1e-9
)

// Range holds the min-max statistics of a numeric feature.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Preprocessor holds frozen encoding rules for an ordered feature list.
// It is safe for concurrent use once built.
type Preprocessor struct {
	features []string
	kinds    []analysis.Kind
	vocab    map[string]*orderedIndex
	ranges   map[string]Range
	dim      int
}

// NewPreprocessor derives encoding rules from rows for features, using the
// column kinds in schema.
func NewPreprocessor(rows []dataset.Row, features []string, schema *analysis.Schema) (*Preprocessor, error) {
	if len(features) == 0 {
		return nil, invalidf("no usable feature columns")
	}
	p := &Preprocessor{
		features: append([]string(nil), features...),
		kinds:    make([]analysis.Kind, len(features)),
		vocab:    map[string]*orderedIndex{},
		ranges:   map[string]Range{},
	}
	for i, c := range features {
		col, ok := schema.Column(c)
		if !ok {
			return nil, invalidf("feature column %q not in schema", c)
		}
		if _, dup := p.vocab[c]; dup {
			return nil, invalidf("feature column %q listed twice", c)
		}
		if _, dup := p.ranges[c]; dup {
			return nil, invalidf("feature column %q listed twice", c)
		}
		p.kinds[i] = col.Kind
		if col.Kind == analysis.KindNumeric {
			p.ranges[c] = numericRange(rows, c)
		} else {
			p.vocab[c] = vocabulary(rows, c)
		}
	}
	p.computeDim()
	if p.dim == 0 {
		return nil, invalidf("no usable feature columns (every feature encodes to zero width)")
	}
	return p, nil
}

func vocabulary(rows []dataset.Row, col string) *orderedIndex {
	ix := newOrderedIndex()
	for _, r := range rows {
		if ix.len() >= MaxCategories {
			break
		}
		v := r.Get(col)
		if v.IsMissing() {
			continue
		}
		if s := v.String(); s != "" {
			ix.add(s)
		}
	}
	return ix
}

// numericRange falls back to [0, 1] when the column has no finite values.
func numericRange(rows []dataset.Row, col string) Range {
	seen := false
	var r Range
	for _, row := range rows {
		x, ok := row.Get(col).Float()
		if !ok {
			continue
		}
		if !seen {
			r = Range{Min: x, Max: x}
			seen = true
			continue
		}
		if x < r.Min {
			r.Min = x
		}
		if x > r.Max {
			r.Max = x
		}
	}
	if !seen {
		return Range{Min: 0, Max: 1}
	}
	return r
}

func (p *Preprocessor) computeDim() {
	p.dim = 0
	for i, c := range p.features {
		if p.kinds[i] == analysis.KindNumeric {
			p.dim++
		} else {
			p.dim += p.vocab[c].len()
		}
	}
}

// Dim is the length of every encoded feature vector.
func (p *Preprocessor) Dim() int { return p.dim }

// Features returns the feature columns in encoding order.
func (p *Preprocessor) Features() []string { return append([]string(nil), p.features...) }

// Kind returns the encoding kind of a feature column, or "" when unknown.
func (p *Preprocessor) Kind(col string) analysis.Kind {
	for i, c := range p.features {
		if c == col {
			return p.kinds[i]
		}
	}
	return ""
}

// Vocabulary returns the categories of a categorical feature in slot order.
func (p *Preprocessor) Vocabulary(col string) []string {
	ix, ok := p.vocab[col]
	if !ok {
		return nil
	}
	return ix.list()
}

// Range returns the min-max statistics of a numeric feature.
func (p *Preprocessor) Range(col string) (Range, bool) {
	r, ok := p.ranges[col]
	return r, ok
}

// Transform encodes one row. Categorical features become one-hot segments
// (all zero when the value is missing or out of vocabulary); numeric
// features become (x-min)/(max-min+Epsilon), or 0 when x is not a finite
// number. Values outside the observed range are not clamped.
func (p *Preprocessor) Transform(row dataset.Row) []float64 {
	out := make([]float64, p.dim)
	p.transformInto(out, row)
	return out
}

func (p *Preprocessor) transformInto(out []float64, row dataset.Row) {
	k := 0
	for i, c := range p.features {
		v := row.Get(c)
		if p.kinds[i] == analysis.KindNumeric {
			r := p.ranges[c]
			if x, ok := v.Float(); ok {
				out[k] = (x - r.Min) / (r.Max - r.Min + Epsilon)
			}
			k++
			continue
		}
		ix := p.vocab[c]
		if !v.IsMissing() {
			if j, ok := ix.lookup(v.String()); ok {
				out[k+j] = 1
			}
		}
		k += ix.len()
	}
}

// TransformAll encodes rows into a [len(rows), Dim()] matrix.
func (p *Preprocessor) TransformAll(rows []dataset.Row) *Matrix {
	data := make([]float64, len(rows)*p.dim)
	for i, r := range rows {
		p.transformInto(data[i*p.dim:(i+1)*p.dim], r)
	}
	return NewMatrix(len(rows), p.dim, data)
}

// FeatureRule is the serialized form of one feature's encoding.
type FeatureRule struct {
	Name       string        `json:"name" yaml:"name"`
	Kind       analysis.Kind `json:"kind" yaml:"kind"`
	Vocabulary []string      `json:"vocabulary,omitempty" yaml:"vocabulary,omitempty"`
	Range      *Range        `json:"range,omitempty" yaml:"range,omitempty"`
}

// Rules is the serialized form of a Preprocessor.
type Rules struct {
	Features []FeatureRule `json:"features" yaml:"features"`
}

// Rules exports the frozen encoding rules.
func (p *Preprocessor) Rules() Rules {
	out := Rules{Features: make([]FeatureRule, len(p.features))}
	for i, c := range p.features {
		fr := FeatureRule{Name: c, Kind: p.kinds[i]}
		if p.kinds[i] == analysis.KindNumeric {
			r := p.ranges[c]
			fr.Range = &r
		} else {
			fr.Vocabulary = p.vocab[c].list()
		}
		out.Features[i] = fr
	}
	return out
}

// FromRules rebuilds a Preprocessor from exported rules without looking at
// any data.
func FromRules(r Rules) (*Preprocessor, error) {
	if len(r.Features) == 0 {
		return nil, invalidf("no usable feature columns")
	}
	p := &Preprocessor{
		features: make([]string, len(r.Features)),
		kinds:    make([]analysis.Kind, len(r.Features)),
		vocab:    map[string]*orderedIndex{},
		ranges:   map[string]Range{},
	}
	seen := map[string]bool{}
	for i, fr := range r.Features {
		if seen[fr.Name] {
			return nil, invalidf("feature column %q listed twice", fr.Name)
		}
		seen[fr.Name] = true
		p.features[i] = fr.Name
		p.kinds[i] = fr.Kind
		switch fr.Kind {
		case analysis.KindNumeric:
			if fr.Range == nil {
				return nil, invalidf("numeric feature %q has no range", fr.Name)
			}
			p.ranges[fr.Name] = *fr.Range
		case analysis.KindCategorical:
			ix := newOrderedIndex(fr.Vocabulary...)
			if ix.len() != len(fr.Vocabulary) {
				return nil, invalidf("vocabulary of %q has duplicates", fr.Name)
			}
			p.vocab[fr.Name] = ix
		default:
			return nil, invalidf("feature %q has unknown kind %q", fr.Name, fr.Kind)
		}
	}
	p.computeDim()
	if p.dim == 0 {
		return nil, invalidf("no usable feature columns (every feature encodes to zero width)")
	}
	return p, nil
}

// String summarizes the encoding layout.
func (p *Preprocessor) String() string {
	return fmt.Sprintf("preprocessor(features=%d, dim=%d)", len(p.features), p.dim)
}
