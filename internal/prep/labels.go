package prep

import "github.com/KaramelBytes/tabula-cli/internal/dataset"

// LabelMap is a bijection between target values and contiguous class
// indices, ordered by first occurrence.
type LabelMap struct {
	ix *orderedIndex
}

// NewLabelMap builds a label map from class names in index order.
// Duplicates keep their first position.
func NewLabelMap(names ...string) *LabelMap {
	return &LabelMap{ix: newOrderedIndex(names...)}
}

// BuildLabelMap scans rows in order and assigns each distinct rendering of
// the target cell the next index. A missing target renders as "".
func BuildLabelMap(rows []dataset.Row, target string) *LabelMap {
	lm := NewLabelMap()
	for _, r := range rows {
		lm.ix.add(r.Get(target).String())
	}
	return lm
}

// Len is the number of classes.
func (m *LabelMap) Len() int {
	if m == nil || m.ix == nil {
		return 0
	}
	return m.ix.len()
}

// Index returns the class index for name.
func (m *LabelMap) Index(name string) (int, bool) {
	if m == nil || m.ix == nil {
		return 0, false
	}
	return m.ix.lookup(name)
}

// Name returns the class name for index i, or "" when out of range.
func (m *LabelMap) Name(i int) string {
	if i < 0 || i >= m.Len() {
		return ""
	}
	return m.ix.values[i]
}

// Names returns class names in index order.
func (m *LabelMap) Names() []string {
	if m.Len() == 0 {
		return nil
	}
	return m.ix.list()
}
