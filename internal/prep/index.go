package prep

// orderedIndex is an insertion-ordered set of strings with O(1) lookup.
// Vocabularies and label maps depend on first-seen order, which a plain
// map cannot provide.
type orderedIndex struct {
	values []string
	pos    map[string]int
}

func newOrderedIndex(values ...string) *orderedIndex {
	ix := &orderedIndex{pos: make(map[string]int, len(values))}
	for _, v := range values {
		ix.add(v)
	}
	return ix
}

// add appends v if unseen and returns its position.
func (ix *orderedIndex) add(v string) int {
	if i, ok := ix.pos[v]; ok {
		return i
	}
	ix.pos[v] = len(ix.values)
	ix.values = append(ix.values, v)
	return len(ix.values) - 1
}

func (ix *orderedIndex) lookup(v string) (int, bool) {
	i, ok := ix.pos[v]
	return i, ok
}

func (ix *orderedIndex) len() int { return len(ix.values) }

func (ix *orderedIndex) list() []string {
	return append([]string(nil), ix.values...)
}
