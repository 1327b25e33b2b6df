// Package eval scores classifier output against true labels.
package eval

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Matrix is a square confusion matrix: [true][predicted] raw counts.
type Matrix [][]int

// ConfusionMatrix tabulates (true, predicted) class index pairs. Both
// sequences must have equal length and hold indices in [0, nClasses);
// anything else is a caller bug and panics.
func ConfusionMatrix(trueIdx, predIdx []int, nClasses int) Matrix {
	if len(trueIdx) != len(predIdx) {
		panic(fmt.Sprintf("eval: length mismatch %d != %d", len(trueIdx), len(predIdx)))
	}
	m := make(Matrix, nClasses)
	for i := range m {
		m[i] = make([]int, nClasses)
	}
	for k, t := range trueIdx {
		m[t][predIdx[k]]++
	}
	return m
}

// Total is the number of tabulated examples.
func (m Matrix) Total() int {
	n := 0
	for _, row := range m {
		for _, c := range row {
			n += c
		}
	}
	return n
}

// Correct is the diagonal sum.
func (m Matrix) Correct() int {
	n := 0
	for i := range m {
		n += m[i][i]
	}
	return n
}

// Accuracy is Correct/Total, or 0 for an empty matrix.
func (m Matrix) Accuracy() float64 {
	t := m.Total()
	if t == 0 {
		return 0
	}
	return float64(m.Correct()) / float64(t)
}

// Argmax returns the index of the largest probability, the first on ties.
// It returns -1 for an empty slice.
func Argmax(probs []float64) int {
	if len(probs) == 0 {
		return -1
	}
	return floats.MaxIdx(probs)
}

// ArgmaxRows applies Argmax to each row.
func ArgmaxRows(probs [][]float64) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		out[i] = Argmax(p)
	}
	return out
}

// Accuracy is the fraction of positions where pred equals want.
func Accuracy(want, pred []int) float64 {
	if len(want) == 0 {
		return 0
	}
	hit := 0
	for i := range want {
		if i < len(pred) && want[i] == pred[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(want))
}

// Markdown renders the matrix with class names; rows are true classes.
func (m Matrix) Markdown(names []string) string {
	var b strings.Builder
	b.WriteString("| true \\ pred |")
	for j := range m {
		fmt.Fprintf(&b, " %s |", cell(names, j))
	}
	b.WriteString("\n|---|")
	for range m {
		b.WriteString("---:|")
	}
	b.WriteString("\n")
	for i, row := range m {
		fmt.Fprintf(&b, "| %s |", cell(names, i))
		for _, c := range row {
			fmt.Fprintf(&b, " %d |", c)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func cell(names []string, i int) string {
	if i < len(names) {
		s := strings.ReplaceAll(names[i], "|", "\\|")
		if s == "" {
			return "(blank)"
		}
		return s
	}
	return fmt.Sprintf("#%d", i)
}
