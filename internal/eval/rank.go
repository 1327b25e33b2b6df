package eval

import (
	"fmt"
	"sort"
	"strings"
)

// Ranked is one class with its predicted probability.
type Ranked struct {
	Class       string  `json:"class"`
	Probability float64 `json:"probability"`
}

// Rank pairs probabilities with class names, highest first. Ties keep
// class order.
func Rank(probs []float64, names []string) []Ranked {
	out := make([]Ranked, len(probs))
	for i, p := range probs {
		name := fmt.Sprintf("#%d", i)
		if i < len(names) {
			name = names[i]
		}
		out[i] = Ranked{Class: name, Probability: p}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	return out
}

// Example is one evaluated test row.
type Example struct {
	True        string  `json:"true"`
	Predicted   string  `json:"predicted"`
	Probability float64 `json:"probability"`
}

// DefaultExamples is the number of rows shown in an examples table.
const DefaultExamples = 15

// Examples lists the first k rows of a test batch with the predicted class
// and its probability.
func Examples(trueIdx []int, probs [][]float64, names []string, k int) []Example {
	if k <= 0 || k > len(probs) {
		k = len(probs)
	}
	out := make([]Example, 0, k)
	for i := 0; i < k && i < len(trueIdx); i++ {
		p := Argmax(probs[i])
		ex := Example{True: name(names, trueIdx[i]), Predicted: name(names, p)}
		if p >= 0 {
			ex.Probability = probs[i][p]
		}
		out = append(out, ex)
	}
	return out
}

func name(names []string, i int) string {
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("#%d", i)
}

// ExamplesMarkdown renders an examples table.
func ExamplesMarkdown(ex []Example) string {
	var b strings.Builder
	b.WriteString("| # | true | predicted | prob |\n|---:|---|---|---:|\n")
	for i, e := range ex {
		mark := ""
		if e.True != e.Predicted {
			mark = " ✗"
		}
		fmt.Fprintf(&b, "| %d | %s | %s%s | %.3f |\n", i+1, e.True, e.Predicted, mark, e.Probability)
	}
	return b.String()
}

// RankMarkdown renders ranked classes as a list with percentages.
func RankMarkdown(r []Ranked) string {
	var b strings.Builder
	for _, x := range r {
		fmt.Fprintf(&b, "- %s: %.1f%%\n", x.Class, 100*x.Probability)
	}
	return b.String()
}
