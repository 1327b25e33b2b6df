package prep

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/KaramelBytes/tabula-cli/internal/analysis"
	"github.com/KaramelBytes/tabula-cli/internal/dataset"
)

// Split fraction bounds.
const (
	DefaultSplit = 0.8
	MinSplit     = 0.5
	MaxSplit     = 0.95
)

// ClassWeightMode selects how per-class training weights are derived.
type ClassWeightMode string

const (
	ClassWeightAuto ClassWeightMode = "auto"
	ClassWeightNone ClassWeightMode = "none"
)

// ParseClassWeightMode accepts "auto", "none" and the aliases "off" and
// "disabled". Empty means auto.
func ParseClassWeightMode(s string) (ClassWeightMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ClassWeightAuto, nil
	case "none", "off", "disabled":
		return ClassWeightNone, nil
	}
	return "", invalidf("unknown class weight mode %q (want auto or none)", s)
}

// ClampSplit maps a train fraction into [MinSplit, MaxSplit]. NaN and
// non-positive values fall back to DefaultSplit.
func ClampSplit(f float64) float64 {
	if math.IsNaN(f) || f <= 0 {
		f = DefaultSplit
	}
	return math.Min(MaxSplit, math.Max(MinSplit, f))
}

// Options configures Build.
type Options struct {
	Target        string
	Features      []string
	SplitFraction float64
	ClassWeights  ClassWeightMode
	// Rand drives the shuffle. Nil uses the process-wide source.
	Rand *rand.Rand
}

// Dataset is the output of a prepare step: split matrices plus everything
// needed to encode new rows and decode predictions.
type Dataset struct {
	XTrain, YTrain *Matrix
	XTest, YTest   *Matrix
	// Class indices per row, parallel to the label matrices.
	TrainClasses []int
	TestClasses  []int
	// Positions of the partitions in the input rows, in shuffled order.
	TrainIndex []int
	TestIndex  []int
	// Test rows in shuffled order, for example tables.
	TestRows []dataset.Row

	InputDim int
	NClasses int
	Split    float64
	Target   string
	Features []string

	Labels *LabelMap
	// ClassWeights is nil unless the mode is auto.
	ClassWeights []float64
	Pre          *Preprocessor
}

// Build encodes rows into shuffled train/test matrices.
func Build(rows []dataset.Row, schema *analysis.Schema, opt Options) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, invalidf("dataset has no rows")
	}
	if opt.Target == "" {
		return nil, invalidf("no target column selected")
	}
	if _, ok := schema.Column(opt.Target); !ok {
		return nil, invalidf("target column %q not in schema", opt.Target)
	}
	for _, f := range opt.Features {
		if f == opt.Target {
			return nil, invalidf("target column %q is also a feature", f)
		}
	}
	mode := opt.ClassWeights
	if mode == "" {
		mode = ClassWeightAuto
	}
	if mode != ClassWeightAuto && mode != ClassWeightNone {
		return nil, invalidf("unknown class weight mode %q", mode)
	}

	pre, err := NewPreprocessor(rows, opt.Features, schema)
	if err != nil {
		return nil, err
	}
	labels := BuildLabelMap(rows, opt.Target)

	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	swap := func(i, j int) { order[i], order[j] = order[j], order[i] }
	if opt.Rand != nil {
		opt.Rand.Shuffle(len(order), swap)
	} else {
		rand.Shuffle(len(order), swap)
	}

	frac := ClampSplit(opt.SplitFraction)
	cut := int(math.Floor(float64(len(order)) * frac))
	ds, err := Rebuild(rows, pre, labels, opt.Target, order[:cut], order[cut:])
	if err != nil {
		return nil, err
	}
	ds.Split = frac
	if mode == ClassWeightAuto {
		ds.ClassWeights = ClassWeights(ds.TrainClasses, ds.NClasses)
	}
	return ds, nil
}

// Rebuild encodes a saved partition of rows with frozen rules and labels.
// trainIdx and testIdx index into rows. It fails when an index is out of
// range or a target value is unknown to labels, which means the data
// changed since the partition was made.
func Rebuild(rows []dataset.Row, pre *Preprocessor, labels *LabelMap, target string, trainIdx, testIdx []int) (*Dataset, error) {
	train, err := subset(rows, trainIdx)
	if err != nil {
		return nil, err
	}
	test, err := subset(rows, testIdx)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{
		XTrain:     pre.TransformAll(train),
		XTest:      pre.TransformAll(test),
		TrainIndex: append([]int(nil), trainIdx...),
		TestIndex:  append([]int(nil), testIdx...),
		TestRows:   test,
		InputDim:   pre.Dim(),
		NClasses:   labels.Len(),
		Target:     target,
		Features:   pre.Features(),
		Labels:     labels,
		Pre:        pre,
	}
	if ds.YTrain, ds.TrainClasses, err = EncodeLabels(train, target, labels); err != nil {
		return nil, err
	}
	if ds.YTest, ds.TestClasses, err = EncodeLabels(test, target, labels); err != nil {
		return nil, err
	}
	return ds, nil
}

func subset(rows []dataset.Row, idx []int) ([]dataset.Row, error) {
	out := make([]dataset.Row, len(idx))
	for i, j := range idx {
		if j < 0 || j >= len(rows) {
			return nil, fmt.Errorf("row index %d out of range for %d rows", j, len(rows))
		}
		out[i] = rows[j]
	}
	return out, nil
}

// EncodeLabels one-hot encodes the target of each row with a frozen label
// map and also returns the class indices.
func EncodeLabels(rows []dataset.Row, target string, labels *LabelMap) (*Matrix, []int, error) {
	n := labels.Len()
	data := make([]float64, len(rows)*n)
	classes := make([]int, len(rows))
	for i, r := range rows {
		name := r.Get(target).String()
		c, ok := labels.Index(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown class %q in column %q", name, target)
		}
		classes[i] = c
		data[i*n+c] = 1
	}
	return NewMatrix(len(rows), n, data), classes, nil
}

// ClassWeights returns max_count/count per class. Classes with no
// occurrences get exactly 1.
func ClassWeights(classes []int, nClasses int) []float64 {
	counts := make([]int, nClasses)
	for _, c := range classes {
		counts[c]++
	}
	maxc := 0
	for _, c := range counts {
		if c > maxc {
			maxc = c
		}
	}
	w := make([]float64, nClasses)
	for i, c := range counts {
		if c == 0 {
			w[i] = 1
			continue
		}
		w[i] = float64(maxc) / float64(c)
	}
	return w
}

// Summary is a one-line description of the split.
func (d *Dataset) Summary() string {
	tr, _ := d.XTrain.Dims()
	te, _ := d.XTest.Dims()
	return fmt.Sprintf("train=%d test=%d inputDim=%d classes=%d", tr, te, d.InputDim, d.NClasses)
}
