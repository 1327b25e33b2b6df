package prep

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/KaramelBytes/tabula-cli/internal/analysis"
	"github.com/KaramelBytes/tabula-cli/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioRows() []dataset.Row {
	return []dataset.Row{
		{"a": dataset.Num(1), "b": dataset.Str("x"), "t": dataset.Str("yes")},
		{"a": dataset.Num(2), "b": dataset.Str("y"), "t": dataset.Str("no")},
		{"a": dataset.Num(3), "b": dataset.Str("x"), "t": dataset.Str("yes")},
	}
}

func schemaOf(rows []dataset.Row, cols ...string) *analysis.Schema {
	return analysis.InferSchema(&dataset.Table{Columns: cols, Rows: rows})
}

func TestScenarioEncoding(t *testing.T) {
	rows := scenarioRows()
	schema := schemaOf(rows, "a", "b", "t")

	pre, err := NewPreprocessor(rows, []string{"a", "b"}, schema)
	require.NoError(t, err)
	assert.Equal(t, 3, pre.Dim())
	assert.Equal(t, []string{"x", "y"}, pre.Vocabulary("b"))
	r, ok := pre.Range("a")
	require.True(t, ok)
	assert.Equal(t, Range{Min: 1, Max: 3}, r)

	v := pre.Transform(dataset.Row{"a": dataset.Num(2), "b": dataset.Str("x")})
	require.Len(t, v, 3)
	assert.InDelta(t, 0.5, v[0], 1e-6)
	assert.Equal(t, []float64{1, 0}, v[1:])

	labels := BuildLabelMap(rows, "t")
	idx, ok := labels.Index("yes")
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	idx, _ = labels.Index("no")
	assert.Equal(t, 1, idx)
}

func TestTransformDeterministicAndShaped(t *testing.T) {
	rows := scenarioRows()
	pre, err := NewPreprocessor(rows, []string{"b", "a"}, schemaOf(rows, "a", "b", "t"))
	require.NoError(t, err)

	probes := []dataset.Row{
		{"a": dataset.Num(2), "b": dataset.Str("y")},
		{},
		{"a": dataset.Str("garbage"), "b": dataset.Str("unseen")},
		{"a": dataset.Num(math.Inf(1)), "b": dataset.Num(7)},
		{"a": dataset.Str(" 2.5 ")},
	}
	for i, row := range probes {
		first := pre.Transform(row)
		assert.Equal(t, first, pre.Transform(row), "probe %d", i)
		assert.Len(t, first, pre.Dim(), "probe %d", i)

		// categorical segment comes first for this feature order
		sum := first[0] + first[1]
		assert.Contains(t, []float64{0, 1}, sum, "probe %d", i)
	}

	assert.Equal(t, []float64{0, 0, 0}, pre.Transform(dataset.Row{}))
	assert.Equal(t, []float64{0, 0, 0}, pre.Transform(probes[2]))
	assert.InDelta(t, 0.75, pre.Transform(probes[4])[2], 1e-6)
}

func TestNumericRangeNotClamped(t *testing.T) {
	rows := []dataset.Row{{"n": dataset.Num(10)}, {"n": dataset.Num(20)}, {"n": dataset.Null()}}
	pre, err := NewPreprocessor(rows, []string{"n"}, schemaOf(rows, "n"))
	require.NoError(t, err)

	for _, x := range []float64{10, 12.5, 15, 20} {
		v := pre.Transform(dataset.Row{"n": dataset.Num(x)})[0]
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.InDelta(t, 2.0, pre.Transform(dataset.Row{"n": dataset.Num(30)})[0], 1e-6)
	assert.InDelta(t, -1.0, pre.Transform(dataset.Row{"n": dataset.Num(0)})[0], 1e-6)
}

func TestNumericRangeFallbacks(t *testing.T) {
	schema := analysis.NewSchema(analysis.Column{Name: "n", Kind: analysis.KindNumeric})

	pre, err := NewPreprocessor([]dataset.Row{{}, {"n": dataset.Str("x")}}, []string{"n"}, schema)
	require.NoError(t, err)
	r, _ := pre.Range("n")
	assert.Equal(t, Range{Min: 0, Max: 1}, r)
	assert.InDelta(t, 0.5, pre.Transform(dataset.Row{"n": dataset.Num(0.5)})[0], 1e-6)

	// min == max stays finite
	pre, err = NewPreprocessor([]dataset.Row{{"n": dataset.Num(4)}, {"n": dataset.Num(4)}}, []string{"n"}, schema)
	require.NoError(t, err)
	v := pre.Transform(dataset.Row{"n": dataset.Num(4)})[0]
	assert.Equal(t, 0.0, v)
	assert.False(t, math.IsInf(pre.Transform(dataset.Row{"n": dataset.Num(5)})[0], 0))
}

func TestVocabularyCapAndBlanks(t *testing.T) {
	var rows []dataset.Row
	rows = append(rows, dataset.Row{"c": dataset.Str("")}, dataset.Row{"c": dataset.Null()})
	for i := 0; i < MaxCategories+50; i++ {
		rows = append(rows, dataset.Row{"c": dataset.Str(fmt.Sprintf("v%03d", i))})
	}
	pre, err := NewPreprocessor(rows, []string{"c"}, schemaOf(rows, "c"))
	require.NoError(t, err)

	vocab := pre.Vocabulary("c")
	require.Len(t, vocab, MaxCategories)
	assert.Equal(t, "v000", vocab[0])
	assert.Equal(t, "v199", vocab[MaxCategories-1])
	assert.NotContains(t, vocab, "")

	// past the cap encodes as unknown
	v := pre.Transform(dataset.Row{"c": dataset.Str("v220")})
	assert.Equal(t, make([]float64, MaxCategories), v)
}

func TestCategoricalNumbersMatchByRendering(t *testing.T) {
	rows := []dataset.Row{{"c": dataset.Num(1)}, {"c": dataset.Str("a")}, {"c": dataset.Str("b")}}
	pre, err := NewPreprocessor(rows, []string{"c"}, schemaOf(rows, "c"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "a", "b"}, pre.Vocabulary("c"))
	assert.Equal(t, []float64{1, 0, 0}, pre.Transform(dataset.Row{"c": dataset.Str("1")}))
}

func TestPreprocessorErrors(t *testing.T) {
	rows := scenarioRows()
	schema := schemaOf(rows, "a", "b", "t")

	_, err := NewPreprocessor(rows, nil, schema)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "no usable feature columns")

	_, err = NewPreprocessor(rows, []string{"zzz"}, schema)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewPreprocessor(rows, []string{"a", "a"}, schema)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPreprocessorRejectsZeroWidth(t *testing.T) {
	rows := scenarioRows()
	for _, r := range rows {
		r["note"] = dataset.Str("")
	}
	schema := schemaOf(rows, "a", "b", "note", "empty", "t")

	_, err := NewPreprocessor(rows, []string{"note", "empty"}, schema)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "zero width")

	pre, err := NewPreprocessor(rows, []string{"note", "a"}, schema)
	require.NoError(t, err)
	assert.Equal(t, 1, pre.Dim())

	_, err = FromRules(Rules{Features: []FeatureRule{{Name: "note", Kind: analysis.KindCategorical}}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRulesRoundTrip(t *testing.T) {
	rows := scenarioRows()
	pre, err := NewPreprocessor(rows, []string{"a", "b"}, schemaOf(rows, "a", "b", "t"))
	require.NoError(t, err)

	raw, err := json.Marshal(pre.Rules())
	require.NoError(t, err)
	var rules Rules
	require.NoError(t, json.Unmarshal(raw, &rules))
	back, err := FromRules(rules)
	require.NoError(t, err)

	assert.Equal(t, pre.Dim(), back.Dim())
	assert.Equal(t, pre.Features(), back.Features())
	for _, r := range rows {
		assert.Equal(t, pre.Transform(r), back.Transform(r))
	}

	_, err = FromRules(Rules{Features: []FeatureRule{{Name: "n", Kind: analysis.KindNumeric}}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = FromRules(Rules{Features: []FeatureRule{{Name: "c", Kind: "weird"}}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLabelMapBijection(t *testing.T) {
	rows := []dataset.Row{
		{"t": dataset.Str("b")}, {"t": dataset.Str("a")}, {"t": dataset.Str("b")},
		{"t": dataset.Num(3)}, {}, {"t": dataset.Str("c")},
	}
	lm := BuildLabelMap(rows, "t")
	assert.Equal(t, []string{"b", "a", "3", "", "c"}, lm.Names())
	for i := 0; i < lm.Len(); i++ {
		j, ok := lm.Index(lm.Name(i))
		require.True(t, ok)
		assert.Equal(t, i, j)
	}
	assert.Equal(t, "", lm.Name(-1))
	assert.Equal(t, "", lm.Name(lm.Len()))
}

func TestClassWeights(t *testing.T) {
	var classes []int
	for i := 0; i < 8; i++ {
		classes = append(classes, 0)
	}
	classes = append(classes, 1, 1)
	assert.Equal(t, []float64{1, 4}, ClassWeights(classes, 2))

	w := ClassWeights([]int{0, 0, 1}, 3)
	assert.Equal(t, []float64{1, 2, 1}, w)
	for _, x := range w {
		assert.False(t, math.IsNaN(x) || math.IsInf(x, 0))
	}
	assert.Equal(t, []float64{1, 1}, ClassWeights(nil, 2))
}

func TestClampSplit(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.8, 0.8},
		{0.1, 0.5},
		{0.99, 0.95},
		{0, 0.8},
		{-3, 0.8},
		{math.NaN(), 0.8},
		{0.7, 0.7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampSplit(tt.in), "in=%v", tt.in)
	}
}

func TestParseClassWeightMode(t *testing.T) {
	for in, want := range map[string]ClassWeightMode{"": ClassWeightAuto, "AUTO": ClassWeightAuto, "none": ClassWeightNone, "off": ClassWeightNone} {
		got, err := ParseClassWeightMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseClassWeightMode("balanced")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func numberedRows(n int) []dataset.Row {
	rows := make([]dataset.Row, n)
	for i := range rows {
		cls := "neg"
		if i%3 == 0 {
			cls = "pos"
		}
		rows[i] = dataset.Row{
			"id":  dataset.Num(float64(i)),
			"grp": dataset.Str(fmt.Sprintf("g%d", i%4)),
			"y":   dataset.Str(cls),
		}
	}
	return rows
}

func TestBuildSplitCompleteness(t *testing.T) {
	rows := numberedRows(37)
	schema := schemaOf(rows, "id", "grp", "y")
	for _, frac := range []float64{0.5, 0.6, 0.75, 0.8, 0.95} {
		ds, err := Build(rows, schema, Options{Target: "y", Features: []string{"id", "grp"}, SplitFraction: frac})
		require.NoError(t, err)

		tr, cols := ds.XTrain.Dims()
		te, _ := ds.XTest.Dims()
		assert.Equal(t, len(rows), tr+te)
		assert.Equal(t, int(math.Floor(37*frac)), tr)
		assert.Equal(t, ds.InputDim, cols)
		assert.Equal(t, 5, ds.InputDim)
		assert.Equal(t, 2, ds.NClasses)

		// recover ids from the numeric column: id = x * (36 + eps)
		var ids []int
		for _, m := range []*Matrix{ds.XTrain, ds.XTest} {
			n, _ := m.Dims()
			for i := 0; i < n; i++ {
				ids = append(ids, int(math.Round(m.At(i, 0)*(36+Epsilon))))
			}
		}
		sort.Ints(ids)
		for i, id := range ids {
			assert.Equal(t, i, id)
		}
	}
}

func TestBuildLabelRows(t *testing.T) {
	rows := numberedRows(20)
	ds, err := Build(rows, schemaOf(rows, "id", "grp", "y"), Options{
		Target:   "y",
		Features: []string{"grp"},
		Rand:     rand.New(rand.NewSource(7)),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pos", "neg"}, ds.Labels.Names())

	check := func(y *Matrix, classes []int) {
		n, c := y.Dims()
		require.Equal(t, ds.NClasses, c)
		require.Len(t, classes, n)
		for i := 0; i < n; i++ {
			row := y.Row(i)
			sum := 0.0
			for _, v := range row {
				sum += v
			}
			assert.Equal(t, 1.0, sum)
			assert.Equal(t, 1.0, row[classes[i]])
		}
	}
	check(ds.YTrain, ds.TrainClasses)
	check(ds.YTest, ds.TestClasses)
	assert.Len(t, ds.TestRows, len(ds.TestClasses))
	require.Len(t, ds.ClassWeights, 2)
	assert.Equal(t, 1.0, math.Min(ds.ClassWeights[0], ds.ClassWeights[1]))
}

func TestBuildSeededShuffleReproducible(t *testing.T) {
	rows := numberedRows(30)
	schema := schemaOf(rows, "id", "grp", "y")
	opt := func() Options {
		return Options{Target: "y", Features: []string{"id"}, Rand: rand.New(rand.NewSource(42))}
	}
	a, err := Build(rows, schema, opt())
	require.NoError(t, err)
	b, err := Build(rows, schema, opt())
	require.NoError(t, err)
	assert.Equal(t, a.XTrain.Rows(), b.XTrain.Rows())
	assert.Equal(t, a.TestClasses, b.TestClasses)

	// input order untouched
	assert.Equal(t, numberedRows(30), rows)
}

func TestBuildEmptyPartition(t *testing.T) {
	rows := numberedRows(1)
	ds, err := Build(rows, schemaOf(rows, "id", "grp", "y"), Options{Target: "y", Features: []string{"id", "grp"}, SplitFraction: 0.95})
	require.NoError(t, err)

	tr, _ := ds.XTrain.Dims()
	te, cols := ds.XTest.Dims()
	assert.Equal(t, 0, tr)
	assert.Equal(t, 1, te)
	assert.Equal(t, ds.InputDim, cols)
	assert.Nil(t, ds.XTrain.Dense())
	assert.Empty(t, ds.XTrain.Rows())
	assert.Equal(t, []float64{1}, ds.ClassWeights)
}

func TestBuildWeightsDisabled(t *testing.T) {
	rows := numberedRows(10)
	ds, err := Build(rows, schemaOf(rows, "id", "grp", "y"), Options{Target: "y", Features: []string{"id"}, ClassWeights: ClassWeightNone})
	require.NoError(t, err)
	assert.Nil(t, ds.ClassWeights)
}

func TestBuildErrors(t *testing.T) {
	rows := scenarioRows()
	schema := schemaOf(rows, "a", "b", "t")
	tests := []struct {
		name string
		rows []dataset.Row
		opt  Options
	}{
		{"no rows", nil, Options{Target: "t", Features: []string{"a"}}},
		{"no target", rows, Options{Features: []string{"a"}}},
		{"unknown target", rows, Options{Target: "zz", Features: []string{"a"}}},
		{"target as feature", rows, Options{Target: "t", Features: []string{"a", "t"}}},
		{"no features", rows, Options{Target: "t"}},
		{"bad weight mode", rows, Options{Target: "t", Features: []string{"a"}, ClassWeights: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.rows, schema, tt.opt)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestGuessTarget(t *testing.T) {
	assert.Equal(t, "Sleep Disorder", GuessTarget([]string{"Person ID", "Insomnia Flag", "Sleep Disorder"}))
	assert.Equal(t, "Insomnia Flag", GuessTarget([]string{"Person ID", "Insomnia Flag"}))
	assert.Equal(t, "Person ID", GuessTarget([]string{"Person ID", "Age"}))
	assert.Equal(t, "", GuessTarget(nil))
}

func TestSelectFeatures(t *testing.T) {
	schema := schemaOf(scenarioRows(), "a", "b", "t")
	assert.Equal(t, []string{"a", "b"}, SelectFeatures(schema, "t", nil))
	assert.Equal(t, []string{"b"}, SelectFeatures(schema, "t", []string{"a", "nope"}))
}

func TestMatrixSatisfiesGonum(t *testing.T) {
	m := NewMatrix(2, 3, []float64{1, 2, 3, 4, 5, 6})
	assert.Equal(t, 6.0, m.At(1, 2))
	tr := m.T()
	r, c := tr.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 4.0, tr.At(0, 1))
	assert.Panics(t, func() { m.At(2, 0) })
	assert.Panics(t, func() { NewMatrix(2, 2, []float64{1}) })
}

func TestRebuildMatchesBuild(t *testing.T) {
	rows := numberedRows(25)
	ds, err := Build(rows, schemaOf(rows, "id", "grp", "y"), Options{
		Target:   "y",
		Features: []string{"id", "grp"},
		Rand:     rand.New(rand.NewSource(3)),
	})
	require.NoError(t, err)
	assert.Len(t, ds.TrainIndex, 20)
	assert.Len(t, ds.TestIndex, 5)

	pre, err := FromRules(ds.Pre.Rules())
	require.NoError(t, err)
	again, err := Rebuild(rows, pre, NewLabelMap(ds.Labels.Names()...), "y", ds.TrainIndex, ds.TestIndex)
	require.NoError(t, err)
	assert.Equal(t, ds.XTrain.Rows(), again.XTrain.Rows())
	assert.Equal(t, ds.YTest.Rows(), again.YTest.Rows())
	assert.Equal(t, ds.TestClasses, again.TestClasses)

	_, err = Rebuild(rows[:10], pre, ds.Labels, "y", ds.TrainIndex, ds.TestIndex)
	assert.Error(t, err)

	_, _, err = EncodeLabels([]dataset.Row{{"y": dataset.Str("maybe")}}, "y", ds.Labels)
	assert.Error(t, err)
}
