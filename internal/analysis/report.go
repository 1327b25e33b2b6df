package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/tabula-cli/internal/dataset"
	"gonum.org/v1/gonum/stat"
)

// Options controls the dataset summary.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// TopValues caps the categories listed per categorical column.
	TopValues int
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// Outlier detection via robust Z-score (MAD). Counts |z|>threshold.
	Outliers         bool
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for dataset summaries.
func DefaultOptions() Options {
	return Options{
		SampleRows:       5,
		TopValues:        8,
		Outliers:         true,
		OutlierThreshold: 3.5,
	}
}

// Report is a markdown-friendly summary of a loaded dataset.
type Report struct {
	Name     string
	Rows     int
	Cols     []ColumnSummary
	Samples  [][]string
	Warnings []string
	Corr     *CorrMatrix
}

// ColumnSummary captures the inferred kind and statistics per column.
type ColumnSummary struct {
	Name    string
	Kind    Kind
	NonNull int
	Missing int
	Unique  int
	// Numeric stats over finite values
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	// Categorical top values
	TopValues []CategoryCount
}

type CategoryCount struct {
	Value string
	Count int
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64 // row-major, Values[i][j]
}

// Summarize computes per-column statistics for tbl using the kinds in
// schema. A nil schema is inferred from tbl.
func Summarize(tbl *dataset.Table, schema *Schema, opt Options) *Report {
	if schema == nil {
		schema = InferSchema(tbl)
	}
	rep := &Report{}
	if tbl == nil {
		return rep
	}
	rep.Name = tbl.Name
	rep.Rows = tbl.Len()

	numeric := map[string][]float64{}
	for _, name := range schema.Columns() {
		col, _ := schema.Column(name)
		s := ColumnSummary{Name: name, Kind: col.Kind, NonNull: col.NonNull, Unique: col.Unique}
		s.Missing = rep.Rows - col.NonNull
		switch col.Kind {
		case KindNumeric:
			vals := finiteValues(tbl.Rows, name)
			numeric[name] = vals
			if len(vals) > 0 {
				s.Min, s.Max = minMax(vals)
				if len(vals) > 1 {
					s.Mean, s.Std = stat.MeanStdDev(vals, nil)
				} else {
					s.Mean = vals[0]
				}
			}
			if opt.Outliers && len(vals) >= 8 {
				s.OutlierThreshold = opt.OutlierThreshold
				if s.OutlierThreshold <= 0 {
					s.OutlierThreshold = 3.5
				}
				s.OutliersCount, s.OutliersMaxAbsZ = robustOutliers(vals, s.OutlierThreshold)
			}
		default:
			s.TopValues = topValues(tbl.Rows, name, opt.TopValues)
		}
		rep.Cols = append(rep.Cols, s)
	}

	sampleRows := opt.SampleRows
	if sampleRows > rep.Rows {
		sampleRows = rep.Rows
	}
	for i := 0; i < sampleRows; i++ {
		row := make([]string, len(rep.Cols))
		for j, c := range rep.Cols {
			row[j] = tbl.Rows[i].Get(c.Name).String()
		}
		rep.Samples = append(rep.Samples, row)
	}

	if opt.Correlations {
		rep.Corr = correlations(tbl.Rows, schema)
	}
	for _, c := range rep.Cols {
		if c.NonNull == 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("column %q has no values", c.Name))
		}
	}
	return rep
}

func finiteValues(rows []dataset.Row, col string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if f, ok := r.Get(col).Finite(); ok {
			out = append(out, f)
		}
	}
	return out
}

func minMax(vals []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func topValues(rows []dataset.Row, col string, limit int) []CategoryCount {
	counts := map[string]int{}
	for _, r := range rows {
		v := r.Get(col)
		if v.IsMissing() {
			continue
		}
		counts[v.String()]++
	}
	tops := make([]CategoryCount, 0, len(counts))
	for k, n := range counts {
		tops = append(tops, CategoryCount{Value: k, Count: n})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	if limit > 0 && len(tops) > limit {
		tops = tops[:limit]
	}
	return tops
}

// robustOutliers counts values whose modified z-score exceeds thr.
func robustOutliers(vals []float64, thr float64) (count int, maxAbsZ float64) {
	median, mad := medianMAD(vals)
	if mad == 0 {
		return 0, 0
	}
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - median) / mad)
		if az > thr {
			count++
		}
		maxAbsZ = math.Max(maxAbsZ, az)
	}
	return count, maxAbsZ
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := append([]float64(nil), vals...)
	sort.Float64s(cp)
	median = sortedMedian(cp)
	for i, v := range cp {
		cp[i] = math.Abs(v - median)
	}
	sort.Float64s(cp)
	return median, sortedMedian(cp)
}

// sortedMedian averages the two middle values when len(sorted) is even.
// LinInterp gives each point a mass of 1/n, so the (n+1)/2n quantile falls
// on the middle order statistic.
func sortedMedian(sorted []float64) float64 {
	n := float64(len(sorted))
	return stat.Quantile((n+1)/(2*n), stat.LinInterp, sorted, nil)
}

// correlations uses rows where both columns are finite.
func correlations(rows []dataset.Row, schema *Schema) *CorrMatrix {
	var names []string
	for _, n := range schema.Columns() {
		if schema.Kind(n) == KindNumeric {
			names = append(names, n)
		}
	}
	if len(names) < 2 {
		return nil
	}
	n := len(names)
	m := &CorrMatrix{Columns: names, Values: make([][]float64, n)}
	for i := range m.Values {
		m.Values[i] = make([]float64, n)
		m.Values[i][i] = 1
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			var xs, ys []float64
			for _, r := range rows {
				x, okx := r.Get(names[a]).Finite()
				y, oky := r.Get(names[b]).Finite()
				if okx && oky {
					xs = append(xs, x)
					ys = append(ys, y)
				}
			}
			var corr float64
			if len(xs) >= 2 {
				corr = stat.Correlation(xs, ys, nil)
				if math.IsNaN(corr) || math.IsInf(corr, 0) {
					corr = 0
				}
				corr = math.Max(-1, math.Min(1, corr))
			}
			m.Values[a][b], m.Values[b][a] = corr, corr
		}
	}
	return m
}

// Markdown renders a compact report suitable for terminals or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		missPct := 0.0
		if total := c.NonNull + c.Missing; total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%, unique %d)", safeName(c.Name), c.Kind, c.NonNull, missPct, c.Unique))
		switch c.Kind {
		case KindNumeric:
			if c.NonNull > 0 {
				b.WriteString(fmt.Sprintf(" — min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
			}
			if c.OutlierThreshold > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
			}
		case KindCategorical:
			if len(c.TopValues) > 0 {
				b.WriteString(" — top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
			}
		}
		b.WriteString("\n")
	}

	if r.Corr != nil && len(r.Corr.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		type pair struct {
			A, B string
			R    float64
		}
		var pairs []pair
		n := len(r.Corr.Columns)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				pairs = append(pairs, pair{A: r.Corr.Columns[i], B: r.Corr.Columns[j], R: r.Corr.Values[i][j]})
			}
		}
		sort.Slice(pairs, func(i, j int) bool {
			ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
			if ai == aj {
				return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
			}
			return ai > aj
		})
		if len(pairs) > 10 {
			pairs = pairs[:10]
		}
		for _, p := range pairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", p.A, p.B, p.R))
		}
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n|")
		for range r.Cols {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i, val := range row {
				if i > 0 {
					b.WriteString(" | ")
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
