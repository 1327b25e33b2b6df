package prep

import (
	"regexp"

	"github.com/KaramelBytes/tabula-cli/internal/analysis"
)

var (
	exactTarget = regexp.MustCompile(`(?i)sleep\s*disorder`)
	looseTarget = regexp.MustCompile(`(?i)disorder|insomnia|apnea`)
)

// GuessTarget picks a likely target column for sleep-health style data:
// a "sleep disorder" column, then anything mentioning a disorder, else the
// first column. It returns "" for no columns.
func GuessTarget(columns []string) string {
	for _, re := range []*regexp.Regexp{exactTarget, looseTarget} {
		for _, c := range columns {
			if re.MatchString(c) {
				return c
			}
		}
	}
	if len(columns) == 0 {
		return ""
	}
	return columns[0]
}

// SelectFeatures returns every schema column except target and exclude, in
// schema order.
func SelectFeatures(schema *analysis.Schema, target string, exclude []string) []string {
	skip := map[string]bool{target: true}
	for _, e := range exclude {
		skip[e] = true
	}
	var out []string
	for _, c := range schema.Columns() {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}
