package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/KaramelBytes/tabula-cli/internal/analysis"
	"github.com/KaramelBytes/tabula-cli/internal/dataset"
	"github.com/KaramelBytes/tabula-cli/internal/eval"
	"github.com/KaramelBytes/tabula-cli/internal/prep"
	"github.com/KaramelBytes/tabula-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	predProject string
	predSet     []string
	predJSON    bool
	predForm    bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the class of a single row given as --set column=value",
	Long: `Encode one row with the model's frozen rules and print the classes
ranked by probability. Columns left out are treated as missing.
Use --form to list the expected columns with their ranges or categories.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(predProject)
		if err != nil {
			return err
		}
		m, pr, err := p.LoadModel()
		if err != nil {
			return err
		}
		pre, err := pr.Preprocessor()
		if err != nil {
			return err
		}
		if predForm || len(predSet) == 0 {
			fmt.Print(featureForm(pre))
			return nil
		}

		row, err := parseRow(predSet, pre, p.Source.Options(httpTimeoutSec()))
		if err != nil {
			return err
		}
		var missing []string
		for _, f := range pre.Features() {
			if row.Get(f).IsMissing() {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			fmt.Fprintf(os.Stderr, "⚠ Warning: treating as missing: %s\n", strings.Join(missing, ", "))
		}

		probs, err := m.Predict(pre.Transform(row))
		if err != nil {
			return err
		}
		ranked := eval.Rank(probs, quoteBlank(pr.Labels))
		if predJSON {
			b, err := utils.PrettyJSON(ranked)
			if err != nil {
				return err
			}
			fmt.Print(string(b))
			return nil
		}
		fmt.Printf("Prediction: %s (%.1f%%)\n", ranked[0].Class, 100*ranked[0].Probability)
		fmt.Print(eval.RankMarkdown(ranked))
		return nil
	},
}

// parseRow turns col=value pairs into a row, coercing values the way the
// dataset reader does.
func parseRow(pairs []string, pre *prep.Preprocessor, opt dataset.Options) (dataset.Row, error) {
	known := map[string]bool{}
	for _, f := range pre.Features() {
		known[f] = true
	}
	row := dataset.Row{}
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q (want column=value)", kv)
		}
		k = strings.TrimSpace(k)
		if !known[k] {
			return nil, fmt.Errorf("unknown feature column %q (see --form)", k)
		}
		row[k] = dataset.Coerce(v, opt)
	}
	return row, nil
}

// featureForm lists each feature with the values the encoder knows.
func featureForm(pre *prep.Preprocessor) string {
	var b strings.Builder
	b.WriteString("[FEATURES]\n")
	for _, f := range pre.Features() {
		switch pre.Kind(f) {
		case analysis.KindNumeric:
			r, _ := pre.Range(f)
			fmt.Fprintf(&b, "- %s: numeric (min %.4g, max %.4g)\n", f, r.Min, r.Max)
		default:
			vocab := pre.Vocabulary(f)
			shown := vocab
			if len(shown) > 12 {
				shown = shown[:12]
			}
			fmt.Fprintf(&b, "- %s: one of %s", f, strings.Join(shown, " | "))
			if len(vocab) > len(shown) {
				fmt.Fprintf(&b, " (+%d more)", len(vocab)-len(shown))
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\nExample: tabula predict")
	for _, f := range pre.Features() {
		fmt.Fprintf(&b, " --set %q", f+"=…")
	}
	b.WriteString("\n")
	return b.String()
}

func init() {
	rootCmd.AddCommand(predictCmd)
	predictCmd.Flags().StringVarP(&predProject, "project", "p", "", "project name")
	predictCmd.Flags().StringArrayVar(&predSet, "set", nil, "feature value as column=value (repeatable)")
	predictCmd.Flags().BoolVar(&predJSON, "json", false, "print ranked classes as JSON")
	predictCmd.Flags().BoolVar(&predForm, "form", false, "list the expected feature columns and exit")
}
