package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/KaramelBytes/tabula-cli/internal/eval"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	evalProject  string
	evalExamples int
	evalOutput   string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the trained model on the held-out test rows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(evalProject)
		if err != nil {
			return err
		}
		m, pr, err := p.LoadModel()
		if err != nil {
			return err
		}
		if p.Stale() {
			fmt.Fprintf(os.Stderr, "⚠ Warning: model was trained on preparation %s, not the active one; evaluating on its own split\n", pr.ShortID())
		}
		ctx, cancel := signalContext(cmd)
		defer cancel()
		ds, err := rebuild(ctx, p, pr)
		if err != nil {
			return err
		}
		if rows, _ := ds.XTest.Dims(); rows == 0 {
			return errors.New("test partition is empty; prepare with a smaller --split")
		}

		probs, err := m.PredictProba(ds.XTest)
		if err != nil {
			return err
		}
		loss, _, err := m.Evaluate(ds.XTest, ds.YTest)
		if err != nil {
			return err
		}
		preds := eval.ArgmaxRows(probs)
		cm := eval.ConfusionMatrix(ds.TestClasses, preds, ds.NClasses)
		names := ds.Labels.Names()
		log.WithFields(logrus.Fields{"rows": cm.Total(), "correct": cm.Correct()}).Debug("evaluated")

		var b strings.Builder
		b.WriteString("[EVALUATION]\n")
		fmt.Fprintf(&b, "Project: %s\nPreparation: %s\nModel: %s\n", p.Name, pr.ShortID(), m)
		fmt.Fprintf(&b, "Test rows: %d\nAccuracy: %.2f%% (%d/%d)\nLoss: %.4f\n\n", cm.Total(), 100*cm.Accuracy(), cm.Correct(), cm.Total(), loss)
		b.WriteString("[CONFUSION MATRIX]\n")
		b.WriteString(cm.Markdown(names))
		b.WriteString("\n[EXAMPLES]\n")
		b.WriteString(eval.ExamplesMarkdown(eval.Examples(ds.TestClasses, probs, names, evalExamples)))

		if evalOutput != "" {
			if err := os.WriteFile(evalOutput, []byte(b.String()), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote evaluation to %s\n", evalOutput)
			return nil
		}
		fmt.Print(b.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVarP(&evalProject, "project", "p", "", "project name")
	evaluateCmd.Flags().IntVar(&evalExamples, "examples", eval.DefaultExamples, "test rows listed with their predictions (0 = all)")
	evaluateCmd.Flags().StringVarP(&evalOutput, "output", "o", "", "optional path to write the report (Markdown)")
}
