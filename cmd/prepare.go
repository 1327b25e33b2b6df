package cmd

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/KaramelBytes/tabula-cli/internal/analysis"
	"github.com/KaramelBytes/tabula-cli/internal/prep"
	"github.com/KaramelBytes/tabula-cli/internal/project"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	prepProject     string
	prepTarget      string
	prepFeatures    []string
	prepExclude     []string
	prepSplit       float64
	prepClassWeight string
	prepSeed        int64
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Encode the project dataset into shuffled train/test matrices",
	Long: `Infer the schema, pick the target and feature columns, freeze the
encoding rules and label order, and split the rows into train and test.
The preparation becomes the project's active one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject(prepProject)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd)
		defer cancel()
		tbl, err := p.LoadTable(ctx, httpTimeoutSec())
		if err != nil {
			return err
		}
		if len(tbl.Columns) == 0 {
			return errors.New("dataset has no columns")
		}
		schema := analysis.InferSchema(tbl)

		target := prepTarget
		if target == "" {
			target = prep.GuessTarget(tbl.Columns)
			fmt.Printf("Target column (auto): %s\n", target)
		}
		features := prepFeatures
		if len(features) == 0 {
			features = prep.SelectFeatures(schema, target, prepExclude)
		}
		if len(features) == 0 {
			return errors.New("no feature columns left after excluding the target")
		}

		split := cfg.Split
		if cmd.Flags().Changed("split") {
			split = prepSplit
		}
		// accept 80 as well as 0.8
		if split > 1 {
			split /= 100
		}
		modeName := cfg.ClassWeight
		if cmd.Flags().Changed("class-weight") {
			modeName = prepClassWeight
		}
		mode, err := prep.ParseClassWeightMode(modeName)
		if err != nil {
			return err
		}
		seed := prepSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}

		ds, err := prep.Build(tbl.Rows, schema, prep.Options{
			Target:        target,
			Features:      features,
			SplitFraction: split,
			ClassWeights:  mode,
			Rand:          rand.New(rand.NewSource(seed)),
		})
		if err != nil {
			return err
		}
		if len(ds.TestIndex) == 0 {
			fmt.Fprintln(os.Stderr, "⚠ Warning: test partition is empty; evaluate will have nothing to score")
		}

		pr := project.NewPreparation(ds, schema, tbl.Len(), mode, seed)
		if err := p.SavePreparation(pr); err != nil {
			return err
		}
		if err := p.Save(); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"project": p.Name, "preparation": pr.ID, "seed": seed, "split": ds.Split,
		}).Debug("preparation saved")

		numeric, categorical := schema.Counts()
		fmt.Printf("Schema: %d numeric, %d categorical\n", numeric, categorical)
		fmt.Printf("Features (%d): %s\n", len(ds.Features), strings.Join(ds.Features, ", "))
		fmt.Printf("Classes (%d): %s\n", ds.NClasses, strings.Join(quoteBlank(ds.Labels.Names()), ", "))
		if len(ds.ClassWeights) > 0 {
			fmt.Println("Class weights:")
			for i, w := range ds.ClassWeights {
				fmt.Printf("  %s: %.3f\n", blankName(ds.Labels.Name(i)), w)
			}
		}
		fmt.Printf("✓ Prepared %s: %s (split %.0f%%)\n", pr.ShortID(), ds.Summary(), 100*ds.Split)
		if p.Model != nil && p.Stale() {
			fmt.Println("  Note: the trained model uses an older preparation; re-run train to use this one.")
		}
		return nil
	},
}

func blankName(s string) string {
	if s == "" {
		return "(blank)"
	}
	return s
}

func quoteBlank(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = blankName(n)
	}
	return out
}

func init() {
	rootCmd.AddCommand(prepareCmd)
	prepareCmd.Flags().StringVarP(&prepProject, "project", "p", "", "project name")
	prepareCmd.Flags().StringVarP(&prepTarget, "target", "t", "", "target column (guessed from column names if omitted)")
	prepareCmd.Flags().StringSliceVar(&prepFeatures, "features", nil, "explicit feature columns (default: all but the target)")
	prepareCmd.Flags().StringSliceVar(&prepExclude, "exclude", nil, "columns to leave out of the default feature set, e.g. an id column")
	prepareCmd.Flags().Float64Var(&prepSplit, "split", prep.DefaultSplit, "train fraction, 0.5-0.95 (or a percentage like 80)")
	prepareCmd.Flags().StringVar(&prepClassWeight, "class-weight", "auto", "class weighting: auto | none")
	prepareCmd.Flags().Int64Var(&prepSeed, "seed", 0, "shuffle seed (0 = random, the chosen seed is recorded)")
}
