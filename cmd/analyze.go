package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KaramelBytes/tabula-cli/internal/analysis"
	"github.com/KaramelBytes/tabula-cli/internal/dataset"
	"github.com/KaramelBytes/tabula-cli/internal/project"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	anaProject    string
	anaOutputPath string
	anaSampleRows int
	anaTopValues  int
	anaCorr       bool
	anaOutliers   bool
	anaOutlierThr float64
	anaSchemaOnly bool
	anaQuiet      bool
	anaReader     readerFlags
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files or URLs...]",
	Short: "Infer the schema of datasets and produce a concise summary",
	Long: `Analyze one or more CSV/TSV/XLSX files (globs allowed) or http(s) URLs.
Without arguments, the dataset bound to --project is analyzed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var p *project.Project
		if anaProject != "" {
			pp, err := openProject(anaProject)
			if err != nil {
				return err
			}
			p = pp
		}
		inputs, err := expandInputs(args)
		if err != nil {
			return err
		}
		if len(inputs) == 0 {
			if p == nil || p.Source.Path == "" {
				return errors.New("no input files matched (pass files or --project with a dataset)")
			}
			inputs = []string{p.Source.Path}
		}

		opt := analysis.DefaultOptions()
		if anaSampleRows >= 0 {
			opt.SampleRows = anaSampleRows
		}
		if anaTopValues > 0 {
			opt.TopValues = anaTopValues
		}
		opt.Correlations = anaCorr
		if cmd.Flags().Changed("outliers") {
			opt.Outliers = anaOutliers
		}
		if anaOutlierThr > 0 {
			opt.OutlierThreshold = anaOutlierThr
		}

		ctx, cancel := signalContext(cmd)
		defer cancel()

		var outputs []string
		total := len(inputs)
		for i, path := range inputs {
			if total > 1 && !anaQuiet {
				fmt.Printf("[%d/%d] Processing %s...\n", i+1, total, displayName(path))
			}
			ropt, err := readerOptionsFor(cmd.Flags(), p, path)
			if err != nil {
				return err
			}
			tbl, err := dataset.Load(ctx, path, ropt)
			if err != nil {
				return err
			}
			schema := analysis.InferSchema(tbl)
			numeric, categorical := schema.Counts()
			log.WithFields(logrus.Fields{
				"file": tbl.Name, "rows": tbl.Len(), "numeric": numeric, "categorical": categorical,
			}).Debug("schema inferred")

			var md string
			if anaSchemaOnly {
				md = schema.Markdown()
			} else {
				md = analysis.Summarize(tbl, schema, opt).Markdown()
			}

			if p != nil {
				out, err := attachSummary(p, path, md)
				if err != nil {
					return err
				}
				if !anaQuiet {
					fmt.Printf("✓ Added analysis to project '%s' as %s\n", p.Name, filepath.Base(out))
				}
				continue
			}
			outputs = append(outputs, md)
		}

		if len(outputs) == 0 {
			return nil
		}
		md := strings.Join(outputs, "\n---\n\n")
		if anaOutputPath != "" {
			if err := os.WriteFile(anaOutputPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote analysis to %s\n", anaOutputPath)
			return nil
		}
		if !anaQuiet {
			fmt.Println(md)
		}
		return nil
	},
}

// expandInputs resolves globs, keeps URLs literal and drops duplicates.
func expandInputs(args []string) ([]string, error) {
	var files, urls []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		if dataset.IsURL(arg) {
			if _, ok := seen[arg]; !ok {
				seen[arg] = struct{}{}
				urls = append(urls, arg)
			}
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			} else {
				return nil, fmt.Errorf("no such file: %s", arg)
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return append(files, urls...), nil
}

// readerOptionsFor uses explicit flags when given, else the project's
// stored reader settings for its own dataset.
func readerOptionsFor(flags *pflag.FlagSet, p *project.Project, path string) (dataset.Options, error) {
	if p != nil && path == p.Source.Path && !readerChanged(flags) {
		return p.Source.Options(httpTimeoutSec()), nil
	}
	return anaReader.options(path)
}

func readerChanged(flags *pflag.FlagSet) bool {
	for _, name := range []string{"delimiter", "decimal", "thousands", "max-rows", "sheet-name", "sheet-index"} {
		if flags.Changed(name) {
			return true
		}
	}
	return false
}

// attachSummary writes md under the project's dataset_summaries folder,
// adding a __N suffix instead of overwriting.
func attachSummary(p *project.Project, path, md string) (string, error) {
	outDir := filepath.Join(p.RootDir(), "dataset_summaries")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	base := displayName(path)
	safe := strings.TrimSuffix(base, filepath.Ext(base))
	if anaReader.sheetName != "" {
		safe += "__sheet-" + slug(anaReader.sheetName)
	}
	outFile := filepath.Join(outDir, safe+".summary.md")
	if _, statErr := os.Stat(outFile); statErr == nil {
		idx := 2
		for {
			cand := filepath.Join(outDir, fmt.Sprintf("%s__%d.summary.md", safe, idx))
			if _, err := os.Stat(cand); os.IsNotExist(err) {
				if !anaQuiet {
					fmt.Printf("⚠ Detected existing summary, writing to %s to avoid overwrite.\n", filepath.Base(cand))
				}
				outFile = cand
				break
			}
			idx++
		}
	}
	if err := os.WriteFile(outFile, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write project summary: %w", err)
	}
	return outFile, nil
}

func displayName(path string) string {
	if dataset.IsURL(path) {
		path = strings.SplitN(strings.SplitN(path, "?", 2)[0], "#", 2)[0]
		if i := strings.LastIndex(strings.TrimSuffix(path, "/"), "/"); i >= 0 {
			path = path[i+1:]
		}
		if path == "" {
			return "remote"
		}
		return path
	}
	return filepath.Base(path)
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else if r == ' ' || r == '-' || r == '_' {
			b.WriteRune('-')
		}
	}
	if out := strings.Trim(b.String(), "-"); out != "" {
		return out
	}
	return "sheet"
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaProject, "project", "p", "", "project whose dataset to analyze, or to attach summaries to")
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write analysis (Markdown)")
	analyzeCmd.Flags().IntVar(&anaSampleRows, "sample-rows", 5, "number of sample rows to include (0 disables samples)")
	analyzeCmd.Flags().IntVar(&anaTopValues, "top-values", 8, "categories listed per categorical column")
	analyzeCmd.Flags().BoolVar(&anaCorr, "correlations", false, "compute Pearson correlations among numeric columns")
	analyzeCmd.Flags().BoolVar(&anaOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	analyzeCmd.Flags().Float64Var(&anaOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	analyzeCmd.Flags().BoolVar(&anaSchemaOnly, "schema-only", false, "print only the inferred column kinds")
	analyzeCmd.Flags().BoolVar(&anaQuiet, "quiet", false, "suppress progress and non-essential output")
	anaReader.register(analyzeCmd, 100000)
}
