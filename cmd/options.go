package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/KaramelBytes/tabula-cli/internal/dataset"
	"github.com/KaramelBytes/tabula-cli/internal/prep"
	"github.com/KaramelBytes/tabula-cli/internal/project"
	"github.com/KaramelBytes/tabula-cli/internal/utils"
	"github.com/spf13/cobra"
)

// readerFlags are the dataset parsing flags shared by init and analyze.
type readerFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	maxRows    int
	sheetName  string
	sheetIndex int
}

func (f *readerFlags) register(cmd *cobra.Command, maxRowsDefault int) {
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (auto by extension if omitted)")
	cmd.Flags().StringVar(&f.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (plain '.' decimals if omitted)")
	cmd.Flags().StringVar(&f.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (none if omitted)")
	cmd.Flags().IntVar(&f.maxRows, "max-rows", maxRowsDefault, "maximum rows to read (0 = unlimited)")
	cmd.Flags().StringVar(&f.sheetName, "sheet-name", "", "XLSX: sheet name to read")
	cmd.Flags().IntVar(&f.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}

// source validates the flags and returns them as a persisted project source.
func (f *readerFlags) source(path string) (project.Source, error) {
	src := project.Source{
		Path:       path,
		SheetName:  f.sheetName,
		SheetIndex: f.sheetIndex,
		MaxRows:    f.maxRows,
	}
	if f.delimiter != "" {
		switch f.delimiter {
		case ",", ";", "|":
			src.Delimiter = f.delimiter
		case "\t", `\t`, "tab":
			src.Delimiter = `\t`
		default:
			return src, fmt.Errorf("unsupported --delimiter: %s", f.delimiter)
		}
	}
	// Locale separators
	switch strings.ToLower(strings.TrimSpace(f.decimal)) {
	case ",", "comma":
		src.DecimalSeparator = ","
	case ".", "dot":
		src.DecimalSeparator = "."
	case "":
	default:
		return src, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", f.decimal)
	}
	switch strings.ToLower(strings.TrimSpace(f.thousands)) {
	case ",":
		src.ThousandsSeparator = ","
	case ".":
		src.ThousandsSeparator = "."
	case "space", " ":
		src.ThousandsSeparator = " "
	case "":
	default:
		return src, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", f.thousands)
	}
	if src.DecimalSeparator != "" && src.DecimalSeparator == src.ThousandsSeparator {
		return src, errors.New("--decimal and --thousands must differ")
	}
	return src, nil
}

// options converts the flags into reader options for path.
func (f *readerFlags) options(path string) (dataset.Options, error) {
	src, err := f.source(path)
	if err != nil {
		return dataset.Options{}, err
	}
	return src.Options(httpTimeoutSec()), nil
}

func httpTimeoutSec() int {
	if cfg != nil {
		return cfg.HTTPTimeoutSec
	}
	return 0
}

// openProject loads the named project, or the project enclosing the
// working directory when name is empty.
func openProject(name string) (*project.Project, error) {
	var dir string
	if name == "" {
		root, err := utils.FindProjectRoot("")
		if errors.Is(err, utils.ErrNoProjectRoot) {
			return nil, errors.New("--project is required (or run inside a project directory)")
		}
		if err != nil {
			return nil, err
		}
		dir = root
	} else {
		d, err := resolveProjectDirByName(name)
		if err != nil {
			return nil, err
		}
		dir = d
	}
	p, err := project.LoadProject(dir)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// signalContext is cancelled on Ctrl-C so long runs stop between batches.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}

// rebuild re-encodes the project's dataset with a saved preparation.
func rebuild(ctx context.Context, p *project.Project, pr *project.Preparation) (*prep.Dataset, error) {
	pre, err := pr.Preprocessor()
	if err != nil {
		return nil, err
	}
	tbl, err := p.LoadTable(ctx, httpTimeoutSec())
	if err != nil {
		return nil, err
	}
	if tbl.Len() != pr.SourceRows {
		return nil, fmt.Errorf("dataset has %d rows but preparation %s was made from %d; run prepare again", tbl.Len(), pr.ShortID(), pr.SourceRows)
	}
	ds, err := prep.Rebuild(tbl.Rows, pre, pr.LabelMap(), pr.Target, pr.TrainIndex, pr.TestIndex)
	if err != nil {
		return nil, fmt.Errorf("preparation %s no longer matches the dataset: %w", pr.ShortID(), err)
	}
	ds.Split = pr.Split
	ds.ClassWeights = pr.ClassWeights
	return ds, nil
}
