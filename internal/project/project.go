package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/tabula-cli/internal/dataset"
	"github.com/KaramelBytes/tabula-cli/internal/utils"
)

const (
	projectFileName = utils.ProjectFile
	prepDirName     = "preparations"
	modelFileName   = "model.json"
)

var (
	// ErrNoPreparation means prepare has not been run for the project.
	ErrNoPreparation = errors.New("no preparation found (run `tabula prepare` first)")
	// ErrNoModel means train has not been run for the project.
	ErrNoModel = errors.New("no trained model found (run `tabula train` first)")
)

// Project represents a tabula project persisted on disk.
type Project struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      Source `json:"source"`
	// Active is the id of the preparation used by train and predict.
	Active    string    `json:"active_preparation,omitempty"`
	Model     *ModelRef `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Not serialized: on-disk location of the project.json
	rootDir string `json:"-"`
}

// Source says where the project's dataset comes from and how to read it.
type Source struct {
	Path               string `json:"path"`
	Delimiter          string `json:"delimiter,omitempty"`
	SheetName          string `json:"sheet_name,omitempty"`
	SheetIndex         int    `json:"sheet_index,omitempty"`
	MaxRows            int    `json:"max_rows,omitempty"`
	DecimalSeparator   string `json:"decimal_separator,omitempty"`
	ThousandsSeparator string `json:"thousands_separator,omitempty"`
}

// Options converts the source settings into reader options.
func (s Source) Options(httpTimeoutSec int) dataset.Options {
	opt := dataset.DefaultOptions()
	opt.MaxRows = s.MaxRows
	opt.SheetName = s.SheetName
	opt.SheetIndex = s.SheetIndex
	if r := firstRune(s.Delimiter); r != 0 {
		opt.Delimiter = r
	}
	opt.DecimalSeparator = firstRune(s.DecimalSeparator)
	opt.ThousandsSeparator = firstRune(s.ThousandsSeparator)
	if httpTimeoutSec > 0 {
		opt.HTTPTimeoutSec = httpTimeoutSec
	}
	return opt
}

func firstRune(s string) rune {
	if s == `\t` {
		return '\t'
	}
	for _, r := range s {
		return r
	}
	return 0
}

// NewProject constructs an in-memory project. Call Save() to persist.
func NewProject(name, description, rootDir string) *Project {
	return &Project{
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		rootDir:     rootDir,
	}
}

// LoadProject loads a project.json from the provided directory.
func LoadProject(dir string) (*Project, error) {
	path := filepath.Join(dir, projectFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("project not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read project: %w", err)
	}
	var p Project
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	p.rootDir = dir
	return &p, nil
}

// RootDir returns the on-disk project directory path.
func (p *Project) RootDir() string { return p.rootDir }

// Save writes project.json using atomic write.
func (p *Project) Save() error {
	if p.rootDir == "" {
		return errors.New("project root directory not set")
	}
	if err := utils.EnsureProjectDir(p.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	p.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(p)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(p.rootDir, projectFileName), data)
}

// SetSource points the project at a dataset. Relative file paths are
// stored as absolute paths so commands work from any directory.
func (p *Project) SetSource(src Source) error {
	if src.Path == "" {
		return errors.New("dataset path is required")
	}
	if !dataset.IsURL(src.Path) {
		abs, err := filepath.Abs(src.Path)
		if err != nil {
			return fmt.Errorf("resolve dataset path: %w", err)
		}
		src.Path = abs
	}
	p.Source = src
	p.UpdatedAt = time.Now()
	return nil
}

// LoadTable reads the project's dataset.
func (p *Project) LoadTable(ctx context.Context, httpTimeoutSec int) (*dataset.Table, error) {
	if p.Source.Path == "" {
		return nil, errors.New("project has no dataset (use `tabula init --data`)")
	}
	tbl, err := dataset.Load(ctx, p.Source.Path, p.Source.Options(httpTimeoutSec))
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return tbl, nil
}
