package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/tabula-cli/internal/analysis"
	"github.com/KaramelBytes/tabula-cli/internal/prep"
	"github.com/KaramelBytes/tabula-cli/internal/utils"
	"github.com/google/uuid"
)

// Preparation is the frozen output of a prepare step: encoding rules,
// label order and the train/test partition of the source rows.
type Preparation struct {
	ID           string            `json:"id"`
	Target       string            `json:"target"`
	Features     []string          `json:"features"`
	Split        float64           `json:"split"`
	ClassWeight  string            `json:"class_weight"`
	Seed         int64             `json:"seed,omitempty"`
	Schema       []analysis.Column `json:"schema"`
	Rules        prep.Rules        `json:"rules"`
	Labels       []string          `json:"labels"`
	ClassWeights []float64         `json:"class_weights,omitempty"`
	InputDim     int               `json:"input_dim"`
	SourceRows   int               `json:"source_rows"`
	TrainIndex   []int             `json:"train_index"`
	TestIndex    []int             `json:"test_index"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NewPreparation captures a built dataset. The id is a fresh UUID.
func NewPreparation(ds *prep.Dataset, schema *analysis.Schema, sourceRows int, mode prep.ClassWeightMode, seed int64) *Preparation {
	var cols []analysis.Column
	for _, name := range schema.Columns() {
		c, _ := schema.Column(name)
		cols = append(cols, c)
	}
	return &Preparation{
		ID:           uuid.NewString(),
		Target:       ds.Target,
		Features:     ds.Features,
		Split:        ds.Split,
		ClassWeight:  string(mode),
		Seed:         seed,
		Schema:       cols,
		Rules:        ds.Pre.Rules(),
		Labels:       ds.Labels.Names(),
		ClassWeights: ds.ClassWeights,
		InputDim:     ds.InputDim,
		SourceRows:   sourceRows,
		TrainIndex:   ds.TrainIndex,
		TestIndex:    ds.TestIndex,
		CreatedAt:    time.Now(),
	}
}

// Preprocessor rebuilds the frozen encoder.
func (pr *Preparation) Preprocessor() (*prep.Preprocessor, error) {
	pre, err := prep.FromRules(pr.Rules)
	if err != nil {
		return nil, fmt.Errorf("preparation %s: %w", pr.ID, err)
	}
	if pre.Dim() != pr.InputDim {
		return nil, fmt.Errorf("preparation %s: rules encode %d values, expected %d", pr.ID, pre.Dim(), pr.InputDim)
	}
	return pre, nil
}

// LabelMap rebuilds the class index mapping.
func (pr *Preparation) LabelMap() *prep.LabelMap { return prep.NewLabelMap(pr.Labels...) }

// ShortID is the first block of the UUID, for display.
func (pr *Preparation) ShortID() string {
	if i := strings.IndexByte(pr.ID, '-'); i > 0 {
		return pr.ID[:i]
	}
	return pr.ID
}

func (p *Project) prepDir() string { return filepath.Join(p.rootDir, prepDirName) }

// SavePreparation writes the preparation and makes it active. Call Save
// afterwards to persist the active pointer.
func (p *Project) SavePreparation(pr *Preparation) error {
	if p.rootDir == "" {
		return errors.New("project root directory not set")
	}
	if pr.ID == "" {
		pr.ID = uuid.NewString()
	}
	if err := utils.EnsureProjectDir(p.prepDir()); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	data, err := utils.PrettyJSON(pr)
	if err != nil {
		return err
	}
	if err := utils.SafeWriteFile(filepath.Join(p.prepDir(), pr.ID+".json"), data); err != nil {
		return err
	}
	p.Active = pr.ID
	p.UpdatedAt = time.Now()
	return nil
}

// LoadPreparation reads a preparation by id, or the active one when id is
// empty. A unique id prefix is accepted.
func (p *Project) LoadPreparation(id string) (*Preparation, error) {
	if id == "" {
		id = p.Active
	}
	if id == "" {
		return nil, ErrNoPreparation
	}
	if _, err := uuid.Parse(id); err != nil {
		full, err := p.resolvePrefix(id)
		if err != nil {
			return nil, err
		}
		id = full
	}
	b, err := os.ReadFile(filepath.Join(p.prepDir(), id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("preparation %s: %w", id, ErrNoPreparation)
		}
		return nil, fmt.Errorf("read preparation: %w", err)
	}
	var pr Preparation
	if err := json.Unmarshal(b, &pr); err != nil {
		return nil, fmt.Errorf("parse preparation: %w", err)
	}
	return &pr, nil
}

func (p *Project) resolvePrefix(prefix string) (string, error) {
	ids, err := p.PreparationIDs()
	if err != nil {
		return "", err
	}
	var match string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			if match != "" {
				return "", fmt.Errorf("preparation id %q is ambiguous", prefix)
			}
			match = id
		}
	}
	if match == "" {
		return "", fmt.Errorf("preparation %s: %w", prefix, ErrNoPreparation)
	}
	return match, nil
}

// PreparationIDs lists stored preparation ids, sorted.
func (p *Project) PreparationIDs() ([]string, error) {
	entries, err := os.ReadDir(p.prepDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list preparations: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
