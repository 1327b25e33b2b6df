package project

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/tabula-cli/internal/classifier"
	"github.com/KaramelBytes/tabula-cli/internal/utils"
)

// ModelRef records the trained model and the preparation it expects.
type ModelRef struct {
	File          string            `json:"file"`
	PreparationID string            `json:"preparation_id"`
	Summary       string            `json:"summary"`
	TrainedAt     time.Time         `json:"trained_at"`
	Final         classifier.Epoch  `json:"final"`
	Test          *TestResult       `json:"test,omitempty"`
	Config        classifier.Config `json:"config"`
}

// TestResult is the held-out evaluation of a model.
type TestResult struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
	Rows     int     `json:"rows"`
}

// SaveModel writes model.json and links it to ref.PreparationID. Call
// Save afterwards to persist the link.
func (p *Project) SaveModel(m *classifier.Model, ref ModelRef) error {
	if p.rootDir == "" {
		return errors.New("project root directory not set")
	}
	if ref.PreparationID == "" {
		return errors.New("model must reference a preparation")
	}
	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		return err
	}
	if err := utils.SafeWriteFile(filepath.Join(p.rootDir, modelFileName), buf.Bytes()); err != nil {
		return err
	}
	ref.File = modelFileName
	ref.Config = m.Config()
	ref.Summary = m.String()
	if ref.TrainedAt.IsZero() {
		ref.TrainedAt = time.Now()
	}
	p.Model = &ref
	p.UpdatedAt = time.Now()
	return nil
}

// LoadModel reads the trained model together with its preparation.
func (p *Project) LoadModel() (*classifier.Model, *Preparation, error) {
	if p.Model == nil {
		return nil, nil, ErrNoModel
	}
	pr, err := p.LoadPreparation(p.Model.PreparationID)
	if err != nil {
		return nil, nil, fmt.Errorf("model preparation: %w", err)
	}
	f, err := os.Open(filepath.Join(p.rootDir, p.Model.File))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNoModel
		}
		return nil, nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()
	m, err := classifier.Load(f)
	if err != nil {
		return nil, nil, err
	}
	if m.InputDim() != pr.InputDim || m.NClasses() != len(pr.Labels) {
		return nil, nil, fmt.Errorf("%w: model is %d -> %d but preparation %s is %d -> %d",
			classifier.ErrShape, m.InputDim(), m.NClasses(), pr.ShortID(), pr.InputDim, len(pr.Labels))
	}
	return m, pr, nil
}

// Stale reports whether the active preparation differs from the one the
// model was trained on.
func (p *Project) Stale() bool {
	return p.Model != nil && p.Active != "" && p.Model.PreparationID != p.Active
}
