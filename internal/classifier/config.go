// Package classifier implements a small feed-forward network for tabular
// classification: ReLU hidden layers with dropout, a softmax output,
// class-weighted categorical cross-entropy and the Adam optimizer.
package classifier

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrShape reports inputs whose dimensions do not match the model.
var ErrShape = errors.New("shape mismatch")

// Batch size bounds applied by Fit.
const (
	MinBatch = 8
	MaxBatch = 64
)

// Config holds architecture and training settings.
type Config struct {
	// Arch lists hidden layer widths separated by '-', e.g. "128-64".
	Arch            string  `json:"arch" yaml:"arch"`
	Dropout         float64 `json:"dropout" yaml:"dropout"`
	LearningRate    float64 `json:"learning_rate" yaml:"learning_rate"`
	Epochs          int     `json:"epochs" yaml:"epochs"`
	BatchSize       int     `json:"batch_size" yaml:"batch_size"`
	ValidationSplit float64 `json:"validation_split" yaml:"validation_split"`
	// Seed fixes weight init, dropout masks and batch order. Zero picks a
	// random seed.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultConfig mirrors the workbench defaults.
func DefaultConfig() Config {
	return Config{
		Arch:            "128-64",
		Dropout:         0.2,
		LearningRate:    1e-3,
		Epochs:          25,
		BatchSize:       32,
		ValidationSplit: 0.1,
	}
}

// ParseArch parses a hidden layer list such as "128-64".
func ParseArch(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty architecture")
	}
	parts := strings.Split(s, "-")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid layer width %q in architecture %q", p, s)
		}
		out = append(out, n)
	}
	return out, nil
}

// ClampBatch keeps a batch size within [MinBatch, MaxBatch].
func ClampBatch(n int) int {
	if n < MinBatch {
		return MinBatch
	}
	if n > MaxBatch {
		return MaxBatch
	}
	return n
}

func (c Config) validate() error {
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout must be in [0, 1), got %g", c.Dropout)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		return fmt.Errorf("validation split must be in [0, 1), got %g", c.ValidationSplit)
	}
	return nil
}
