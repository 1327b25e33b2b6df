package classifier

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

const formatVersion = 1

type layerFile struct {
	In  int       `json:"in"`
	Out int       `json:"out"`
	W   []float64 `json:"w"`
	B   []float64 `json:"b"`
}

type modelFile struct {
	Version  int         `json:"version"`
	InputDim int         `json:"input_dim"`
	NClasses int         `json:"n_classes"`
	Config   Config      `json:"config"`
	Layers   []layerFile `json:"layers"`
}

// Save writes the architecture and weights as JSON. Optimizer state is not
// kept; a loaded model is for inference.
func (m *Model) Save(w io.Writer) error {
	f := modelFile{Version: formatVersion, InputDim: m.inputDim, NClasses: m.nClasses, Config: m.cfg}
	for _, l := range m.layers {
		in, out := l.dims()
		f.Layers = append(f.Layers, layerFile{
			In:  in,
			Out: out,
			W:   append([]float64(nil), l.w.RawMatrix().Data...),
			B:   append([]float64(nil), l.b...),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(r io.Reader) (*Model, error) {
	var f modelFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if f.Version != formatVersion {
		return nil, fmt.Errorf("unsupported model format version %d", f.Version)
	}
	hidden, err := ParseArch(f.Config.Arch)
	if err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}
	if len(f.Layers) != len(hidden)+1 {
		return nil, fmt.Errorf("%w: %d layers for architecture %q", ErrShape, len(f.Layers), f.Config.Arch)
	}
	m := &Model{
		inputDim: f.InputDim,
		nClasses: f.NClasses,
		hidden:   hidden,
		cfg:      f.Config,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	want := append(append([]int{f.InputDim}, hidden...), f.NClasses)
	for i, lf := range f.Layers {
		if lf.In != want[i] || lf.Out != want[i+1] || len(lf.W) != lf.In*lf.Out || len(lf.B) != lf.Out || lf.In <= 0 || lf.Out <= 0 {
			return nil, fmt.Errorf("%w: layer %d is %dx%d, expected %dx%d", ErrShape, i, lf.In, lf.Out, want[i], want[i+1])
		}
		m.layers = append(m.layers, &dense{
			w:  mat.NewDense(lf.In, lf.Out, lf.W),
			b:  lf.B,
			mw: mat.NewDense(lf.In, lf.Out, nil),
			vw: mat.NewDense(lf.In, lf.Out, nil),
			mb: make([]float64, lf.Out),
			vb: make([]float64, lf.Out),
		})
	}
	return m, nil
}
