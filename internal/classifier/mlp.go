package classifier

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// dense is a fully connected layer y = xW + b with Adam moments.
type dense struct {
	w *mat.Dense // in x out
	b []float64

	mw, vw *mat.Dense
	mb, vb []float64
}

func newDense(in, out int, rng *rand.Rand) *dense {
	// Glorot uniform
	limit := math.Sqrt(6 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return &dense{
		w:  mat.NewDense(in, out, data),
		b:  make([]float64, out),
		mw: mat.NewDense(in, out, nil),
		vw: mat.NewDense(in, out, nil),
		mb: make([]float64, out),
		vb: make([]float64, out),
	}
}

func (d *dense) dims() (in, out int) { return d.w.Dims() }

// forward returns xW + b for a batch.
func (d *dense) forward(x *mat.Dense) *mat.Dense {
	r, _ := x.Dims()
	_, out := d.w.Dims()
	z := mat.NewDense(r, out, nil)
	z.Mul(x, d.w)
	for i := 0; i < r; i++ {
		floats.Add(z.RawRowView(i), d.b)
	}
	return z
}

// Model is a multilayer perceptron classifier.
type Model struct {
	inputDim int
	nClasses int
	hidden   []int
	cfg      Config
	layers   []*dense
	step     int
	rng      *rand.Rand
}

// New builds an untrained model for inputDim features and nClasses classes.
func New(inputDim, nClasses int, cfg Config) (*Model, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("%w: input dimension must be positive, got %d", ErrShape, inputDim)
	}
	if nClasses < 1 {
		return nil, fmt.Errorf("%w: need at least one class, got %d", ErrShape, nClasses)
	}
	hidden, err := ParseArch(cfg.Arch)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m := &Model{
		inputDim: inputDim,
		nClasses: nClasses,
		hidden:   hidden,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(seed)),
	}
	in := inputDim
	for _, h := range hidden {
		m.layers = append(m.layers, newDense(in, h, m.rng))
		in = h
	}
	m.layers = append(m.layers, newDense(in, nClasses, m.rng))
	return m, nil
}

func (m *Model) InputDim() int  { return m.inputDim }
func (m *Model) NClasses() int  { return m.nClasses }
func (m *Model) Config() Config { return m.cfg }
func (m *Model) Hidden() []int  { return append([]int(nil), m.hidden...) }

func (m *Model) String() string {
	return fmt.Sprintf("mlp(%d -> %v -> %d, dropout=%.2f)", m.inputDim, m.hidden, m.nClasses, m.cfg.Dropout)
}

// Params is the number of trainable parameters.
func (m *Model) Params() int {
	n := 0
	for _, l := range m.layers {
		in, out := l.dims()
		n += in*out + out
	}
	return n
}

// trace keeps the per-layer state needed by backprop.
type trace struct {
	inputs []*mat.Dense // input to each layer
	pre    []*mat.Dense // pre-activation of hidden layers
	masks  []*mat.Dense // scaled dropout masks, nil when inactive
	probs  *mat.Dense
}

// forward runs a batch through the network. With train set, inverted
// dropout is applied after each hidden activation.
func (m *Model) forward(x *mat.Dense, train bool) *trace {
	t := &trace{}
	a := x
	last := len(m.layers) - 1
	for li, l := range m.layers {
		t.inputs = append(t.inputs, a)
		z := l.forward(a)
		if li == last {
			softmaxRows(z)
			t.probs = z
			break
		}
		t.pre = append(t.pre, mat.DenseCopyOf(z))
		z.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z)
		var mask *mat.Dense
		if train && m.cfg.Dropout > 0 {
			mask = m.dropoutMask(z.Dims())
			z.MulElem(z, mask)
		}
		t.masks = append(t.masks, mask)
		a = z
	}
	return t
}

func (m *Model) dropoutMask(r, c int) *mat.Dense {
	keep := 1 - m.cfg.Dropout
	data := make([]float64, r*c)
	for i := range data {
		if m.rng.Float64() < keep {
			data[i] = 1 / keep
		}
	}
	return mat.NewDense(r, c, data)
}

func softmaxRows(z *mat.Dense) {
	r, _ := z.Dims()
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		mx := floats.Max(row)
		for j, v := range row {
			row[j] = math.Exp(v - mx)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
}

// PredictProba returns one probability row per input row.
func (m *Model) PredictProba(x mat.Matrix) ([][]float64, error) {
	r, c := x.Dims()
	if c != m.inputDim {
		return nil, fmt.Errorf("%w: got %d features, model expects %d", ErrShape, c, m.inputDim)
	}
	out := make([][]float64, 0, r)
	for start := 0; start < r; start += MaxBatch {
		end := min(start+MaxBatch, r)
		probs := m.forward(gather(x, seq(start, end)), false).probs
		for i := 0; i < end-start; i++ {
			out = append(out, append([]float64(nil), probs.RawRowView(i)...))
		}
	}
	return out, nil
}

// Predict returns class probabilities for a single feature vector.
func (m *Model) Predict(x []float64) ([]float64, error) {
	if len(x) != m.inputDim {
		return nil, fmt.Errorf("%w: got %d features, model expects %d", ErrShape, len(x), m.inputDim)
	}
	probs := m.forward(mat.NewDense(1, len(x), append([]float64(nil), x...)), false).probs
	return append([]float64(nil), probs.RawRowView(0)...), nil
}

// gather copies the selected rows of x into a new dense matrix.
func gather(x mat.Matrix, rows []int) *mat.Dense {
	_, c := x.Dims()
	data := make([]float64, len(rows)*c)
	for i, r := range rows {
		for j := 0; j < c; j++ {
			data[i*c+j] = x.At(r, j)
		}
	}
	return mat.NewDense(len(rows), c, data)
}

func seq(start, end int) []int {
	out := make([]int, end-start)
	for i := range out {
		out[i] = start + i
	}
	return out
}
