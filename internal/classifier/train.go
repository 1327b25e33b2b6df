package classifier

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-7
	probFloor = 1e-7
)

// Epoch holds the metrics of one training pass.
type Epoch struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss,omitempty"`
	ValAccuracy float64 `json:"val_accuracy,omitempty"`
	// HasValidation is false when the validation split held no rows.
	HasValidation bool `json:"has_validation"`
}

// History is the per-epoch record of a Fit call.
type History []Epoch

// Last returns the final epoch, or the zero value for an empty history.
func (h History) Last() Epoch {
	if len(h) == 0 {
		return Epoch{}
	}
	return h[len(h)-1]
}

// Fit trains on x and one-hot labels y. The trailing ValidationSplit
// fraction of rows is held out for validation metrics; the rest is
// shuffled each epoch. classWeights, when non-nil, scales each example's
// loss by the weight of its true class. progress is called after every
// epoch. Cancellation is checked between batches.
func (m *Model) Fit(ctx context.Context, x, y mat.Matrix, classWeights []float64, progress func(Epoch)) (History, error) {
	n, c := x.Dims()
	yn, k := y.Dims()
	switch {
	case c != m.inputDim:
		return nil, fmt.Errorf("%w: got %d features, model expects %d", ErrShape, c, m.inputDim)
	case k != m.nClasses:
		return nil, fmt.Errorf("%w: got %d label columns, model expects %d", ErrShape, k, m.nClasses)
	case yn != n:
		return nil, fmt.Errorf("%w: %d feature rows but %d label rows", ErrShape, n, yn)
	case classWeights != nil && len(classWeights) != m.nClasses:
		return nil, fmt.Errorf("%w: %d class weights for %d classes", ErrShape, len(classWeights), m.nClasses)
	}
	nVal := int(math.Floor(float64(n) * m.cfg.ValidationSplit))
	nTrain := n - nVal
	if nTrain == 0 {
		return nil, fmt.Errorf("%w: no training rows", ErrShape)
	}
	weights := rowWeights(y, classWeights)
	batch := ClampBatch(m.cfg.BatchSize)

	var hist History
	for ep := 0; ep < m.cfg.Epochs; ep++ {
		order := m.rng.Perm(nTrain)
		var lossSum float64
		correct := 0
		for start := 0; start < nTrain; start += batch {
			if err := ctx.Err(); err != nil {
				return hist, err
			}
			idx := order[start:min(start+batch, nTrain)]
			bl, bc := m.trainBatch(gather(x, idx), gather(y, idx), pick(weights, idx))
			lossSum += bl
			correct += bc
		}
		e := Epoch{Epoch: ep + 1, Loss: lossSum / float64(nTrain), Accuracy: float64(correct) / float64(nTrain)}
		if nVal > 0 {
			val := seq(nTrain, n)
			e.ValLoss, e.ValAccuracy = m.score(gather(x, val), gather(y, val), pick(weights, val))
			e.HasValidation = true
		}
		hist = append(hist, e)
		if progress != nil {
			progress(e)
		}
	}
	return hist, nil
}

// Evaluate returns unweighted mean cross-entropy and accuracy on x, y.
func (m *Model) Evaluate(x, y mat.Matrix) (loss, acc float64, err error) {
	n, c := x.Dims()
	yn, k := y.Dims()
	if c != m.inputDim || k != m.nClasses || yn != n {
		return 0, 0, fmt.Errorf("%w: evaluate on [%d,%d]/[%d,%d], model is %d -> %d", ErrShape, n, c, yn, k, m.inputDim, m.nClasses)
	}
	if n == 0 {
		return 0, 0, nil
	}
	var lossSum float64
	var hits float64
	for start := 0; start < n; start += MaxBatch {
		idx := seq(start, min(start+MaxBatch, n))
		l, a := m.score(gather(x, idx), gather(y, idx), nil)
		lossSum += l * float64(len(idx))
		hits += a * float64(len(idx))
	}
	return lossSum / float64(n), hits / float64(n), nil
}

// score computes the mean (optionally weighted) loss and accuracy without
// dropout or updates.
func (m *Model) score(x, y *mat.Dense, w []float64) (loss, acc float64) {
	probs := m.forward(x, false).probs
	r, _ := probs.Dims()
	correct := 0
	for i := 0; i < r; i++ {
		p, t := probs.RawRowView(i), y.RawRowView(i)
		l := crossEntropy(p, t)
		if w != nil {
			l *= w[i]
		}
		loss += l
		if floats.MaxIdx(p) == floats.MaxIdx(t) {
			correct++
		}
	}
	return loss / float64(r), float64(correct) / float64(r)
}

// trainBatch runs one forward/backward pass and an Adam step. It returns
// the summed weighted loss and the correct count for the batch.
func (m *Model) trainBatch(x, y *mat.Dense, w []float64) (lossSum float64, correct int) {
	tr := m.forward(x, true)
	r, k := tr.probs.Dims()

	// softmax + cross-entropy gradient: (p - y) * w / r
	delta := mat.NewDense(r, k, nil)
	for i := 0; i < r; i++ {
		p, t := tr.probs.RawRowView(i), y.RawRowView(i)
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		lossSum += wi * crossEntropy(p, t)
		if floats.MaxIdx(p) == floats.MaxIdx(t) {
			correct++
		}
		d := delta.RawRowView(i)
		floats.SubTo(d, p, t)
		floats.Scale(wi/float64(r), d)
	}

	m.step++
	for li := len(m.layers) - 1; li >= 0; li-- {
		l := m.layers[li]
		in, out := l.dims()
		gw := mat.NewDense(in, out, nil)
		gw.Mul(tr.inputs[li].T(), delta)
		gb := make([]float64, out)
		for i := 0; i < r; i++ {
			floats.Add(gb, delta.RawRowView(i))
		}
		var next *mat.Dense
		if li > 0 {
			next = mat.NewDense(r, in, nil)
			next.Mul(delta, l.w.T())
			if mask := tr.masks[li-1]; mask != nil {
				next.MulElem(next, mask)
			}
			pre := tr.pre[li-1]
			next.Apply(func(i, j int, v float64) float64 {
				if pre.At(i, j) <= 0 {
					return 0
				}
				return v
			}, next)
		}
		m.adam(l, gw, gb)
		delta = next
	}
	return lossSum, correct
}

func (m *Model) adam(l *dense, gw *mat.Dense, gb []float64) {
	lr := m.cfg.LearningRate
	c1 := 1 - math.Pow(adamBeta1, float64(m.step))
	c2 := 1 - math.Pow(adamBeta2, float64(m.step))
	update := func(p, mo, ve, g []float64) {
		for i := range p {
			mo[i] = adamBeta1*mo[i] + (1-adamBeta1)*g[i]
			ve[i] = adamBeta2*ve[i] + (1-adamBeta2)*g[i]*g[i]
			p[i] -= lr * (mo[i] / c1) / (math.Sqrt(ve[i]/c2) + adamEps)
		}
	}
	update(l.w.RawMatrix().Data, l.mw.RawMatrix().Data, l.vw.RawMatrix().Data, gw.RawMatrix().Data)
	update(l.b, l.mb, l.vb, gb)
}

func crossEntropy(p, t []float64) float64 {
	var s float64
	for j, tj := range t {
		if tj != 0 {
			s -= tj * math.Log(math.Max(p[j], probFloor))
		}
	}
	return s
}

// rowWeights maps each row's true class to its weight. Nil weights give
// nil.
func rowWeights(y mat.Matrix, classWeights []float64) []float64 {
	if classWeights == nil {
		return nil
	}
	n, k := y.Dims()
	out := make([]float64, n)
	row := make([]float64, k)
	for i := 0; i < n; i++ {
		for j := range row {
			row[j] = y.At(i, j)
		}
		out[i] = classWeights[floats.MaxIdx(row)]
	}
	return out
}

func pick(w []float64, idx []int) []float64 {
	if w == nil {
		return nil
	}
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = w[j]
	}
	return out
}
