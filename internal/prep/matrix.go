package prep

import "gonum.org/v1/gonum/mat"

// Matrix is an immutable row-major matrix that, unlike mat.Dense, may have
// zero rows. It satisfies mat.Matrix so it can be handed to gonum code.
type Matrix struct {
	rows, cols int
	data       []float64
}

var _ mat.Matrix = (*Matrix)(nil)

// NewMatrix wraps data (len rows*cols) without copying.
func NewMatrix(rows, cols int, data []float64) *Matrix {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		panic(mat.ErrShape)
	}
	return &Matrix{rows: rows, cols: cols, data: data}
}

func (m *Matrix) Dims() (r, c int) { return m.rows, m.cols }

func (m *Matrix) At(i, j int) float64 {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(mat.ErrIndexOutOfRange)
	}
	return m.data[i*m.cols+j]
}

func (m *Matrix) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []float64 {
	if i < 0 || i >= m.rows {
		panic(mat.ErrRowAccess)
	}
	return append([]float64(nil), m.data[i*m.cols:(i+1)*m.cols]...)
}

// Rows returns copies of all rows.
func (m *Matrix) Rows() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}

// Dense copies the matrix into a *mat.Dense. It returns nil when the matrix
// has no elements, since gonum rejects zero-sized dense matrices.
func (m *Matrix) Dense() *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return nil
	}
	return mat.NewDense(m.rows, m.cols, append([]float64(nil), m.data...))
}
