// Package decode reconstructs predicted adjacency scores from trained
// embedding parameters and computes the spectral baseline.
package decode

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/sanonone/grl/pkg/core/types"
	"github.com/sanonone/grl/pkg/core/vecmath"
	"github.com/sanonone/grl/pkg/graph"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShapeMismatch is returned when parameter shapes are incompatible.
	ErrShapeMismatch = errors.New("parameter shapes do not match")
	// ErrEigenFailed is returned when the eigendecomposition does not converge.
	ErrEigenFailed = errors.New("eigendecomposition failed")
)

// Activation maps a score to a prediction; nil means the sigmoid.
type Activation func(float32) float32

func (a Activation) apply(d *mat.Dense) {
	f := a
	if f == nil {
		f = vecmath.Sigmoid
	}
	d.Apply(func(_, _ int, v float64) float64 {
		return float64(f(float32(v)))
	}, d)
}

func truncate(dim, cols int) int {
	if dim <= 0 || dim > cols {
		return cols
	}
	return dim
}

// nodeRows converts rows 1.. and the first dim columns of m to a dense
// float64 matrix. Row 0 is the reserved slot of node-indexed matrices.
func nodeRows(m types.Matrix, dim int) *mat.Dense {
	rows := m.Rows - 1
	data := make([]float64, rows*dim)
	for i := 0; i < rows; i++ {
		src := m.Row(i + 1)
		for c := 0; c < dim; c++ {
			data[i*dim+c] = float64(src[c])
		}
	}
	if rows == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(rows, dim, data)
}

func product(a, b *mat.Dense) *mat.Dense {
	ra, _ := a.Dims()
	rb, _ := b.Dims()
	out := mat.NewDense(ra, rb, nil)
	out.Mul(a, b.T())
	return out
}

// Asymmetric returns act(L·Rᵗ) over nodes 1.., restricted to the first dim
// columns when 0 < dim < d.
func Asymmetric(l, r types.Matrix, dim int, act Activation) (*mat.Dense, error) {
	if l.Cols != r.Cols {
		return nil, fmt.Errorf("%w: L has %d columns, R has %d", ErrShapeMismatch, l.Cols, r.Cols)
	}
	if l.Rows < 2 || r.Rows < 2 {
		return nil, fmt.Errorf("%w: no node rows", ErrShapeMismatch)
	}
	dim = truncate(dim, l.Cols)
	out := product(nodeRows(l, dim), nodeRows(r, dim))
	act.apply(out)
	return out, nil
}

// Symmetric returns act(E·Eᵗ) over nodes 1...
func Symmetric(e types.Matrix, dim int, act Activation) (*mat.Dense, error) {
	if e.Rows < 2 {
		return nil, fmt.Errorf("%w: no node rows", ErrShapeMismatch)
	}
	dim = truncate(dim, e.Cols)
	x := nodeRows(e, dim)
	out := product(x, x)
	act.apply(out)
	return out, nil
}

// Diagonal returns act(E·diag(D)·Eᵗ) over nodes 1... D may be stored as a
// d x 1 or 1 x d matrix.
func Diagonal(e, d types.Matrix, dim int, act Activation) (*mat.Dense, error) {
	if len(d.Data) != e.Cols {
		return nil, fmt.Errorf("%w: E has %d columns, D has %d elements", ErrShapeMismatch, e.Cols, len(d.Data))
	}
	if e.Rows < 2 {
		return nil, fmt.Errorf("%w: no node rows", ErrShapeMismatch)
	}
	dim = truncate(dim, e.Cols)
	x := nodeRows(e, dim)
	scaled := mat.DenseCopyOf(x)
	rows, _ := scaled.Dims()
	for i := 0; i < rows; i++ {
		for c := 0; c < dim; c++ {
			scaled.Set(i, c, scaled.At(i, c)*float64(d.Data[c]))
		}
	}
	out := product(scaled, x)
	act.apply(out)
	return out, nil
}

// EigenEncode eigendecomposes the adjacency matrix of g and returns the k
// eigenvectors (as columns) and eigenvalues of largest absolute value, in
// descending order of absolute value. k <= 0 or k > n keeps all of them.
func EigenEncode(g *graph.Graph, k int) (*mat.Dense, []float64, error) {
	n := g.VertexCount()
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: empty graph", ErrShapeMismatch)
	}
	adj := mat.NewSymDense(n, nil)
	for src := uint32(1); int(src) <= n; src++ {
		nbs, _ := g.Neighbors(src)
		for _, dst := range nbs {
			adj.SetSym(int(src)-1, int(dst)-1, 1)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(adj, true); !ok {
		return nil, nil, ErrEigenFailed
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(math.Abs(values[b]), math.Abs(values[a]))
	})

	k = truncate(k, n)
	v := mat.NewDense(n, k, nil)
	lambda := make([]float64, k)
	for c := 0; c < k; c++ {
		src := order[c]
		lambda[c] = values[src]
		for r := 0; r < n; r++ {
			v.Set(r, c, vectors.At(r, src))
		}
	}
	return v, lambda, nil
}

// Eigen returns the rank-k spectral reconstruction V·diag(λ)·Vᵗ of the
// adjacency matrix of g.
func Eigen(g *graph.Graph, k int) (*mat.Dense, error) {
	v, lambda, err := EigenEncode(g, k)
	if err != nil {
		return nil, err
	}
	scaled := mat.DenseCopyOf(v)
	rows, cols := scaled.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			scaled.Set(r, c, scaled.At(r, c)*lambda[c])
		}
	}
	return product(scaled, v), nil
}
