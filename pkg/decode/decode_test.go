package decode

import (
	"errors"
	"math"
	"testing"

	"github.com/sanonone/grl/pkg/core/types"
	"github.com/sanonone/grl/pkg/core/vecmath"
	"github.com/sanonone/grl/pkg/graph"
)

func matrix(t *testing.T, rows, cols int, data ...float32) types.Matrix {
	t.Helper()
	m, err := types.NewMatrix(rows, cols, data)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	return m
}

func floatsAreEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestAsymmetric(t *testing.T) {
	// Row 0 is reserved and must be ignored.
	l := matrix(t, 3, 2, 9, 9, 1, 0, 0, 1)
	r := matrix(t, 3, 2, 9, 9, 2, 0, 0, 3)

	got, err := Asymmetric(l, r, 0, vecmath.Identity)
	if err != nil {
		t.Fatalf("Asymmetric: %v", err)
	}
	want := [][]float64{{2, 0}, {0, 3}}
	for i := range want {
		for j := range want[i] {
			if !floatsAreEqual(got.At(i, j), want[i][j]) {
				t.Errorf("At(%d,%d) = %g, want %g", i, j, got.At(i, j), want[i][j])
			}
		}
	}

	sig, err := Asymmetric(l, r, 1, nil)
	if err != nil {
		t.Fatalf("Asymmetric: %v", err)
	}
	if !floatsAreEqual(sig.At(0, 0), float64(vecmath.Sigmoid(2))) {
		t.Errorf("sigmoid(2) = %g", sig.At(0, 0))
	}
	if !floatsAreEqual(sig.At(1, 1), 0.5) {
		t.Errorf("truncated score = %g, want 0.5", sig.At(1, 1))
	}

	if _, err := Asymmetric(l, matrix(t, 3, 1, 0, 0, 0), 0, nil); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch", err)
	}
}

func TestSymmetricAndDiagonal(t *testing.T) {
	e := matrix(t, 3, 2, 0, 0, 1, 2, 3, 4)
	d := matrix(t, 2, 1, 2, -1)

	sym, err := Symmetric(e, 0, vecmath.Identity)
	if err != nil {
		t.Fatalf("Symmetric: %v", err)
	}
	if got := sym.At(0, 1); !floatsAreEqual(got, 11) {
		t.Errorf("sym(0,1) = %g, want 11", got)
	}
	if sym.At(0, 1) != sym.At(1, 0) {
		t.Errorf("symmetric decode is not symmetric")
	}

	diag, err := Diagonal(e, d, 0, vecmath.Identity)
	if err != nil {
		t.Fatalf("Diagonal: %v", err)
	}
	// 1*3*2 + 2*4*(-1)
	if got := diag.At(0, 1); !floatsAreEqual(got, -2) {
		t.Errorf("diag(0,1) = %g, want -2", got)
	}
	trunc, err := Diagonal(e, d, 1, vecmath.Identity)
	if err != nil {
		t.Fatalf("Diagonal: %v", err)
	}
	if got := trunc.At(1, 1); !floatsAreEqual(got, 18) {
		t.Errorf("truncated diag(1,1) = %g, want 18", got)
	}
}

func TestEigenReconstructsAdjacency(t *testing.T) {
	g := graph.Erdos(30, 0.2, 3)
	n := g.VertexCount()

	full, err := Eigen(g, 0)
	if err != nil {
		t.Fatalf("Eigen: %v", err)
	}
	adj := g.ToAdjacency()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if math.Abs(full.At(i, j)-float64(adj[i][j])) > 1e-8 {
				t.Fatalf("full reconstruction differs at (%d,%d): %g", i, j, full.At(i, j))
			}
		}
	}

	v, lambda, err := EigenEncode(g, 5)
	if err != nil {
		t.Fatalf("EigenEncode: %v", err)
	}
	if r, c := v.Dims(); r != n || c != 5 || len(lambda) != 5 {
		t.Fatalf("dims = %dx%d with %d values", r, c, len(lambda))
	}
	for i := 1; i < len(lambda); i++ {
		if math.Abs(lambda[i]) > math.Abs(lambda[i-1]) {
			t.Errorf("eigenvalues not sorted by magnitude: %v", lambda)
		}
	}
}
