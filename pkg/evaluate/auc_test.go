package evaluate

import (
	"errors"
	"math"
	"testing"

	"github.com/sanonone/grl/pkg/decode"
	"github.com/sanonone/grl/pkg/graph"
	"gonum.org/v1/gonum/mat"
)

func TestAUC(t *testing.T) {
	testCases := []struct {
		name   string
		labels []bool
		scores []float64
		want   float64
	}{
		{"perfect", []bool{false, false, true, true}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []bool{true, true, false, false}, []float64{0.1, 0.2, 0.8, 0.9}, 0},
		{"partial", []bool{false, false, true, true}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AUC(tc.labels, tc.scores)
			if err != nil {
				t.Fatalf("AUC: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("AUC = %v, want %v", got, tc.want)
			}
		})
	}

	scores := []float64{0.3, 0.1}
	if _, err := AUC([]bool{true, true}, scores); !errors.Is(err, ErrSingleClass) {
		t.Errorf("single class err = %v", err)
	}
	if _, err := AUC([]bool{true}, scores); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("length err = %v", err)
	}
	if scores[0] != 0.3 {
		t.Errorf("AUC reordered its input")
	}
}

func TestReconstructionAUC(t *testing.T) {
	g, err := graph.FromEdgeList([]graph.Edge{{1, 2}, {2, 3}, {4, 5}})
	if err != nil {
		t.Fatalf("FromEdgeList: %v", err)
	}
	n := g.VertexCount()
	adj := g.ToAdjacency()
	exact := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			exact.Set(i, j, float64(adj[i][j]))
		}
	}
	// Break ties so every positive outranks every negative.
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			exact.Set(i, j, exact.At(i, j)+float64(i*n+j)*1e-6)
		}
	}
	got, err := ReconstructionAUC(exact, g)
	if err != nil {
		t.Fatalf("ReconstructionAUC: %v", err)
	}
	if got != 1 {
		t.Errorf("AUC of the adjacency = %v, want 1", got)
	}

	if _, err := ReconstructionAUC(mat.NewDense(2, 2, nil), g); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("shape err = %v", err)
	}

	recon, err := decode.Eigen(g, n)
	if err != nil {
		t.Fatalf("Eigen: %v", err)
	}
	if _, err := ReconstructionAUC(recon, g); err != nil {
		t.Errorf("ReconstructionAUC(eigen): %v", err)
	}
}
