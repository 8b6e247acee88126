package evaluate

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sanonone/grl/pkg/graph"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrSingleClass is returned when the labels hold only one class.
var ErrSingleClass = errors.New("auc needs both positive and negative labels")

// AUC returns the area under the ROC curve of scores against labels.
func AUC(labels []bool, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("%w: %d labels, %d scores", ErrLengthMismatch, len(labels), len(scores))
	}
	pos := 0
	for _, l := range labels {
		if l {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0, ErrSingleClass
	}

	y := slices.Clone(scores)
	classes := slices.Clone(labels)
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// ReconstructionAUC scores a decoded n x n matrix against the adjacency of
// g over every ordered pair of distinct nodes.
func ReconstructionAUC(scores *mat.Dense, g *graph.Graph) (float64, error) {
	n := g.VertexCount()
	r, c := scores.Dims()
	if r != n || c != n {
		return 0, fmt.Errorf("%w: scores are %dx%d, graph has %d nodes", ErrLengthMismatch, r, c, n)
	}

	labels := make([]bool, 0, n*(n-1))
	values := make([]float64, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			labels = append(labels, g.HasEdge(uint32(i+1), uint32(j+1)))
			values = append(values, scores.At(i, j))
		}
	}
	return AUC(labels, values)
}
