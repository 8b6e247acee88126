package graph

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	gonumgraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

var (
	// ErrNotSquare is returned for adjacency matrices with ragged or
	// non-square rows.
	ErrNotSquare = errors.New("adjacency matrix must be square")
	// ErrEdgeListNotSorted is returned by FromOGB when the edge index is not
	// sorted by source.
	ErrEdgeListNotSorted = errors.New("edge list not sorted by source")
)

// FromAdjacency converts a dense square adjacency matrix. Row i describes
// node i+1; any non-zero entry is an edge.
func FromAdjacency(a [][]uint8) (*Graph, error) {
	n := len(a)
	offsets := make([]uint64, n+2)
	var targets []uint32
	for i, row := range a {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrNotSquare, i, len(row), n)
		}
		for j, v := range row {
			if v != 0 {
				targets = append(targets, uint32(j+1))
			}
		}
		offsets[i+2] = uint64(len(targets))
	}
	if targets == nil {
		targets = []uint32{}
	}
	return &Graph{Offsets: offsets, Targets: targets}, nil
}

// ToAdjacency returns the dense n x n adjacency matrix of g.
func (g *Graph) ToAdjacency() [][]uint8 {
	n := g.VertexCount()
	a := make([][]uint8, n)
	for i := range a {
		a[i] = make([]uint8, n)
		for _, j := range g.neighbors(uint32(i + 1)) {
			a[i][j-1] = 1
		}
	}
	return a
}

// FromEdgeList symmetrizes el by appending the reversed pairs, removes
// duplicates and builds the graph. Ids are 1-based; the vertex count is the
// largest id present.
func FromEdgeList(el []Edge) (*Graph, error) {
	var maxID uint32
	for k, e := range el {
		if e[0] == 0 || e[1] == 0 {
			return nil, fmt.Errorf("%w: edge %d uses reserved id 0", ErrNodeOutOfRange, k)
		}
		maxID = max(maxID, e[0], e[1])
	}
	return fromSymmetrized(symmetrize(el), int(maxID)), nil
}

// ToEdgeList returns every stored directed pair, so each undirected edge
// appears in both directions.
func (g *Graph) ToEdgeList() []Edge {
	out := make([]Edge, 0, g.EdgeCount())
	for src := uint32(1); int(src) <= g.VertexCount(); src++ {
		for _, dst := range g.neighbors(src) {
			out = append(out, Edge{src, dst})
		}
	}
	return out
}

// Edge is a 1-based (source, target) pair.
type Edge [2]uint32

// OGBDataset is the library-agnostic graph format used by the Open Graph
// Benchmark: a 2 x E edge index with 0-based node ids and a node count.
type OGBDataset struct {
	EdgeIndex [2][]int64
	NumNodes  int
}

// FromOGB converts an OGB-style dataset. The edge index must be sorted by its
// source row; it is then symmetrized and deduplicated.
func FromOGB(ds OGBDataset) (*Graph, error) {
	src, dst := ds.EdgeIndex[0], ds.EdgeIndex[1]
	if len(src) != len(dst) {
		return nil, fmt.Errorf("%w: edge index rows differ in length (%d, %d)", ErrMalformed, len(src), len(dst))
	}
	el := make([]Edge, len(src))
	for k := range src {
		if k > 0 && src[k] < src[k-1] {
			return nil, fmt.Errorf("%w: position %d", ErrEdgeListNotSorted, k)
		}
		if src[k] < 0 || dst[k] < 0 || src[k] >= int64(ds.NumNodes) || dst[k] >= int64(ds.NumNodes) {
			return nil, fmt.Errorf("%w: edge %d (%d, %d) with %d nodes", ErrNodeOutOfRange, k, src[k], dst[k], ds.NumNodes)
		}
		el[k] = Edge{uint32(src[k] + 1), uint32(dst[k] + 1)}
	}
	return fromSymmetrized(symmetrize(el), ds.NumNodes), nil
}

// FromUndirected converts a gonum undirected graph. Node ids are ranked in
// ascending order and mapped to 1..n; neighbour lists are sorted.
func FromUndirected(u gonumgraph.Undirected) *Graph {
	var ids []int64
	for it := u.Nodes(); it.Next(); {
		ids = append(ids, it.Node().ID())
	}
	slices.Sort(ids)
	index := make(map[int64]uint32, len(ids))
	for k, id := range ids {
		index[id] = uint32(k + 1)
	}

	offsets := make([]uint64, len(ids)+2)
	targets := []uint32{}
	for k, id := range ids {
		start := len(targets)
		for it := u.From(id); it.Next(); {
			targets = append(targets, index[it.Node().ID()])
		}
		slices.Sort(targets[start:])
		offsets[k+2] = uint64(len(targets))
	}
	return &Graph{Offsets: offsets, Targets: targets}
}

// ToUndirected converts g to a gonum undirected graph with node ids 0..n-1.
// Only the upper-triangular half of the pairs is inserted and self-loops are
// dropped, since gonum simple graphs reject them.
func (g *Graph) ToUndirected() *simple.UndirectedGraph {
	u := simple.NewUndirectedGraph()
	for i := 0; i < g.VertexCount(); i++ {
		u.AddNode(simple.Node(i))
	}
	for _, e := range g.ToEdgeList() {
		if e[0] < e[1] {
			u.SetEdge(u.NewEdge(simple.Node(e[0]-1), simple.Node(e[1]-1)))
		}
	}
	return u
}

func symmetrize(el []Edge) []Edge {
	out := make([]Edge, 0, 2*len(el))
	for _, e := range el {
		out = append(out, e, Edge{e[1], e[0]})
	}
	slices.SortFunc(out, func(a, b Edge) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(a[1], b[1])
	})
	return slices.Compact(out)
}

// fromSymmetrized builds a graph from an edge list sorted by source.
func fromSymmetrized(el []Edge, n int) *Graph {
	offsets := make([]uint64, n+2)
	targets := make([]uint32, len(el))
	for k, e := range el {
		targets[k] = e[1]
		offsets[e[0]+1]++
	}
	for i := 2; i < len(offsets); i++ {
		offsets[i] += offsets[i-1]
	}
	return &Graph{Offsets: offsets, Targets: targets}
}
