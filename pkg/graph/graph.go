// Package graph implements the packed, CSR-like graph structure the trainer
// and the samplers operate on.
//
// A graph is a pair of arrays. Offsets has length n+2: Offsets[i] is the index
// into Targets where the neighbour list of node i begins and Offsets[i+1]
// where it ends. Nodes are 1-indexed; slot 0 is reserved and always empty, so
// node id 0 never appears in Targets. Every undirected edge is stored twice,
// once per endpoint, which makes len(Targets) = 2m.
//
// Graphs are immutable once built. Subgraph produces a new, re-indexed graph.
package graph

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrNodeOutOfRange is returned when a node id exceeds the vertex count.
	ErrNodeOutOfRange = errors.New("node id out of range")
	// ErrInvalidSubset is returned by Subgraph for unsorted, duplicated or
	// out-of-range vertex subsets.
	ErrInvalidSubset = errors.New("vertex subset must be strictly increasing and within range")
	// ErrMalformed is returned when offsets and targets are inconsistent.
	ErrMalformed = errors.New("malformed graph")
)

// Graph is the packed adjacency structure.
type Graph struct {
	Offsets []uint64
	Targets []uint32
}

// New wraps offsets and targets after validating them.
func New(offsets []uint64, targets []uint32) (*Graph, error) {
	g := &Graph{Offsets: offsets, Targets: targets}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks the structural invariants: reserved slot 0, monotone
// offsets, a final offset equal to len(Targets) and targets within 1..n.
func (g *Graph) Validate() error {
	if len(g.Offsets) < 2 {
		return fmt.Errorf("%w: offsets must have at least 2 elements, got %d", ErrMalformed, len(g.Offsets))
	}
	if g.Offsets[0] != 0 || g.Offsets[1] != 0 {
		return fmt.Errorf("%w: slot 0 must be empty", ErrMalformed)
	}
	for i := 1; i < len(g.Offsets); i++ {
		if g.Offsets[i] < g.Offsets[i-1] {
			return fmt.Errorf("%w: offsets decrease at %d", ErrMalformed, i)
		}
	}
	if last := g.Offsets[len(g.Offsets)-1]; last != uint64(len(g.Targets)) {
		return fmt.Errorf("%w: last offset %d != %d targets", ErrMalformed, last, len(g.Targets))
	}
	n := uint32(g.VertexCount())
	for i, t := range g.Targets {
		if t == 0 || t > n {
			return fmt.Errorf("%w: target %d at %d", ErrNodeOutOfRange, t, i)
		}
	}
	return nil
}

// VertexCount returns n.
func (g *Graph) VertexCount() int {
	return len(g.Offsets) - 2
}

// EdgeCount returns the number of stored directed pairs, 2m for a symmetric graph.
func (g *Graph) EdgeCount() int {
	return len(g.Targets)
}

// Degree returns the degrees of nodes 1..n; element k is the degree of node k+1.
func (g *Graph) Degree() []int {
	n := g.VertexCount()
	deg := make([]int, n)
	for i := 1; i <= n; i++ {
		deg[i-1] = int(g.Offsets[i+1] - g.Offsets[i])
	}
	return deg
}

// DegreeOf returns the degree of node i.
func (g *Graph) DegreeOf(i uint32) (int, error) {
	if err := g.checkNode(i); err != nil {
		return 0, err
	}
	return int(g.Offsets[i+1] - g.Offsets[i]), nil
}

// Density returns EdgeCount / (n^2 - n).
func (g *Graph) Density() float64 {
	n := float64(g.VertexCount())
	if n < 2 {
		return 0
	}
	return float64(g.EdgeCount()) / (n*n - n)
}

// Neighbors returns the neighbour list of node i without copying. Isolated
// nodes, and the reserved node 0, yield an empty slice.
func (g *Graph) Neighbors(i uint32) ([]uint32, error) {
	if err := g.checkNode(i); err != nil {
		return nil, err
	}
	return g.Targets[g.Offsets[i]:g.Offsets[i+1]], nil
}

// neighbors is the unchecked variant used on hot paths with ids already
// known to be in range.
func (g *Graph) neighbors(i uint32) []uint32 {
	return g.Targets[g.Offsets[i]:g.Offsets[i+1]]
}

// HasEdge reports whether j is a neighbour of i. Out-of-range ids are not edges.
func (g *Graph) HasEdge(i, j uint32) bool {
	if int(i) > g.VertexCount() {
		return false
	}
	return slices.Contains(g.neighbors(i), j)
}

// Nodes enumerates node ids 1..n.
func (g *Graph) Nodes() []uint32 {
	n := g.VertexCount()
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i + 1)
	}
	return out
}

// Equal reports whether both graphs have identical arrays.
func (g *Graph) Equal(o *Graph) bool {
	return slices.Equal(g.Offsets, o.Offsets) && slices.Equal(g.Targets, o.Targets)
}

// Clone returns a deep copy, detached from any shared memory the arrays may
// point into.
func (g *Graph) Clone() *Graph {
	return &Graph{Offsets: slices.Clone(g.Offsets), Targets: slices.Clone(g.Targets)}
}

func (g *Graph) checkNode(i uint32) error {
	if int(i) > g.VertexCount() {
		return fmt.Errorf("%w: %d > %d", ErrNodeOutOfRange, i, g.VertexCount())
	}
	return nil
}

// Subgraph returns the subgraph induced by vs. The i-th element of vs becomes
// node i+1 of the result, and only edges with both endpoints in vs are kept.
func (g *Graph) Subgraph(vs []uint32) (*Graph, error) {
	n := g.VertexCount()
	// pos maps an original id to its 1-based position in vs; 0 means absent.
	pos := make([]uint32, n+1)
	for k, v := range vs {
		if v == 0 || int(v) > n || (k > 0 && v <= vs[k-1]) {
			return nil, fmt.Errorf("%w: element %d (%d)", ErrInvalidSubset, k, v)
		}
		pos[v] = uint32(k + 1)
	}

	offsets := make([]uint64, len(vs)+2)
	for k, v := range vs {
		var deg uint64
		for _, u := range g.neighbors(v) {
			if pos[u] != 0 {
				deg++
			}
		}
		offsets[k+2] = offsets[k+1] + deg
	}

	targets := make([]uint32, offsets[len(offsets)-1])
	cnt := 0
	for _, v := range vs {
		for _, u := range g.neighbors(v) {
			if p := pos[u]; p != 0 {
				targets[cnt] = p
				cnt++
			}
		}
	}
	return &Graph{Offsets: offsets, Targets: targets}, nil
}
