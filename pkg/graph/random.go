package graph

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/graph/simple"
)

// ErrUnknownGenerator is returned by Generate for unregistered generator names.
var ErrUnknownGenerator = errors.New("unknown graph generator")

// Generator builds a random graph with n nodes from a single parameter and an
// explicit seed. Equal arguments always yield equal graphs.
type Generator func(n int, param float64, seed uint64) (*Graph, error)

var generators = map[string]Generator{
	"erdos": func(n int, p float64, seed uint64) (*Graph, error) {
		return Erdos(n, p, seed), nil
	},
	"barabasi": func(n int, m float64, seed uint64) (*Graph, error) {
		return Barabasi(n, int(m), seed), nil
	},
	"geometric": func(n int, r float64, seed uint64) (*Graph, error) {
		return Geometric(n, r, seed), nil
	},
}

// Generate dispatches to a generator by name: "erdos" (edge probability),
// "barabasi" (edges per new node) or "geometric" (radius).
func Generate(name string, n int, param float64, seed uint64) (*Graph, error) {
	gen, ok := generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, name)
	}
	return gen(n, param, seed)
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
}

func emptyUndirected(n int) *simple.UndirectedGraph {
	u := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		u.AddNode(simple.Node(i))
	}
	return u
}

// Erdos samples a G(n, p) graph.
func Erdos(n int, p float64, seed uint64) *Graph {
	rng := newRand(seed)
	u := emptyUndirected(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rng.Float64() < p {
				u.SetEdge(u.NewEdge(simple.Node(i), simple.Node(j)))
			}
		}
	}
	return FromUndirected(u)
}

// Barabasi grows a preferential-attachment graph: each new node connects to
// up to m existing nodes chosen proportionally to degree plus one.
func Barabasi(n, m int, seed uint64) *Graph {
	rng := newRand(seed)
	u := emptyUndirected(n)
	// pool holds every node once plus once per incident edge endpoint.
	pool := make([]int64, 0, n*(2*m+1))
	for v := 0; v < n; v++ {
		want := min(m, v)
		// chosen keeps draw order; map iteration would break determinism.
		chosen := make([]int64, 0, want)
		seen := make(map[int64]struct{}, want)
		for len(chosen) < want {
			w := pool[rng.IntN(len(pool))]
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			chosen = append(chosen, w)
		}
		pool = append(pool, int64(v))
		for _, w := range chosen {
			u.SetEdge(u.NewEdge(simple.Node(v), simple.Node(w)))
			pool = append(pool, int64(v), w)
		}
	}
	return FromUndirected(u)
}

// Geometric places n points uniformly in the unit square and connects pairs
// closer than r.
func Geometric(n int, r float64, seed uint64) *Graph {
	rng := newRand(seed)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := range xs {
		xs[i], ys[i] = rng.Float64(), rng.Float64()
	}
	u := emptyUndirected(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Hypot(xs[i]-xs[j], ys[i]-ys[j]) < r {
				u.SetEdge(u.NewEdge(simple.Node(i), simple.Node(j)))
			}
		}
	}
	return FromUndirected(u)
}

// IsGenerator reports whether name is a registered generator.
func IsGenerator(name string) bool {
	_, ok := generators[name]
	return ok
}
