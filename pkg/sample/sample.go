// Package sample draws balanced, labelled batches of node pairs from a graph.
//
// A sampler combines a positive generator (an existing edge, or a pair taken
// from a random walk) with a negative generator (a uniformly random pair or a
// verified non-edge). Balanced draws n/2 of each, labels them 1 and 0 and
// shuffles pairs and labels with the same permutation.
//
// Rejection samplers retry in a bounded loop and fail with
// ErrSamplingExhausted instead of recursing on pathological graphs.
package sample

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/sanonone/grl/pkg/core/types"
	"github.com/sanonone/grl/pkg/graph"
	"github.com/sanonone/grl/pkg/metrics"
)

// MaxRetries bounds every rejection loop.
const MaxRetries = 4096

// nonEdgeCandidates is the number of targets tried per non-edge draw.
const nonEdgeCandidates = 16

var (
	// ErrSamplingExhausted is returned when a rejection sampler hits MaxRetries.
	ErrSamplingExhausted = errors.New("sampling exhausted")
	// ErrOddBatch is returned for batch sizes that cannot be split in halves.
	ErrOddBatch = errors.New("batch size must be even")
	// ErrEmptyGraph is returned when sampling from a graph without vertices.
	ErrEmptyGraph = errors.New("graph has no vertices")
	// ErrUnknownSampler is returned by Get for unregistered names.
	ErrUnknownSampler = errors.New("unknown sampler")
	// ErrMissingMask is returned by masked samplers called without a mask.
	ErrMissingMask = errors.New("masked sampler requires an edge mask")
)

// Options carries the arguments of the primitive generators.
type Options struct {
	// VCount2 is the size of the target universe of a bimodal graph; 0 for
	// unimodal graphs.
	VCount2 int
	// WalkLength is the number of steps of random-walk positives.
	WalkLength int
	// Mask restricts positives to edges whose mask bit is 1.
	Mask []uint8
	// ExcludeEdges makes random-pair negatives reject existing edges. By
	// default random pairs keep the label noise of noise-contrastive sampling.
	ExcludeEdges bool
}

// Batch is a set of labelled pairs; Y[k] labels X[k].
type Batch struct {
	X []types.Pair
	Y []float32
}

// Len returns the batch size.
func (b *Batch) Len() int {
	return len(b.X)
}

// PairFunc draws a single pair.
type PairFunc func(g *graph.Graph, rng *rand.Rand, opts Options) (types.Pair, error)

// Sampler draws a balanced batch of n pairs.
type Sampler func(g *graph.Graph, n int, rng *rand.Rand, opts Options) (*Batch, error)

// Balanced builds a sampler from a positive and a negative generator.
func Balanced(positive, negative PairFunc) Sampler {
	return func(g *graph.Graph, n int, rng *rand.Rand, opts Options) (*Batch, error) {
		if n%2 != 0 || n < 0 {
			return nil, fmt.Errorf("%w: %d", ErrOddBatch, n)
		}
		if g.VertexCount() == 0 {
			return nil, ErrEmptyGraph
		}
		half := n / 2
		b := &Batch{X: make([]types.Pair, n), Y: make([]float32, n)}
		for i := 0; i < half; i++ {
			p, err := positive(g, rng, opts)
			if err != nil {
				return nil, err
			}
			b.X[i], b.Y[i] = p, 1
		}
		for i := half; i < n; i++ {
			p, err := negative(g, rng, opts)
			if err != nil {
				return nil, err
			}
			b.X[i], b.Y[i] = p, 0
		}
		rng.Shuffle(n, func(i, j int) {
			b.X[i], b.X[j] = b.X[j], b.X[i]
			b.Y[i], b.Y[j] = b.Y[j], b.Y[i]
		})
		return b, nil
	}
}

func randomNode(rng *rand.Rand, n int) uint32 {
	return uint32(rng.IntN(n) + 1)
}

func targetUniverse(g *graph.Graph, opts Options) int {
	if opts.VCount2 > 0 {
		return opts.VCount2
	}
	return g.VertexCount()
}

// RandomEdge picks a uniform node and a uniform neighbour of it, redrawing
// the node while it is isolated.
func RandomEdge(g *graph.Graph, rng *rand.Rand, _ Options) (types.Pair, error) {
	n := g.VertexCount()
	if n == 0 {
		return types.Pair{}, ErrEmptyGraph
	}
	for try := 0; try < MaxRetries; try++ {
		src := randomNode(rng, n)
		nbs, _ := g.Neighbors(src)
		if len(nbs) == 0 {
			metrics.SamplerRetries.WithLabelValues("edge").Inc()
			continue
		}
		return types.Pair{src, nbs[rng.IntN(len(nbs))]}, nil
	}
	return types.Pair{}, fmt.Errorf("%w: no edge after %d draws", ErrSamplingExhausted, MaxRetries)
}

// RandomPair draws two independent uniform nodes; for bimodal graphs the
// target comes from 1..VCount2. With ExcludeEdges set, existing edges are
// rejected.
func RandomPair(g *graph.Graph, rng *rand.Rand, opts Options) (types.Pair, error) {
	n, n2 := g.VertexCount(), targetUniverse(g, opts)
	if n == 0 || n2 == 0 {
		return types.Pair{}, ErrEmptyGraph
	}
	for try := 0; try < MaxRetries; try++ {
		p := types.Pair{randomNode(rng, n), randomNode(rng, n2)}
		if !opts.ExcludeEdges || !g.HasEdge(p[0], p[1]) {
			return p, nil
		}
		metrics.SamplerRetries.WithLabelValues("pair").Inc()
	}
	return types.Pair{}, fmt.Errorf("%w: every random pair was an edge", ErrSamplingExhausted)
}

// RandomNonEdge draws a source and up to 16 candidate targets and returns the
// first candidate that is not a neighbour of the source.
func RandomNonEdge(g *graph.Graph, rng *rand.Rand, opts Options) (types.Pair, error) {
	n, n2 := g.VertexCount(), targetUniverse(g, opts)
	if n == 0 || n2 == 0 {
		return types.Pair{}, ErrEmptyGraph
	}
	for try := 0; try < MaxRetries; try++ {
		src := randomNode(rng, n)
		nbs, _ := g.Neighbors(src)
		for c := 0; c < nonEdgeCandidates; c++ {
			dst := randomNode(rng, n2)
			if !slices.Contains(nbs, dst) {
				return types.Pair{src, dst}, nil
			}
		}
		metrics.SamplerRetries.WithLabelValues("non_edge").Inc()
	}
	return types.Pair{}, fmt.Errorf("%w: no non-edge after %d draws", ErrSamplingExhausted, MaxRetries)
}

// RandomWalk performs a uniform random walk of length steps from start and
// returns the visited nodes, start included. The walk stops early at
// isolated nodes.
func RandomWalk(g *graph.Graph, start uint32, steps int, rng *rand.Rand) []uint32 {
	walk := make([]uint32, 1, steps+1)
	walk[0] = start
	cur := start
	for i := 0; i < steps; i++ {
		nbs, _ := g.Neighbors(cur)
		if len(nbs) == 0 {
			break
		}
		cur = nbs[rng.IntN(len(nbs))]
		walk = append(walk, cur)
	}
	return walk
}

// RandomWalkPair walks WalkLength steps from a random start, shuffles the
// visited nodes and returns the first two as a positive pair.
func RandomWalkPair(g *graph.Graph, rng *rand.Rand, opts Options) (types.Pair, error) {
	n := g.VertexCount()
	if n == 0 {
		return types.Pair{}, ErrEmptyGraph
	}
	steps := max(opts.WalkLength, 1)
	for try := 0; try < MaxRetries; try++ {
		walk := RandomWalk(g, randomNode(rng, n), steps, rng)
		if len(walk) < 2 {
			metrics.SamplerRetries.WithLabelValues("walk").Inc()
			continue
		}
		rng.Shuffle(len(walk), func(i, j int) { walk[i], walk[j] = walk[j], walk[i] })
		return types.Pair{walk[0], walk[1]}, nil
	}
	return types.Pair{}, fmt.Errorf("%w: every walk started at an isolated node", ErrSamplingExhausted)
}

// WithMask wraps a positive generator so it only returns pairs that are not
// masked out, i.e. edges whose mask bit is 1. Pairs that are not edges, such
// as non-adjacent walk pairs, are never masked.
func WithMask(positive PairFunc) PairFunc {
	return func(g *graph.Graph, rng *rand.Rand, opts Options) (types.Pair, error) {
		if len(opts.Mask) != g.EdgeCount() {
			return types.Pair{}, fmt.Errorf("%w: mask has %d entries for %d stored pairs", ErrMissingMask, len(opts.Mask), g.EdgeCount())
		}
		for try := 0; try < MaxRetries; try++ {
			p, err := positive(g, rng, opts)
			if err != nil {
				return types.Pair{}, err
			}
			if !g.IsMasked(p[0], p[1], opts.Mask) {
				return p, nil
			}
			metrics.SamplerRetries.WithLabelValues("masked").Inc()
		}
		return types.Pair{}, fmt.Errorf("%w: every drawn edge was masked", ErrSamplingExhausted)
	}
}

// MaskedEdge draws random edges allowed by the mask.
var MaskedEdge = WithMask(RandomEdge)

var samplers = map[string]Sampler{
	"nce":         Balanced(RandomEdge, RandomPair),
	"neg":         Balanced(RandomEdge, RandomNonEdge),
	"walk":        Balanced(RandomWalkPair, RandomPair),
	"nce_masked":  Balanced(MaskedEdge, RandomPair),
	"walk_masked": Balanced(WithMask(RandomWalkPair), RandomPair),
}

// NCE draws random edges against uniformly random pairs.
func NCE(g *graph.Graph, n int, rng *rand.Rand, opts Options) (*Batch, error) {
	return samplers["nce"](g, n, rng, opts)
}

// Neg draws random edges against verified non-edges.
func Neg(g *graph.Graph, n int, rng *rand.Rand, opts Options) (*Batch, error) {
	return samplers["neg"](g, n, rng, opts)
}

// Get returns a named sampler: nce, neg, walk, nce_masked or walk_masked.
func Get(name string) (Sampler, error) {
	s, ok := samplers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSampler, name)
	}
	return s, nil
}

// Names lists the registered sampler names in sorted order.
func Names() []string {
	names := make([]string, 0, len(samplers))
	for name := range samplers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
