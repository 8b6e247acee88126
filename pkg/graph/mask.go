package graph

import (
	"math/rand/v2"
	"slices"
)

// EdgeMask draws a binary attribute for every stored pair, each bit set with
// probability p. Both directions of an undirected edge share the same bit, so
// the mask splits the edge set rather than the pair set.
func (g *Graph) EdgeMask(p float64, rng *rand.Rand) []uint8 {
	mask := make([]uint8, g.EdgeCount())
	for src := uint32(1); int(src) <= g.VertexCount(); src++ {
		for k := g.Offsets[src]; k < g.Offsets[src+1]; k++ {
			dst := g.Targets[k]
			if dst < src {
				continue
			}
			var bit uint8
			if rng.Float64() < p {
				bit = 1
			}
			mask[k] = bit
			if dst == src {
				continue
			}
			if r, ok := g.slot(dst, src); ok {
				mask[r] = bit
			}
		}
	}
	return mask
}

// IsMasked reports whether (i, j) is an edge whose mask bit is 0.
func (g *Graph) IsMasked(i, j uint32, mask []uint8) bool {
	k, ok := g.slot(i, j)
	return ok && mask[k] == 0
}

// slot returns the index in Targets of j within the neighbour list of i.
func (g *Graph) slot(i, j uint32) (uint64, bool) {
	if int(i) > g.VertexCount() {
		return 0, false
	}
	k := slices.Index(g.neighbors(i), j)
	if k < 0 {
		return 0, false
	}
	return g.Offsets[i] + uint64(k), true
}
