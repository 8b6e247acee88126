package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/rand/v2"
)

const digestSample = 1024

// Digest returns a SHA-256 digest of a deterministic sample of the graph
// arrays. The sampling PRNG is seeded from a hash of the first 1024 offsets
// and targets, so reconstructions of the same graph share a digest. Both
// hashes cover the array lengths, which tells apart graphs whose samples
// coincide, such as edgeless graphs of different orders.
func (g *Graph) Digest() [sha256.Size]byte {
	lengths := binary.LittleEndian.AppendUint64(nil, uint64(len(g.Offsets)))
	lengths = binary.LittleEndian.AppendUint64(lengths, uint64(len(g.Targets)))

	head := sha256.New()
	head.Write(lengths)
	head.Write(offsetBytes(g.Offsets[:min(digestSample, len(g.Offsets))]))
	head.Write(targetBytes(g.Targets[:min(digestSample, len(g.Targets))]))
	seed := head.Sum(nil)

	rng := rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(seed[0:8]),
		binary.LittleEndian.Uint64(seed[8:16]),
	))

	offs := make([]uint64, 0, digestSample)
	tgts := make([]uint32, 0, digestSample)
	if len(g.Offsets) > 0 {
		for i := 0; i < digestSample; i++ {
			offs = append(offs, g.Offsets[rng.IntN(len(g.Offsets))])
		}
	}
	if len(g.Targets) > 0 {
		for i := 0; i < digestSample; i++ {
			tgts = append(tgts, g.Targets[rng.IntN(len(g.Targets))])
		}
	}

	h := sha256.New()
	h.Write(lengths)
	h.Write(offsetBytes(offs))
	h.Write(targetBytes(tgts))
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HexDigest returns Digest as a hex string.
func (g *Graph) HexDigest() string {
	d := g.Digest()
	return hex.EncodeToString(d[:])
}

func offsetBytes(v []uint64) []byte {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(b[8*i:], x)
	}
	return b
}

func targetBytes(v []uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], x)
	}
	return b
}
