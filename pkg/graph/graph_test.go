package graph

import (
	"errors"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"testing"

	gonumgraph "gonum.org/v1/gonum/graph"
)

func testGraphs(t *testing.T) map[string]*Graph {
	t.Helper()
	out := make(map[string]*Graph)
	for _, c := range []struct {
		name  string
		n     int
		param float64
	}{
		{"erdos", 60, 0.1},
		{"barabasi", 80, 3},
		{"geometric", 70, 0.2},
	} {
		g, err := Generate(c.name, c.n, c.param, 42)
		if err != nil {
			t.Fatalf("Generate(%s): %v", c.name, err)
		}
		if err := g.Validate(); err != nil {
			t.Fatalf("%s: invalid graph: %v", c.name, err)
		}
		out[c.name] = g
	}
	return out
}

func countNodes(it gonumgraph.Nodes) int {
	n := 0
	for it.Next() {
		n++
	}
	return n
}

func TestCoreMatchesExternal(t *testing.T) {
	for name, g := range testGraphs(t) {
		t.Run(name, func(t *testing.T) {
			u := g.ToUndirected()
			if got, want := g.VertexCount(), countNodes(u.Nodes()); got != want {
				t.Fatalf("VertexCount = %d, want %d", got, want)
			}

			edges := 0
			for it := u.Edges(); it.Next(); {
				edges++
			}
			if got := g.EdgeCount(); got != 2*edges {
				t.Errorf("EdgeCount = %d, want %d", got, 2*edges)
			}

			deg := g.Degree()
			for i := range deg {
				if want := countNodes(u.From(int64(i))); deg[i] != want {
					t.Fatalf("degree of node %d = %d, want %d", i+1, deg[i], want)
				}
			}
		})
	}
}

func TestAdjacencyRoundTrip(t *testing.T) {
	for name, g := range testGraphs(t) {
		t.Run(name, func(t *testing.T) {
			back, err := FromAdjacency(g.ToAdjacency())
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(back.Offsets, g.Offsets) {
				t.Error("offsets differ after adjacency round trip")
			}
			if !back.Equal(g) {
				t.Error("targets differ after adjacency round trip")
			}
		})
	}
}

func TestUndirectedDoubleRoundTrip(t *testing.T) {
	for name, g := range testGraphs(t) {
		t.Run(name, func(t *testing.T) {
			once := FromUndirected(g.ToUndirected())
			twice := FromUndirected(once.ToUndirected())
			if !once.Equal(twice) {
				t.Error("double conversion is not stable")
			}
		})
	}
}

func TestGeneratorDeterminism(t *testing.T) {
	for _, name := range []string{"erdos", "barabasi", "geometric"} {
		a, _ := Generate(name, 50, map[string]float64{"erdos": 0.1, "barabasi": 2, "geometric": 0.2}[name], 7)
		b, _ := Generate(name, 50, map[string]float64{"erdos": 0.1, "barabasi": 2, "geometric": 0.2}[name], 7)
		if a.HexDigest() != b.HexDigest() {
			t.Errorf("%s: same seed produced different digests", name)
		}
		if !a.Equal(b) {
			t.Errorf("%s: same seed produced different graphs", name)
		}
	}

	a := Erdos(50, 0.2, 1)
	b := Erdos(50, 0.2, 2)
	if a.HexDigest() == b.HexDigest() {
		t.Error("different seeds produced the same digest")
	}

	if _, err := Generate("nope", 10, 1, 1); !errors.Is(err, ErrUnknownGenerator) {
		t.Errorf("got %v, want ErrUnknownGenerator", err)
	}
	if IsGenerator("nope") || !IsGenerator("geometric") {
		t.Error("IsGenerator disagrees with Generate")
	}
}

func TestDigestStableAcrossReconstruction(t *testing.T) {
	g := Barabasi(100, 2, 3)
	back, err := FromAdjacency(g.ToAdjacency())
	if err != nil {
		t.Fatal(err)
	}
	if g.Digest() != back.Digest() {
		t.Error("digest changed after reconstruction")
	}
}

func TestDigestDistinguishesOrder(t *testing.T) {
	// Edgeless graphs sample identical zero offsets.
	small, large := Erdos(10, 0, 1), Erdos(11, 0, 1)
	if small.EdgeCount() != 0 || large.EdgeCount() != 0 {
		t.Fatalf("expected edgeless graphs, got %d and %d edges", small.EdgeCount(), large.EdgeCount())
	}
	if small.Digest() == large.Digest() {
		t.Error("edgeless graphs of 10 and 11 vertices share a digest")
	}
}

func TestNeighbors(t *testing.T) {
	// 1-2, 2-3, node 4 isolated.
	g, err := FromAdjacency([][]uint8{
		{0, 1, 0, 0},
		{1, 0, 1, 0},
		{0, 1, 0, 0},
		{0, 0, 0, 0},
	})
	if err != nil {
		t.Fatal(err)
	}

	nbs, err := g.Neighbors(2)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(nbs, []uint32{1, 3}) {
		t.Errorf("Neighbors(2) = %v", nbs)
	}

	nbs, err = g.Neighbors(4)
	if err != nil || len(nbs) != 0 {
		t.Errorf("isolated node: got %v, %v", nbs, err)
	}

	nbs, err = g.Neighbors(0)
	if err != nil || len(nbs) != 0 {
		t.Errorf("reserved node 0: got %v, %v", nbs, err)
	}

	if _, err := g.Neighbors(5); !errors.Is(err, ErrNodeOutOfRange) {
		t.Errorf("got %v, want ErrNodeOutOfRange", err)
	}

	if got := g.Density(); got != 4.0/12.0 {
		t.Errorf("Density = %f", got)
	}
	if !g.HasEdge(1, 2) || !g.HasEdge(2, 1) || g.HasEdge(1, 3) || g.HasEdge(9, 1) {
		t.Error("HasEdge is inconsistent")
	}
}

func TestSubgraph(t *testing.T) {
	g := Erdos(40, 0.2, 11)

	t.Run("full", func(t *testing.T) {
		sub, err := g.Subgraph(g.Nodes())
		if err != nil {
			t.Fatal(err)
		}
		if !sub.Equal(g) {
			t.Error("subgraph of all vertices differs from the graph")
		}
	})

	t.Run("induced", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(1, 2))
		for trial := 0; trial < 20; trial++ {
			var vs []uint32
			for _, v := range g.Nodes() {
				if rng.IntN(2) == 0 {
					vs = append(vs, v)
				}
			}
			sub, err := g.Subgraph(vs)
			if err != nil {
				t.Fatal(err)
			}
			if err := sub.Validate(); err != nil {
				t.Fatal(err)
			}
			if sub.VertexCount() != len(vs) {
				t.Fatalf("VertexCount = %d, want %d", sub.VertexCount(), len(vs))
			}
			for k, v := range vs {
				var want []uint32
				orig, _ := g.Neighbors(v)
				for _, u := range orig {
					if p := slices.Index(vs, u); p >= 0 {
						want = append(want, uint32(p+1))
					}
				}
				got, _ := sub.Neighbors(uint32(k + 1))
				if !slices.Equal(got, want) && !(len(got) == 0 && len(want) == 0) {
					t.Fatalf("node %d: neighbours %v, want %v", k+1, got, want)
				}
			}
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, vs := range [][]uint32{{2, 1}, {1, 1}, {0, 1}, {41}} {
			if _, err := g.Subgraph(vs); !errors.Is(err, ErrInvalidSubset) {
				t.Errorf("Subgraph(%v): got %v, want ErrInvalidSubset", vs, err)
			}
		}
	})
}

func TestFromEdgeList(t *testing.T) {
	g, err := FromEdgeList([]Edge{{1, 2}, {2, 3}, {2, 1}, {3, 4}})
	if err != nil {
		t.Fatal(err)
	}
	if g.VertexCount() != 4 || g.EdgeCount() != 6 {
		t.Fatalf("got n=%d, 2m=%d", g.VertexCount(), g.EdgeCount())
	}
	if !slices.Equal(g.Degree(), []int{1, 2, 2, 1}) {
		t.Errorf("Degree = %v", g.Degree())
	}

	el := g.ToEdgeList()
	back, err := FromEdgeList(el)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(g) {
		t.Error("edge list round trip differs")
	}

	if _, err := FromEdgeList([]Edge{{0, 1}}); !errors.Is(err, ErrNodeOutOfRange) {
		t.Errorf("got %v, want ErrNodeOutOfRange", err)
	}
}

func TestFromOGB(t *testing.T) {
	ds := OGBDataset{
		EdgeIndex: [2][]int64{{0, 0, 1, 3}, {1, 2, 2, 0}},
		NumNodes:  5,
	}
	g, err := FromOGB(ds)
	if err != nil {
		t.Fatal(err)
	}
	if g.VertexCount() != 5 {
		t.Errorf("VertexCount = %d", g.VertexCount())
	}
	if !slices.Equal(g.Degree(), []int{3, 2, 2, 1, 0}) {
		t.Errorf("Degree = %v", g.Degree())
	}
	for _, e := range g.ToEdgeList() {
		if !g.HasEdge(e[1], e[0]) {
			t.Errorf("edge %v is not symmetric", e)
		}
	}

	for _, idx := range [][2][]int64{
		{{1, 0}, {2, 1}},
		// Sorted once the reversed pairs are added, unsorted as given.
		{{0, 2, 1}, {1, 0, 2}},
	} {
		ds.EdgeIndex = idx
		if _, err := FromOGB(ds); !errors.Is(err, ErrEdgeListNotSorted) {
			t.Errorf("FromOGB(%v) = %v, want ErrEdgeListNotSorted", idx, err)
		}
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.bin")
	for name, g := range testGraphs(t) {
		if err := Save(path, g); err != nil {
			t.Fatalf("%s: Save: %v", name, err)
		}
		back, err := Load(path)
		if err != nil {
			t.Fatalf("%s: Load: %v", name, err)
		}
		if !back.Equal(g) {
			t.Errorf("%s: loaded graph differs", name)
		}
	}

	empty := &Graph{Offsets: []uint64{0, 0, 0}, Targets: []uint32{}}
	if err := Save(path, empty); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.VertexCount() != 1 || back.EdgeCount() != 0 {
		t.Errorf("edgeless graph round trip: n=%d, 2m=%d", back.VertexCount(), back.EdgeCount())
	}
}

func TestEdgeMask(t *testing.T) {
	g := Erdos(50, 0.2, 5)
	mask := g.EdgeMask(0.5, rand.New(rand.NewPCG(3, 4)))
	if len(mask) != g.EdgeCount() {
		t.Fatalf("mask length %d, want %d", len(mask), g.EdgeCount())
	}
	ones := 0
	for _, e := range g.ToEdgeList() {
		if g.IsMasked(e[0], e[1], mask) != g.IsMasked(e[1], e[0], mask) {
			t.Fatalf("mask is not symmetric for %v", e)
		}
		if !g.IsMasked(e[0], e[1], mask) {
			ones++
		}
	}
	if ones == 0 || ones == g.EdgeCount() {
		t.Errorf("degenerate mask: %d of %d set", ones, g.EdgeCount())
	}
	if g.IsMasked(1, 1, mask) {
		t.Error("a non-edge must never be reported as masked")
	}
}
