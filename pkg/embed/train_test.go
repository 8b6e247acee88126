package embed_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/sanonone/grl/pkg/embed"
	"github.com/sanonone/grl/pkg/evaluate"
	"github.com/sanonone/grl/pkg/graph"
	"github.com/sanonone/grl/pkg/storage/shm"
)

// cliques returns k disjoint cliques of size s.
func cliques(t *testing.T, k, s int) *graph.Graph {
	t.Helper()
	var el []graph.Edge
	for c := 0; c < k; c++ {
		base := uint32(c*s + 1)
		for i := uint32(0); i < uint32(s); i++ {
			for j := i + 1; j < uint32(s); j++ {
				el = append(el, graph.Edge{base + i, base + j})
			}
		}
	}
	g, err := graph.FromEdgeList(el)
	if err != nil {
		t.Fatalf("FromEdgeList: %v", err)
	}
	return g
}

func accuracy(t *testing.T, m *embed.Model, g *graph.Graph) float64 {
	t.Helper()
	opts := evaluate.DefaultOptions()
	opts.Seed = 11
	opts.Draws = 16
	acc, err := evaluate.Evaluate(context.Background(), m, g, opts)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return acc
}

func TestTrainingImprovesAccuracy(t *testing.T) {
	g := cliques(t, 4, 8)
	store, err := shm.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	for _, typ := range embed.EmbeddingTypes {
		for _, sampler := range []string{"nce", "neg", "walk"} {
			for _, act := range embed.Activations {
				for _, adam := range []bool{false, true} {
					name := fmt.Sprintf("%s/%s/%s/adam=%v", typ, sampler, act, adam)
					t.Run(name, func(t *testing.T) {
						opts := embed.DefaultOptions()
						opts.Workers = 4
						opts.PartSize = 256
						opts.Seed = 3
						opts.WalkLength = 2
						opts.LR = 0.1
						if act == embed.Identity {
							opts.LR = 0.05
						}
						if adam {
							opts.Adam.Enabled = true
							opts.LR = 0.02
						}
						spec := embed.Spec{Type: typ, Activation: act, Sampler: sampler, Dim: 8, Obs: embed.Obs{N: g.VertexCount()}}
						m, err := embed.New(store, spec, opts)
						if err != nil {
							t.Fatalf("New: %v", err)
						}
						defer m.Release()

						before := accuracy(t, m, g)
						if err := m.Fit(context.Background(), g, 200_000); err != nil {
							t.Fatalf("Fit: %v", err)
						}
						after := accuracy(t, m, g)
						if after <= before {
							t.Errorf("accuracy did not improve: %.3f -> %.3f", before, after)
						}
					})
				}
			}
		}
	}
}

func TestFitSerialAndDropout(t *testing.T) {
	g := cliques(t, 3, 6)
	store, err := shm.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	opts := embed.DefaultOptions()
	opts.PartSize = 128
	opts.Seed = 5
	opts.LR = 0.1
	opts.Dropout = 0.25
	spec := embed.Spec{Type: embed.Symmetric, Sampler: "neg", Dim: 8, Obs: embed.Obs{N: g.VertexCount()}}
	m, err := embed.New(store, spec, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := accuracy(t, m, g)
	if err := m.FitSerial(context.Background(), g, 60_000); err != nil {
		t.Fatalf("FitSerial: %v", err)
	}
	if after := accuracy(t, m, g); after <= before {
		t.Errorf("accuracy did not improve: %.3f -> %.3f", before, after)
	}
}
