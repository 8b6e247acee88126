package decode

import (
	"math"
	"testing"

	"github.com/sanonone/grl/pkg/core/types"
	"github.com/sanonone/grl/pkg/embed"
	"github.com/sanonone/grl/pkg/storage/shm"
)

func TestModelMatchesPredict(t *testing.T) {
	store, err := shm.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	for _, et := range embed.EmbeddingTypes {
		t.Run(et.String(), func(t *testing.T) {
			opts := embed.DefaultOptions()
			opts.Seed = 9
			m, err := embed.New(store, embed.Spec{Type: et, Activation: embed.Identity, Sampler: "nce", Dim: 3, Obs: embed.Obs{N: 5}}, opts)
			if err != nil {
				t.Fatalf("embed.New: %v", err)
			}
			defer m.Release()

			out, err := Model(m, 0)
			if err != nil {
				t.Fatalf("Model: %v", err)
			}
			if r, c := out.Dims(); r != 5 || c != 5 {
				t.Fatalf("dims = %dx%d, want 5x5", r, c)
			}
			for i := uint32(1); i <= 5; i++ {
				for j := uint32(1); j <= 5; j++ {
					want := m.Predict([]types.Pair{{i, j}})[0]
					if math.Abs(out.At(int(i-1), int(j-1))-float64(want)) > 1e-5 {
						t.Errorf("(%d,%d) = %v, want %v", i, j, out.At(int(i-1), int(j-1)), want)
					}
				}
			}
		})
	}
}
