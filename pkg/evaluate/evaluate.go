// Package evaluate estimates link-prediction accuracy by scoring several
// independently sampled, balanced batches.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"

	"github.com/sanonone/grl/pkg/core/types"
	"github.com/sanonone/grl/pkg/core/vecmath"
	"github.com/sanonone/grl/pkg/embed"
	"github.com/sanonone/grl/pkg/graph"
	"github.com/sanonone/grl/pkg/metrics"
	"github.com/sanonone/grl/pkg/sample"
	"golang.org/x/sync/errgroup"
)

// ErrLengthMismatch is returned when labels and predictions differ in length.
var ErrLengthMismatch = errors.New("labels and predictions differ in length")

// Predictor scores node pairs; scores are rounded to {0, 1}.
type Predictor interface {
	Predict(pairs []types.Pair) []float32
}

// Options configures Evaluate.
type Options struct {
	// Draws is the number of independent batches.
	Draws int `yaml:"draws" json:"draws"`
	// BatchSize is the size of each batch; it must be even.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Sampler names the sampler used for the batches.
	Sampler string `yaml:"sampler" json:"sampler"`
	// Workers bounds the number of batches scored concurrently.
	Workers int `yaml:"workers" json:"workers"`
	// Seed makes evaluation reproducible; 0 draws a fresh seed.
	Seed uint64 `yaml:"seed" json:"seed"`
	// Sample is passed to the sampler.
	Sample sample.Options `yaml:"-" json:"-"`
}

// DefaultOptions returns 32 noise-contrastive batches of 1024 pairs.
func DefaultOptions() Options {
	return Options{
		Draws:     32,
		BatchSize: 1024,
		Sampler:   "nce",
		Workers:   embed.DefaultWorkers(),
	}
}

// Accuracy returns the fraction of predictions that round to their label.
func Accuracy(y, yhat []float32) (float64, error) {
	if len(y) != len(yhat) {
		return 0, fmt.Errorf("%w: %d labels, %d predictions", ErrLengthMismatch, len(y), len(yhat))
	}
	if len(y) == 0 {
		return 0, nil
	}
	hits := 0
	for i := range y {
		if vecmath.Round(yhat[i]) == y[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(y)), nil
}

// Evaluate draws opts.Draws batches from g in parallel, scores them with p
// and returns the mean accuracy. The result is also published on the
// grl_accuracy gauge.
func Evaluate(ctx context.Context, p Predictor, g *graph.Graph, opts Options) (float64, error) {
	s, err := sample.Get(opts.Sampler)
	if err != nil {
		return 0, err
	}
	if opts.Draws < 1 {
		return 0, fmt.Errorf("draws must be positive, got %d", opts.Draws)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	acc := make([]float64, opts.Draws)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(opts.Workers, 1))
	for d := 0; d < opts.Draws; d++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seed, uint64(d)))
			batch, err := s(g, opts.BatchSize, rng, opts.Sample)
			if err != nil {
				return fmt.Errorf("draw %d: %w", d, err)
			}
			acc[d], err = Accuracy(batch.Y, p.Predict(batch.X))
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	var sum float64
	for _, a := range acc {
		sum += a
	}
	mean := sum / float64(len(acc))
	metrics.Accuracy.Set(mean)
	slog.Debug("[EVAL] Accuracy estimated", "accuracy", mean, "draws", opts.Draws, "batch_size", opts.BatchSize)
	return mean, nil
}

// DetectType infers the embedding type from two parameter matrices: a
// different column count means a diagonal model (E and D), a byte-identical
// row 0 means both are the same symmetric matrix, anything else is
// asymmetric.
func DetectType(a, b types.Matrix) embed.EmbeddingType {
	if a.Cols != b.Cols {
		return embed.Diagonal
	}
	if a.Rows > 0 && b.Rows > 0 && slices.Equal(a.Row(0), b.Row(0)) {
		return embed.Symmetric
	}
	return embed.Asymmetric
}

// Params scores pairs directly from parameter matrices, for parameters
// loaded outside a Model.
type Params struct {
	Type       embed.EmbeddingType
	A, B       types.Matrix
	Activation embed.Activation
}

// NewParams builds a predictor over a and b, detecting the embedding type.
// Symmetric parameters are passed as (E, E).
func NewParams(a, b types.Matrix, act embed.Activation) *Params {
	return &Params{Type: DetectType(a, b), A: a, B: b, Activation: act}
}

// Predict implements Predictor.
func (p *Params) Predict(pairs []types.Pair) []float32 {
	f := p.Activation.Func()
	out := make([]float32, len(pairs))
	for k, x := range pairs {
		var s float32
		switch p.Type {
		case embed.Diagonal:
			a, b, d := p.A.Row(int(x[0])), p.A.Row(int(x[1])), p.B.Data
			for c := range a {
				s += a[c] * b[c] * d[c]
			}
		default:
			s = vecmath.Dot(p.A.Row(int(x[0])), p.B.Row(int(x[1])))
		}
		out[k] = f(s)
	}
	return out
}
