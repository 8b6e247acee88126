package embed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/sanonone/grl/pkg/core/vecmath"
	"github.com/sanonone/grl/pkg/graph"
	"github.com/sanonone/grl/pkg/metrics"
	"github.com/sanonone/grl/pkg/sample"
)

// SplitSteps returns the number of examples each of workers processes:
// steps/workers rounded down to an even number, because every sampler call
// splits its batch into equal positive and negative halves.
func SplitSteps(steps, workers int) int {
	if workers < 1 {
		return 0
	}
	n := steps / workers
	return n - n%2
}

// WorkerRand returns the random source of one worker of one fit.
func WorkerRand(seed uint64, worker int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(worker)+1))
}

// RunWorker is the loop executed by every worker. It draws steps examples in
// chunks of PartSize with the model's sampler and applies the gradient
// kernel to the shared parameters after each chunk is drawn. With cosine
// decay, chunk k of K uses lr*0.5*(1+cos(pi*k/K)).
//
// Cancellation is checked between chunks only.
func RunWorker(ctx context.Context, m *Model, g *graph.Graph, steps int, rng *rand.Rand) error {
	sampler, err := sample.Get(m.Sampler)
	if err != nil {
		return err
	}
	if steps <= 0 {
		return nil
	}
	opts := m.Options
	sopts := m.samplerOptions()
	k := m.newKernel(rng)
	step := stepFuncs[m.Type]
	typ := m.Type.String()

	chunks := (steps + opts.PartSize - 1) / opts.PartSize
	for c := 0; c < chunks; c++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		n := min(opts.PartSize, steps-c*opts.PartSize)
		batch, err := sampler(g, n, rng, sopts)
		if err != nil {
			return fmt.Errorf("sampling chunk %d: %w", c, err)
		}

		lr := opts.LR
		if opts.CosineDecay {
			lr *= vecmath.CosDecay(float64(c) / float64(chunks))
		}
		k.lr = float32(lr)

		for e, x := range batch.X {
			step(k, m.params, x, batch.Y[e])
		}
		metrics.TrainSteps.WithLabelValues(typ).Add(float64(n))
		metrics.TrainChunkDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())
	}
	return nil
}

func (m *Model) checkGraph(g *graph.Graph) error {
	if n := g.VertexCount(); n > m.Obs.N {
		return fmt.Errorf("%w: graph has %d nodes, model has %d", ErrGraphMismatch, n, m.Obs.N)
	}
	if m.mask != nil && len(m.mask) != g.EdgeCount() {
		return fmt.Errorf("%w: mask has %d entries, graph stores %d pairs", ErrGraphMismatch, len(m.mask), g.EdgeCount())
	}
	return nil
}

// nextSeed returns the seed of the next fit. A fixed Options.Seed gives each
// successive fit of the model a distinct, reproducible stream.
func (m *Model) nextSeed() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fits++
	if m.Options.Seed == 0 {
		return rand.Uint64()
	}
	return m.Options.Seed + m.fits*0x9E3779B97F4A7C15
}

// FitAsync starts training on g for steps examples split across the
// configured workers and returns immediately.
func (m *Model) FitAsync(ctx context.Context, g *graph.Graph, steps int) (*Job, error) {
	if err := m.checkGraph(g); err != nil {
		return nil, err
	}
	perWorker := SplitSteps(steps, m.Options.Workers)
	seed := m.nextSeed()
	job := newJob(ctx)

	m.mu.Lock()
	m.last = job
	m.mu.Unlock()

	slog.Info("[TRAIN] Fit started", "model", m.ID, "job", job.ID, "type", m.Type, "steps", steps, "workers", m.Options.Workers, "per_worker", perWorker)
	go func() {
		start := time.Now()
		err := m.executor.Execute(job.ctx, m, g, perWorker, seed)
		job.finish(err)
		switch job.Status() {
		case JobFailed:
			slog.Error("[TRAIN] Fit failed", "model", m.ID, "job", job.ID, "error", err)
		case JobStopped:
			slog.Warn("[TRAIN] Fit stopped", "model", m.ID, "job", job.ID, "duration", time.Since(start))
		default:
			slog.Info("[TRAIN] Fit completed", "model", m.ID, "job", job.ID, "duration", time.Since(start))
		}
	}()
	return job, nil
}

// Fit trains on g for steps examples. With Options.Await it blocks until
// every worker finished and returns their joined error; otherwise it returns
// once the workers are started and failures are only logged and recorded on
// LastJob.
func (m *Model) Fit(ctx context.Context, g *graph.Graph, steps int) error {
	job, err := m.FitAsync(ctx, g, steps)
	if err != nil {
		return err
	}
	if !m.Options.Await {
		return nil
	}
	return job.Wait()
}

// LastJob returns the job of the most recent fit, or nil.
func (m *Model) LastJob() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// FitSerial trains on g in the calling goroutine with a single worker. It is
// the cheapest choice for small graphs.
func (m *Model) FitSerial(ctx context.Context, g *graph.Graph, steps int) error {
	if err := m.checkGraph(g); err != nil {
		return err
	}
	return RunWorker(ctx, m, g, SplitSteps(steps, 1), WorkerRand(m.nextSeed(), 0))
}
