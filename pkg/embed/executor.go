package embed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/sanonone/grl/pkg/graph"
	"github.com/sanonone/grl/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Executor runs the workers of one fit. Every worker processes perWorker
// examples with its own random stream derived from seed.
type Executor interface {
	Execute(ctx context.Context, m *Model, g *graph.Graph, perWorker int, seed uint64) error
}

// GoroutineExecutor runs Options.Workers workers as goroutines of the
// current process, all writing the same parameter buffers.
type GoroutineExecutor struct{}

// Execute implements Executor.
func (GoroutineExecutor) Execute(ctx context.Context, m *Model, g *graph.Graph, perWorker int, seed uint64) error {
	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < m.Options.Workers; w++ {
		rng := WorkerRand(seed, w)
		eg.Go(func() error {
			if err := RunWorker(ctx, m, g, perWorker, rng); err != nil {
				metrics.TrainWorkerErrors.Inc()
				return fmt.Errorf("worker %d: %w", w, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// ProcessExecutor runs every worker in a separate process executing
// "<Binary> worker". The model must live in a file-backed store; the graph is
// registered in the same store and workers attach to both by name.
type ProcessExecutor struct {
	// Binary is the grl executable; empty means the running executable.
	Binary string
	// Args are extra arguments placed before the worker arguments.
	Args []string
	// Output receives the workers' stdout and stderr; nil means os.Stderr.
	Output io.Writer
}

// WorkerArgs returns the command line arguments of worker w.
func WorkerArgs(storeDir, modelID, graphName string, steps int, seed uint64, w int) []string {
	return []string{
		"worker",
		"--store", storeDir,
		"--model", modelID,
		"--graph", graphName,
		"--steps", strconv.Itoa(steps),
		"--seed", strconv.FormatUint(seed, 10),
		"--index", strconv.Itoa(w),
	}
}

// Execute implements Executor.
func (p ProcessExecutor) Execute(ctx context.Context, m *Model, g *graph.Graph, perWorker int, seed uint64) error {
	store := m.Store()
	if store.Dir() == "" {
		return ErrNotShared
	}
	graphName, err := store.RegisterGraph(g)
	if err != nil {
		return fmt.Errorf("registering graph: %w", err)
	}

	bin := p.Binary
	if bin == "" {
		if bin, err = os.Executable(); err != nil {
			return err
		}
	}
	out := p.Output
	if out == nil {
		out = os.Stderr
	}

	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < m.Options.Workers; w++ {
		args := append(append([]string(nil), p.Args...), WorkerArgs(store.Dir(), m.ID, graphName, perWorker, seed, w)...)
		cmd := exec.CommandContext(ctx, bin, args...)
		cmd.Stdout, cmd.Stderr = out, out
		eg.Go(func() error {
			slog.Debug("[TRAIN] Spawning worker", "worker", w, "binary", bin)
			if err := cmd.Run(); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				metrics.TrainWorkerErrors.Inc()
				return fmt.Errorf("worker process %d: %w", w, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// RunAttachedWorker is the entry point of a worker process: it attaches to
// the model and graph of a file-backed store and runs worker index of the fit
// identified by seed.
func RunAttachedWorker(ctx context.Context, storeDir, modelID, graphName string, steps int, seed uint64, index int) error {
	store, err := openStore(storeDir)
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := Attach(store, modelID)
	if err != nil {
		return fmt.Errorf("attaching model %s: %w", modelID, err)
	}
	g, err := store.LookupGraph(graphName)
	if err != nil {
		return fmt.Errorf("attaching graph %s: %w", graphName, err)
	}
	if err := m.checkGraph(g); err != nil {
		return err
	}
	return RunWorker(ctx, m, g, steps, WorkerRand(seed, index))
}
