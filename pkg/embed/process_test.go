package embed_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"testing"

	"github.com/sanonone/grl/pkg/embed"
	"github.com/sanonone/grl/pkg/storage/shm"
)

// workerEnv makes the test binary behave like "grl worker" so the process
// executor can spawn it.
const workerEnv = "GRL_TEST_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		os.Exit(runWorker(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func runWorker(args []string) int {
	i := slices.Index(args, "worker")
	if i < 0 {
		fmt.Fprintln(os.Stderr, "missing worker command")
		return 2
	}
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	store := fs.String("store", "", "")
	model := fs.String("model", "", "")
	graphName := fs.String("graph", "", "")
	steps := fs.Int("steps", 0, "")
	seed := fs.Uint64("seed", 0, "")
	index := fs.Int("index", 0, "")
	if err := fs.Parse(args[i+1:]); err != nil {
		return 2
	}
	if err := embed.RunAttachedWorker(context.Background(), *store, *model, *graphName, *steps, *seed, *index); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func TestProcessExecutorTrains(t *testing.T) {
	t.Setenv(workerEnv, "1")

	g := cliques(t, 3, 6)
	dir := t.TempDir()
	store, err := shm.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	opts := embed.DefaultOptions()
	opts.Workers = 2
	opts.PartSize = 256
	opts.Seed = 3
	opts.LR = 0.1
	spec := embed.Spec{Type: embed.Symmetric, Sampler: "neg", Dim: 8, Obs: embed.Obs{N: g.VertexCount()}}
	m, err := embed.New(store, spec, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Release()
	m.SetExecutor(embed.ProcessExecutor{Binary: os.Args[0]})

	before := accuracy(t, m, g)
	if err := m.Fit(context.Background(), g, 100_000); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if after := accuracy(t, m, g); after <= before {
		t.Errorf("accuracy did not improve: %.3f -> %.3f", before, after)
	}

	names := store.List()
	for _, name := range m.BufferNames() {
		if !slices.Contains(names, name) {
			t.Errorf("buffer %q missing after the fit", name)
		}
	}

	other, err := shm.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer other.Close()
	attached, err := embed.Attach(other, m.ID)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	want, got := m.Params()[0].Data, attached.Params()[0].Data
	if !slices.Equal(want, got) {
		t.Error("attached parameters differ from the trained model")
	}
}
