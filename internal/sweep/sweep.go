// Package sweep runs link-prediction experiments: for every run and graph
// generator it trains each embedding type at each dimension, scores the
// result and appends one NDJSON record per model.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/sanonone/grl/internal/server"
	"github.com/sanonone/grl/pkg/config"
	"github.com/sanonone/grl/pkg/decode"
	"github.com/sanonone/grl/pkg/embed"
	"github.com/sanonone/grl/pkg/evaluate"
	"github.com/sanonone/grl/pkg/graph"
	"github.com/sanonone/grl/pkg/persistence"
	"github.com/sanonone/grl/pkg/storage/shm"
)

// Record is one line of the output file.
type Record struct {
	Run       int     `json:"run"`
	Generator string  `json:"rgm"`
	Param     float64 `json:"param"`
	VCount    int     `json:"vcount"`
	Edges     int     `json:"edges"`
	Embedding string  `json:"emb"`
	Dim       int     `json:"dim"`
	Steps     int     `json:"steps"`
	Model     string  `json:"model"`
	Status    string  `json:"status"`
	Accuracy  float64 `json:"accuracy"`
	AUC       float64 `json:"auc"`
	// EigenAUC is the rank-dim spectral baseline on the same graph.
	EigenAUC *float64 `json:"eigen,omitempty"`
	Seconds  float64  `json:"seconds"`
}

// Sink receives finished records.
type Sink interface {
	Write(v any) error
}

// Runner drives a sweep.
type Runner struct {
	cfg      config.Config
	store    *shm.Store
	runs     *server.RunRegistry
	sink     Sink
	executor embed.Executor
}

// NewRunner prepares a sweep. runs may be nil.
func NewRunner(cfg config.Config, store *shm.Store, sink Sink, runs *server.RunRegistry) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if runs == nil {
		runs = server.NewRunRegistry()
	}
	r := &Runner{cfg: cfg, store: store, runs: runs, sink: sink}
	if cfg.Job.Executor == "process" {
		r.executor = embed.ProcessExecutor{}
	}
	return r, nil
}

// SetExecutor overrides the executor chosen from the configuration.
func (r *Runner) SetExecutor(e embed.Executor) {
	r.executor = e
}

// Run executes the whole sweep and stops at the first error.
func (r *Runner) Run(ctx context.Context) error {
	job := r.cfg.Job
	names := make([]string, 0, len(job.Generators))
	for name := range job.Generators {
		names = append(names, name)
	}
	slices.Sort(names)

	for run := 0; run < job.Runs; run++ {
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			param := job.Generators[name]
			g, err := graph.Generate(name, job.VCount, param, job.Seed+uint64(run))
			if err != nil {
				return err
			}
			slog.Info("[SWEEP] Generated graph", "run", run, "generator", name, "vertices", g.VertexCount(), "edges", g.EdgeCount())
			if err := r.saveGraph(g, name, run); err != nil {
				return err
			}
			if err := r.sweepGraph(ctx, g, run, name, param); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) sweepGraph(ctx context.Context, g *graph.Graph, run int, name string, param float64) error {
	job := r.cfg.Job
	for dim := job.DimFrom; dim <= job.DimTo; dim++ {
		var eigenAUC *float64
		if job.Eigen {
			recon, err := decode.Eigen(g, dim)
			if err != nil {
				return err
			}
			auc, err := evaluate.ReconstructionAUC(recon, g)
			if err != nil {
				return fmt.Errorf("eigen baseline: %w", err)
			}
			eigenAUC = &auc
		}

		for _, emb := range job.Embeddings {
			et, err := embed.ParseEmbeddingType(emb)
			if err != nil {
				return err
			}
			rec, err := r.fit(ctx, g, name, et, dim)
			if err != nil {
				return err
			}
			rec.Run, rec.Generator, rec.Param = run, name, param
			rec.EigenAUC = eigenAUC
			if err := r.sink.Write(rec); err != nil {
				return err
			}
			slog.Info("[SWEEP] Model scored", "emb", rec.Embedding, "dim", dim, "accuracy", rec.Accuracy, "auc", rec.AUC)
		}
	}
	return nil
}

func (r *Runner) fit(ctx context.Context, g *graph.Graph, name string, et embed.EmbeddingType, dim int) (Record, error) {
	job := r.cfg.Job
	act, err := embed.ParseActivation(job.Activation)
	if err != nil {
		return Record{}, err
	}
	spec := embed.Spec{Type: et, Activation: act, Sampler: job.Sampler, Dim: dim, Obs: embed.Obs{N: g.VertexCount()}}
	m, err := embed.New(r.store, spec, r.cfg.Train)
	if err != nil {
		return Record{}, err
	}
	defer func() {
		if err := m.Release(); err != nil {
			slog.Warn("[SWEEP] Failed to release model", "model", m.ID, "error", err)
		}
	}()
	if r.executor != nil {
		m.SetExecutor(r.executor)
	}

	start := time.Now()
	j, err := m.FitAsync(ctx, g, job.Steps)
	if err != nil {
		return Record{}, err
	}
	id := r.runs.Track(j, m, name, job.Steps)
	if err := j.Wait(); err != nil {
		return Record{}, err
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	rec := Record{
		VCount:    g.VertexCount(),
		Edges:     g.EdgeCount(),
		Embedding: et.String(),
		Dim:       dim,
		Steps:     job.Steps,
		Model:     m.ID,
		Status:    string(j.Status()),
		Seconds:   time.Since(start).Seconds(),
	}
	if rec.Accuracy, err = evaluate.Evaluate(ctx, m, g, r.cfg.Eval); err != nil {
		return Record{}, err
	}
	r.runs.SetAccuracy(id, rec.Accuracy)

	recon, err := decode.Model(m, 0)
	if err != nil {
		return Record{}, err
	}
	if rec.AUC, err = evaluate.ReconstructionAUC(recon, g); err != nil {
		return Record{}, err
	}
	return rec, r.saveModel(m)
}

func (r *Runner) saveGraph(g *graph.Graph, name string, run int) error {
	dir := r.cfg.Job.SnapshotDir
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return graph.Save(filepath.Join(dir, fmt.Sprintf("%s-%d.graph", name, run)), g)
}

func (r *Runner) saveModel(m *embed.Model) error {
	dir := r.cfg.Job.SnapshotDir
	if dir == "" {
		return nil
	}
	f, err := os.Create(filepath.Join(dir, m.ID+".snapshot"))
	if err != nil {
		return err
	}
	if err := m.Snapshot(f, embed.Precision(r.cfg.Job.Precision)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// OpenSink opens the NDJSON output file of the sweep.
func OpenSink(path string) (*persistence.RecordWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return persistence.NewRecordWriter(path)
}
