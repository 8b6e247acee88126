package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sanonone/grl/pkg/decode"
	"github.com/sanonone/grl/pkg/embed"
	"github.com/sanonone/grl/pkg/evaluate"
	"github.com/sanonone/grl/pkg/graph"
	"github.com/sanonone/grl/pkg/storage/shm"
	"github.com/spf13/cobra"
)

var (
	evalSnapshot  string
	evalGraph     string
	evalDraws     int
	evalBatchSize int
	evalSampler   string
	evalSeed      uint64
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score a saved model against a saved graph",
	Long: `Load a model snapshot and a graph written by 'grl train --snapshot-dir' and
print the sampled accuracy and the reconstruction AUC as JSON.

Examples:
  grl eval --snapshot runs/m1a2b3.snapshot --graph runs/erdos-0.graph`,
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	f := evalCmd.Flags()
	f.StringVar(&evalSnapshot, "snapshot", "", "Model snapshot file")
	f.StringVar(&evalGraph, "graph", "", "Graph file")
	f.IntVar(&evalDraws, "draws", 0, "Number of sampled batches")
	f.IntVar(&evalBatchSize, "batch-size", 0, "Pairs per batch")
	f.StringVar(&evalSampler, "sampler", "", "Evaluation sampler")
	f.Uint64Var(&evalSeed, "seed", 0, "Evaluation seed")
	evalCmd.MarkFlagRequired("snapshot")
	evalCmd.MarkFlagRequired("graph")
}

type evalResult struct {
	Model     string  `json:"model"`
	Embedding string  `json:"emb"`
	Dim       int     `json:"dim"`
	Accuracy  float64 `json:"accuracy"`
	AUC       float64 `json:"auc"`
}

func runEval(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	opts := cfg.Eval
	if f.Changed("draws") {
		opts.Draws = evalDraws
	}
	if f.Changed("batch-size") {
		opts.BatchSize = evalBatchSize
	}
	if f.Changed("sampler") {
		opts.Sampler = evalSampler
	}
	if f.Changed("seed") {
		opts.Seed = evalSeed
	}

	g, err := graph.Load(evalGraph)
	if err != nil {
		return err
	}

	store, err := shm.NewStore("")
	if err != nil {
		return err
	}
	defer store.Close()

	file, err := os.Open(evalSnapshot)
	if err != nil {
		return err
	}
	m, err := embed.LoadSnapshot(file, store)
	file.Close()
	if err != nil {
		return err
	}
	defer m.Release()

	ctx, stop := signalContext()
	defer stop()

	res := evalResult{Model: m.ID, Embedding: m.Type.String(), Dim: m.Dim}
	if res.Accuracy, err = evaluate.Evaluate(ctx, m, g, opts); err != nil {
		return err
	}
	recon, err := decode.Model(m, 0)
	if err != nil {
		return err
	}
	res.AUC, err = evaluate.ReconstructionAUC(recon, g)
	if err != nil && !errors.Is(err, evaluate.ErrSingleClass) {
		return fmt.Errorf("scoring reconstruction: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
