package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"

	"github.com/sanonone/grl/internal/server"
	"github.com/sanonone/grl/internal/sweep"
	"github.com/sanonone/grl/pkg/storage/shm"
	"github.com/spf13/cobra"
)

var (
	trainGenerator   string
	trainParam       float64
	trainVCount      int
	trainSeed        uint64
	trainRuns        int
	trainDimFrom     int
	trainDimTo       int
	trainSteps       int
	trainPartSize    int
	trainWorkers     int
	trainLR          float64
	trainAdam        bool
	trainZeroDiag    bool
	trainEmbeddings  []string
	trainSampler     string
	trainActivation  string
	trainExecutor    string
	trainStoreDir    string
	trainOutput      string
	trainSnapshotDir string
	trainMetricsAddr string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run a link-prediction sweep",
	Long: `Generate random graphs, train every configured embedding type at every
dimension of the range, and append one NDJSON record per model to the output.

Examples:
  grl train --generator erdos --param 0.1 --vcount 128 --dim-from 2 --dim-to 16
  grl train -c sweep.yaml --metrics-addr :9091
  grl train --executor process --store-dir /dev/shm/grl`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	f := trainCmd.Flags()
	f.StringVarP(&trainGenerator, "generator", "g", "", "Graph generator: erdos, barabasi or geometric (replaces the configured set)")
	f.Float64VarP(&trainParam, "param", "p", 0.1, "Generator parameter: edge probability, edges per node or radius")
	f.IntVarP(&trainVCount, "vcount", "n", 0, "Number of vertices")
	f.Uint64Var(&trainSeed, "seed", 0, "Seed of the first generated graph")
	f.IntVar(&trainRuns, "runs", 0, "Number of repetitions")
	f.IntVar(&trainDimFrom, "dim-from", 0, "Smallest embedding dimension")
	f.IntVar(&trainDimTo, "dim-to", 0, "Largest embedding dimension")
	f.IntVar(&trainSteps, "steps", 0, "Training examples per model")
	f.IntVarP(&trainPartSize, "batch-size", "b", 0, "Examples sampled per chunk")
	f.IntVarP(&trainWorkers, "workers", "w", 0, "Parallel workers")
	f.Float64Var(&trainLR, "lr", 0, "Learning rate")
	f.BoolVar(&trainAdam, "adam", false, "Use Adam instead of plain SGD")
	f.BoolVar(&trainZeroDiag, "zero-diagonal", false, "Start the D vector of diagonal models at zero")
	f.StringSliceVar(&trainEmbeddings, "emb", nil, "Embedding types (e.g. 'asymmetric,diagonal')")
	f.StringVar(&trainSampler, "sampler", "", "Training sampler: nce, neg or walk")
	f.StringVar(&trainActivation, "activation", "", "Activation: sigmoid or identity")
	f.StringVar(&trainExecutor, "executor", "", "Worker strategy: goroutine or process")
	f.StringVar(&trainStoreDir, "store-dir", "", "Directory of the file-backed parameter store")
	f.StringVarP(&trainOutput, "output", "o", "", "NDJSON output file")
	f.StringVar(&trainSnapshotDir, "snapshot-dir", "", "Directory receiving graphs and model snapshots")
	f.StringVar(&trainMetricsAddr, "metrics-addr", "", "Address of the status server (/metrics, /runs)")
}

// applyTrainFlags overrides the configuration with the flags set on the
// command line.
func applyTrainFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	j := &cfg.Job
	if f.Changed("generator") {
		j.Generators = map[string]float64{trainGenerator: trainParam}
	}
	if f.Changed("vcount") {
		j.VCount = trainVCount
	}
	if f.Changed("seed") {
		j.Seed = trainSeed
	}
	if f.Changed("runs") {
		j.Runs = trainRuns
	}
	if f.Changed("dim-from") {
		j.DimFrom = trainDimFrom
	}
	if f.Changed("dim-to") {
		j.DimTo = trainDimTo
	}
	if f.Changed("steps") {
		j.Steps = trainSteps
	}
	if f.Changed("emb") {
		j.Embeddings = trainEmbeddings
	}
	if f.Changed("sampler") {
		j.Sampler = trainSampler
	}
	if f.Changed("activation") {
		j.Activation = trainActivation
	}
	if f.Changed("executor") {
		j.Executor = trainExecutor
	}
	if f.Changed("output") {
		j.Output = trainOutput
	}
	if f.Changed("snapshot-dir") {
		j.SnapshotDir = trainSnapshotDir
	}
	if f.Changed("batch-size") {
		cfg.Train.PartSize = trainPartSize
	}
	if f.Changed("workers") {
		cfg.Train.Workers = trainWorkers
	}
	if f.Changed("lr") {
		cfg.Train.LR = trainLR
	}
	if f.Changed("adam") {
		cfg.Train.Adam.Enabled = trainAdam
	}
	if f.Changed("zero-diagonal") {
		cfg.Train.ZeroDiagonal = trainZeroDiag
	}
	if f.Changed("store-dir") {
		cfg.StoreDir = trainStoreDir
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr = trainMetricsAddr
	}
}

func runTrain(cmd *cobra.Command, args []string) error {
	applyTrainFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Printf("grl train: %d runs, dims %d..%d, %d steps, %d workers (%s executor)",
		cfg.Job.Runs, cfg.Job.DimFrom, cfg.Job.DimTo, cfg.Job.Steps, cfg.Train.Workers, cfg.Job.Executor)

	ctx, stop := signalContext()
	defer stop()

	store, err := shm.NewStore(cfg.StoreDir)
	if err != nil {
		return err
	}
	defer store.Close()

	out, err := sweep.OpenSink(cfg.Job.Output)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			slog.Error("[SWEEP] Failed to close output", "path", out.Path(), "error", err)
		}
	}()

	runs := server.NewRunRegistry()
	if cfg.MetricsAddr != "" {
		srv := server.NewServer(cfg.MetricsAddr, runs)
		go func() {
			if err := srv.Run(); err != nil {
				slog.Error("[HTTP] Status server stopped", "error", err)
			}
		}()
		defer srv.Shutdown()
	}

	runner, err := sweep.NewRunner(cfg, store, out, runs)
	if err != nil {
		return err
	}
	if err := runner.Run(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			slog.Warn("[SWEEP] Interrupted", "records", out.Path())
			return nil
		}
		return fmt.Errorf("sweep failed: %w", err)
	}
	slog.Info("[SWEEP] Done", "records", out.Path())
	return nil
}
