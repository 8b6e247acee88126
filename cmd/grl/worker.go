package main

import (
	"github.com/sanonone/grl/pkg/embed"
	"github.com/spf13/cobra"
)

var (
	workerStore string
	workerModel string
	workerGraph string
	workerSteps int
	workerSeed  uint64
	workerIndex int
)

// workerCmd is spawned by the process executor; it attaches to a model in a
// file-backed store and runs one share of the fit.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run one training worker against a shared store",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return embed.RunAttachedWorker(ctx, workerStore, workerModel, workerGraph, workerSteps, workerSeed, workerIndex)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)

	f := workerCmd.Flags()
	f.StringVar(&workerStore, "store", "", "Store directory")
	f.StringVar(&workerModel, "model", "", "Model id")
	f.StringVar(&workerGraph, "graph", "", "Registered graph name")
	f.IntVar(&workerSteps, "steps", 0, "Examples to process")
	f.Uint64Var(&workerSeed, "seed", 0, "Seed of the fit")
	f.IntVar(&workerIndex, "index", 0, "Worker index")
	for _, name := range []string{"store", "model", "graph", "steps"} {
		workerCmd.MarkFlagRequired(name)
	}
}
