package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/sanonone/grl/pkg/client"
	"github.com/spf13/cobra"
)

var (
	runsAddr string
	runsJSON bool
	runsWait time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the runs of a sweep through its status server",
	Long: `List the training runs tracked by 'grl train --metrics-addr', or stop one.

Examples:
  grl runs --addr :9091
  grl runs stop 4f1c2a9b7e3d --addr :9091 --wait 30s`,
	RunE: runListRuns,
}

var runsStopCmd = &cobra.Command{
	Use:   "stop <run-id>",
	Short: "Stop a running job after its current chunk",
	Args:  cobra.ExactArgs(1),
	RunE:  runStopRun,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsStopCmd)

	runsCmd.PersistentFlags().StringVar(&runsAddr, "addr", ":9091", "Status server address")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Output as JSON")
	runsStopCmd.Flags().DurationVar(&runsWait, "wait", 0, "Wait up to this long for the run to end")
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runs, err := client.New(runsAddr).Runs()
	if err != nil {
		return err
	}
	if runsJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(runs)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tGRAPH\tEMB\tDIM\tSTATUS\tACCURACY")
	for _, r := range runs {
		acc := "-"
		if r.Accuracy != nil {
			acc = fmt.Sprintf("%.4f", *r.Accuracy)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n", r.ID, r.Model, r.Generator, r.Embedding, r.Dim, r.Status, acc)
	}
	return w.Flush()
}

func runStopRun(cmd *cobra.Command, args []string) error {
	c := client.New(runsAddr)
	id := args[0]
	if err := c.Stop(id); err != nil {
		return err
	}
	if runsWait <= 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: stopping\n", id)
		return nil
	}
	run, err := c.Wait(id, 100*time.Millisecond, runsWait)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, run.Status)
	return nil
}
