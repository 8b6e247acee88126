package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanonone/grl/pkg/mirror"
	"github.com/sanonone/grl/pkg/storage/shm"
	"github.com/spf13/cobra"
)

var (
	mirrorStore      string
	mirrorBuffer     string
	mirrorAddr       string
	mirrorPeers      []string
	mirrorSampleSize int
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Keep a shared buffer in sync with remote copies",
	Long: `Attach to a float32 buffer of a file-backed store, push sampled rows to every
connected peer and average the rows received from the peers into it.

Examples:
  grl mirror --store /dev/shm/grl --buffer m0123_L --peer 10.0.0.2:5555
  grl mirror --store /dev/shm/grl --buffer m0123_E --addr :6000`,
	RunE: runMirror,
}

func init() {
	rootCmd.AddCommand(mirrorCmd)

	f := mirrorCmd.Flags()
	f.StringVar(&mirrorStore, "store", "", "Store directory")
	f.StringVar(&mirrorBuffer, "buffer", "", "Name of the float32 buffer to mirror")
	f.StringVar(&mirrorAddr, "addr", "", "Listen address of the sender")
	f.StringSliceVar(&mirrorPeers, "peer", nil, "Sender addresses of the peers")
	f.IntVar(&mirrorSampleSize, "sample-size", 0, "Rows pushed per tick")
	mirrorCmd.MarkFlagRequired("store")
	mirrorCmd.MarkFlagRequired("buffer")
}

func runMirror(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Mirror.Addr = mirrorAddr
	}
	if f.Changed("peer") {
		cfg.Mirror.Peers = mirrorPeers
	}
	if f.Changed("sample-size") {
		cfg.Mirror.Sender.SampleSize = mirrorSampleSize
	}

	store, err := shm.NewStore(mirrorStore)
	if err != nil {
		return err
	}
	defer store.Close()

	buf, err := store.Lookup(mirrorBuffer)
	if err != nil {
		return err
	}
	if buf.DType() != shm.Float32 {
		return fmt.Errorf("buffer %s holds %s, mirroring needs float32", mirrorBuffer, buf.DType())
	}

	ctx, stop := signalContext()
	defer stop()
	err = mirror.Run(ctx, buf.Matrix(), cfg.Mirror.Addr, cfg.Mirror.Peers, cfg.Mirror.Sender)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
