package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sanonone/grl/pkg/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	// cfg is loaded before any subcommand runs.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "grl",
	Short: "grl - graph representation learning for link prediction",
	Long: `grl trains node embeddings for link prediction with lock-free parallel SGD
over shared parameter buffers, and evaluates them against a spectral baseline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
