// Package config loads the YAML configuration of the grl command.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sanonone/grl/pkg/embed"
	"github.com/sanonone/grl/pkg/evaluate"
	"github.com/sanonone/grl/pkg/graph"
	"github.com/sanonone/grl/pkg/mirror"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig reports a configuration that cannot be run.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the top-level configuration file.
type Config struct {
	// StoreDir backs the shared parameter store with files, which the
	// process executor requires. Empty keeps buffers in anonymous memory.
	StoreDir    string `yaml:"store_dir"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	Train  embed.Options    `yaml:"train"`
	Eval   evaluate.Options `yaml:"eval"`
	Job    JobConfig        `yaml:"job"`
	Mirror MirrorConfig     `yaml:"mirror"`
}

// JobConfig describes a link-prediction sweep: every run trains every
// embedding type for every dimension on a fresh graph of every generator.
type JobConfig struct {
	Runs   int `yaml:"runs"`
	VCount int `yaml:"vcount"`
	// Seed generates the graph of run r from Seed+r.
	Seed uint64 `yaml:"seed"`

	Generators map[string]float64 `yaml:"generators"`
	Embeddings []string           `yaml:"embeddings"`
	DimFrom    int                `yaml:"dim_from"`
	DimTo      int                `yaml:"dim_to"`
	Steps      int                `yaml:"steps"`
	Activation string             `yaml:"activation"`
	Sampler    string             `yaml:"sampler"`

	// Executor is "goroutine" or "process".
	Executor string `yaml:"executor"`
	// Eigen adds the spectral baseline to every record.
	Eigen bool `yaml:"eigen"`

	Output string `yaml:"output"`
	// SnapshotDir, when set, receives every graph and trained model.
	SnapshotDir string `yaml:"snapshot_dir"`
	// Precision of the saved snapshots, float32 or float16.
	Precision string `yaml:"precision"`
}

// MirrorConfig configures the mirror subcommand.
type MirrorConfig struct {
	Addr   string               `yaml:"addr"`
	Peers  []string             `yaml:"peers"`
	Sender mirror.SenderOptions `yaml:"sender"`
}

// DefaultConfig returns a configuration that runs a small sweep on all
// cores.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Train:    embed.DefaultOptions(),
		Eval:     evaluate.DefaultOptions(),
		Job: JobConfig{
			Runs:       1,
			VCount:     64,
			Seed:       1,
			Generators: map[string]float64{"erdos": 0.1, "barabasi": 3, "geometric": 0.2},
			Embeddings: []string{"asymmetric", "symmetric", "diagonal"},
			DimFrom:    2,
			DimTo:      8,
			Steps:      1 << 21,
			Activation: "sigmoid",
			Sampler:    "neg",
			Executor:   "goroutine",
			Eigen:      true,
			Output:     "link-prediction.ndjson",
			Precision:  "float32",
		},
		Mirror: MirrorConfig{
			Addr:   fmt.Sprintf(":%d", mirror.DefaultPort),
			Sender: mirror.DefaultSenderOptions(),
		},
	}
}

// LoadConfig reads path over DefaultConfig with strict parsing. Environment
// variables in the file are expanded. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read configuration file '%s': %w", path, err)
	}

	// yaml merges into existing maps; a generators block replaces the defaults.
	generators := cfg.Job.Generators
	cfg.Job.Generators = nil

	decoder := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("YAML syntax error in '%s': %w", path, err)
	}
	if cfg.Job.Generators == nil {
		cfg.Job.Generators = generators
	}
	return cfg, cfg.Validate()
}

// Validate checks the values the commands depend on.
func (c Config) Validate() error {
	if err := c.Train.Validate(); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	j := c.Job
	switch {
	case j.Runs < 1:
		return fmt.Errorf("%w: job.runs must be positive", ErrInvalidConfig)
	case j.VCount < 2:
		return fmt.Errorf("%w: job.vcount must be at least 2", ErrInvalidConfig)
	case j.DimFrom < 1 || j.DimTo < j.DimFrom:
		return fmt.Errorf("%w: dimension range [%d, %d]", ErrInvalidConfig, j.DimFrom, j.DimTo)
	case j.Executor != "goroutine" && j.Executor != "process":
		return fmt.Errorf("%w: unknown executor %q", ErrInvalidConfig, j.Executor)
	case j.Executor == "process" && c.StoreDir == "":
		return fmt.Errorf("%w: the process executor needs store_dir", ErrInvalidConfig)
	}
	if j.Precision != string(embed.PrecisionFloat32) && j.Precision != string(embed.PrecisionFloat16) {
		return fmt.Errorf("%w: unknown snapshot precision %q", ErrInvalidConfig, j.Precision)
	}
	for name := range j.Generators {
		if !graph.IsGenerator(name) {
			return fmt.Errorf("%w: %s", graph.ErrUnknownGenerator, name)
		}
	}
	for _, name := range j.Embeddings {
		if _, err := embed.ParseEmbeddingType(name); err != nil {
			return err
		}
	}
	if _, err := embed.ParseActivation(j.Activation); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalidConfig, s)
	}
	return level, nil
}
