package embed

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

const (
	// DefaultPartSize is the number of examples sampled per chunk.
	DefaultPartSize = 1024
	// DefaultClip bounds every gradient element.
	DefaultClip = 5.0
	// DefaultLR is the base learning rate for plain SGD.
	DefaultLR = 0.025
)

// ErrInvalidOptions reports an unusable training configuration.
var ErrInvalidOptions = errors.New("invalid training options")

// AdamOptions enables the Adam update rule.
type AdamOptions struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	B1      float64 `yaml:"b1" json:"b1"`
	B2      float64 `yaml:"b2" json:"b2"`
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`
}

// DefaultAdamOptions returns β1=0.9, β2=0.999, ε=1e-7 with Adam disabled.
func DefaultAdamOptions() AdamOptions {
	return AdamOptions{B1: 0.9, B2: 0.999, Epsilon: 1e-7}
}

// Options configures how a model is trained.
type Options struct {
	// Workers is the number of concurrent workers sharing the parameters.
	Workers int `yaml:"workers" json:"workers"`
	// PartSize is the chunk size; it must be even.
	PartSize int `yaml:"part_size" json:"part_size"`
	// LR is the base learning rate.
	LR float64 `yaml:"lr" json:"lr"`
	// CosineDecay scales the learning rate of chunk k of K by
	// 0.5*(1+cos(pi*k/K)).
	CosineDecay bool `yaml:"cosine_decay" json:"cosine_decay"`
	// Clip bounds gradients to [-Clip, Clip].
	Clip float64 `yaml:"clip" json:"clip"`
	// Dropout is the fraction of embedding columns skipped per example.
	Dropout float64 `yaml:"dropout" json:"dropout"`
	// WalkLength is used by random-walk samplers.
	WalkLength int `yaml:"walk_length" json:"walk_length"`
	// ExcludeEdges makes random-pair negatives reject true edges.
	ExcludeEdges bool `yaml:"exclude_edges" json:"exclude_edges"`
	Adam         AdamOptions `yaml:"adam" json:"adam"`
	// ZeroDiagonal starts the D vector of diagonal models at zero instead of
	// Gaussian noise.
	ZeroDiagonal bool `yaml:"zero_diagonal" json:"zero_diagonal"`
	// Seed makes sampling reproducible for a fixed worker count; 0 draws a
	// fresh seed per fit.
	Seed uint64 `yaml:"seed" json:"seed"`
	// Await makes Fit wait for the workers. When false Fit returns as soon as
	// they are started and failures are only reported through the Job.
	Await bool `yaml:"await" json:"await"`
}

// DefaultWorkers returns the number of logical cores.
func DefaultWorkers() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// DefaultOptions returns the default training options.
func DefaultOptions() Options {
	return Options{
		Workers:     DefaultWorkers(),
		PartSize:    DefaultPartSize,
		LR:          DefaultLR,
		CosineDecay: true,
		Clip:        DefaultClip,
		WalkLength:  8,
		Adam:        DefaultAdamOptions(),
		Await:       true,
	}
}

// Validate checks the options for values the worker loop cannot handle.
func (o Options) Validate() error {
	switch {
	case o.Workers < 1:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidOptions, o.Workers)
	case o.PartSize < 2 || o.PartSize%2 != 0:
		return fmt.Errorf("%w: part size must be a positive even number, got %d", ErrInvalidOptions, o.PartSize)
	case o.LR <= 0:
		return fmt.Errorf("%w: learning rate must be positive, got %g", ErrInvalidOptions, o.LR)
	case o.Clip <= 0:
		return fmt.Errorf("%w: clip must be positive, got %g", ErrInvalidOptions, o.Clip)
	case o.Dropout < 0 || o.Dropout >= 1:
		return fmt.Errorf("%w: dropout must be in [0, 1), got %g", ErrInvalidOptions, o.Dropout)
	}
	if o.Adam.Enabled {
		a := o.Adam
		if a.B1 < 0 || a.B1 >= 1 || a.B2 < 0 || a.B2 >= 1 || a.Epsilon <= 0 {
			return fmt.Errorf("%w: adam b1=%g b2=%g epsilon=%g", ErrInvalidOptions, a.B1, a.B2, a.Epsilon)
		}
	}
	return nil
}
