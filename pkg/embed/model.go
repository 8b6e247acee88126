// Package embed trains shallow link-prediction embeddings of graph nodes.
//
// A Model owns a set of parameter buffers in a shared store and trains them
// with Hogwild-style SGD: every worker samples its own batches and writes the
// shared buffers in place without locks. Overlapping row updates from
// different workers may interleave or be lost; the training loop accepts
// that noise in exchange for lock-free throughput.
package embed

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sanonone/grl/pkg/core/types"
	"github.com/sanonone/grl/pkg/core/vecmath"
	"github.com/sanonone/grl/pkg/sample"
	"github.com/sanonone/grl/pkg/storage/shm"
)

var (
	// ErrInvalidModel reports an unusable model description.
	ErrInvalidModel = errors.New("invalid model")
	// ErrNotShared is returned for operations that need a file-backed store.
	ErrNotShared = errors.New("model store is not file-backed")
	// ErrGraphMismatch is returned when a graph has more nodes than the model.
	ErrGraphMismatch = errors.New("graph does not fit the model")
)

// Spec describes the shape of a model.
type Spec struct {
	Type       EmbeddingType `yaml:"type" json:"type"`
	Activation Activation    `yaml:"activation" json:"activation"`
	Sampler    string        `yaml:"sampler" json:"sampler"`
	Dim        int           `yaml:"dim" json:"dim"`
	Obs        Obs           `yaml:"obs" json:"obs"`
}

// Validate checks dimension, observation counts, enums and sampler name.
func (s Spec) Validate() error {
	if s.Dim < 1 {
		return fmt.Errorf("%w: dim must be positive, got %d", ErrInvalidModel, s.Dim)
	}
	if s.Obs.N < 1 || s.Obs.N2 < 0 {
		return fmt.Errorf("%w: obs %+v", ErrInvalidModel, s.Obs)
	}
	if s.Type > Diagonal {
		return fmt.Errorf("%w: %s", ErrUnknownEmbeddingType, s.Type)
	}
	if s.Activation > Identity {
		return fmt.Errorf("%w: %s", ErrUnknownActivation, s.Activation)
	}
	if _, err := sample.Get(s.Sampler); err != nil {
		return err
	}
	return nil
}

// param is a parameter matrix with its optional Adam state.
type param struct {
	buf  *shm.Buffer
	w    []float32
	cols int
	m, v []float32
	t    []uint32
}

func (p *param) row(i uint32) []float32 {
	lo := int(i) * p.cols
	return p.w[lo : lo+p.cols]
}

// Model is a trainable embedding bound to buffers of a shared store.
type Model struct {
	ID string
	Spec
	Options Options

	store    *shm.Store
	params   []*param
	mask     []uint8
	executor Executor

	mu   sync.Mutex
	fits uint64
	last *Job
}

// New allocates the parameters of a model in store. Node matrices and the
// diagonal are Gaussian initialised with scale 1/dim, unless
// Options.ZeroDiagonal starts the diagonal at zero. Adam state, when enabled,
// starts at zero.
func New(store *shm.Store, spec Spec, opts Options) (*Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		ID:       "m" + strings.ReplaceAll(uuid.NewString(), "-", "")[:15],
		Spec:     spec,
		Options:  opts,
		store:    store,
		executor: GoroutineExecutor{},
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, 0))

	for _, role := range spec.Type.Roles() {
		shape := spec.Type.Shape(role, spec.Obs, spec.Dim)
		var b *shm.Buffer
		var err error
		if role == RoleD && opts.ZeroDiagonal {
			b, err = store.Allocate(shape, shm.Float32, m.bufferName(role))
		} else {
			b, err = store.AllocateGaussian(shape, m.bufferName(role), rng)
		}
		if err != nil {
			m.Release()
			return nil, fmt.Errorf("allocating %s: %w", role, err)
		}
		p := &param{buf: b, w: b.Float32(), cols: spec.Dim}
		if opts.Adam.Enabled {
			if err := m.allocateAdam(role, shape, p); err != nil {
				m.Release()
				return nil, err
			}
		}
		m.params = append(m.params, p)
	}

	if store.Dir() != "" {
		if err := m.writeManifest(); err != nil {
			m.Release()
			return nil, err
		}
	}
	slog.Info("[EMBED] Model created", "id", m.ID, "type", spec.Type, "dim", spec.Dim, "nodes", spec.Obs.N, "adam", opts.Adam.Enabled)
	return m, nil
}

func (m *Model) bufferName(role string) string {
	return m.ID + "_" + role
}

func rowsOf(shape []int) int {
	if len(shape) == 1 {
		return 1
	}
	return shape[0]
}

func (m *Model) allocateAdam(role string, shape []int, p *param) error {
	name := m.bufferName(role)
	mb, err := m.store.Allocate(shape, shm.Float32, name+"_m")
	if err != nil {
		return fmt.Errorf("allocating adam moments of %s: %w", role, err)
	}
	vb, err := m.store.Allocate(shape, shm.Float32, name+"_v")
	if err != nil {
		return fmt.Errorf("allocating adam moments of %s: %w", role, err)
	}
	tb, err := m.store.Allocate([]int{rowsOf(shape)}, shm.Uint32, name+"_t")
	if err != nil {
		return fmt.Errorf("allocating adam counters of %s: %w", role, err)
	}
	p.m, p.v, p.t = mb.Float32(), vb.Float32(), tb.Uint32()
	return nil
}

// SetExecutor replaces the execution strategy used by Fit.
func (m *Model) SetExecutor(e Executor) {
	m.executor = e
}

// Store returns the store holding the parameters.
func (m *Model) Store() *shm.Store {
	return m.store
}

// SetMask restricts masked samplers to edges whose mask bit is 1. The mask is
// copied into the store so worker processes see it.
func (m *Model) SetMask(mask []uint8) error {
	name := m.bufferName("mask")
	if _, err := m.store.Lookup(name); err == nil {
		if err := m.store.Remove(name); err != nil {
			return err
		}
	}
	b, err := m.store.Allocate([]int{len(mask)}, shm.Uint8, name)
	if err != nil {
		return err
	}
	copy(b.Uint8(), mask)
	m.mask = b.Uint8()
	if m.store.Dir() != "" {
		return m.writeManifest()
	}
	return nil
}

// Params returns the parameter matrices in role order: L, R for asymmetric
// models, E for symmetric models and E, D for diagonal models. The matrices
// view shared memory.
func (m *Model) Params() []types.Matrix {
	out := make([]types.Matrix, len(m.params))
	for i, p := range m.params {
		out[i] = p.buf.Matrix()
	}
	return out
}

// Param returns the parameter matrix with the given role.
func (m *Model) Param(role string) (types.Matrix, error) {
	for i, r := range m.Type.Roles() {
		if r == role {
			return m.params[i].buf.Matrix(), nil
		}
	}
	return types.Matrix{}, fmt.Errorf("%w: %s model has no %q parameter", ErrInvalidModel, m.Type, role)
}

// BufferNames returns the store names of every buffer owned by the model.
func (m *Model) BufferNames() []string {
	var names []string
	for _, role := range m.Type.Roles() {
		names = append(names, m.bufferName(role))
		if m.Options.Adam.Enabled {
			names = append(names, m.bufferName(role)+"_m", m.bufferName(role)+"_v", m.bufferName(role)+"_t")
		}
	}
	if m.mask != nil {
		names = append(names, m.bufferName("mask"))
	}
	return names
}

// Score returns the raw score of the pair (i, j) before activation.
func (m *Model) Score(i, j uint32) float32 {
	switch m.Type {
	case Asymmetric:
		return vecmath.Dot(m.params[0].row(i), m.params[1].row(j))
	case Symmetric:
		return vecmath.Dot(m.params[0].row(i), m.params[0].row(j))
	default:
		a, b, d := m.params[0].row(i), m.params[0].row(j), m.params[1].w
		var s float32
		for c := range d {
			s += a[c] * b[c] * d[c]
		}
		return s
	}
}

// Predict returns activation(score) for every pair.
func (m *Model) Predict(pairs []types.Pair) []float32 {
	act := m.Activation.Func()
	out := make([]float32, len(pairs))
	for k, p := range pairs {
		out[k] = act(m.Score(p[0], p[1]))
	}
	return out
}

// Release removes the model buffers from the store. The model must not be
// used afterwards.
func (m *Model) Release() error {
	var errs []error
	for _, name := range m.BufferNames() {
		if err := m.store.Remove(name); err != nil && !errors.Is(err, shm.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if m.store.Dir() != "" {
		if err := removeManifest(m.store.Dir(), m.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Model) samplerOptions() sample.Options {
	return sample.Options{
		VCount2:      m.Obs.N2,
		WalkLength:   m.Options.WalkLength,
		Mask:         m.mask,
		ExcludeEdges: m.Options.ExcludeEdges,
	}
}
