package embed

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sanonone/grl/pkg/persistence"
	"github.com/sanonone/grl/pkg/storage/shm"
	"github.com/x448/float16"
)

// Precision is the element type used by snapshots.
type Precision string

const (
	PrecisionFloat32 Precision = "float32"
	PrecisionFloat16 Precision = "float16"
)

// ErrInvalidSnapshot reports a snapshot that does not describe a model.
var ErrInvalidSnapshot = errors.New("invalid model snapshot")

type snapshotParam struct {
	Role  string
	Shape []int
	F32   []float32
	F16   []uint16
}

type modelSnapshot struct {
	ID        string
	Spec      Spec
	Options   Options
	Precision Precision
	Params    []snapshotParam
}

// Snapshot writes the model parameters to w as one framed gob record.
// Adam state is not included. Float16 halves the size at the cost of
// precision.
func (m *Model) Snapshot(w io.Writer, precision Precision) error {
	if precision != PrecisionFloat32 && precision != PrecisionFloat16 {
		return fmt.Errorf("%w: unknown precision %q", ErrInvalidSnapshot, precision)
	}
	snap := modelSnapshot{ID: m.ID, Spec: m.Spec, Options: m.Options, Precision: precision}
	for i, role := range m.Type.Roles() {
		p := m.params[i]
		sp := snapshotParam{Role: role, Shape: p.buf.Shape()}
		if precision == PrecisionFloat16 {
			sp.F16 = make([]uint16, len(p.w))
			for k, v := range p.w {
				sp.F16[k] = float16.Fromfloat32(v).Bits()
			}
		} else {
			sp.F32 = append([]float32(nil), p.w...)
		}
		snap.Params = append(snap.Params, sp)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := persistence.NewFrameWriter(w).WriteFrame(persistence.OpSnapshot, buf.Bytes()); err != nil {
		return err
	}
	slog.Info("[EMBED] Snapshot written", "model", m.ID, "precision", precision, "bytes", buf.Len())
	return nil
}

// LoadSnapshot reads a snapshot written by Snapshot into new buffers of
// store and returns the restored model under a fresh id. Adam state, when
// enabled, restarts from zero.
func LoadSnapshot(r io.Reader, store *shm.Store) (*Model, error) {
	payload, err := persistence.ReadFrameOf(r, persistence.OpSnapshot)
	if err != nil {
		return nil, err
	}
	var snap modelSnapshot
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	roles := snap.Spec.Type.Roles()
	if len(snap.Params) != len(roles) {
		return nil, fmt.Errorf("%w: %d parameters for a %s model", ErrInvalidSnapshot, len(snap.Params), snap.Spec.Type)
	}

	m, err := New(store, snap.Spec, snap.Options)
	if err != nil {
		return nil, err
	}
	for i, sp := range snap.Params {
		p := m.params[i]
		if sp.Role != roles[i] {
			m.Release()
			return nil, fmt.Errorf("%w: parameter %d is %q, want %q", ErrInvalidSnapshot, i, sp.Role, roles[i])
		}
		switch {
		case len(sp.F32) == len(p.w):
			copy(p.w, sp.F32)
		case len(sp.F16) == len(p.w):
			for k, v := range sp.F16 {
				p.w[k] = float16.Frombits(v).Float32()
			}
		default:
			m.Release()
			return nil, fmt.Errorf("%w: parameter %s has the wrong size", ErrInvalidSnapshot, sp.Role)
		}
	}
	slog.Info("[EMBED] Snapshot loaded", "model", m.ID, "from", snap.ID, "precision", snap.Precision)
	return m, nil
}
