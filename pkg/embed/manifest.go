package embed

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sanonone/grl/pkg/storage/shm"
	"gopkg.in/yaml.v3"
)

// manifest is the description written next to the buffers of a file-backed
// model so that worker processes can attach to it.
type manifest struct {
	ID      string  `yaml:"id"`
	Spec    Spec    `yaml:"spec"`
	Options Options `yaml:"options"`
	Mask    bool    `yaml:"mask,omitempty"`
}

func manifestPath(dir, id string) string {
	return filepath.Join(dir, id+".model.yaml")
}

func (m *Model) manifest() manifest {
	return manifest{ID: m.ID, Spec: m.Spec, Options: m.Options, Mask: m.mask != nil}
}

func (m *Model) writeManifest() error {
	data, err := yaml.Marshal(m.manifest())
	if err != nil {
		return fmt.Errorf("encoding model manifest: %w", err)
	}
	path := manifestPath(m.store.Dir(), m.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func removeManifest(dir, id string) error {
	err := os.Remove(manifestPath(dir, id))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Attach opens a model created by another process in the same file-backed
// store. The returned model shares every parameter buffer with its creator.
func Attach(store *shm.Store, id string) (*Model, error) {
	if store.Dir() == "" {
		return nil, ErrNotShared
	}
	data, err := os.ReadFile(manifestPath(store.Dir(), id))
	if err != nil {
		return nil, fmt.Errorf("reading model manifest: %w", err)
	}
	var mf manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&mf); err != nil {
		return nil, fmt.Errorf("decoding model manifest: %w", err)
	}
	if err := mf.Spec.Validate(); err != nil {
		return nil, err
	}

	m := &Model{
		ID:       mf.ID,
		Spec:     mf.Spec,
		Options:  mf.Options,
		store:    store,
		executor: GoroutineExecutor{},
	}
	for _, role := range m.Type.Roles() {
		b, err := store.Lookup(m.bufferName(role))
		if err != nil {
			return nil, err
		}
		p := &param{buf: b, w: b.Float32(), cols: m.Dim}
		if m.Options.Adam.Enabled {
			name := m.bufferName(role)
			mb, err := store.Lookup(name + "_m")
			if err != nil {
				return nil, err
			}
			vb, err := store.Lookup(name + "_v")
			if err != nil {
				return nil, err
			}
			tb, err := store.Lookup(name + "_t")
			if err != nil {
				return nil, err
			}
			p.m, p.v, p.t = mb.Float32(), vb.Float32(), tb.Uint32()
		}
		m.params = append(m.params, p)
	}
	if mf.Mask {
		b, err := store.Lookup(m.bufferName("mask"))
		if err != nil {
			return nil, err
		}
		m.mask = b.Uint8()
	}
	return m, nil
}

func openStore(dir string) (*shm.Store, error) {
	if dir == "" {
		return nil, ErrNotShared
	}
	return shm.NewStore(dir)
}
