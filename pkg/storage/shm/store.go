// Package shm implements the shared parameter store: named, fixed-shape
// numeric buffers that every training worker reads and writes in place.
//
// A store is either anonymous (Dir == ""), shared by the goroutines of one
// process, or backed by files in a directory (typically on tmpfs such as
// /dev/shm), in which case any process that opens the same directory can
// attach to a buffer by name and see the same memory.
//
// The store synchronises its namespace, not the buffers. Concurrent writes to
// buffer elements are deliberately left unsynchronised.
package shm

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sanonone/grl/pkg/metrics"
	"github.com/tidwall/btree"
)

var (
	// ErrNotFound is returned when no buffer is registered under a name.
	ErrNotFound = errors.New("shared buffer not found")
	// ErrExists is returned when allocating over an existing name.
	ErrExists = errors.New("shared buffer already exists")
	// ErrInvalidName rejects names that cannot be used as file names.
	ErrInvalidName = errors.New("invalid shared buffer name")
	// ErrInvalidShape rejects empty, negative or too deep shapes.
	ErrInvalidShape = errors.New("invalid shared buffer shape")
	// ErrCorrupt is returned when a buffer file has an invalid header.
	ErrCorrupt = errors.New("corrupt shared buffer file")
)

const fileExt = ".buf"

// Store is a namespace of shared buffers, ordered by name.
type Store struct {
	mu      sync.RWMutex
	dir     string
	buffers *btree.BTreeG[*Buffer]
}

func byName(a, b *Buffer) bool {
	return a.name < b.name
}

// NewStore creates a store. With an empty dir buffers live in anonymous
// shared mappings; otherwise dir is created and buffers are files inside it.
func NewStore(dir string) (*Store, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store dir: %w", err)
		}
	}
	return &Store{
		dir:     dir,
		buffers: btree.NewBTreeG(byName),
	}, nil
}

// Dir returns the backing directory, or "" for an anonymous store.
func (s *Store) Dir() string {
	return s.dir
}

// Allocate creates a zero-initialised buffer under name. An empty name is
// replaced with a generated unique one.
func (s *Store) Allocate(shape []int, dtype DType, name string) (*Buffer, error) {
	if name == "" {
		name = "buf_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	if len(shape) == 0 || len(shape) > MaxRank {
		return nil, fmt.Errorf("%w: rank %d", ErrInvalidShape, len(shape))
	}
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidShape, shape)
		}
	}
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("%w: unknown dtype %d", ErrInvalidShape, dtype)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buffers.Get(&Buffer{name: name}); ok {
		return nil, fmt.Errorf("%w: %q", ErrExists, name)
	}

	size := HeaderSize + numElements(shape)*dtype.Size()
	b := &Buffer{
		name:  name,
		shape: append([]int(nil), shape...),
		dtype: dtype,
	}

	if s.dir == "" {
		mapping, err := mmapAnon(size)
		if err != nil {
			return nil, fmt.Errorf("failed to map anonymous buffer %q: %w", name, err)
		}
		b.mapping = mapping
	} else {
		path := s.path(name)
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("%w: %q on disk", ErrExists, name)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err != nil {
			return nil, err
		}
		if err := file.Truncate(int64(size)); err != nil {
			file.Close()
			return nil, err
		}
		mapping, err := mmapFile(file.Fd(), size)
		if err != nil {
			file.Close()
			return nil, err
		}
		b.mapping = mapping
		b.file = file
	}

	writeHeader(b.mapping[:HeaderSize], dtype, shape)
	b.data = b.mapping[HeaderSize:]
	s.buffers.Set(b)

	metrics.SharedBuffers.Inc()
	metrics.SharedBytes.Add(float64(len(b.data)))
	return b, nil
}

// AllocateGaussian allocates a float32 buffer filled with standard normal
// noise divided by the last dimension, which keeps initial dot products
// near zero whatever the embedding width.
func (s *Store) AllocateGaussian(shape []int, name string, rng *rand.Rand) (*Buffer, error) {
	b, err := s.Allocate(shape, Float32, name)
	if err != nil {
		return nil, err
	}
	scale := float64(shape[len(shape)-1])
	if scale == 0 {
		return b, nil
	}
	data := b.Float32()
	for i := range data {
		data[i] = float32(rng.NormFloat64() / scale)
	}
	return b, nil
}

// Lookup returns the buffer registered under name. A file-backed store also
// attaches buffers created by other processes in the same directory.
func (s *Store) Lookup(name string) (*Buffer, error) {
	s.mu.RLock()
	b, ok := s.buffers.Get(&Buffer{name: name})
	s.mu.RUnlock()
	if ok {
		return b, nil
	}
	if s.dir == "" || validName(name) != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s.attach(name)
}

func (s *Store) attach(name string) (*Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buffers.Get(&Buffer{name: name}); ok {
		return b, nil
	}

	file, err := os.OpenFile(s.path(name), os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() < HeaderSize {
		file.Close()
		return nil, fmt.Errorf("%w: %q is %d bytes", ErrCorrupt, name, info.Size())
	}

	mapping, err := mmapFile(file.Fd(), int(info.Size()))
	if err != nil {
		file.Close()
		return nil, err
	}
	dtype, shape, err := readHeader(mapping[:HeaderSize])
	if err == nil && HeaderSize+numElements(shape)*dtype.Size() != len(mapping) {
		err = fmt.Errorf("%w: %q size does not match shape %v", ErrCorrupt, name, shape)
	}
	if err != nil {
		munmap(mapping)
		file.Close()
		return nil, err
	}

	b := &Buffer{
		name:    name,
		shape:   shape,
		dtype:   dtype,
		mapping: mapping,
		data:    mapping[HeaderSize:],
		file:    file,
	}
	s.buffers.Set(b)
	metrics.SharedBuffers.Inc()
	metrics.SharedBytes.Add(float64(len(b.data)))
	return b, nil
}

// List returns the registered names in ascending order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, s.buffers.Len())
	s.buffers.Scan(func(b *Buffer) bool {
		names = append(names, b.name)
		return true
	})
	return names
}

// Remove unmaps a buffer and, for file-backed stores, deletes its file.
// Views obtained from the buffer must not be used afterwards.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Store) removeLocked(name string) error {
	b, ok := s.buffers.Delete(&Buffer{name: name})
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	metrics.SharedBuffers.Dec()
	metrics.SharedBytes.Sub(float64(len(b.data)))

	err := b.release()
	if b.file != nil {
		if rmErr := os.Remove(s.path(name)); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	}
	return err
}

// Flush removes every buffer.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, b := range s.buffers.Items() {
		if err := s.removeLocked(b.name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close unmaps every buffer but leaves backing files in place, so other
// processes keep their mappings and the buffers can be attached again.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, b := range s.buffers.Items() {
		s.buffers.Delete(b)
		metrics.SharedBuffers.Dec()
		metrics.SharedBytes.Sub(float64(len(b.data)))
		if err := b.release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns the buffer count and total payload bytes.
func (s *Store) Stats() (count int, bytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.buffers.Scan(func(b *Buffer) bool {
		count++
		bytes += int64(len(b.data))
		return true
	})
	return count, bytes
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
