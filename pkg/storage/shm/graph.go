package shm

import (
	"errors"
	"fmt"

	"github.com/sanonone/grl/pkg/graph"
)

// GraphName derives the shared name of a graph from its content digest.
func GraphName(g *graph.Graph) string {
	return "graph_" + g.HexDigest()[:16]
}

// RegisterGraph copies the graph arrays into two shared buffers named
// <name>_offsets and <name>_targets and returns the composite name. Graphs
// with the same content map to the same name, and registering an already
// registered graph returns that name without copying.
func (s *Store) RegisterGraph(g *graph.Graph) (string, error) {
	name := GraphName(g)
	if _, err := s.LookupGraph(name); err == nil {
		return name, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	offsets, err := s.Allocate([]int{len(g.Offsets)}, Uint64, name+"_offsets")
	if err != nil {
		return "", fmt.Errorf("failed to register graph offsets: %w", err)
	}
	targets, err := s.Allocate([]int{len(g.Targets)}, Uint32, name+"_targets")
	if err != nil {
		s.Remove(offsets.Name())
		return "", fmt.Errorf("failed to register graph targets: %w", err)
	}
	copy(offsets.Uint64(), g.Offsets)
	copy(targets.Uint32(), g.Targets)
	return name, nil
}

// LookupGraph returns a graph whose arrays view the shared buffers registered
// under name. The returned graph must be treated as read-only.
func (s *Store) LookupGraph(name string) (*graph.Graph, error) {
	offsets, err := s.Lookup(name + "_offsets")
	if err != nil {
		return nil, err
	}
	targets, err := s.Lookup(name + "_targets")
	if err != nil {
		return nil, err
	}
	if offsets.DType() != Uint64 || targets.DType() != Uint32 {
		return nil, fmt.Errorf("%w: %q has dtypes %s/%s", ErrCorrupt, name, offsets.DType(), targets.DType())
	}
	return &graph.Graph{Offsets: offsets.Uint64(), Targets: targets.Uint32()}, nil
}

// RemoveGraph removes both buffers of a registered graph.
func (s *Store) RemoveGraph(name string) error {
	return errors.Join(s.Remove(name+"_offsets"), s.Remove(name+"_targets"))
}
