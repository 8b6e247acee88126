package graph

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/sanonone/grl/pkg/persistence"
)

// wireGraph is the on-disk form: the two arrays as a tuple.
type wireGraph struct {
	Offsets []uint64
	Targets []uint32
}

// Write encodes g as a single graph frame.
func Write(w io.Writer, g *Graph) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wireGraph{Offsets: g.Offsets, Targets: g.Targets}); err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	return persistence.NewFrameWriter(w).WriteFrame(persistence.OpGraph, buf.Bytes())
}

// Read decodes and validates a graph frame.
func Read(r io.Reader) (*Graph, error) {
	payload, err := persistence.ReadFrameOf(r, persistence.OpGraph)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph frame: %w", err)
	}
	var wg wireGraph
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&wg); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	// gob drops empty slices; an edgeless graph still needs a non-nil Targets.
	if wg.Targets == nil {
		wg.Targets = []uint32{}
	}
	return New(wg.Offsets, wg.Targets)
}

// Save writes g to path, replacing any existing file.
func Save(path string, g *Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create graph file: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, g); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a graph written by Save.
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph file: %w", err)
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}
