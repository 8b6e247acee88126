// Package mirror keeps copies of a float32 matrix on several hosts loosely in
// sync. A Sender periodically samples rows of its matrix and pushes them to
// every connected Receiver, which averages them into its own copy in place.
//
// Messages are gob-encoded Message values inside CRC-checked frames. There
// is no reply and no schema versioning.
package mirror

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sanonone/grl/pkg/core/types"
	"github.com/sanonone/grl/pkg/persistence"
	"golang.org/x/sync/errgroup"
)

// DefaultPort is the port of a mirror sender.
const DefaultPort = 5555

var (
	// ErrShapeMismatch is returned when a message does not fit the local matrix.
	ErrShapeMismatch = errors.New("mirrored rows do not fit the local matrix")
)

// Message carries sampled rows; Rows holds len(Indices) rows of Cols values.
type Message struct {
	Indices []uint32
	Cols    int
	Rows    []float32
}

func writeMessage(w io.Writer, msg *Message) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return fmt.Errorf("encoding mirror message: %w", err)
	}
	return persistence.NewFrameWriter(w).WriteFrame(persistence.OpMirror, buf.Bytes())
}

func readMessage(r io.Reader) (*Message, error) {
	payload, err := persistence.ReadFrameOf(r, persistence.OpMirror)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decoding mirror message: %w", err)
	}
	return &msg, nil
}

// Sample copies the given rows of m into a message.
func Sample(m types.Matrix, indices []uint32) *Message {
	msg := &Message{Indices: indices, Cols: m.Cols, Rows: make([]float32, 0, len(indices)*m.Cols)}
	for _, i := range indices {
		msg.Rows = append(msg.Rows, m.Row(int(i))...)
	}
	return msg
}

// Merge averages the rows of msg into m in place. Like training updates,
// merges are not synchronised with other writers of m.
func Merge(m types.Matrix, msg *Message) error {
	if msg.Cols != m.Cols || len(msg.Rows) != len(msg.Indices)*msg.Cols {
		return fmt.Errorf("%w: %d rows of %d columns into %dx%d", ErrShapeMismatch, len(msg.Indices), msg.Cols, m.Rows, m.Cols)
	}
	for _, i := range msg.Indices {
		if int(i) >= m.Rows {
			return fmt.Errorf("%w: row %d of %d", ErrShapeMismatch, i, m.Rows)
		}
	}
	for k, i := range msg.Indices {
		local := m.Row(int(i))
		remote := msg.Rows[k*msg.Cols : (k+1)*msg.Cols]
		for c := range local {
			local[c] = (local[c] + remote[c]) / 2
		}
	}
	return nil
}

// Run mirrors m with peers: it serves m on addr and merges the rows pushed by
// every peer sender until ctx is cancelled or a connection fails.
func Run(ctx context.Context, m types.Matrix, addr string, peers []string, opts SenderOptions) error {
	s, err := Listen(addr, m, opts)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.Run(ctx) })
	for _, peer := range peers {
		r, err := Dial(ctx, peer, m)
		if err != nil {
			cancel()
			return errors.Join(err, eg.Wait())
		}
		eg.Go(func() error { return r.Run(ctx) })
	}
	slog.Info("[MIRROR] Mirroring", "addr", s.Addr(), "peers", len(peers), "sample_size", opts.SampleSize)
	return eg.Wait()
}
