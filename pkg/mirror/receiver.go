package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/sanonone/grl/pkg/core/types"
	"github.com/sanonone/grl/pkg/metrics"
)

// Receiver merges rows pushed by one sender into a local matrix.
type Receiver struct {
	m    types.Matrix
	conn net.Conn
}

// Dial connects to the sender at addr.
func Dial(ctx context.Context, addr string, m types.Matrix) (*Receiver, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing mirror sender %s: %w", addr, err)
	}
	return &Receiver{m: m, conn: conn}, nil
}

// Run merges incoming messages until ctx is cancelled or the sender goes
// away. A cancelled context is not an error.
func (r *Receiver) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		r.conn.SetReadDeadline(time.Now())
	})
	defer stop()
	defer r.conn.Close()

	for {
		msg, err := readMessage(r.conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				slog.Info("[MIRROR] Sender closed the connection", "remote", r.conn.RemoteAddr())
				return nil
			}
			return err
		}
		if err := Merge(r.m, msg); err != nil {
			slog.Warn("[MIRROR] Discarding message", "error", err)
			continue
		}
		metrics.MirrorRows.WithLabelValues("merged").Add(float64(len(msg.Indices)))
	}
}
