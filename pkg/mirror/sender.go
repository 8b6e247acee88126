package mirror

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/sanonone/grl/pkg/core/types"
	"github.com/sanonone/grl/pkg/metrics"
)

// SenderOptions configures a Sender.
type SenderOptions struct {
	// SampleSize is the number of rows pushed per tick, drawn with replacement.
	SampleSize int `yaml:"sample_size" json:"sample_size"`
	// Interval is the time between two pushes.
	Interval time.Duration `yaml:"interval" json:"interval"`
	// WriteTimeout drops receivers that do not accept a message in time.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DefaultSenderOptions pushes one row every 10ms.
func DefaultSenderOptions() SenderOptions {
	return SenderOptions{SampleSize: 1, Interval: 10 * time.Millisecond, WriteTimeout: time.Second}
}

// Sender pushes sampled rows of a matrix to every connected receiver.
type Sender struct {
	m    types.Matrix
	opts SenderOptions
	ln   net.Listener
	rng  *rand.Rand

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Listen creates a sender for m listening on addr (e.g. ":5555").
func Listen(addr string, m types.Matrix, opts SenderOptions) (*Sender, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if opts.SampleSize < 1 {
		opts.SampleSize = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultSenderOptions().Interval
	}
	return &Sender{
		m:     m,
		opts:  opts,
		ln:    ln,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		conns: make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the listening address.
func (s *Sender) Addr() net.Addr {
	return s.ln.Addr()
}

// Receivers returns the number of connected receivers.
func (s *Sender) Receivers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Run accepts receivers and pushes a sample every Interval until ctx is
// cancelled. It closes the listener and every connection before returning.
func (s *Sender) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.acceptLoop()
	}()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.ln.Close()
			wg.Wait()
			s.mu.Lock()
			for c := range s.conns {
				c.Close()
				delete(s.conns, c)
			}
			s.mu.Unlock()
			return nil
		case <-ticker.C:
			s.Push()
		}
	}
}

func (s *Sender) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Error("[MIRROR] Accept failed", "error", err)
			}
			return
		}
		slog.Info("[MIRROR] Receiver connected", "remote", conn.RemoteAddr())
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
	}
}

// Push samples SampleSize rows and writes them to every receiver. Receivers
// that fail to accept the message are dropped.
func (s *Sender) Push() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 || s.m.Rows == 0 {
		return
	}
	indices := make([]uint32, s.opts.SampleSize)
	for k := range indices {
		indices[k] = uint32(s.rng.IntN(s.m.Rows))
	}
	msg := Sample(s.m, indices)

	for c := range s.conns {
		if s.opts.WriteTimeout > 0 {
			c.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		}
		if err := writeMessage(c, msg); err != nil {
			slog.Warn("[MIRROR] Dropping receiver", "remote", c.RemoteAddr(), "error", err)
			c.Close()
			delete(s.conns, c)
			continue
		}
		metrics.MirrorRows.WithLabelValues("sent").Add(float64(len(indices)))
	}
}
