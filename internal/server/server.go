// Package server exposes the status of a training sweep over HTTP: health,
// prometheus metrics, the tracked runs and profiling endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Server holds the HTTP interface and the run registry it reports on.
type Server struct {
	Runs *RunRegistry

	httpServer *http.Server
}

// NewServer builds a server listening on httpAddr. A nil registry creates
// an empty one.
func NewServer(httpAddr string, runs *RunRegistry) *Server {
	if runs == nil {
		runs = NewRunRegistry()
	}
	s := &Server{Runs: runs}

	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Recovery must be outer-most to catch everything.
	var handler http.Handler = mux
	handler = LoggingMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	log.Printf("HTTP status server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server. Running jobs are left alone.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}
