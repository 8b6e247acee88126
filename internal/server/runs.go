package server

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sanonone/grl/pkg/embed"
)

// Run is one training job of a sweep as reported by the status server.
type Run struct {
	ID        string          `json:"id"`
	Model     string          `json:"model"`
	Generator string          `json:"generator,omitempty"`
	Embedding string          `json:"embedding"`
	Dim       int             `json:"dim"`
	Steps     int             `json:"steps"`
	Status    embed.JobStatus `json:"status"`
	Accuracy  *float64        `json:"accuracy,omitempty"`
	Error     string          `json:"error,omitempty"`
	Started   time.Time       `json:"started"`
	Finished  *time.Time      `json:"finished,omitempty"`
}

type trackedRun struct {
	mu  sync.RWMutex
	run Run
	job *embed.Job
}

func (t *trackedRun) snapshot() Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.run.Finished == nil && t.job != nil {
		select {
		case <-t.job.Done():
			now := time.Now()
			t.run.Finished = &now
			t.run.Status = t.job.Status()
			if err := t.job.Err(); err != nil {
				t.run.Error = err.Error()
			}
		default:
		}
	}
	return t.run
}

// RunRegistry tracks every job started by a sweep.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*trackedRun
}

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*trackedRun)}
}

// Track registers job under its ID and returns it.
func (rr *RunRegistry) Track(job *embed.Job, m *embed.Model, generator string, steps int) string {
	t := &trackedRun{
		job: job,
		run: Run{
			ID:        job.ID,
			Model:     m.ID,
			Generator: generator,
			Embedding: m.Type.String(),
			Dim:       m.Dim,
			Steps:     steps,
			Status:    job.Status(),
			Started:   time.Now(),
		},
	}
	rr.mu.Lock()
	rr.runs[job.ID] = t
	rr.mu.Unlock()
	return job.ID
}

// SetAccuracy records the evaluated accuracy of a finished run.
func (rr *RunRegistry) SetAccuracy(id string, acc float64) {
	rr.mu.RLock()
	t, ok := rr.runs[id]
	rr.mu.RUnlock()
	if !ok {
		return
	}
	t.mu.Lock()
	t.run.Accuracy = &acc
	t.mu.Unlock()
}

// Get returns the current state of a run.
func (rr *RunRegistry) Get(id string) (Run, bool) {
	rr.mu.RLock()
	t, ok := rr.runs[id]
	rr.mu.RUnlock()
	if !ok {
		return Run{}, false
	}
	return t.snapshot(), true
}

// List returns every run, oldest first.
func (rr *RunRegistry) List() []Run {
	rr.mu.RLock()
	out := make([]Run, 0, len(rr.runs))
	for _, t := range rr.runs {
		out = append(out, t.snapshot())
	}
	rr.mu.RUnlock()

	slices.SortFunc(out, func(a, b Run) int {
		if c := a.Started.Compare(b.Started); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Stop asks a running job to return after its current chunk.
func (rr *RunRegistry) Stop(id string) bool {
	rr.mu.RLock()
	t, ok := rr.runs[id]
	rr.mu.RUnlock()
	if !ok {
		return false
	}
	t.job.Stop()
	return true
}
