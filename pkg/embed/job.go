package embed

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// JobStatus defines the possible states of a training job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobStopped   JobStatus = "stopped"
)

// Job tracks one asynchronous fit.
type Job struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	status  JobStatus
	err     error
	stopped bool
}

func newJob(parent context.Context) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		ID:     strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: JobRunning,
	}
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	switch {
	case err == nil:
		j.status = JobCompleted
	case j.stopped && errors.Is(err, context.Canceled):
		j.status = JobStopped
	default:
		j.status = JobFailed
		j.err = err
	}
	j.mu.Unlock()
	j.cancel()
	close(j.done)
}

// Stop asks the workers to return after their current chunk.
func (j *Job) Stop() {
	j.mu.Lock()
	j.stopped = true
	j.mu.Unlock()
	j.cancel()
}

// Done is closed when every worker has returned.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job ends and returns the workers' error. A job ended
// by Stop returns nil.
func (j *Job) Wait() error {
	<-j.done
	return j.Err()
}

// Status returns the current state.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Err returns the failure of a finished job.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}
