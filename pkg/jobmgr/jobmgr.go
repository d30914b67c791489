// Package jobmgr runs named background loops with cancellation, status
// callbacks and in-memory tracking of what is still running.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(func(name string, s jobmgr.Status, err error) {
//	    logger.Debug().Str("job", name).Str("status", string(s)).Err(err).Msg("job")
//	})
//
//	err := jm.StartAsync(ctx, "receive", func(ctx context.Context) error {
//	    // loop until ctx is cancelled or the work fails
//	    return nil
//	})
//
//	// later...
//	_ = jm.Stop("receive")
//
// Unlike a fire-and-forget goroutine, Stop waits for the job to return, so
// the caller knows nothing from the job is still touching shared state. A job
// must therefore never Stop itself.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var ErrNotRunning = errors.New("jobmgr: job not running")

type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// StatusReporter receives lifecycle events for jobs. err is set only with
// StatusError.
type StatusReporter func(name string, status Status, err error)

type job struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager orchestrates starting, stopping and tracking jobs.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*job
	reporter StatusReporter
}

// NewManager creates a new Manager. The reporter may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*job),
		reporter: reporter,
	}
}

// StartAsync runs runner in its own goroutine with a context derived from
// parent. A second job with the same name is refused while the first runs.
// Jobs are forgotten automatically once they return.
func (m *Manager) StartAsync(parent context.Context, name string, runner func(ctx context.Context) error) error {
	if parent == nil {
		parent = context.Background()
	}

	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("jobmgr: job %q is already running", name)
	}
	ctx, cancel := context.WithCancel(parent)
	j := &job{name: name, cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = j
	m.mu.Unlock()

	go func() {
		defer close(j.done)
		defer cancel()

		m.report(name, StatusRunning, nil)
		if err := runner(ctx); err != nil {
			m.report(name, StatusError, err)
		} else {
			m.report(name, StatusDone, nil)
		}

		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()

	return nil
}

// Stop cancels a running job and blocks until it has returned.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	j.cancel()
	<-j.done
	return nil
}

// StopAll stops every running job and waits for all of them.
func (m *Manager) StopAll() {
	for _, name := range m.List() {
		_ = m.Stop(name)
	}
}

// Running reports whether a job with that name is active.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns the sorted names of active jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (m *Manager) report(name string, s Status, err error) {
	if m.reporter != nil {
		m.reporter(name, s, err)
	}
}
