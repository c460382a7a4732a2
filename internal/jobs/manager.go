package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"songgen-studio/internal/domain"
)

// ErrJobExists is returned when registering an id twice.
var ErrJobExists = errors.New("job already exists")

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// ErrNoRunningJob is returned when cancel is requested for a finished job.
var ErrNoRunningJob = errors.New("no running job")

// ErrServerBusy is returned when no execution slot frees up in time.
var ErrServerBusy = errors.New("server busy")

type entry struct {
	job    domain.Job
	cancel context.CancelFunc
}

// Manager tracks generation jobs, their state transitions and the slots
// bounding how many run at once.
type Manager struct {
	mu    sync.RWMutex
	jobs  map[string]*entry
	slots chan struct{}
	now   func() time.Time
}

// NewManager creates a manager allowing maxConcurrent running jobs.
func NewManager(maxConcurrent int) *Manager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{
		jobs:  make(map[string]*entry),
		slots: make(chan struct{}, maxConcurrent),
		now:   time.Now,
	}
}

// Register creates a job in preparing state. cancel, when non-nil, is
// invoked by Cancel.
func (m *Manager) Register(jobID, songID string, cancel context.CancelFunc) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[jobID]; ok {
		return domain.Job{}, fmt.Errorf("%w: %s", ErrJobExists, jobID)
	}

	now := m.now().UTC()
	job := domain.Job{
		ID:        jobID,
		SongID:    songID,
		State:     domain.JobStatePreparing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.jobs[jobID] = &entry{job: job, cancel: cancel}
	return job, nil
}

// Acquire waits up to wait for a free execution slot. The returned func
// releases the slot.
func (m *Manager) Acquire(ctx context.Context, wait time.Duration) (func(), error) {
	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case m.slots <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-m.slots }) }, nil
	case <-timeout:
		return nil, ErrServerBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Transition validates and applies a state transition for one job.
func (m *Manager) Transition(jobID string, state domain.JobState, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if state == e.job.State {
		return nil
	}
	if !isValidTransition(e.job.State, state) {
		return fmt.Errorf("invalid transition: %s -> %s", e.job.State, state)
	}

	e.job.State = state
	e.job.Message = message
	e.job.UpdatedAt = m.now().UTC()
	if state.Terminal() {
		e.cancel = nil
	}
	return nil
}

// Get returns a snapshot of one job.
func (m *Manager) Get(jobID string) (domain.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[jobID]
	if !ok {
		return domain.Job{}, false
	}
	return e.job, true
}

// List returns snapshots of all tracked jobs, newest first.
func (m *Manager) List() []domain.Job {
	m.mu.RLock()
	out := make([]domain.Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.job)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// IsRunning reports whether the job is in a non-terminal state.
func (m *Manager) IsRunning(jobID string) bool {
	job, ok := m.Get(jobID)
	return ok && !job.State.Terminal()
}

// Cancel cancels a running job's context. The orchestrator observes the
// cancellation and moves the job to error.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	e, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if e.job.State.Terminal() || e.cancel == nil {
		m.mu.Unlock()
		return ErrNoRunningJob
	}
	cancel := e.cancel
	m.mu.Unlock()

	cancel()
	return nil
}

// Prune forgets terminal jobs last updated before cutoff and returns how
// many were removed.
func (m *Manager) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.jobs {
		if e.job.State.Terminal() && e.job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobState) bool {
	switch from {
	case domain.JobStatePreparing:
		return to == domain.JobStateGenerating || to == domain.JobStateError
	case domain.JobStateGenerating:
		return to == domain.JobStateConverting || to == domain.JobStateError
	case domain.JobStateConverting:
		return to == domain.JobStateDone || to == domain.JobStateError
	default:
		return false
	}
}
