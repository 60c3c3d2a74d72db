// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package jobs is the in-memory job registry: a FIFO queue with a bounded
// number of concurrent runners and time/count-based retention of finished
// jobs.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuGH/minbar/internal/log"
	"github.com/ManuGH/minbar/internal/pipeline"
)

var jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "minbar_jobs_total",
	Help: "Job terminal outcomes",
}, []string{"status"})

// Job lifecycle states.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Retention policy for terminal jobs.
const (
	retentionAge    = 6 * time.Hour
	maxTerminalJobs = 2000
)

// Job is one queued or finished unit of work.
type Job struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"` // "url" | "file"
	Input      string             `json:"input"`
	Force      bool               `json:"force,omitempty"`
	Overrides  pipeline.Overrides `json:"overrides,omitempty"`
	Status     string             `json:"status"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	StartedAt  *time.Time         `json:"startedAt,omitempty"`
	FinishedAt *time.Time         `json:"finishedAt,omitempty"`
}

func terminal(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}

// Runner executes a job's work. The manager records the outcome.
type Runner func(ctx context.Context, job Job) error

// Manager owns the job map and the worker budget.
type Manager struct {
	mu          sync.Mutex
	jobs        map[string]*Job
	queue       []string
	running     int
	concurrency int
	runner      Runner
	baseCtx     context.Context
	wg          sync.WaitGroup
	now         func() time.Time
}

// NewManager returns a manager running at most concurrency jobs at once.
// Jobs run on ctx; cancelling it aborts running work.
func NewManager(ctx context.Context, concurrency int, runner Runner) *Manager {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Manager{
		jobs:        make(map[string]*Job),
		concurrency: concurrency,
		runner:      runner,
		baseCtx:     ctx,
		now:         time.Now,
	}
}

// Create enqueues a new job and starts it immediately when a worker slot is
// free.
func (m *Manager) Create(kind, input string, force bool, overrides pipeline.Overrides) Job {
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Input:     input,
		Force:     force,
		Overrides: overrides,
		Status:    StatusQueued,
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	m.queue = append(m.queue, job.ID)
	m.pumpLocked()
	return *job
}

// Get retrieves a job snapshot by ID.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns all jobs newest-first.
func (m *Manager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()

	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindActiveByInput returns the queued or running job for an input, if any.
// Used to deduplicate submissions.
func (m *Manager) FindActiveByInput(input string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	for _, job := range m.jobs {
		if job.Input == input && !terminal(job.Status) {
			return *job, true
		}
	}
	return Job{}, false
}

// CountActive returns the number of queued plus running jobs.
func (m *Manager) CountActive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	n := 0
	for _, job := range m.jobs {
		if !terminal(job.Status) {
			n++
		}
	}
	return n
}

// Wait blocks until all running jobs have finished. Shutdown helper.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// pumpLocked starts queued jobs while worker slots are free. Caller holds
// the lock.
func (m *Manager) pumpLocked() {
	for m.running < m.concurrency && len(m.queue) > 0 {
		id := m.queue[0]
		m.queue = m.queue[1:]
		job, ok := m.jobs[id]
		if !ok || job.Status != StatusQueued {
			continue
		}
		started := m.now().UTC()
		job.Status = StatusRunning
		job.StartedAt = &started
		m.running++

		m.wg.Add(1)
		go m.run(*job)
	}
}

func (m *Manager) run(snapshot Job) {
	defer m.wg.Done()

	ctx := log.ContextWithJobID(m.baseCtx, snapshot.ID)
	logger := log.WithComponentFromContext(ctx, "jobs")
	logger.Info().
		Str("event", "job.start").
		Str("kind", snapshot.Kind).
		Str("input", snapshot.Input).
		Msg("job started")

	err := m.runner(ctx, snapshot)

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[snapshot.ID]
	if ok {
		finished := m.now().UTC()
		job.FinishedAt = &finished
		if err != nil {
			job.Status = StatusFailed
			job.Error = err.Error()
		} else {
			job.Status = StatusSucceeded
		}
		jobsTotal.WithLabelValues(job.Status).Inc()
	}
	m.running--
	m.pruneLocked()
	m.pumpLocked()

	if err != nil {
		logger.Error().Err(err).Str("event", "job.failed").Msg("job failed")
	} else {
		logger.Info().Str("event", "job.done").Msg("job finished")
	}
}

// pruneLocked drops terminal jobs older than the retention window and caps
// the number of retained terminal jobs, oldest-first. A terminal job missing
// its finish timestamp counts as finished now. Caller holds the lock.
func (m *Manager) pruneLocked() {
	cutoff := m.now().Add(-retentionAge)

	var retained []*Job
	for id, job := range m.jobs {
		if !terminal(job.Status) {
			continue
		}
		finished := m.now()
		if job.FinishedAt != nil {
			finished = *job.FinishedAt
		}
		if finished.Before(cutoff) {
			delete(m.jobs, id)
			continue
		}
		retained = append(retained, job)
	}

	if len(retained) <= maxTerminalJobs {
		return
	}
	sort.Slice(retained, func(i, j int) bool {
		fi, fj := retained[i].FinishedAt, retained[j].FinishedAt
		switch {
		case fi == nil:
			return false
		case fj == nil:
			return true
		default:
			return fi.Before(*fj)
		}
	})
	for _, job := range retained[:len(retained)-maxTerminalJobs] {
		delete(m.jobs, job.ID)
	}
}
