// Package memory implements broker.Broker in process memory. Safe for
// concurrent use. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/broker"
	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/job"
)

// Compile-time interface check.
var _ broker.Broker = (*Broker)(nil)

// Broker is a fully in-memory worker queue.
type Broker struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
}

// New returns a new empty Broker.
func New() *Broker {
	return &Broker{jobs: make(map[string]*job.Job)}
}

// Enqueue appends the job to its queue, replacing any prior entry with
// the same ID.
func (b *Broker) Enqueue(_ context.Context, j *job.Job) (*broker.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *j
	if cp.State == "" || cp.State == job.StateRunning {
		cp.State = job.StatePending
	}
	b.jobs[cp.ID.String()] = &cp

	return handleOf(&cp), nil
}

// Lookup resolves a job ID to its handle.
func (b *Broker) Lookup(_ context.Context, jobID id.JobID) (*broker.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[jobID.String()]
	if !ok {
		return nil, sluice.ErrJobNotFound
	}
	return handleOf(j), nil
}

// Dequeue claims up to limit due jobs in (priority asc, run-at asc) order.
func (b *Broker) Dequeue(_ context.Context, queues []string, limit int) ([]*job.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	candidates := make([]*job.Job, 0, len(b.jobs))
	for _, j := range b.jobs {
		if j.State != job.StatePending && j.State != job.StateRetrying {
			continue
		}
		if !j.RunAt.IsZero() && j.RunAt.After(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	sort.SliceStable(candidates, func(i, k int) bool {
		return broker.Score(candidates[i].Priority, candidates[i].RunAt) <
			broker.Score(candidates[k].Priority, candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]*job.Job, 0, len(candidates))
	for _, j := range candidates {
		j.State = job.StateRunning
		started := now
		j.StartedAt = &started
		cp := *j
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

// Complete records the terminal state for a claimed job.
func (b *Broker) Complete(_ context.Context, jobID id.JobID, state job.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[jobID.String()]
	if !ok {
		return sluice.ErrJobNotFound
	}
	j.State = state
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

func handleOf(j *job.Job) *broker.Handle {
	return &broker.Handle{
		JobID:      j.ID,
		TeamID:     j.TeamID,
		Queue:      j.Queue,
		Priority:   j.Priority,
		State:      j.State,
		EnqueuedAt: j.CreatedAt,
	}
}
