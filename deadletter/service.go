package deadletter

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/job"
)

// SubmitFunc resubmits a job through admission. The engine provides the
// implementation; the indirection keeps deadletter below engine in the
// import graph.
type SubmitFunc func(ctx context.Context, j *job.Job) error

// Service provides high-level dead-letter operations over a Store.
type Service struct {
	store Store
}

// NewService creates a dead-letter service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Push builds an entry from a terminal job and persists it.
func (s *Service) Push(ctx context.Context, j *job.Job, reason Reason, jobErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:        id.New(),
		Job:       j,
		Reason:    reason,
		FailedAt:  now,
		CreatedAt: now,
	}
	if jobErr != nil {
		entry.Error = jobErr.Error()
	}
	return s.store.PushDeadLetter(ctx, entry)
}

// Replay resubmits a dead-lettered job through admission with a reset
// retry budget, then marks the entry replayed.
func (s *Service) Replay(ctx context.Context, entryID id.ID, submit SubmitFunc) error {
	entry, err := s.store.GetDeadLetter(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.ReplayedAt != nil {
		return fmt.Errorf("sluice/deadletter: entry %s already replayed", entryID)
	}

	j := *entry.Job
	j.State = job.StatePending
	j.RetryCount = 0
	j.LastError = ""
	j.RunAt = time.Now().UTC()

	if err := submit(ctx, &j); err != nil {
		return fmt.Errorf("sluice/deadletter: replay submit: %w", err)
	}
	return s.store.MarkReplayed(ctx, entryID)
}

// List returns entries matching the given options.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return s.store.ListDeadLetters(ctx, opts)
}

// Get retrieves an entry by ID.
func (s *Service) Get(ctx context.Context, entryID id.ID) (*Entry, error) {
	return s.store.GetDeadLetter(ctx, entryID)
}

// Purge removes entries older than the given time.
func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return s.store.PurgeDeadLetters(ctx, before)
}

// Count returns the total number of entries.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.CountDeadLetters(ctx)
}
