// Package ledger defines the concurrency ledger: the authoritative record
// of currently-active jobs per team and per crawl, plus the per-team
// holding area for deferred jobs.
//
// The ledger does not interpret job contents. All operations are atomic
// per key; backends live under store/redis and store/memory.
package ledger

import (
	"context"
	"time"

	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/job"
)

// DeferredEntry is a parked admission awaiting a freed slot.
type DeferredEntry struct {
	Job        *job.Job  `json:"job"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// HoldDeadline bounds how long the entry may stay parked. The zero
	// value means the entry is held indefinitely (crawl jobs are never
	// dropped for timing out while parked).
	HoldDeadline time.Time `json:"hold_deadline,omitempty"`
}

// Expired reports whether the entry's hold deadline has passed.
func (e *DeferredEntry) Expired(now time.Time) bool {
	return !e.HoldDeadline.IsZero() && e.HoldDeadline.Before(now)
}

// Store is the persistence contract for the concurrency ledger.
//
// Active entries are idempotent on job ID: a duplicate push refreshes the
// expiry. Deferred entries are ordered by (priority asc, enqueue time asc);
// a duplicate job ID replaces the prior entry.
type Store interface {
	// PushActive records a job as occupying one of the team's slots until
	// now+ttl. The TTL is the safety net for crashed workers; precise
	// release happens through RemoveActive at completion.
	PushActive(ctx context.Context, teamID string, jobID id.JobID, ttl time.Duration) error

	// PushCrawlActive records a job as occupying one of the crawl's slots.
	PushCrawlActive(ctx context.Context, crawlID string, jobID id.JobID, ttl time.Duration) error

	// RemoveActive releases a team slot at completion or failure.
	RemoveActive(ctx context.Context, teamID string, jobID id.JobID) error

	// RemoveCrawlActive releases a crawl slot.
	RemoveCrawlActive(ctx context.Context, crawlID string, jobID id.JobID) error

	// CountActive returns the number of team entries expiring after now.
	CountActive(ctx context.Context, teamID string, now time.Time) (int, error)

	// CountCrawlActive returns the number of crawl entries expiring after now.
	CountCrawlActive(ctx context.Context, crawlID string, now time.Time) (int, error)

	// CleanExpired removes team entries with expiry at or before now.
	// Admission calls this immediately before CountActive.
	CleanExpired(ctx context.Context, teamID string, now time.Time) error

	// PushDeferred parks an entry in the team's holding area and registers
	// the team in the deferred-team index.
	PushDeferred(ctx context.Context, teamID string, entry *DeferredEntry) error

	// CountDeferred returns the number of parked entries for the team.
	CountDeferred(ctx context.Context, teamID string) (int, error)

	// PopDeferred atomically removes and returns up to n entries in
	// (priority asc, enqueue time asc) order.
	PopDeferred(ctx context.Context, teamID string, n int) ([]*DeferredEntry, error)

	// DeferredTeams lists teams with at least one parked entry, so the
	// sweeper can enumerate them without scanning the keyspace.
	DeferredTeams(ctx context.Context) ([]string, error)
}
