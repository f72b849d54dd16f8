// Package ext defines the extension system for Sluice. Extensions are
// notified of lifecycle events (job admitted, deferred, completed, limit
// reached, etc.) and can react to them for auditing, metrics, or
// mirroring.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/sluice/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Admission hooks
// ──────────────────────────────────────────────────

// JobAdmitted is called when admission sends a job to the worker queue.
type JobAdmitted interface {
	OnJobAdmitted(ctx context.Context, j *job.Job) error
}

// JobDeferred is called when admission parks a job in the deferred queue.
// The reason is "tenant" or "crawl".
type JobDeferred interface {
	OnJobDeferred(ctx context.Context, j *job.Job, reason string) error
}

// JobEnqueued is called after a job lands on the worker queue, both on
// first admission and on drain promotion.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// LimitReached is called when the notification gate fires for a team that
// persistently saturates its concurrency ceiling.
type LimitReached interface {
	OnLimitReached(ctx context.Context, teamID string, kind string) error
}

// ──────────────────────────────────────────────────
// Execution hooks
// ──────────────────────────────────────────────────

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobExpired is called when a deferred job times out while parked and is
// dropped without ever reaching a worker.
type JobExpired interface {
	OnJobExpired(ctx context.Context, j *job.Job) error
}

// JobDeadLettered is called when a job is recorded in the dead-letter
// store, either after expiring while parked or after exhausting retries.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, j *job.Job, reason string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
