// Package broker abstracts the worker queue. The dispatcher enqueues
// admitted jobs, the worker pool dequeues them, and the wait path looks
// jobs up to learn whether they have materialized.
//
// Queue order is (priority asc, run-at asc): lower priority values are
// more urgent, and jobs scheduled for the future are not dequeued early.
package broker

import (
	"context"
	"time"

	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/job"
)

// Handle is the queued-job reference returned on admission and resolved
// by the wait path.
type Handle struct {
	JobID      id.JobID  `json:"job_id"`
	TeamID     string    `json:"team_id"`
	Queue      string    `json:"queue"`
	Priority   int       `json:"priority"`
	State      job.State `json:"state"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Broker is the worker-queue contract.
type Broker interface {
	// Enqueue appends the job to its queue and returns its handle.
	// Enqueueing the same job ID again replaces the prior entry (retry
	// rescheduling relies on this).
	Enqueue(ctx context.Context, j *job.Job) (*Handle, error)

	// Lookup resolves a job ID to its handle. Returns
	// sluice.ErrJobNotFound if the broker has never seen the job.
	Lookup(ctx context.Context, jobID id.JobID) (*Handle, error)

	// Dequeue atomically claims up to limit due jobs from the given
	// queues, marks them running, and returns them.
	Dequeue(ctx context.Context, queues []string, limit int) ([]*job.Job, error)

	// Complete records the terminal state for a claimed job.
	Complete(ctx context.Context, jobID id.JobID, state job.State) error
}

// Score computes the queue ordering score for a job: the priority
// dominates and the run-at timestamp breaks ties. Shared by backends so
// both order identically.
func Score(priority int, runAt time.Time) float64 {
	return float64(priority) + float64(runAt.UnixMilli())/1e15
}
