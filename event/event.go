package event

import (
	"time"

	"github.com/xraph/sluice/id"
)

// Kind names a lifecycle event published to the bus.
type Kind string

const (
	// KindCompleted signals that a worker finished a job (successfully or
	// not) and its result record is readable.
	KindCompleted Kind = "job.completed"
)

// Event is a named event published to the bus. The wait path subscribes to
// the completion event of a specific job; the cross-replica delivery makes
// waiting work from any producer process.
type Event struct {
	ID        id.EventID `json:"id"`
	JobID     id.JobID   `json:"job_id"`
	Kind      Kind       `json:"kind"`
	Payload   []byte     `json:"payload,omitempty"`
	Acked     bool       `json:"acked"`
	CreatedAt time.Time  `json:"created_at"`
}

// Channel returns the subscription channel for a (kind, job) pair.
func Channel(kind Kind, jobID id.JobID) string {
	return string(kind) + ":" + jobID.String()
}
