// Package deadletter keeps terminal records for jobs that never reached a
// worker (expired while parked in the deferred queue) or exhausted their
// retry budget, and supports replaying them through admission.
package deadletter

import (
	"time"

	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/job"
)

// Reason classifies why a job was dead-lettered.
type Reason string

const (
	// ReasonQueueExpired marks a job whose hold deadline passed while it
	// was parked in the deferred queue.
	ReasonQueueExpired Reason = "queue_expired"
	// ReasonRetriesExhausted marks a job that failed more times than its
	// retry budget allows.
	ReasonRetriesExhausted Reason = "retries_exhausted"
)

// Entry is a dead-lettered job held for inspection or replay.
type Entry struct {
	ID         id.ID      `json:"id"`
	Job        *job.Job   `json:"job"`
	Reason     Reason     `json:"reason"`
	Error      string     `json:"error,omitempty"`
	FailedAt   time.Time  `json:"failed_at"`
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
