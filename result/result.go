// Package result defines the completion record a worker writes for each
// finished job, and the store contract the wait path reads it through.
package result

import (
	"context"
	"time"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/id"
)

// Result is a job's terminal record.
//
// On success, Documents holds the codec-encoded scrape output. An empty
// Documents slice on success means the worker persisted the payload
// out-of-band in the blob store because of its size; the wait path falls
// back to the blob by job ID.
type Result struct {
	JobID   id.JobID `json:"job_id"`
	Success bool     `json:"success"`

	Documents []byte `json:"documents,omitempty"`

	// Error carries the worker's failure across the queue boundary.
	Error *sluice.TransportableError `json:"error,omitempty"`

	// ZeroDataRetention requires the blob to be purged after one read.
	ZeroDataRetention bool `json:"zero_data_retention,omitempty"`

	CompletedAt time.Time `json:"completed_at"`
}

// Err returns the typed failure, or nil for successful results.
func (r *Result) Err() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return r.Error
}

// Store is the persistence contract for results.
type Store interface {
	// SaveResult persists the terminal record with the backend's result TTL.
	SaveResult(ctx context.Context, r *Result) error

	// GetResult retrieves a result by job ID. Returns
	// sluice.ErrJobNotFound when no record exists yet.
	GetResult(ctx context.Context, jobID id.JobID) (*Result, error)
}
