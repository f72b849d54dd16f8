// Package blob stores oversized scrape outputs out of band. A worker
// whose documents exceed the inline-result threshold writes them here
// and saves a result with empty documents; the wait path reads them back
// by job ID.
package blob

import (
	"context"

	"github.com/xraph/sluice/id"
)

// Store is the out-of-band payload contract.
type Store interface {
	// Put writes the payload for a job, replacing any prior payload.
	Put(ctx context.Context, jobID id.JobID, data []byte) error

	// Get reads the payload for a job. Returns sluice.ErrBlobNotFound
	// when no payload exists.
	Get(ctx context.Context, jobID id.JobID) ([]byte, error)

	// Delete removes the payload. Deleting an absent payload is a no-op;
	// zero-data-retention reads rely on this being idempotent.
	Delete(ctx context.Context, jobID id.JobID) error
}
