package deadletter

import (
	"context"
	"time"

	"github.com/xraph/sluice/id"
)

// ListOpts controls pagination and filtering for dead-letter list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// TeamID filters by team. Empty means all teams.
	TeamID string
}

// Store defines the persistence contract for dead-lettered jobs.
type Store interface {
	// PushDeadLetter adds a terminal entry.
	PushDeadLetter(ctx context.Context, entry *Entry) error

	// ListDeadLetters returns entries matching the given options, newest
	// first.
	ListDeadLetters(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDeadLetter retrieves an entry by ID. Returns
	// sluice.ErrDeadLetterNotFound when absent.
	GetDeadLetter(ctx context.Context, entryID id.ID) (*Entry, error)

	// MarkReplayed records that an entry has been resubmitted.
	MarkReplayed(ctx context.Context, entryID id.ID) error

	// PurgeDeadLetters removes entries with FailedAt before the given
	// time. Returns the number of entries removed.
	PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error)

	// CountDeadLetters returns the total number of entries.
	CountDeadLetters(ctx context.Context) (int64, error)
}
