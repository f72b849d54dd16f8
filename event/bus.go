// Package event provides the completion-event bus. Workers publish a
// completion event per finished job; waiters subscribe to it instead of
// polling the result store, falling back to polling only when the backend
// lacks a subscription primitive.
package event

import (
	"context"
	"time"

	"github.com/xraph/sluice/id"
)

// Bus provides high-level publish/subscribe operations over an event Store.
type Bus struct {
	store Store
}

// NewBus creates an event bus backed by the given store.
func NewBus(store Store) *Bus {
	return &Bus{store: store}
}

// PublishCompleted publishes the completion event for a job.
func (b *Bus) PublishCompleted(ctx context.Context, jobID id.JobID) (*Event, error) {
	evt := &Event{
		ID:        id.NewEventID(),
		JobID:     jobID,
		Kind:      KindCompleted,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.store.PublishEvent(ctx, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// WaitCompleted blocks until the completion event for the job arrives or
// the timeout expires. Returns nil on timeout.
func (b *Bus) WaitCompleted(ctx context.Context, jobID id.JobID, timeout time.Duration) (*Event, error) {
	return b.store.SubscribeEvent(ctx, Channel(KindCompleted, jobID), timeout)
}

// Ack acknowledges an event, marking it as consumed.
func (b *Bus) Ack(ctx context.Context, eventID id.EventID) error {
	return b.store.AckEvent(ctx, eventID)
}

// Store returns the underlying event store.
func (b *Bus) Store() Store { return b.store }
