package event

import (
	"context"
	"time"

	"github.com/xraph/sluice/id"
)

// Store defines the persistence contract for events.
type Store interface {
	// PublishEvent persists a new event and makes it available on its
	// channel for subscribers.
	PublishEvent(ctx context.Context, evt *Event) error

	// SubscribeEvent waits for an unacked event on the given channel.
	// Blocks until an event is available or the timeout expires.
	// Returns nil if no event arrives within the timeout.
	SubscribeEvent(ctx context.Context, channel string, timeout time.Duration) (*Event, error)

	// AckEvent acknowledges an event, marking it as consumed.
	AckEvent(ctx context.Context, eventID id.EventID) error
}
