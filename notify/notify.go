// Package notify implements the notification gate: rate-limited
// "concurrency limit reached" events emitted when a team persistently
// saturates its ceiling. Delivery is asynchronous and failures are
// swallowed; the gate never affects admission.
package notify

import (
	"context"
	"time"
)

// Kind names a notification category.
type Kind string

const (
	// KindConcurrencyLimitReached tells a team its deferred backlog has
	// outgrown its concurrency ceiling.
	KindConcurrencyLimitReached Kind = "concurrency_limit_reached"
)

// Notification is one outbound message.
type Notification struct {
	TeamID string    `json:"team_id"`
	Kind   Kind      `json:"kind"`
	SentAt time.Time `json:"sent_at"`
}

// Notifier delivers notifications. Implementations must tolerate being
// called concurrently; errors are logged by the gate and never propagated.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Store persists per-(team, kind) last-sent timestamps for suppression.
type Store interface {
	// LastNotified returns the last time the (team, kind) pair was
	// notified, or the zero time when it never was.
	LastNotified(ctx context.Context, teamID string, kind Kind) (time.Time, error)

	// RecordNotified stores the last-sent timestamp for the pair.
	RecordNotified(ctx context.Context, teamID string, kind Kind, at time.Time) error
}
