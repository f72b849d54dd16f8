// Package store defines the composite persistence interface assembled
// from the subsystem store contracts. A single backend (store/redis in
// production, store/memory in tests) implements all of them, so one
// connection serves the ledger, crawl records, results, events,
// dead letters, and notification suppression.
package store

import (
	"context"

	"github.com/xraph/sluice/crawl"
	"github.com/xraph/sluice/deadletter"
	"github.com/xraph/sluice/event"
	"github.com/xraph/sluice/ledger"
	"github.com/xraph/sluice/notify"
	"github.com/xraph/sluice/result"
)

// Store is the composite persistence interface.
type Store interface {
	ledger.Store
	crawl.Store
	result.Store
	event.Store
	deadletter.Store
	notify.Store

	// Migrate prepares the backend (no-op for schemaless backends).
	Migrate(ctx context.Context) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
