// Package redis implements store.Store using Redis. Active and deferred
// ledger areas use Sorted Sets (scores carry expiry and ordering), crawl
// and result records are codec-encoded strings with TTLs, and completion
// events use Streams.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/sluice/codec"
	"github.com/xraph/sluice/crawl"
	"github.com/xraph/sluice/deadletter"
	"github.com/xraph/sluice/event"
	"github.com/xraph/sluice/ledger"
	"github.com/xraph/sluice/notify"
	"github.com/xraph/sluice/result"
)

// Compile-time interface checks.
var (
	_ ledger.Store     = (*Store)(nil)
	_ crawl.Store      = (*Store)(nil)
	_ result.Store     = (*Store)(nil)
	_ event.Store      = (*Store)(nil)
	_ deadletter.Store = (*Store)(nil)
	_ notify.Store     = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCodec sets the wire codec for stored records. Defaults to JSON.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithCrawlTTL bounds how long crawl records are kept.
func WithCrawlTTL(d time.Duration) Option {
	return func(s *Store) { s.crawlTTL = d }
}

// WithResultTTL bounds how long inline results are kept.
func WithResultTTL(d time.Duration) Option {
	return func(s *Store) { s.resultTTL = d }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client    goredis.Cmdable
	codec     codec.Codec
	crawlTTL  time.Duration
	resultTTL time.Duration
	logger    *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		codec:     &codec.JSONCodec{},
		crawlTTL:  24 * time.Hour,
		resultTTL: 24 * time.Hour,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op — the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// sleepCtx sleeps for the given duration, or returns early if the context
// is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
