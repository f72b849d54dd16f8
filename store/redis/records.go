package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/crawl"
	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/notify"
	"github.com/xraph/sluice/result"
)

// ──────────────────────────────────────────────────
// Crawl Store
// ──────────────────────────────────────────────────

// SaveCrawl persists a crawl record with the store's crawl TTL.
func (s *Store) SaveCrawl(ctx context.Context, c *crawl.Crawl) error {
	data, err := s.codec.Encode(c)
	if err != nil {
		return fmt.Errorf("sluice/redis: encode crawl: %w", err)
	}
	if err := s.client.Set(ctx, crawlKey(c.ID), data, s.crawlTTL).Err(); err != nil {
		return fmt.Errorf("sluice/redis: save crawl: %w", err)
	}
	return nil
}

// GetCrawl retrieves a crawl by ID.
func (s *Store) GetCrawl(ctx context.Context, crawlID string) (*crawl.Crawl, error) {
	data, err := s.client.Get(ctx, crawlKey(crawlID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, sluice.ErrCrawlNotFound
		}
		return nil, fmt.Errorf("sluice/redis: get crawl: %w", err)
	}
	var c crawl.Crawl
	if err := s.codec.Decode(data, &c); err != nil {
		return nil, fmt.Errorf("sluice/redis: decode crawl: %w", err)
	}
	return &c, nil
}

// ──────────────────────────────────────────────────
// Result Store
// ──────────────────────────────────────────────────

// SaveResult persists the terminal record for a job with the result TTL.
func (s *Store) SaveResult(ctx context.Context, r *result.Result) error {
	data, err := s.codec.Encode(r)
	if err != nil {
		return fmt.Errorf("sluice/redis: encode result: %w", err)
	}
	if err := s.client.Set(ctx, resultKey(r.JobID.String()), data, s.resultTTL).Err(); err != nil {
		return fmt.Errorf("sluice/redis: save result: %w", err)
	}
	return nil
}

// GetResult retrieves a result by job ID.
func (s *Store) GetResult(ctx context.Context, jobID id.JobID) (*result.Result, error) {
	data, err := s.client.Get(ctx, resultKey(jobID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, sluice.ErrJobNotFound
		}
		return nil, fmt.Errorf("sluice/redis: get result: %w", err)
	}
	var r result.Result
	if err := s.codec.Decode(data, &r); err != nil {
		return nil, fmt.Errorf("sluice/redis: decode result: %w", err)
	}
	return &r, nil
}

// ──────────────────────────────────────────────────
// Notification Suppression Store
// ──────────────────────────────────────────────────

// LastNotified returns the last time the (team, kind) pair was notified.
func (s *Store) LastNotified(ctx context.Context, teamID string, kind notify.Kind) (time.Time, error) {
	v, err := s.client.Get(ctx, notifyKey(teamID, string(kind))).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("sluice/redis: last notified: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("sluice/redis: parse last notified: %w", err)
	}
	return t, nil
}

// RecordNotified stores the last-sent timestamp for the pair.
func (s *Store) RecordNotified(ctx context.Context, teamID string, kind notify.Kind, at time.Time) error {
	err := s.client.Set(ctx, notifyKey(teamID, string(kind)), at.Format(time.RFC3339Nano), 0).Err()
	if err != nil {
		return fmt.Errorf("sluice/redis: record notified: %w", err)
	}
	return nil
}
