package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/ledger"
)

// Active entries are zset members scored by their expiry in Unix
// milliseconds. Counting live entries is ZCount(now, +inf); cleaning is
// ZRemRangeByScore(-inf, now). A duplicate ZAdd overwrites the score,
// which is exactly the refresh-on-duplicate semantic the ledger requires.

// deferredScore orders parked entries by (priority asc, enqueue time asc).
func deferredScore(priority int, enqueuedAt time.Time) float64 {
	return float64(priority) + float64(enqueuedAt.UnixMilli())/1e15
}

func ledgerErr(op string, err error) error {
	return fmt.Errorf("sluice/redis: %s: %w: %w", op, sluice.ErrLedgerUnavailable, err)
}

// PushActive records a job as occupying a team slot until now+ttl.
func (s *Store) PushActive(ctx context.Context, teamID string, jobID id.JobID, ttl time.Duration) error {
	expiresAt := float64(time.Now().Add(ttl).UnixMilli())
	err := s.client.ZAdd(ctx, activeKey(teamID), goredis.Z{
		Score:  expiresAt,
		Member: jobID.String(),
	}).Err()
	if err != nil {
		return ledgerErr("push active", err)
	}
	return nil
}

// PushCrawlActive records a job as occupying a crawl slot. Each push also
// trims score-dead members and refreshes the key's own expiry, so a crawl
// whose workers all crashed leaves nothing behind once the last TTL runs
// out. Counting filters by score, so the key TTL never hides live entries.
func (s *Store) PushCrawlActive(ctx context.Context, crawlID string, jobID id.JobID, ttl time.Duration) error {
	now := time.Now()
	key := crawlActiveKey(crawlID)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
	pipe.ZAdd(ctx, key, goredis.Z{
		Score:  float64(now.Add(ttl).UnixMilli()),
		Member: jobID.String(),
	})
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return ledgerErr("push crawl active", err)
	}
	return nil
}

// RemoveActive releases a team slot.
func (s *Store) RemoveActive(ctx context.Context, teamID string, jobID id.JobID) error {
	if err := s.client.ZRem(ctx, activeKey(teamID), jobID.String()).Err(); err != nil {
		return ledgerErr("remove active", err)
	}
	return nil
}

// RemoveCrawlActive releases a crawl slot.
func (s *Store) RemoveCrawlActive(ctx context.Context, crawlID string, jobID id.JobID) error {
	if err := s.client.ZRem(ctx, crawlActiveKey(crawlID), jobID.String()).Err(); err != nil {
		return ledgerErr("remove crawl active", err)
	}
	return nil
}

// CountActive returns the number of team entries expiring after now.
func (s *Store) CountActive(ctx context.Context, teamID string, now time.Time) (int, error) {
	minScore := strconv.FormatInt(now.UnixMilli(), 10)
	n, err := s.client.ZCount(ctx, activeKey(teamID), "("+minScore, "+inf").Result()
	if err != nil {
		return 0, ledgerErr("count active", err)
	}
	return int(n), nil
}

// CountCrawlActive returns the number of crawl entries expiring after now.
func (s *Store) CountCrawlActive(ctx context.Context, crawlID string, now time.Time) (int, error) {
	minScore := strconv.FormatInt(now.UnixMilli(), 10)
	n, err := s.client.ZCount(ctx, crawlActiveKey(crawlID), "("+minScore, "+inf").Result()
	if err != nil {
		return 0, ledgerErr("count crawl active", err)
	}
	return int(n), nil
}

// CleanExpired removes team entries with expiry at or before now.
func (s *Store) CleanExpired(ctx context.Context, teamID string, now time.Time) error {
	maxScore := strconv.FormatInt(now.UnixMilli(), 10)
	if err := s.client.ZRemRangeByScore(ctx, activeKey(teamID), "-inf", maxScore).Err(); err != nil {
		return ledgerErr("clean expired", err)
	}
	return nil
}

// PushDeferred parks an entry: the ordering zset gets the job id scored
// by (priority, enqueue time), the data hash gets the encoded entry, and
// the team joins the deferred-team index. A duplicate job id replaces
// both the score and the payload.
func (s *Store) PushDeferred(ctx context.Context, teamID string, entry *ledger.DeferredEntry) error {
	data, err := s.codec.Encode(entry)
	if err != nil {
		return fmt.Errorf("sluice/redis: encode deferred entry: %w", err)
	}

	jID := entry.Job.ID.String()
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, deferredKey(teamID), goredis.Z{
		Score:  deferredScore(entry.Job.Priority, entry.EnqueuedAt),
		Member: jID,
	})
	pipe.HSet(ctx, deferredDataKey(teamID), jID, data)
	pipe.SAdd(ctx, deferredTeamsKey, teamID)
	if _, err := pipe.Exec(ctx); err != nil {
		return ledgerErr("push deferred", err)
	}
	return nil
}

// CountDeferred returns the number of parked entries for the team.
func (s *Store) CountDeferred(ctx context.Context, teamID string) (int, error) {
	n, err := s.client.ZCard(ctx, deferredKey(teamID)).Result()
	if err != nil {
		return 0, ledgerErr("count deferred", err)
	}
	return int(n), nil
}

// PopDeferred atomically removes and returns up to n entries in order.
func (s *Store) PopDeferred(ctx context.Context, teamID string, n int) ([]*ledger.DeferredEntry, error) {
	if n <= 0 {
		return nil, nil
	}

	members, err := s.client.ZPopMin(ctx, deferredKey(teamID), int64(n)).Result()
	if err != nil {
		return nil, ledgerErr("pop deferred", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(members))
	for _, z := range members {
		if jID, ok := z.Member.(string); ok {
			fields = append(fields, jID)
		}
	}

	raw, err := s.client.HMGet(ctx, deferredDataKey(teamID), fields...).Result()
	if err != nil {
		return nil, ledgerErr("pop deferred data", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, deferredDataKey(teamID), fields...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, ledgerErr("pop deferred cleanup", err)
	}

	// Drop the team from the index once its holding area is empty.
	remaining, err := s.client.ZCard(ctx, deferredKey(teamID)).Result()
	if err == nil && remaining == 0 {
		s.client.SRem(ctx, deferredTeamsKey, teamID)
	}

	entries := make([]*ledger.DeferredEntry, 0, len(raw))
	for i, v := range raw {
		data, ok := v.(string)
		if !ok {
			s.logger.Warn("deferred entry payload missing", "team_id", teamID, "job_id", fields[i])
			continue
		}
		var entry ledger.DeferredEntry
		if decErr := s.codec.Decode([]byte(data), &entry); decErr != nil {
			s.logger.Warn("deferred entry decode failed", "team_id", teamID, "error", decErr.Error())
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// DeferredTeams lists teams with at least one parked entry.
func (s *Store) DeferredTeams(ctx context.Context) ([]string, error) {
	teams, err := s.client.SMembers(ctx, deferredTeamsKey).Result()
	if err != nil {
		return nil, ledgerErr("deferred teams", err)
	}
	return teams, nil
}
