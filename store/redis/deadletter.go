package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/deadletter"
	"github.com/xraph/sluice/id"
)

// PushDeadLetter adds a terminal entry and indexes it by failure time.
func (s *Store) PushDeadLetter(ctx context.Context, entry *deadletter.Entry) error {
	data, err := s.codec.Encode(entry)
	if err != nil {
		return fmt.Errorf("sluice/redis: encode dead letter: %w", err)
	}

	eID := entry.ID.String()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, deadLetterKey(eID), data, 0)
	pipe.ZAdd(ctx, deadLetterIdxKey, goredis.Z{
		Score:  float64(entry.FailedAt.UnixMilli()),
		Member: eID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sluice/redis: push dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns entries matching the options, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	ids, err := s.client.ZRevRange(ctx, deadLetterIdxKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("sluice/redis: list dead letters: %w", err)
	}

	entries := make([]*deadletter.Entry, 0, len(ids))
	skipped := 0
	for _, eID := range ids {
		if opts.Limit > 0 && len(entries) >= opts.Limit {
			break
		}

		entry, getErr := s.getDeadLetter(ctx, eID)
		if getErr != nil {
			if errors.Is(getErr, sluice.ErrDeadLetterNotFound) {
				continue // purged under the index entry
			}
			return nil, getErr
		}
		if opts.TeamID != "" && entry.Job.TeamID != opts.TeamID {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetDeadLetter retrieves an entry by ID.
func (s *Store) GetDeadLetter(ctx context.Context, entryID id.ID) (*deadletter.Entry, error) {
	return s.getDeadLetter(ctx, entryID.String())
}

func (s *Store) getDeadLetter(ctx context.Context, eID string) (*deadletter.Entry, error) {
	data, err := s.client.Get(ctx, deadLetterKey(eID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, sluice.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("sluice/redis: get dead letter: %w", err)
	}
	var entry deadletter.Entry
	if err := s.codec.Decode(data, &entry); err != nil {
		return nil, fmt.Errorf("sluice/redis: decode dead letter: %w", err)
	}
	return &entry, nil
}

// MarkReplayed records that an entry has been resubmitted.
func (s *Store) MarkReplayed(ctx context.Context, entryID id.ID) error {
	entry, err := s.GetDeadLetter(ctx, entryID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	entry.ReplayedAt = &now

	data, err := s.codec.Encode(entry)
	if err != nil {
		return fmt.Errorf("sluice/redis: encode dead letter: %w", err)
	}
	if err := s.client.Set(ctx, deadLetterKey(entryID.String()), data, goredis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("sluice/redis: mark replayed: %w", err)
	}
	return nil
}

// PurgeDeadLetters removes entries failed before the given time.
func (s *Store) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	maxScore := fmt.Sprintf("(%d", before.UnixMilli())
	ids, err := s.client.ZRangeByScore(ctx, deadLetterIdxKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("sluice/redis: purge scan: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, eID := range ids {
		pipe.Del(ctx, deadLetterKey(eID))
		pipe.ZRem(ctx, deadLetterIdxKey, eID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("sluice/redis: purge dead letters: %w", err)
	}
	return int64(len(ids)), nil
}

// CountDeadLetters returns the total number of entries.
func (s *Store) CountDeadLetters(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, deadLetterIdxKey).Result()
	if err != nil {
		return 0, fmt.Errorf("sluice/redis: count dead letters: %w", err)
	}
	return n, nil
}
