// Package redis implements broker.Broker over Redis. Each queue is a
// Sorted Set scored by (priority, run-at); job records are stored as
// codec-encoded strings keyed by job ID.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	b := redisbroker.New(client)
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/broker"
	"github.com/xraph/sluice/codec"
	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/job"
)

// Compile-time interface check.
var _ broker.Broker = (*Broker)(nil)

const keyPrefix = "sluice:"

// jobKey returns the key for a job record: sluice:job:{id}
func jobKey(jobID string) string { return keyPrefix + "job:" + jobID }

// queueKey returns the Sorted Set key for a queue: sluice:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// Option configures the Broker.
type Option func(*Broker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithCodec sets the wire codec for job records. Defaults to JSON.
func WithCodec(c codec.Codec) Option {
	return func(b *Broker) { b.codec = c }
}

// WithJobTTL bounds how long job records are kept after enqueue.
func WithJobTTL(d time.Duration) Option {
	return func(b *Broker) { b.jobTTL = d }
}

// Broker is a Redis-backed worker queue. The caller owns the Redis
// client lifecycle.
type Broker struct {
	client goredis.Cmdable
	codec  codec.Codec
	jobTTL time.Duration
	logger *slog.Logger
}

// New creates a Redis-backed broker.
func New(client goredis.Cmdable, opts ...Option) *Broker {
	b := &Broker{
		client: client,
		codec:  &codec.JSONCodec{},
		jobTTL: 24 * time.Hour,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Enqueue stores the job record and adds it to the queue's Sorted Set.
func (b *Broker) Enqueue(ctx context.Context, j *job.Job) (*broker.Handle, error) {
	cp := *j
	if cp.State == "" || cp.State == job.StateRunning {
		cp.State = job.StatePending
	}

	data, err := b.codec.Encode(&cp)
	if err != nil {
		return nil, fmt.Errorf("sluice/broker: encode job: %w", err)
	}

	jID := cp.ID.String()
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, jobKey(jID), data, b.jobTTL)
	pipe.ZAdd(ctx, queueKey(cp.Queue), goredis.Z{
		Score:  broker.Score(cp.Priority, cp.RunAt),
		Member: jID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("sluice/broker: enqueue job: %w", err)
	}

	return &broker.Handle{
		JobID:      cp.ID,
		TeamID:     cp.TeamID,
		Queue:      cp.Queue,
		Priority:   cp.Priority,
		State:      cp.State,
		EnqueuedAt: cp.CreatedAt,
	}, nil
}

// Lookup resolves a job ID to its handle.
func (b *Broker) Lookup(ctx context.Context, jobID id.JobID) (*broker.Handle, error) {
	j, err := b.getJob(ctx, jobID.String())
	if err != nil {
		return nil, err
	}
	return &broker.Handle{
		JobID:      j.ID,
		TeamID:     j.TeamID,
		Queue:      j.Queue,
		Priority:   j.Priority,
		State:      j.State,
		EnqueuedAt: j.CreatedAt,
	}, nil
}

// Dequeue atomically pops up to limit due jobs from the given queues.
// Jobs scheduled for the future go back into their queue untouched.
func (b *Broker) Dequeue(ctx context.Context, queues []string, limit int) ([]*job.Job, error) {
	now := time.Now().UTC()
	var claimed []*job.Job

	for _, q := range queues {
		if limit > 0 && len(claimed) >= limit {
			break
		}
		remaining := limit - len(claimed)
		qk := queueKey(q)

		members, err := b.client.ZPopMin(ctx, qk, int64(remaining)).Result()
		if err != nil {
			return nil, fmt.Errorf("sluice/broker: dequeue zpopmin: %w", err)
		}

		for _, z := range members {
			jID, ok := z.Member.(string)
			if !ok {
				continue
			}

			j, getErr := b.getJob(ctx, jID)
			if getErr != nil {
				if errors.Is(getErr, sluice.ErrJobNotFound) {
					// Record expired under the queue entry. Drop it.
					continue
				}
				return nil, getErr
			}

			if !j.RunAt.IsZero() && j.RunAt.After(now) {
				// Not due yet. Put it back with the same score.
				if addErr := b.client.ZAdd(ctx, qk, z).Err(); addErr != nil {
					return nil, fmt.Errorf("sluice/broker: requeue future job: %w", addErr)
				}
				continue
			}

			j.State = job.StateRunning
			started := now
			j.StartedAt = &started
			if saveErr := b.saveJob(ctx, j); saveErr != nil {
				return nil, saveErr
			}
			claimed = append(claimed, j)
		}
	}
	return claimed, nil
}

// Complete records the terminal state for a claimed job.
func (b *Broker) Complete(ctx context.Context, jobID id.JobID, state job.State) error {
	j, err := b.getJob(ctx, jobID.String())
	if err != nil {
		return err
	}
	j.State = state
	now := time.Now().UTC()
	j.CompletedAt = &now
	return b.saveJob(ctx, j)
}

func (b *Broker) getJob(ctx context.Context, jID string) (*job.Job, error) {
	data, err := b.client.Get(ctx, jobKey(jID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, sluice.ErrJobNotFound
		}
		return nil, fmt.Errorf("sluice/broker: get job: %w", err)
	}
	var j job.Job
	if err := b.codec.Decode(data, &j); err != nil {
		return nil, fmt.Errorf("sluice/broker: decode job: %w", err)
	}
	return &j, nil
}

func (b *Broker) saveJob(ctx context.Context, j *job.Job) error {
	data, err := b.codec.Encode(j)
	if err != nil {
		return fmt.Errorf("sluice/broker: encode job: %w", err)
	}
	if err := b.client.Set(ctx, jobKey(j.ID.String()), data, goredis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("sluice/broker: save job: %w", err)
	}
	return nil
}
