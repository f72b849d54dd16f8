// Package waiter blocks a caller until its job produces an outcome. The
// coordinator first waits for the job to materialize in the worker queue
// (deferred jobs have no broker handle until the drainer promotes them),
// then races the completion event against the caller's deadline.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/blob"
	"github.com/xraph/sluice/broker"
	"github.com/xraph/sluice/event"
	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/result"
)

const (
	// DefaultTimeout bounds a wait when the caller does not supply one.
	DefaultTimeout = 180 * time.Second

	// defaultPollInterval paces materialization and fallback result polls.
	defaultPollInterval = 500 * time.Millisecond
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEventBus enables event-driven completion instead of result polling.
func WithEventBus(bus *event.Bus) Option {
	return func(c *Coordinator) { c.events = bus }
}

// WithBlobStore enables the out-of-band payload fallback for results
// with empty documents.
func WithBlobStore(blobs blob.Store) Option {
	return func(c *Coordinator) { c.blobs = blobs }
}

// WithPollInterval sets the poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.pollInterval = d }
}

// WithDefaultTimeout sets the timeout used when the caller passes zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.defaultTimeout = d }
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// Coordinator resolves job IDs to outcomes. Each WaitForJob call yields
// exactly one outcome: the documents, a typed failure carried over from
// the worker, or a timeout.
type Coordinator struct {
	broker  broker.Broker
	results result.Store
	events  *event.Bus
	blobs   blob.Store

	pollInterval   time.Duration
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(brk broker.Broker, results result.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		broker:         brk,
		results:        results,
		pollInterval:   defaultPollInterval,
		defaultTimeout: DefaultTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WaitForJob blocks until the job completes, the timeout elapses, or ctx
// is cancelled, and returns the job's documents. A zero timeout means the
// default. Returns ErrScrapeTimeoutInQueue when the job never reached the
// worker queue within the budget, ErrScrapeTimeout when it materialized
// but did not finish in time.
func (c *Coordinator) WaitForJob(ctx context.Context, jobID id.JobID, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	deadline := time.Now().Add(timeout)

	early, err := c.awaitMaterialized(ctx, jobID, deadline)
	if err != nil {
		return nil, err
	}
	if early != nil {
		return c.resolve(ctx, early)
	}

	res, err := c.awaitCompletion(ctx, jobID, deadline)
	if err != nil {
		return nil, err
	}
	return c.resolve(ctx, res)
}

// awaitMaterialized polls until the broker knows the job. Deferred jobs
// sit here until the drainer promotes them. A terminal result written
// while the job is still parked (hold deadline expiry) ends the wait
// early; the non-nil result is returned directly.
func (c *Coordinator) awaitMaterialized(ctx context.Context, jobID id.JobID, deadline time.Time) (*result.Result, error) {
	for {
		if res, resolved := c.tryResult(ctx, jobID); resolved {
			return res, nil
		}

		_, err := c.broker.Lookup(ctx, jobID)
		if err == nil {
			return nil, nil
		}
		if !errors.Is(err, sluice.ErrJobNotFound) {
			return nil, fmt.Errorf("sluice/waiter: broker lookup: %w", err)
		}

		if time.Now().After(deadline) {
			return nil, sluice.ErrScrapeTimeoutInQueue
		}
		if err := c.sleep(ctx, deadline); err != nil {
			return nil, err
		}
	}
}

// awaitCompletion waits for the job's terminal record, preferring the
// event bus and falling back to result polling.
func (c *Coordinator) awaitCompletion(ctx context.Context, jobID id.JobID, deadline time.Time) (*result.Result, error) {
	// The worker saves the result before publishing, so a stored result
	// is already a completed wait.
	if res, resolved := c.tryResult(ctx, jobID); resolved {
		return res, nil
	}

	if c.events != nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, sluice.ErrScrapeTimeout
		}
		evt, err := c.events.WaitCompleted(ctx, jobID, remaining)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("completion event wait failed, falling back to result polling",
				"job_id", jobID.String(),
				"error", err)
		case evt == nil:
			return nil, sluice.ErrScrapeTimeout
		default:
			if ackErr := c.events.Ack(ctx, evt.ID); ackErr != nil {
				c.logger.Warn("failed to ack completion event",
					"event_id", evt.ID.String(),
					"error", ackErr)
			}
			res, resErr := c.results.GetResult(ctx, jobID)
			if resErr != nil {
				if errors.Is(resErr, sluice.ErrJobNotFound) {
					return nil, sluice.ErrResultNotFound
				}
				return nil, fmt.Errorf("sluice/waiter: load result: %w", resErr)
			}
			return res, nil
		}
	}

	for {
		if res, resolved := c.tryResult(ctx, jobID); resolved {
			return res, nil
		}
		if time.Now().After(deadline) {
			return nil, sluice.ErrScrapeTimeout
		}
		if err := c.sleep(ctx, deadline); err != nil {
			return nil, err
		}
	}
}

// tryResult fetches the result if one exists. Lookup errors other than
// not-found are logged and treated as not-yet-available so a transient
// store hiccup does not abort the wait.
func (c *Coordinator) tryResult(ctx context.Context, jobID id.JobID) (*result.Result, bool) {
	res, err := c.results.GetResult(ctx, jobID)
	if err != nil {
		if !errors.Is(err, sluice.ErrJobNotFound) {
			c.logger.Warn("result lookup failed",
				"job_id", jobID.String(),
				"error", err)
		}
		return nil, false
	}
	return res, true
}

// resolve turns a terminal record into the caller-facing outcome.
func (c *Coordinator) resolve(ctx context.Context, res *result.Result) ([]byte, error) {
	if !res.Success {
		if res.Error != nil {
			return nil, res.Error
		}
		return nil, fmt.Errorf("sluice/waiter: job %s failed", res.JobID)
	}

	if len(res.Documents) > 0 {
		return res.Documents, nil
	}

	// Empty documents on success means the worker persisted the payload
	// out of band.
	if c.blobs == nil {
		return nil, sluice.ErrResultNotFound
	}
	data, err := c.blobs.Get(ctx, res.JobID)
	if err != nil {
		if errors.Is(err, sluice.ErrBlobNotFound) {
			return nil, sluice.ErrResultNotFound
		}
		return nil, fmt.Errorf("sluice/waiter: fetch blob: %w", err)
	}
	if res.ZeroDataRetention {
		if err := c.blobs.Delete(ctx, res.JobID); err != nil {
			c.logger.Warn("failed to delete zero-data-retention blob",
				"job_id", res.JobID.String(),
				"error", err)
		}
	}
	return data, nil
}

// sleep pauses one poll interval, clipped to the deadline, honoring ctx.
func (c *Coordinator) sleep(ctx context.Context, deadline time.Time) error {
	d := c.pollInterval
	if remaining := time.Until(deadline); remaining < d {
		d = remaining
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
