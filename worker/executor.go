// Package worker provides the job execution engine: an Executor that
// invokes registered scrape handlers through middleware, and a Pool that
// manages concurrent worker goroutines polling the broker.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/backoff"
	"github.com/xraph/sluice/broker"
	"github.com/xraph/sluice/deadletter"
	"github.com/xraph/sluice/event"
	"github.com/xraph/sluice/ext"
	"github.com/xraph/sluice/job"
	"github.com/xraph/sluice/ledger"
	"github.com/xraph/sluice/middleware"
	"github.com/xraph/sluice/result"
)

// DrainFunc asks the drainer to promote deferred jobs for a team after a
// slot frees. The engine wires this to drain.Drainer.DrainTeam; the
// indirection keeps worker below drain in the import graph.
type DrainFunc func(ctx context.Context, teamID string)

// Executor runs a single job through middleware and the registered
// handler, then writes the result, releases the job's ledger slots,
// publishes the completion event, and triggers a drain for the team.
type Executor struct {
	registry    *job.Registry
	extensions  *ext.Registry
	queue       broker.Broker
	ledger      ledger.Store
	results     result.Store
	events      *event.Bus
	deadletters *deadletter.Service
	backoff     backoff.Strategy
	drain       DrainFunc
	activeTTL   time.Duration
	mw          middleware.Middleware
	logger      *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithDrainFunc sets the drain trigger called after each completion.
func WithDrainFunc(fn DrainFunc) ExecutorOption {
	return func(e *Executor) { e.drain = fn }
}

// WithActiveTTL sets the TTL used when refreshing a retrying job's
// active entry.
func WithActiveTTL(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.activeTTL = d }
}

// WithMiddleware sets the middleware chain applied to every execution.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	queue broker.Broker,
	led ledger.Store,
	results result.Store,
	events *event.Bus,
	deadletters *deadletter.Service,
	bo backoff.Strategy,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		registry:    registry,
		extensions:  extensions,
		queue:       queue,
		ledger:      led,
		results:     results,
		events:      events,
		deadletters: deadletters,
		backoff:     bo,
		activeTTL:   time.Minute,
		mw:          middleware.Chain(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a job through the middleware chain and handler.
// On success: writes the result, releases ledger slots, publishes the
// completion event, drains the team, emits JobCompleted.
// On failure with retries remaining: re-enqueues with backoff, emits
// JobRetrying.
// On failure with retries exhausted: writes a failure result, releases
// slots, dead-letters the job, emits JobFailed + JobDeadLettered.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Mode)
	if !ok {
		err := fmt.Errorf("no handler registered for mode %q", j.Mode)
		return e.handleFailure(ctx, j, err)
	}

	start := time.Now()

	var docs []byte
	terminal := func(ctx context.Context) error {
		var handlerErr error
		docs, handlerErr = handler(ctx, j)
		return handlerErr
	}

	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	if err != nil {
		return e.handleFailure(ctx, j, err)
	}
	return e.handleSuccess(ctx, j, docs, elapsed)
}

// handleSuccess records the completed job and frees its slots. An empty
// document payload is legal: it means the handler persisted the output
// out-of-band in the blob store.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, docs []byte, elapsed time.Duration) error {
	now := time.Now().UTC()
	j.State = job.StateCompleted
	j.CompletedAt = &now

	res := &result.Result{
		JobID:             j.ID,
		Success:           true,
		Documents:         docs,
		ZeroDataRetention: j.ZeroDataRetention,
		CompletedAt:       now,
	}
	if err := e.results.SaveResult(ctx, res); err != nil {
		e.logger.Error("failed to save result",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	e.finish(ctx, j, job.StateCompleted)
	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleFailure increments the retry counter and either reschedules the
// job or records it as terminal.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error) error {
	j.RetryCount++
	j.LastError = handlerErr.Error()

	if j.RetryCount <= j.MaxRetries {
		return e.scheduleRetry(ctx, j, handlerErr)
	}
	return e.failTerminally(ctx, j, handlerErr)
}

// scheduleRetry re-enqueues the job with a backoff delay. The team's
// active entry is refreshed rather than released: a retrying job keeps
// its slot so admission cannot over-fill the ceiling before it runs again.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, handlerErr error) error {
	delay := e.backoff.Delay(j.RetryCount)
	nextRunAt := time.Now().UTC().Add(delay)
	j.RunAt = nextRunAt
	j.State = job.StateRetrying

	if err := e.ledger.PushActive(ctx, j.TeamID, j.ID, e.activeTTL+delay); err != nil {
		e.logger.Warn("failed to refresh active entry for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	if _, err := e.queue.Enqueue(ctx, j); err != nil {
		e.logger.Error("failed to re-enqueue job for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		// The slot would leak until its TTL without a terminal record.
		return e.failTerminally(ctx, j, handlerErr)
	}

	e.extensions.EmitJobRetrying(ctx, j, j.RetryCount, nextRunAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("mode", string(j.Mode)),
		slog.Int("attempt", j.RetryCount),
		slog.Int("max_retries", j.MaxRetries),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("job %s retry %d/%d: %w", j.ID, j.RetryCount, j.MaxRetries, handlerErr)
}

// failTerminally records the failure result, dead-letters the job, and
// frees its slots so a waiter observes the typed error.
func (e *Executor) failTerminally(ctx context.Context, j *job.Job, handlerErr error) error {
	now := time.Now().UTC()
	j.State = job.StateFailed
	j.CompletedAt = &now

	res := &result.Result{
		JobID:       j.ID,
		Success:     false,
		Error:       sluice.AsTransportable(handlerErr),
		CompletedAt: now,
	}
	if err := e.results.SaveResult(ctx, res); err != nil {
		e.logger.Error("failed to save failure result",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if e.deadletters != nil {
		if dlErr := e.deadletters.Push(ctx, j, deadletter.ReasonRetriesExhausted, handlerErr); dlErr != nil {
			e.logger.Error("failed to dead-letter job",
				slog.String("job_id", j.ID.String()),
				slog.String("error", dlErr.Error()),
			)
		}
	}

	e.finish(ctx, j, job.StateFailed)
	e.extensions.EmitJobFailed(ctx, j, handlerErr)
	e.extensions.EmitJobDeadLettered(ctx, j, string(deadletter.ReasonRetriesExhausted))

	e.logger.Warn("job failed terminally",
		slog.String("job_id", j.ID.String()),
		slog.String("mode", string(j.Mode)),
		slog.Int("retry_count", j.RetryCount),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}

// finish releases the job's ledger slots, records the terminal broker
// state, publishes the completion event, and asks the drainer to promote
// deferred work for the freed team. Individual failures are logged, not
// propagated: the active-entry TTL bounds any leak.
func (e *Executor) finish(ctx context.Context, j *job.Job, state job.State) {
	if err := e.ledger.RemoveActive(ctx, j.TeamID, j.ID); err != nil {
		e.logger.Warn("failed to release team slot",
			slog.String("job_id", j.ID.String()),
			slog.String("team_id", j.TeamID),
			slog.String("error", err.Error()),
		)
	}
	if j.CrawlID != "" {
		if err := e.ledger.RemoveCrawlActive(ctx, j.CrawlID, j.ID); err != nil {
			e.logger.Warn("failed to release crawl slot",
				slog.String("job_id", j.ID.String()),
				slog.String("crawl_id", j.CrawlID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := e.queue.Complete(ctx, j.ID, state); err != nil {
		e.logger.Warn("failed to mark job complete in broker",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if _, err := e.events.PublishCompleted(ctx, j.ID); err != nil {
		e.logger.Warn("failed to publish completion event",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if e.drain != nil {
		e.drain(ctx, j.TeamID)
	}
}
