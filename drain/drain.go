// Package drain promotes parked jobs back into the worker queue as team
// slots free up. The Drainer runs the promotion procedure for a single
// team; the Sweeper runs it periodically across every team with a
// non-empty holding area.
package drain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/admission"
	"github.com/xraph/sluice/deadletter"
	"github.com/xraph/sluice/event"
	"github.com/xraph/sluice/ext"
	"github.com/xraph/sluice/job"
	"github.com/xraph/sluice/ledger"
	"github.com/xraph/sluice/result"
	"github.com/xraph/sluice/tenant"
)

// AdmitFunc runs the admit path for a promoted job: ledger entries plus
// the broker enqueue. The engine provides the implementation; this breaks
// the import cycle.
type AdmitFunc func(ctx context.Context, j *job.Job) error

// Option configures a Drainer.
type Option func(*Drainer)

// WithLogger sets the drainer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Drainer) { d.logger = logger }
}

// Drainer moves deferred jobs into the worker queue whenever the owning
// team has headroom. It is safe to run concurrently across processes:
// PopDeferred is atomic, so two drainers never promote the same entry.
type Drainer struct {
	ledger      ledger.Store
	ctrl        *admission.Controller
	results     result.Store
	events      *event.Bus
	deadletters *deadletter.Service
	extensions  *ext.Registry
	admit       AdmitFunc
	logger      *slog.Logger
}

// NewDrainer creates a Drainer.
func NewDrainer(
	led ledger.Store,
	ctrl *admission.Controller,
	results result.Store,
	events *event.Bus,
	deadletters *deadletter.Service,
	extensions *ext.Registry,
	admit AdmitFunc,
	opts ...Option,
) *Drainer {
	d := &Drainer{
		ledger:      led,
		ctrl:        ctrl,
		results:     results,
		events:      events,
		deadletters: deadletters,
		extensions:  extensions,
		admit:       admit,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DrainTeam pops as many deferred entries as the team has free slots and
// promotes each one. Entries whose hold deadline has passed are dropped
// with a timed-out failure result; entries whose crawl gate is still
// closed go back to the holding area with their original enqueue time.
func (d *Drainer) DrainTeam(ctx context.Context, teamID string) error {
	now := time.Now().UTC()

	if err := d.ledger.CleanExpired(ctx, teamID, now); err != nil {
		return fatal("clean expired", err)
	}

	ceiling := d.ctrl.TeamCeiling(ctx, teamID, tenant.KindCrawl)
	active, err := d.ledger.CountActive(ctx, teamID, now)
	if err != nil {
		return fatal("count active", err)
	}
	free := ceiling - active
	if free <= 0 {
		return nil
	}

	entries, err := d.ledger.PopDeferred(ctx, teamID, free)
	if err != nil {
		return fatal("pop deferred", err)
	}

	for _, entry := range entries {
		if entry.Expired(now) {
			d.expire(ctx, entry)
			continue
		}

		if entry.Job.CrawlID != "" {
			saturated, gateErr := d.ctrl.CrawlSaturated(ctx, entry.Job.CrawlID)
			if gateErr != nil {
				d.park(ctx, teamID, entry)
				return fmt.Errorf("sluice/drain: recheck crawl gate: %w", gateErr)
			}
			if saturated {
				d.park(ctx, teamID, entry)
				continue
			}
		}

		if admitErr := d.admit(ctx, entry.Job); admitErr != nil {
			d.logger.Error("drain admit failed, parking job again",
				"job_id", entry.Job.ID.String(),
				"team_id", teamID,
				"error", admitErr)
			d.park(ctx, teamID, entry)
		}
	}
	return nil
}

// park returns an entry to the holding area, preserving its enqueue time
// so it does not lose its place behind newer deferrals.
func (d *Drainer) park(ctx context.Context, teamID string, entry *ledger.DeferredEntry) {
	if err := d.ledger.PushDeferred(ctx, teamID, entry); err != nil {
		d.logger.Error("failed to re-park deferred job, job dropped",
			"job_id", entry.Job.ID.String(),
			"team_id", teamID,
			"error", err)
	}
}

// expire records a terminal timed-out-in-queue outcome for an entry whose
// hold deadline passed while it was parked, then dead-letters it.
func (d *Drainer) expire(ctx context.Context, entry *ledger.DeferredEntry) {
	j := entry.Job
	j.State = job.StateExpired

	res := &result.Result{
		JobID:       j.ID,
		Success:     false,
		Error:       sluice.AsTransportable(sluice.ErrScrapeTimeoutInQueue),
		CompletedAt: time.Now().UTC(),
	}
	if err := d.results.SaveResult(ctx, res); err != nil {
		d.logger.Error("failed to save timed-out result",
			"job_id", j.ID.String(),
			"error", err)
	}
	// Publish completion so any waiter observes the timeout instead of
	// blocking until its own deadline.
	if _, err := d.events.PublishCompleted(ctx, j.ID); err != nil {
		d.logger.Warn("failed to publish completion for expired job",
			"job_id", j.ID.String(),
			"error", err)
	}
	if err := d.deadletters.Push(ctx, j, deadletter.ReasonQueueExpired, sluice.ErrScrapeTimeoutInQueue); err != nil {
		d.logger.Error("failed to dead-letter expired job",
			"job_id", j.ID.String(),
			"error", err)
	}

	d.extensions.EmitJobExpired(ctx, j)
	d.extensions.EmitJobDeadLettered(ctx, j, string(deadletter.ReasonQueueExpired))

	d.logger.Info("deferred job timed out in queue",
		"job_id", j.ID.String(),
		"team_id", j.TeamID,
		"enqueued_at", entry.EnqueuedAt)
}

func fatal(op string, err error) error {
	if !errors.Is(err, sluice.ErrLedgerUnavailable) {
		err = fmt.Errorf("%w: %v", sluice.ErrLedgerUnavailable, err)
	}
	return fmt.Errorf("sluice/drain: %s: %w", op, err)
}
