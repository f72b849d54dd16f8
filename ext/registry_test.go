package ext

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/sluice/job"
)

// recorder implements every hook and records the calls it receives.
type recorder struct {
	admitted     int
	deferred     []string
	enqueued     int
	limitReached []string
	started      int
	completed    int
	failed       int
	retrying     int
	expired      int
	deadLettered []string
	shutdown     int

	err error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnJobAdmitted(context.Context, *job.Job) error {
	r.admitted++
	return r.err
}

func (r *recorder) OnJobDeferred(_ context.Context, _ *job.Job, reason string) error {
	r.deferred = append(r.deferred, reason)
	return r.err
}

func (r *recorder) OnJobEnqueued(context.Context, *job.Job) error {
	r.enqueued++
	return r.err
}

func (r *recorder) OnLimitReached(_ context.Context, teamID string, kind string) error {
	r.limitReached = append(r.limitReached, teamID+"/"+kind)
	return r.err
}

func (r *recorder) OnJobStarted(context.Context, *job.Job) error {
	r.started++
	return r.err
}

func (r *recorder) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	r.completed++
	return r.err
}

func (r *recorder) OnJobFailed(context.Context, *job.Job, error) error {
	r.failed++
	return r.err
}

func (r *recorder) OnJobRetrying(context.Context, *job.Job, int, time.Time) error {
	r.retrying++
	return r.err
}

func (r *recorder) OnJobExpired(context.Context, *job.Job) error {
	r.expired++
	return r.err
}

func (r *recorder) OnJobDeadLettered(_ context.Context, _ *job.Job, reason string) error {
	r.deadLettered = append(r.deadLettered, reason)
	return r.err
}

func (r *recorder) OnShutdown(context.Context) error {
	r.shutdown++
	return r.err
}

// admitOnly implements a single hook.
type admitOnly struct {
	admitted int
}

func (a *admitOnly) Name() string { return "admit-only" }

func (a *admitOnly) OnJobAdmitted(context.Context, *job.Job) error {
	a.admitted++
	return nil
}

func testRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistryEmitsToImplementers(t *testing.T) {
	r := testRegistry()
	rec := &recorder{}
	r.Register(rec)

	ctx := context.Background()
	j := job.New("team-a", job.Payload{URL: "https://example.com"})

	r.EmitJobAdmitted(ctx, j)
	r.EmitJobDeferred(ctx, j, "tenant")
	r.EmitJobEnqueued(ctx, j)
	r.EmitLimitReached(ctx, "team-a", "concurrency_limit_reached")
	r.EmitJobStarted(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitJobFailed(ctx, j, errors.New("boom"))
	r.EmitJobRetrying(ctx, j, 1, time.Now())
	r.EmitJobExpired(ctx, j)
	r.EmitJobDeadLettered(ctx, j, "queue_expired")
	r.EmitShutdown(ctx)

	if rec.admitted != 1 || rec.enqueued != 1 || rec.started != 1 ||
		rec.completed != 1 || rec.failed != 1 || rec.retrying != 1 ||
		rec.expired != 1 || rec.shutdown != 1 {
		t.Errorf("recorder missed events: %+v", rec)
	}
	if len(rec.deferred) != 1 || rec.deferred[0] != "tenant" {
		t.Errorf("deferred = %v, want [tenant]", rec.deferred)
	}
	if len(rec.limitReached) != 1 || rec.limitReached[0] != "team-a/concurrency_limit_reached" {
		t.Errorf("limitReached = %v", rec.limitReached)
	}
	if len(rec.deadLettered) != 1 || rec.deadLettered[0] != "queue_expired" {
		t.Errorf("deadLettered = %v", rec.deadLettered)
	}
}

func TestRegistryPartialImplementation(t *testing.T) {
	r := testRegistry()
	a := &admitOnly{}
	r.Register(a)

	ctx := context.Background()
	j := job.New("team-a", job.Payload{URL: "https://example.com"})

	// Only the implemented hook fires; the rest are no-ops.
	r.EmitJobAdmitted(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitShutdown(ctx)

	if a.admitted != 1 {
		t.Errorf("admitted = %d, want 1", a.admitted)
	}
}

func TestRegistryHookErrorsAreSwallowed(t *testing.T) {
	r := testRegistry()
	failing := &recorder{err: errors.New("hook exploded")}
	healthy := &recorder{}
	r.Register(failing)
	r.Register(healthy)

	ctx := context.Background()
	j := job.New("team-a", job.Payload{URL: "https://example.com"})

	// A failing hook must not stop later extensions from being notified.
	r.EmitJobAdmitted(ctx, j)

	if failing.admitted != 1 || healthy.admitted != 1 {
		t.Errorf("admitted = %d/%d, want 1/1", failing.admitted, healthy.admitted)
	}
}

func TestRegistryExtensions(t *testing.T) {
	r := testRegistry()
	r.Register(&recorder{})
	r.Register(&admitOnly{})

	if got := len(r.Extensions()); got != 2 {
		t.Errorf("Extensions() = %d, want 2", got)
	}
}
