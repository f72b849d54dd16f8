package waiter_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/sluice"
	blobmem "github.com/xraph/sluice/blob/memory"
	brokermem "github.com/xraph/sluice/broker/memory"
	"github.com/xraph/sluice/event"
	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/job"
	"github.com/xraph/sluice/result"
	"github.com/xraph/sluice/store/memory"
	"github.com/xraph/sluice/waiter"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	coord  *waiter.Coordinator
	broker *brokermem.Broker
	store  *memory.Store
	blobs  *blobmem.Store
	events *event.Bus
}

func setup(t *testing.T, opts ...waiter.Option) *fixture {
	t.Helper()
	s := memory.New()
	brk := brokermem.New()
	blobs := blobmem.New()
	bus := event.NewBus(s)
	base := []waiter.Option{
		waiter.WithEventBus(bus),
		waiter.WithBlobStore(blobs),
		waiter.WithPollInterval(5 * time.Millisecond),
		waiter.WithLogger(quietLogger()),
	}
	return &fixture{
		coord:  waiter.NewCoordinator(brk, s, append(base, opts...)...),
		broker: brk,
		store:  s,
		blobs:  blobs,
		events: bus,
	}
}

func (f *fixture) enqueue(t *testing.T, j *job.Job) {
	t.Helper()
	if _, err := f.broker.Enqueue(context.Background(), j); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func (f *fixture) complete(t *testing.T, res *result.Result) {
	t.Helper()
	ctx := context.Background()
	res.CompletedAt = time.Now().UTC()
	if err := f.store.SaveResult(ctx, res); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if _, err := f.events.PublishCompleted(ctx, res.JobID); err != nil {
		t.Fatalf("PublishCompleted: %v", err)
	}
}

// completeAsync is the goroutine-safe variant of complete: it cannot use
// t.Fatalf off the test goroutine, and the memory store never errors.
func (f *fixture) completeAsync(res *result.Result) {
	ctx := context.Background()
	res.CompletedAt = time.Now().UTC()
	_ = f.store.SaveResult(ctx, res)
	_, _ = f.events.PublishCompleted(ctx, res.JobID)
}

func newJob(team string) *job.Job {
	return job.New(team, job.Payload{URL: "https://example.com"})
}

func TestWaitReturnsStoredResultImmediately(t *testing.T) {
	f := setup(t)
	j := newJob("team-a")
	f.enqueue(t, j)
	f.complete(t, &result.Result{JobID: j.ID, Success: true, Documents: []byte("docs")})

	docs, err := f.coord.WaitForJob(context.Background(), j.ID, time.Second)
	if err != nil {
		t.Fatalf("WaitForJob: %v", err)
	}
	if !bytes.Equal(docs, []byte("docs")) {
		t.Errorf("documents = %q, want %q", docs, "docs")
	}
}

func TestWaitTimesOutInQueue(t *testing.T) {
	f := setup(t)

	// The job never reaches the broker.
	_, err := f.coord.WaitForJob(context.Background(), id.NewJobID(), 30*time.Millisecond)
	if !errors.Is(err, sluice.ErrScrapeTimeoutInQueue) {
		t.Fatalf("WaitForJob = %v, want ErrScrapeTimeoutInQueue", err)
	}
}

func TestWaitTimesOutAfterMaterialization(t *testing.T) {
	f := setup(t)
	j := newJob("team-a")
	f.enqueue(t, j)

	// Materialized but never completed.
	_, err := f.coord.WaitForJob(context.Background(), j.ID, 50*time.Millisecond)
	if !errors.Is(err, sluice.ErrScrapeTimeout) {
		t.Fatalf("WaitForJob = %v, want ErrScrapeTimeout", err)
	}
}

func TestWaitObservesLateCompletion(t *testing.T) {
	f := setup(t)
	j := newJob("team-a")
	f.enqueue(t, j)

	go func() {
		time.Sleep(30 * time.Millisecond)
		f.completeAsync(&result.Result{JobID: j.ID, Success: true, Documents: []byte("late")})
	}()

	docs, err := f.coord.WaitForJob(context.Background(), j.ID, 2*time.Second)
	if err != nil {
		t.Fatalf("WaitForJob: %v", err)
	}
	if !bytes.Equal(docs, []byte("late")) {
		t.Errorf("documents = %q, want %q", docs, "late")
	}
}

func TestWaitObservesDeferredJobExpiry(t *testing.T) {
	f := setup(t)
	j := newJob("team-a")

	// The job is parked, never enqueued. The drainer writes its terminal
	// record when the hold deadline passes.
	go func() {
		time.Sleep(20 * time.Millisecond)
		f.completeAsync(&result.Result{
			JobID:   j.ID,
			Success: false,
			Error:   sluice.AsTransportable(sluice.ErrScrapeTimeoutInQueue),
		})
	}()

	_, err := f.coord.WaitForJob(context.Background(), j.ID, 2*time.Second)
	if !errors.Is(err, sluice.ErrScrapeTimeoutInQueue) {
		t.Fatalf("WaitForJob = %v, want ErrScrapeTimeoutInQueue", err)
	}
}

func TestWaitReRaisesTypedWorkerError(t *testing.T) {
	f := setup(t)
	j := newJob("team-a")
	f.enqueue(t, j)
	f.complete(t, &result.Result{
		JobID:   j.ID,
		Success: false,
		Error:   sluice.NewTransportableError(sluice.KindScrapeTimeout, "handler deadline"),
	})

	_, err := f.coord.WaitForJob(context.Background(), j.ID, time.Second)
	if !errors.Is(err, sluice.ErrScrapeTimeout) {
		t.Fatalf("WaitForJob = %v, want ErrScrapeTimeout via transportable kind", err)
	}
}

func TestWaitGenericWorkerFailure(t *testing.T) {
	f := setup(t)
	j := newJob("team-a")
	f.enqueue(t, j)
	f.complete(t, &result.Result{
		JobID:   j.ID,
		Success: false,
		Error:   sluice.NewTransportableError(sluice.KindUnknown, "scrape engine crashed"),
	})

	_, err := f.coord.WaitForJob(context.Background(), j.ID, time.Second)
	if err == nil {
		t.Fatal("WaitForJob succeeded for a failed job")
	}
	var te *sluice.TransportableError
	if !errors.As(err, &te) || te.Kind != sluice.KindUnknown {
		t.Errorf("error = %v, want transportable with kind %s", err, sluice.KindUnknown)
	}
}

func TestWaitFetchesOutOfBandBlob(t *testing.T) {
	f := setup(t)
	j := newJob("team-a")
	f.enqueue(t, j)
	if err := f.blobs.Put(context.Background(), j.ID, []byte("big payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	f.complete(t, &result.Result{JobID: j.ID, Success: true})

	docs, err := f.coord.WaitForJob(context.Background(), j.ID, time.Second)
	if err != nil {
		t.Fatalf("WaitForJob: %v", err)
	}
	if !bytes.Equal(docs, []byte("big payload")) {
		t.Errorf("documents = %q, want blob payload", docs)
	}
	if f.blobs.Len() != 1 {
		t.Errorf("blob deleted without zero-data-retention")
	}
}

func TestWaitMissingBlobIsResultNotFound(t *testing.T) {
	f := setup(t)
	j := newJob("team-a")
	f.enqueue(t, j)
	f.complete(t, &result.Result{JobID: j.ID, Success: true})

	_, err := f.coord.WaitForJob(context.Background(), j.ID, time.Second)
	if !errors.Is(err, sluice.ErrResultNotFound) {
		t.Fatalf("WaitForJob = %v, want ErrResultNotFound", err)
	}
}

func TestWaitZeroDataRetentionDeletesBlob(t *testing.T) {
	f := setup(t)
	j := newJob("team-a")
	f.enqueue(t, j)
	if err := f.blobs.Put(context.Background(), j.ID, []byte("sensitive")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	f.complete(t, &result.Result{JobID: j.ID, Success: true, ZeroDataRetention: true})

	docs, err := f.coord.WaitForJob(context.Background(), j.ID, time.Second)
	if err != nil {
		t.Fatalf("WaitForJob: %v", err)
	}
	if !bytes.Equal(docs, []byte("sensitive")) {
		t.Errorf("documents = %q, want blob payload", docs)
	}
	if f.blobs.Len() != 0 {
		t.Errorf("zero-data-retention blob survived the read")
	}
}

func TestWaitCancellationReturnsPromptly(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.WaitForJob(ctx, id.NewJobID(), time.Minute)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WaitForJob = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForJob did not return after cancellation")
	}
}

func TestWaitWithoutEventBusPollsResults(t *testing.T) {
	s := memory.New()
	brk := brokermem.New()
	coord := waiter.NewCoordinator(brk, s,
		waiter.WithPollInterval(5*time.Millisecond),
		waiter.WithLogger(quietLogger()))

	j := newJob("team-a")
	if _, err := brk.Enqueue(context.Background(), j); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.SaveResult(context.Background(), &result.Result{
			JobID:       j.ID,
			Success:     true,
			Documents:   []byte("polled"),
			CompletedAt: time.Now().UTC(),
		})
	}()

	docs, err := coord.WaitForJob(context.Background(), j.ID, 2*time.Second)
	if err != nil {
		t.Fatalf("WaitForJob: %v", err)
	}
	if !bytes.Equal(docs, []byte("polled")) {
		t.Errorf("documents = %q, want %q", docs, "polled")
	}
}
