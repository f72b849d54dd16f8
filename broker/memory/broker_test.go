package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/sluice"
	brokermem "github.com/xraph/sluice/broker/memory"
	"github.com/xraph/sluice/job"
)

func TestEnqueueLookup(t *testing.T) {
	b := brokermem.New()
	ctx := context.Background()

	j := job.New("team-1", job.Payload{URL: "https://example.com"})
	h, err := b.Enqueue(ctx, j)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if h.JobID != j.ID || h.State != job.StatePending {
		t.Errorf("handle = %+v", h)
	}

	got, err := b.Lookup(ctx, j.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.JobID != j.ID {
		t.Errorf("Lookup JobID = %v, want %v", got.JobID, j.ID)
	}
}

func TestLookup_UnknownJob(t *testing.T) {
	b := brokermem.New()
	j := job.New("team-1", job.Payload{})

	_, err := b.Lookup(context.Background(), j.ID)
	if !errors.Is(err, sluice.ErrJobNotFound) {
		t.Fatalf("Lookup error = %v, want ErrJobNotFound", err)
	}
}

func TestDequeue_PriorityOrder(t *testing.T) {
	b := brokermem.New()
	ctx := context.Background()

	low := job.New("team-1", job.Payload{}, job.WithPriority(10))
	urgent := job.New("team-1", job.Payload{}, job.WithPriority(0))
	mid := job.New("team-1", job.Payload{}, job.WithPriority(5))

	for _, j := range []*job.Job{low, urgent, mid} {
		if _, err := b.Enqueue(ctx, j); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	claimed, err := b.Dequeue(ctx, []string{job.DefaultQueue}, 3)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("claimed %d jobs, want 3", len(claimed))
	}
	if claimed[0].ID != urgent.ID || claimed[1].ID != mid.ID || claimed[2].ID != low.ID {
		t.Errorf("dequeue order = [%v %v %v], want urgent, mid, low",
			claimed[0].Priority, claimed[1].Priority, claimed[2].Priority)
	}
	for _, j := range claimed {
		if j.State != job.StateRunning {
			t.Errorf("claimed job state = %s, want running", j.State)
		}
	}
}

func TestDequeue_SkipsFutureAndForeignQueues(t *testing.T) {
	b := brokermem.New()
	ctx := context.Background()

	future := job.New("team-1", job.Payload{}, job.WithRunAt(time.Now().Add(time.Hour)))
	other := job.New("team-1", job.Payload{}, job.WithQueue("index"))
	due := job.New("team-1", job.Payload{})

	for _, j := range []*job.Job{future, other, due} {
		if _, err := b.Enqueue(ctx, j); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	claimed, err := b.Dequeue(ctx, []string{job.DefaultQueue}, 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Fatalf("claimed = %d jobs, want only the due default-queue job", len(claimed))
	}
}

func TestComplete(t *testing.T) {
	b := brokermem.New()
	ctx := context.Background()

	j := job.New("team-1", job.Payload{})
	if _, err := b.Enqueue(ctx, j); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Dequeue(ctx, nil, 1); err != nil {
		t.Fatal(err)
	}
	if err := b.Complete(ctx, j.ID, job.StateCompleted); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	h, err := b.Lookup(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if h.State != job.StateCompleted {
		t.Errorf("State = %s, want completed", h.State)
	}
}

func TestEnqueue_SameIDReplaces(t *testing.T) {
	b := brokermem.New()
	ctx := context.Background()

	j := job.New("team-1", job.Payload{}, job.WithPriority(3))
	if _, err := b.Enqueue(ctx, j); err != nil {
		t.Fatal(err)
	}

	j.Priority = 1
	if _, err := b.Enqueue(ctx, j); err != nil {
		t.Fatal(err)
	}

	h, err := b.Lookup(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if h.Priority != 1 {
		t.Errorf("Priority = %d, want replaced value 1", h.Priority)
	}
}
