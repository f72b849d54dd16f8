package sluice_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/sluice"
)

// deadlineRunner records the context each lifecycle call received.
type deadlineRunner struct {
	startCtx context.Context
	stopCtx  context.Context
}

func (r *deadlineRunner) Start(ctx context.Context) error {
	r.startCtx = ctx
	return nil
}

func (r *deadlineRunner) Stop(ctx context.Context) error {
	r.stopCtx = ctx
	return nil
}

func TestStopAppliesShutdownTimeout(t *testing.T) {
	cfg := sluice.DefaultConfig()
	cfg.ShutdownTimeout = 5 * time.Second

	s, err := sluice.New(sluice.WithConfig(cfg))
	if err != nil {
		t.Fatalf("sluice.New: %v", err)
	}
	r := &deadlineRunner{}
	s.SetPool(r)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	deadline, ok := r.stopCtx.Deadline()
	if !ok {
		t.Fatal("pool stop context carries no deadline")
	}
	if remaining := time.Until(deadline); remaining > 5*time.Second {
		t.Errorf("deadline %v ahead, want at most the shutdown timeout", remaining)
	}
}

func TestStopKeepsCallerDeadline(t *testing.T) {
	cfg := sluice.DefaultConfig()
	cfg.ShutdownTimeout = time.Hour

	s, err := sluice.New(sluice.WithConfig(cfg))
	if err != nil {
		t.Fatalf("sluice.New: %v", err)
	}
	r := &deadlineRunner{}
	s.SetPool(r)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	deadline, ok := r.stopCtx.Deadline()
	if !ok {
		t.Fatal("pool stop context carries no deadline")
	}
	if remaining := time.Until(deadline); remaining > time.Second {
		t.Errorf("deadline %v ahead, the caller's tighter deadline should win", remaining)
	}
}

func TestStopWithoutTimeoutLeavesContextAlone(t *testing.T) {
	cfg := sluice.DefaultConfig()
	cfg.ShutdownTimeout = 0

	s, err := sluice.New(sluice.WithConfig(cfg))
	if err != nil {
		t.Fatalf("sluice.New: %v", err)
	}
	r := &deadlineRunner{}
	s.SetPool(r)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := r.stopCtx.Deadline(); ok {
		t.Error("stop context gained a deadline with shutdown timeout disabled")
	}
}
