package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/sluice/backoff"
)

func TestFullJitterStaysInWindow(t *testing.T) {
	f := backoff.NewFullJitter(time.Second, 10*time.Second)

	windows := []struct {
		attempt int
		max     time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // 16s window capped
		{9, 10 * time.Second},
	}
	for _, w := range windows {
		for range 50 {
			got := f.Delay(w.attempt)
			if got < 0 || got > w.max {
				t.Fatalf("Delay(%d) = %v, want within [0, %v]", w.attempt, got, w.max)
			}
		}
	}
}

func TestFullJitterFloorIsNeverUndercut(t *testing.T) {
	f := &backoff.FullJitter{
		Base:  time.Second,
		Cap:   4 * time.Second,
		Floor: 300 * time.Millisecond,
	}
	for attempt := 1; attempt <= 5; attempt++ {
		for range 50 {
			if got := f.Delay(attempt); got < 300*time.Millisecond {
				t.Fatalf("Delay(%d) = %v, below the politeness floor", attempt, got)
			}
		}
	}
}

func TestFullJitterSpreadsRetries(t *testing.T) {
	f := backoff.NewFullJitter(time.Second, time.Minute)

	// A wave of simultaneous failures must not retry in lockstep.
	seen := make(map[time.Duration]bool)
	for range 100 {
		seen[f.Delay(3)] = true
	}
	if len(seen) < 2 {
		t.Errorf("100 draws produced %d distinct delays, want a spread", len(seen))
	}
}

func TestExponentialDoublesDeterministically(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for i, w := range want {
		attempt := i + 1
		if got := e.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
		// Stateless: re-asking for the same attempt gives the same answer.
		if got := e.Delay(attempt); got != w {
			t.Errorf("Delay(%d) second call = %v, want %v", attempt, got, w)
		}
	}
}

func TestExponentialCapsAtLimit(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	for _, attempt := range []int{5, 20, 60} {
		if got := e.Delay(attempt); got != 10*time.Second {
			t.Errorf("Delay(%d) = %v, want capped 10s", attempt, got)
		}
	}
}

func TestConstantIgnoresAttempt(t *testing.T) {
	c := backoff.NewConstant(750 * time.Millisecond)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 750*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want 750ms", attempt, got)
		}
	}
}

func TestDefaultStrategyShape(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s == nil {
		t.Fatal("DefaultStrategy() returned nil")
	}

	for range 50 {
		d := s.Delay(1)
		if d < 500*time.Millisecond {
			t.Fatalf("Delay(1) = %v, below the default floor", d)
		}
		if d > 500*time.Millisecond+2*time.Second {
			t.Fatalf("Delay(1) = %v, outside the first-attempt window", d)
		}
	}
	for range 50 {
		if d := s.Delay(30); d > 500*time.Millisecond+2*time.Minute {
			t.Fatalf("Delay(30) = %v, outside the capped window", d)
		}
	}
}
