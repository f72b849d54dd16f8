// Package backoff computes how long a failed scrape waits before its next
// attempt. Scrape retries run against infrastructure that is often the
// reason for the failure in the first place: an upstream shedding load, a
// proxy pool mid-rotation, a headless browser that crashed. The strategies
// here trade determinism against herd behaviour accordingly.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt n (1-indexed; attempt 1
// is the first retry after the initial failure). Strategies are stateless
// and safe for concurrent use by every worker in the pool.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// FullJitter
// ──────────────────────────────────────────────────

// FullJitter draws a uniform delay from an exponentially growing window:
//
//	Delay = Floor + random in [0, min(Base * 2^(attempt-1), Cap))
//
// When a target site or proxy pool fails, it tends to fail for every job
// that was fetching through it at once; full jitter spreads the resulting
// retry wave so the recovering upstream is not hit by all of them in the
// same second. Floor is the politeness minimum: no retried fetch ever goes
// back to the upstream immediately, even on the luckiest draw.
type FullJitter struct {
	Base  time.Duration
	Cap   time.Duration
	Floor time.Duration
}

// NewFullJitter creates a full-jitter strategy with no floor.
func NewFullJitter(base, limit time.Duration) *FullJitter {
	return &FullJitter{Base: base, Cap: limit}
}

// Delay implements Strategy.
func (f *FullJitter) Delay(attempt int) time.Duration {
	window := float64(f.Base) * math.Pow(2, float64(attempt-1))
	if f.Cap > 0 && window > float64(f.Cap) {
		window = float64(f.Cap)
	}
	return f.Floor + time.Duration(rand.Float64()*window)
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt with no randomness:
//
//	Delay = min(Base * 2^(attempt-1), Cap)
//
// Deterministic timing makes retry schedules reproducible, which is worth
// more than herd protection when debugging a misbehaving handler or
// asserting retry cadence in tests. Production pools should prefer
// [FullJitter].
type Exponential struct {
	Base time.Duration
	Cap  time.Duration
}

// NewExponential creates a deterministic exponential strategy.
func NewExponential(base, limit time.Duration) *Exponential {
	return &Exponential{Base: base, Cap: limit}
}

// Delay implements Strategy.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt-1)))
	if e.Cap > 0 && d > e.Cap {
		return e.Cap
	}
	return d
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant waits the same interval on every attempt. Fits retries where
// the attempt number carries no signal, such as fetching through a
// rotating proxy pool: the next attempt leaves through a different exit
// node, so growing the delay buys nothing.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant-interval strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay implements Strategy.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy is the engine's default retry pacing: full jitter over a
// 2s base doubling up to 2m, with a 500ms politeness floor. The window
// matters more than the base: most scrape retries race a caller blocked in
// a wait with a fixed budget, so the early attempts stay cheap while later
// attempts back far enough off to outlast a rate-limit window.
func DefaultStrategy() Strategy {
	return &FullJitter{
		Base:  2 * time.Second,
		Cap:   2 * time.Minute,
		Floor: 500 * time.Millisecond,
	}
}
