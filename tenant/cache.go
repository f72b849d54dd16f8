package tenant

import (
	"context"
	"sync"
	"time"
)

// cachedLimits is one cache slot with its expiry.
type cachedLimits struct {
	limits    Limits
	expiresAt time.Time
}

// Cached wraps a LimitSource with a per-team TTL cache. Lookup errors are
// not cached, so a flapping backend recovers on the next call.
type Cached struct {
	source LimitSource
	ttl    time.Duration

	mu    sync.RWMutex
	slots map[string]cachedLimits
}

// NewCached creates a caching wrapper. A non-positive TTL defaults to one
// minute.
func NewCached(source LimitSource, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{
		source: source,
		ttl:    ttl,
		slots:  make(map[string]cachedLimits),
	}
}

// Limits implements LimitSource.
func (c *Cached) Limits(ctx context.Context, teamID string) (Limits, error) {
	now := time.Now()

	c.mu.RLock()
	slot, ok := c.slots[teamID]
	c.mu.RUnlock()
	if ok && slot.expiresAt.After(now) {
		return slot.limits, nil
	}

	limits, err := c.source.Limits(ctx, teamID)
	if err != nil {
		return Limits{}, err
	}

	c.mu.Lock()
	c.slots[teamID] = cachedLimits{limits: limits, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return limits, nil
}

// Invalidate drops the cache slot for a team, forcing the next lookup to
// hit the underlying source.
func (c *Cached) Invalidate(teamID string) {
	c.mu.Lock()
	delete(c.slots, teamID)
	c.mu.Unlock()
}
