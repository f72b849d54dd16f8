package queue

import (
	"fmt"

	"golang.org/x/time/rate"
)

// TeamConfig defines rate limits and concurrency for a specific team on a
// specific queue. It gates local dequeues only; the distributed team
// ceiling lives in the concurrency ledger.
type TeamConfig struct {
	// QueueName is the queue this config applies to.
	QueueName string

	// TeamID is the team identifier (the job.TeamID field).
	TeamID string

	// RateLimit is the sustained jobs per second for this team.
	RateLimit float64

	// RateBurst is the burst size for the team's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous jobs for this team on this
	// queue. Zero means no team-specific concurrency limit.
	MaxConcurrency int
}

// teamState tracks runtime state for a single queue+team pair.
type teamState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// teamKey builds the map key for a queue+team pair.
func teamKey(queue, teamID string) string {
	return fmt.Sprintf("%s:%s", queue, teamID)
}

// SetTeamConfig configures rate limits and concurrency for a specific
// team on a specific queue. Calling this multiple times for the same
// queue+team replaces the previous configuration.
func (m *Manager) SetTeamConfig(cfg TeamConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := teamKey(cfg.QueueName, cfg.TeamID)
	existing := m.teams[key]

	ts := &teamState{
		maxConcurrency: cfg.MaxConcurrency,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ts.active = existing.active
	}
	m.teams[key] = ts
}

// TeamActiveCount returns the current number of active jobs for a
// queue+team pair.
func (m *Manager) TeamActiveCount(queue, teamID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.teams[teamKey(queue, teamID)]; ts != nil {
		return ts.active
	}
	return 0
}
