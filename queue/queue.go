package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines the local gate for one worker queue.
type Config struct {
	// Name matches the job.Queue field.
	Name string

	// MaxConcurrency caps how many jobs from this queue run at once in
	// this process. Zero leaves only the pool-wide concurrency cap.
	MaxConcurrency int

	// MaxPerCrawl caps how many pages of any single crawl run at once in
	// this process. A crawl against a fast site can otherwise fill every
	// local worker slot and starve ad-hoc scrapes dequeued from the same
	// queue. Zero disables the per-crawl cap.
	MaxPerCrawl int

	// RateLimit is the sustained dequeue rate for this queue in jobs per
	// second. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst size. Defaults to 1 when
	// RateLimit is set.
	RateBurst int
}

// queueState tracks runtime state for a single queue.
type queueState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager is the worker-local dequeue gate: per-queue, per-team, and
// per-crawl pacing applied after a job leaves the broker but before it
// starts executing. It complements the distributed concurrency ledger
// rather than replacing it; the ledger bounds a team's fleet-wide
// in-flight jobs, the Manager bounds what one process takes on.
// Safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*queueState
	teams  map[string]*teamState
	crawls map[string]int // queue:crawl -> running pages
}

// NewManager creates a Manager with the given queue configurations.
// Queues not listed here are ungated.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		queues: make(map[string]*queueState, len(configs)),
		teams:  make(map[string]*teamState),
		crawls: make(map[string]int),
	}
	for _, cfg := range configs {
		m.queues[cfg.Name] = newQueueState(cfg)
	}
	return m
}

func newQueueState(cfg Config) *queueState {
	qs := &queueState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return qs
}

// Acquire decides whether a dequeued job may start executing now. The
// gates are checked queue first, then team, then crawl; a refusal at any
// gate consumes nothing. On true the caller owns one slot at each gate
// and MUST call Release with the same identifiers when the job finishes.
// crawlID is empty for ad-hoc scrapes.
func (m *Manager) Acquire(queue, teamID, crawlID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queue]
	if qs != nil {
		if qs.limiter != nil && !qs.limiter.Allow() {
			return false
		}
		if qs.config.MaxConcurrency > 0 && qs.active >= qs.config.MaxConcurrency {
			return false
		}
	}

	var ts *teamState
	if teamID != "" {
		ts = m.teams[teamKey(queue, teamID)]
		if ts != nil {
			if ts.limiter != nil && !ts.limiter.Allow() {
				return false
			}
			if ts.maxConcurrency > 0 && ts.active >= ts.maxConcurrency {
				return false
			}
		}
	}

	if crawlID != "" && qs != nil && qs.config.MaxPerCrawl > 0 {
		if m.crawls[crawlKey(queue, crawlID)] >= qs.config.MaxPerCrawl {
			return false
		}
	}

	// Every gate agreed; take the slots.
	if qs != nil {
		qs.active++
	}
	if ts != nil {
		ts.active++
	}
	if crawlID != "" {
		m.crawls[crawlKey(queue, crawlID)]++
	}
	return true
}

// Release frees the slots a successful Acquire took. Crawl counts are
// deleted at zero so finished crawls leave nothing behind.
func (m *Manager) Release(queue, teamID, crawlID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qs := m.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}
	if teamID != "" {
		if ts := m.teams[teamKey(queue, teamID)]; ts != nil && ts.active > 0 {
			ts.active--
		}
	}
	if crawlID != "" {
		key := crawlKey(queue, crawlID)
		if n := m.crawls[key]; n > 1 {
			m.crawls[key] = n - 1
		} else {
			delete(m.crawls, key)
		}
	}
}

// SetQueueConfig updates (or creates) a queue's gate, preserving the
// running count so reconfiguration never frees slots jobs still hold.
func (m *Manager) SetQueueConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := newQueueState(cfg)
	if existing := m.queues[cfg.Name]; existing != nil {
		qs.active = existing.active
	}
	m.queues[cfg.Name] = qs
}

// ActiveCount returns the number of jobs this process is running for a
// queue.
func (m *Manager) ActiveCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}

// CrawlActiveCount returns the number of pages this process is running
// for one crawl on one queue.
func (m *Manager) CrawlActiveCount(queue, crawlID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crawls[crawlKey(queue, crawlID)]
}

func crawlKey(queue, crawlID string) string {
	return queue + ":" + crawlID
}
