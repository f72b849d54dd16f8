// Package memory is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/crawl"
	"github.com/xraph/sluice/deadletter"
	"github.com/xraph/sluice/event"
	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/ledger"
	"github.com/xraph/sluice/notify"
	"github.com/xraph/sluice/result"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ ledger.Store     = (*Store)(nil)
	_ crawl.Store      = (*Store)(nil)
	_ result.Store     = (*Store)(nil)
	_ event.Store      = (*Store)(nil)
	_ deadletter.Store = (*Store)(nil)
	_ notify.Store     = (*Store)(nil)
)

// Store keeps every subsystem's state in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	active      map[string]map[string]time.Time // team -> job id -> expiry
	crawlActive map[string]map[string]time.Time // crawl -> job id -> expiry
	deferred    map[string][]*ledger.DeferredEntry
	crawls      map[string]*crawl.Crawl
	results     map[string]*result.Result
	events      map[string]*event.Event
	channels    map[string]map[string]struct{} // channel -> event ids
	deadletters map[string]*deadletter.Entry
	notified    map[string]time.Time // team:kind -> last sent

	// ops counts ledger round-trips, letting tests assert that bulk
	// admission stays at O(#crawl_buckets + 2) calls.
	ops int64
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		active:      make(map[string]map[string]time.Time),
		crawlActive: make(map[string]map[string]time.Time),
		deferred:    make(map[string][]*ledger.DeferredEntry),
		crawls:      make(map[string]*crawl.Crawl),
		results:     make(map[string]*result.Result),
		events:      make(map[string]*event.Event),
		channels:    make(map[string]map[string]struct{}),
		deadletters: make(map[string]*deadletter.Entry),
		notified:    make(map[string]time.Time),
	}
}

// LedgerOps returns the number of ledger operations performed so far.
func (m *Store) LedgerOps() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops
}

// ResetLedgerOps zeroes the ledger operation counter.
func (m *Store) ResetLedgerOps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = 0
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Concurrency Ledger
// ──────────────────────────────────────────────────

// PushActive records a job as occupying a team slot. Idempotent: a
// duplicate push refreshes the expiry.
func (m *Store) PushActive(_ context.Context, teamID string, jobID id.JobID, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	set, ok := m.active[teamID]
	if !ok {
		set = make(map[string]time.Time)
		m.active[teamID] = set
	}
	set[jobID.String()] = time.Now().Add(ttl)
	return nil
}

// PushCrawlActive records a job as occupying a crawl slot. Each push also
// drops the crawl's expired members, so entries left by crashed workers
// do not accumulate for the lifetime of the crawl.
func (m *Store) PushCrawlActive(_ context.Context, crawlID string, jobID id.JobID, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	now := time.Now()
	set, ok := m.crawlActive[crawlID]
	if !ok {
		set = make(map[string]time.Time)
		m.crawlActive[crawlID] = set
	}
	for jID, expiresAt := range set {
		if !expiresAt.After(now) {
			delete(set, jID)
		}
	}
	set[jobID.String()] = now.Add(ttl)
	return nil
}

// RemoveActive releases a team slot.
func (m *Store) RemoveActive(_ context.Context, teamID string, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	delete(m.active[teamID], jobID.String())
	return nil
}

// RemoveCrawlActive releases a crawl slot. The crawl's bucket is dropped
// once its last entry is gone.
func (m *Store) RemoveCrawlActive(_ context.Context, crawlID string, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	delete(m.crawlActive[crawlID], jobID.String())
	if len(m.crawlActive[crawlID]) == 0 {
		delete(m.crawlActive, crawlID)
	}
	return nil
}

// CountActive returns the number of team entries expiring after now.
func (m *Store) CountActive(_ context.Context, teamID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	count := 0
	for _, expiresAt := range m.active[teamID] {
		if expiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

// CountCrawlActive returns the number of crawl entries expiring after now.
func (m *Store) CountCrawlActive(_ context.Context, crawlID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	count := 0
	for _, expiresAt := range m.crawlActive[crawlID] {
		if expiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

// CleanExpired removes team entries with expiry at or before now.
func (m *Store) CleanExpired(_ context.Context, teamID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	for jID, expiresAt := range m.active[teamID] {
		if !expiresAt.After(now) {
			delete(m.active[teamID], jID)
		}
	}
	return nil
}

// PushDeferred parks an entry in the team's holding area. A duplicate job
// ID replaces the prior entry.
func (m *Store) PushDeferred(_ context.Context, teamID string, entry *ledger.DeferredEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	entries := m.deferred[teamID]
	jID := entry.Job.ID.String()
	for i, e := range entries {
		if e.Job.ID.String() == jID {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	cp := *entry
	entries = append(entries, &cp)
	sortDeferred(entries)
	m.deferred[teamID] = entries
	return nil
}

// CountDeferred returns the number of parked entries for the team.
func (m *Store) CountDeferred(_ context.Context, teamID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	return len(m.deferred[teamID]), nil
}

// PopDeferred removes and returns up to n entries in order.
func (m *Store) PopDeferred(_ context.Context, teamID string, n int) ([]*ledger.DeferredEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++

	entries := m.deferred[teamID]
	if n <= 0 || len(entries) == 0 {
		return nil, nil
	}
	if n > len(entries) {
		n = len(entries)
	}

	popped := entries[:n]
	rest := entries[n:]
	if len(rest) == 0 {
		delete(m.deferred, teamID)
	} else {
		m.deferred[teamID] = rest
	}
	return popped, nil
}

// DeferredTeams lists teams with at least one parked entry.
func (m *Store) DeferredTeams(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	teams := make([]string, 0, len(m.deferred))
	for teamID, entries := range m.deferred {
		if len(entries) > 0 {
			teams = append(teams, teamID)
		}
	}
	sort.Strings(teams)
	return teams, nil
}

// sortDeferred orders entries by priority then enqueue time, stably.
func sortDeferred(entries []*ledger.DeferredEntry) {
	sort.SliceStable(entries, func(i, k int) bool {
		if entries[i].Job.Priority != entries[k].Job.Priority {
			return entries[i].Job.Priority < entries[k].Job.Priority
		}
		return entries[i].EnqueuedAt.Before(entries[k].EnqueuedAt)
	})
}

// ──────────────────────────────────────────────────
// Crawl Store
// ──────────────────────────────────────────────────

// SaveCrawl persists a crawl record.
func (m *Store) SaveCrawl(_ context.Context, c *crawl.Crawl) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.crawls[c.ID] = &cp
	return nil
}

// GetCrawl retrieves a crawl by ID.
func (m *Store) GetCrawl(_ context.Context, crawlID string) (*crawl.Crawl, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.crawls[crawlID]
	if !ok {
		return nil, sluice.ErrCrawlNotFound
	}
	cp := *c
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Result Store
// ──────────────────────────────────────────────────

// SaveResult persists the terminal record for a job.
func (m *Store) SaveResult(_ context.Context, r *result.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.results[r.JobID.String()] = &cp
	return nil
}

// GetResult retrieves a result by job ID.
func (m *Store) GetResult(_ context.Context, jobID id.JobID) (*result.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.results[jobID.String()]
	if !ok {
		return nil, sluice.ErrJobNotFound
	}
	cp := *r
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Event Store
// ──────────────────────────────────────────────────

// PublishEvent persists a new event on its channel.
func (m *Store) PublishEvent(_ context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *evt
	eID := evt.ID.String()
	m.events[eID] = &cp

	ch := event.Channel(evt.Kind, evt.JobID)
	if m.channels[ch] == nil {
		m.channels[ch] = make(map[string]struct{})
	}
	m.channels[ch][eID] = struct{}{}
	return nil
}

// SubscribeEvent waits for an unacked event on the given channel.
// Poll-based: loops with a 10ms sleep until an event arrives or the
// timeout expires. Returns nil on timeout.
func (m *Store) SubscribeEvent(ctx context.Context, channel string, timeout time.Duration) (*event.Event, error) {
	deadline := time.Now().Add(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		m.mu.RLock()
		for eID := range m.channels[channel] {
			evt := m.events[eID]
			if evt != nil && !evt.Acked {
				cp := *evt
				m.mu.RUnlock()
				return &cp, nil
			}
		}
		m.mu.RUnlock()

		time.Sleep(10 * time.Millisecond)
	}
}

// AckEvent acknowledges an event, marking it as consumed.
func (m *Store) AckEvent(_ context.Context, eventID id.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	evt, ok := m.events[eventID.String()]
	if !ok {
		return sluice.ErrEventNotFound
	}
	evt.Acked = true
	return nil
}

// ──────────────────────────────────────────────────
// Dead-letter Store
// ──────────────────────────────────────────────────

// PushDeadLetter adds a terminal entry.
func (m *Store) PushDeadLetter(_ context.Context, entry *deadletter.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.deadletters[entry.ID.String()] = &cp
	return nil
}

// ListDeadLetters returns entries matching the options, newest first.
func (m *Store) ListDeadLetters(_ context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*deadletter.Entry, 0, len(m.deadletters))
	for _, e := range m.deadletters {
		if opts.TeamID != "" && e.Job.TeamID != opts.TeamID {
			continue
		}
		cp := *e
		entries = append(entries, &cp)
	}

	sort.Slice(entries, func(i, k int) bool {
		return entries[i].FailedAt.After(entries[k].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDeadLetter retrieves an entry by ID.
func (m *Store) GetDeadLetter(_ context.Context, entryID id.ID) (*deadletter.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.deadletters[entryID.String()]
	if !ok {
		return nil, sluice.ErrDeadLetterNotFound
	}
	cp := *e
	return &cp, nil
}

// MarkReplayed records that an entry has been resubmitted.
func (m *Store) MarkReplayed(_ context.Context, entryID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.deadletters[entryID.String()]
	if !ok {
		return sluice.ErrDeadLetterNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDeadLetters removes entries failed before the given time.
func (m *Store) PurgeDeadLetters(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for eID, e := range m.deadletters {
		if e.FailedAt.Before(before) {
			delete(m.deadletters, eID)
			removed++
		}
	}
	return removed, nil
}

// CountDeadLetters returns the total number of entries.
func (m *Store) CountDeadLetters(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.deadletters)), nil
}

// ──────────────────────────────────────────────────
// Notification Suppression Store
// ──────────────────────────────────────────────────

// LastNotified returns the last time the (team, kind) pair was notified.
func (m *Store) LastNotified(_ context.Context, teamID string, kind notify.Kind) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notified[teamID+":"+string(kind)], nil
}

// RecordNotified stores the last-sent timestamp for the pair.
func (m *Store) RecordNotified(_ context.Context, teamID string, kind notify.Kind, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified[teamID+":"+string(kind)] = at
	return nil
}
