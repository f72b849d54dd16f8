// Package queue provides the worker-local dequeue gate: per-queue,
// per-team, and per-crawl pacing applied before a dequeued job starts
// executing.
//
// The gate is local to one worker pool and complements, not replaces, the
// distributed concurrency ledger: the ledger bounds how many jobs a team
// may have in flight across the fleet, while the [Manager] bounds how
// fast one process chews through its own dequeues and keeps a single
// crawl from monopolizing the process's worker slots.
//
// # Per-Queue Configuration
//
// Use [Config] to set per-queue rate limits and concurrency caps:
//
//	queue.Config{
//	    Name:           "scrape",
//	    MaxConcurrency: 5,  // max 5 concurrent scrapes in this process
//	    MaxPerCrawl:    2,  // max 2 pages of any one crawl at a time
//	    RateLimit:      10, // max 10 jobs/s dequeued from this queue
//	    RateBurst:      20, // allow bursts up to 20
//	}
//
// Per-team gates are configured with [TeamConfig] via
// [Manager.SetTeamConfig].
//
// # Manager
//
// [Manager] enforces the limits at dequeue time. Rate limits use a
// token bucket (golang.org/x/time/rate); concurrency caps use active
// counts taken on Acquire and returned on Release.
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(j.Queue, j.TeamID, j.CrawlID) {
//	    defer m.Release(j.Queue, j.TeamID, j.CrawlID)
//	    // execute the job
//	}
//
// A refused Acquire is not an error; the pool re-enqueues the job with a
// short delay and moves on. Queues without a [Config] are ungated beyond
// the pool-wide concurrency.
package queue
