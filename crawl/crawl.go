// Package crawl defines crawl records: the grouping of jobs submitted as
// one logical crawl or batch-scrape, and the per-crawl concurrency gate
// derived from them.
package crawl

import (
	"context"
	"time"
)

// Crawl groups the jobs of one crawl or batch-scrape submission.
type Crawl struct {
	ID     string `json:"id"`
	TeamID string `json:"team_id"`

	// MaxConcurrency caps simultaneously-active jobs within the crawl.
	// Zero means no explicit cap.
	MaxConcurrency int `json:"max_concurrency,omitempty"`

	// Delay is the crawler politeness delay between requests. Its mere
	// presence imposes a per-crawl ceiling of one.
	Delay time.Duration `json:"delay,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Ceiling returns the crawl's concurrency ceiling and whether one applies.
// MaxConcurrency wins when set; otherwise a configured delay forces the
// ceiling to one; otherwise the crawl is unbounded.
func (c *Crawl) Ceiling() (int, bool) {
	if c == nil {
		return 0, false
	}
	if c.MaxConcurrency > 0 {
		return c.MaxConcurrency, true
	}
	if c.Delay > 0 {
		return 1, true
	}
	return 0, false
}

// Gated reports whether admitted jobs of this crawl must also write a
// crawl-level active entry.
func (c *Crawl) Gated() bool {
	_, bounded := c.Ceiling()
	return bounded
}

// Store is the persistence contract for crawl records.
type Store interface {
	// SaveCrawl persists a crawl record with the backend's crawl TTL.
	SaveCrawl(ctx context.Context, c *Crawl) error

	// GetCrawl retrieves a crawl by ID. Returns sluice.ErrCrawlNotFound
	// when the record does not exist or has expired.
	GetCrawl(ctx context.Context, crawlID string) (*Crawl, error)
}
