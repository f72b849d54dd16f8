// Package admission decides whether a scrape job enters the worker queue
// immediately or is parked in its team's deferred queue.
//
// A single job passes three gates in order: the administrative
// direct-dispatch override, the per-crawl gate, and the team ceiling. Bulk
// submissions are evaluated as one plan so that a batch of N jobs costs
// O(#crawl buckets + 2) ledger round-trips instead of O(N).
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/crawl"
	"github.com/xraph/sluice/job"
	"github.com/xraph/sluice/ledger"
	"github.com/xraph/sluice/tenant"
)

// Verdict is the outcome of evaluating one job.
type Verdict int

const (
	// Admit sends the job straight to the worker queue.
	Admit Verdict = iota
	// DeferTenant parks the job because the team ceiling is saturated.
	DeferTenant
	// DeferCrawl parks the job because its crawl's ceiling is saturated.
	DeferCrawl
)

// String implements fmt.Stringer.
func (v Verdict) String() string {
	switch v {
	case Admit:
		return "admit"
	case DeferTenant:
		return "defer_tenant"
	case DeferCrawl:
		return "defer_crawl"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Plan is the outcome of evaluating a bulk submission. The three slices
// partition the input; each preserves input order.
type Plan struct {
	Admit       []*job.Job
	DeferTenant []*job.Job
	DeferCrawl  []*job.Job

	// Ceiling is the highest team ceiling among the job kinds present in
	// the submission. Mixed batches are gated per kind; Ceiling is only a
	// reporting figure for callers and the notification threshold.
	Ceiling int

	// Notify is set when the tenant-deferred backlog created by this
	// submission alone exceeds the team ceiling and the batch is not part
	// of a crawl or batch-scrape.
	Notify bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDefaultCeiling overrides the ceiling applied to teams the limit
// source has no record of. Values below one are ignored.
func WithDefaultCeiling(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.defaultCeiling = n
		}
	}
}

// Controller evaluates jobs against the concurrency ledger.
type Controller struct {
	ledger         ledger.Store
	crawls         crawl.Store
	limits         tenant.LimitSource
	defaultCeiling int
	logger         *slog.Logger
}

// NewController creates a Controller over the given ledger, crawl store,
// and team limit source.
func NewController(led ledger.Store, crawls crawl.Store, limits tenant.LimitSource, opts ...Option) *Controller {
	c := &Controller{
		ledger:         led,
		crawls:         crawls,
		limits:         limits,
		defaultCeiling: tenant.DefaultCeiling,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Evaluate returns the verdict for a single job.
//
// Limit lookups degrade: an unreadable crawl record is treated as
// unbounded and an unreadable team limit falls back to the default
// ceiling. Ledger errors are fatal and wrap sluice.ErrLedgerUnavailable.
func (c *Controller) Evaluate(ctx context.Context, j *job.Job) (Verdict, error) {
	if j.DirectDispatch {
		return Admit, nil
	}
	now := time.Now().UTC()

	if j.CrawlID != "" {
		ceiling, bounded := c.crawlCeiling(ctx, j.CrawlID)
		if bounded {
			active, err := c.ledger.CountCrawlActive(ctx, j.CrawlID, now)
			if err != nil {
				return DeferCrawl, fatal("count crawl active", err)
			}
			if ceiling-active <= 0 {
				return DeferCrawl, nil
			}
		}
	}

	ceiling := c.Ceiling(ctx, j)
	if ceiling <= 0 {
		return DeferTenant, nil
	}
	if err := c.ledger.CleanExpired(ctx, j.TeamID, now); err != nil {
		return DeferTenant, fatal("clean expired", err)
	}
	active, err := c.ledger.CountActive(ctx, j.TeamID, now)
	if err != nil {
		return DeferTenant, fatal("count active", err)
	}
	if active >= ceiling {
		return DeferTenant, nil
	}
	return Admit, nil
}

// EvaluateBatch plans admission for a bulk submission belonging to one
// team. Per-crawl headroom is consumed first; jobs beyond a crawl's
// ceiling are forced to DeferCrawl before team headroom is computed. Team
// headroom is then handed out in input order, each job gated by the
// ceiling of its own kind against the shared active count. Priority is
// not consulted; it only orders jobs inside the worker queue.
func (c *Controller) EvaluateBatch(ctx context.Context, teamID string, jobs []*job.Job) (*Plan, error) {
	plan := &Plan{}
	if len(jobs) == 0 {
		return plan, nil
	}
	now := time.Now().UTC()

	// Per-crawl headroom, one ledger round-trip per bounded crawl bucket.
	// A nil entry in the map marks an unbounded crawl.
	headroom := make(map[string]*int)
	var potential []*job.Job
	for _, j := range jobs {
		if j.DirectDispatch {
			plan.Admit = append(plan.Admit, j)
			continue
		}
		if j.CrawlID == "" {
			potential = append(potential, j)
			continue
		}
		free, seen := headroom[j.CrawlID]
		if !seen {
			ceiling, bounded := c.crawlCeiling(ctx, j.CrawlID)
			if bounded {
				active, err := c.ledger.CountCrawlActive(ctx, j.CrawlID, now)
				if err != nil {
					return nil, fatal("count crawl active", err)
				}
				n := max(ceiling-active, 0)
				free = &n
			}
			headroom[j.CrawlID] = free
		}
		if free == nil {
			potential = append(potential, j)
			continue
		}
		if *free <= 0 {
			plan.DeferCrawl = append(plan.DeferCrawl, j)
			continue
		}
		*free--
		potential = append(potential, j)
	}

	// Team headroom. The active ledger is one pool per team, but each job
	// is gated by the ceiling of its own kind: a batch mixing extraction
	// with ad-hoc scrapes never lets the lower ceiling starve the higher.
	limits := c.teamLimits(ctx, teamID)
	ceilings := make(map[tenant.Kind]int)
	for _, j := range jobs {
		k := tenant.KindFor(j)
		if _, seen := ceilings[k]; !seen {
			ceilings[k] = limits.Resolve(k, c.defaultCeiling)
			plan.Ceiling = max(plan.Ceiling, ceilings[k])
		}
	}

	running := 0
	if plan.Ceiling > 0 && len(potential) > 0 {
		if err := c.ledger.CleanExpired(ctx, teamID, now); err != nil {
			return nil, fatal("clean expired", err)
		}
		active, err := c.ledger.CountActive(ctx, teamID, now)
		if err != nil {
			return nil, fatal("count active", err)
		}
		running = active
	}
	for _, j := range potential {
		if ceil := ceilings[tenant.KindFor(j)]; ceil > 0 && running < ceil {
			plan.Admit = append(plan.Admit, j)
			running++
			continue
		}
		plan.DeferTenant = append(plan.DeferTenant, j)
	}

	plan.Notify = len(plan.DeferTenant) > plan.Ceiling && !suppressed(jobs)
	return plan, nil
}

// Ceiling resolves the team ceiling that gates the given job. A failed
// lookup logs and degrades to the default ceiling.
func (c *Controller) Ceiling(ctx context.Context, j *job.Job) int {
	return c.TeamCeiling(ctx, j.TeamID, tenant.KindFor(j))
}

// TeamCeiling resolves a team's ceiling for the given kind. A failed
// lookup logs and degrades to the default ceiling.
func (c *Controller) TeamCeiling(ctx context.Context, teamID string, kind tenant.Kind) int {
	return c.teamLimits(ctx, teamID).Resolve(kind, c.defaultCeiling)
}

// teamLimits fetches the team's limits, degrading a failed lookup to the
// zero value so every kind resolves to the default ceiling.
func (c *Controller) teamLimits(ctx context.Context, teamID string) tenant.Limits {
	limits, err := c.limits.Limits(ctx, teamID)
	if err != nil {
		c.logger.Warn("team limit lookup failed, using default ceiling",
			"team_id", teamID,
			"error", err)
		return tenant.Limits{}
	}
	return limits
}

// CrawlSaturated reports whether the crawl's gate is currently closed.
// The drainer re-checks this before promoting a deferred crawl job.
func (c *Controller) CrawlSaturated(ctx context.Context, crawlID string) (bool, error) {
	ceiling, bounded := c.crawlCeiling(ctx, crawlID)
	if !bounded {
		return false, nil
	}
	active, err := c.ledger.CountCrawlActive(ctx, crawlID, time.Now().UTC())
	if err != nil {
		return true, fatal("count crawl active", err)
	}
	return active >= ceiling, nil
}

// crawlCeiling resolves the per-crawl ceiling. A missing or unreadable
// crawl record is treated as unbounded.
func (c *Controller) crawlCeiling(ctx context.Context, crawlID string) (int, bool) {
	cr, err := c.crawls.GetCrawl(ctx, crawlID)
	if err != nil {
		if !errors.Is(err, sluice.ErrCrawlNotFound) {
			c.logger.Warn("crawl lookup failed, treating as unbounded",
				"crawl_id", crawlID,
				"error", err)
		}
		return 0, false
	}
	return cr.Ceiling()
}

// suppressed reports whether saturation notifications are suppressed for
// the batch. Crawl and batch-scrape submissions never notify.
func suppressed(jobs []*job.Job) bool {
	for _, j := range jobs {
		if j.PartOfCrawl() || j.Mode == job.ModeCrawl || j.Mode == job.ModeBatchScrape {
			return true
		}
	}
	return false
}

// fatal wraps a ledger failure so callers can match
// sluice.ErrLedgerUnavailable regardless of the backend's own wrapping.
func fatal(op string, err error) error {
	if !errors.Is(err, sluice.ErrLedgerUnavailable) {
		err = fmt.Errorf("%w: %v", sluice.ErrLedgerUnavailable, err)
	}
	return fmt.Errorf("sluice/admission: %s: %w", op, err)
}
