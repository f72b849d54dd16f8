// Package engine wires the sluice subsystems together: admission,
// dispatch, draining, waiting, and the worker pool.
//
// The package exists to break an import cycle: the root sluice package
// defines the shared error and config types imported by every subsystem,
// so it cannot import those subsystems back. Engine sits above all
// subsystem packages and below the application layer.
//
//	s, _ := sluice.New(sluice.WithStore(st))
//	eng, _ := engine.Build(s,
//	    engine.WithBroker(brk),
//	    engine.WithLimitSource(limits),
//	)
//	eng.Register(job.ModeSingleURLs, scrapeHandler)
//	handle, err := eng.Submit(ctx, j)
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/admission"
	"github.com/xraph/sluice/backoff"
	"github.com/xraph/sluice/blob"
	"github.com/xraph/sluice/broker"
	"github.com/xraph/sluice/crawl"
	"github.com/xraph/sluice/deadletter"
	"github.com/xraph/sluice/drain"
	"github.com/xraph/sluice/event"
	"github.com/xraph/sluice/ext"
	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/job"
	"github.com/xraph/sluice/ledger"
	"github.com/xraph/sluice/middleware"
	"github.com/xraph/sluice/mirror"
	"github.com/xraph/sluice/notify"
	"github.com/xraph/sluice/queue"
	"github.com/xraph/sluice/store"
	"github.com/xraph/sluice/tenant"
	"github.com/xraph/sluice/waiter"
	"github.com/xraph/sluice/worker"
)

// buildOptions collects the collaborators Build assembles the engine from.
type buildOptions struct {
	broker      broker.Broker
	limits      tenant.LimitSource
	blobs       blob.Store
	notifier    notify.Notifier
	backoff     backoff.Strategy
	extensions  []ext.Extension
	middlewares []middleware.Middleware
	queueCfgs   []queue.Config
	teamCfgs    []queue.TeamConfig
}

// Option configures Build.
type Option func(*buildOptions)

// WithBroker sets the worker-queue backend. Required.
func WithBroker(b broker.Broker) Option {
	return func(o *buildOptions) { o.broker = b }
}

// WithLimitSource sets the per-team concurrency limit source. Defaults
// to the static empty source, so every team gets the default ceiling.
func WithLimitSource(src tenant.LimitSource) Option {
	return func(o *buildOptions) { o.limits = src }
}

// WithBlobStore enables the out-of-band payload fallback on waits.
func WithBlobStore(b blob.Store) Option {
	return func(o *buildOptions) { o.blobs = b }
}

// WithNotifier sets the concurrency-limit notification transport.
// Defaults to the noop notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *buildOptions) { o.notifier = n }
}

// WithBackoff sets the retry backoff strategy.
func WithBackoff(bo backoff.Strategy) Option {
	return func(o *buildOptions) { o.backoff = bo }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(o *buildOptions) { o.extensions = append(o.extensions, e) }
}

// WithMiddleware appends a middleware to the execution chain.
func WithMiddleware(mw middleware.Middleware) Option {
	return func(o *buildOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithQueueConfig configures local rate limits for one worker queue.
func WithQueueConfig(cfg queue.Config) Option {
	return func(o *buildOptions) { o.queueCfgs = append(o.queueCfgs, cfg) }
}

// WithTeamConfig configures local per-team limits on one worker queue.
func WithTeamConfig(cfg queue.TeamConfig) Option {
	return func(o *buildOptions) { o.teamCfgs = append(o.teamCfgs, cfg) }
}

// Engine is the assembled dispatch surface: submission, waiting, dead
// letter replay, and handler registration.
type Engine struct {
	cfg    sluice.Config
	logger *slog.Logger

	store      store.Store
	broker     broker.Broker
	registry   *job.Registry
	extensions *ext.Registry

	controller  *admission.Controller
	drainer     *drain.Drainer
	gate        *notify.Gate
	events      *event.Bus
	deadletters *deadletter.Service
	coordinator *waiter.Coordinator
	pool        *worker.Pool
}

// Build assembles an Engine around the container's store and config and
// wires the background components (pool, sweeper) into the container so
// that sluice.Start and Stop manage their lifecycle.
func Build(s *sluice.Sluice, opts ...Option) (*Engine, error) {
	o := &buildOptions{
		limits:   tenant.NewStatic(nil),
		notifier: notify.NoopNotifier{},
		backoff:  backoff.DefaultStrategy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.broker == nil {
		return nil, errors.New("sluice/engine: a broker is required")
	}
	st, ok := s.Store().(store.Store)
	if !ok {
		return nil, sluice.ErrNoStore
	}

	cfg := s.Config()
	logger := s.Logger()

	extensions := ext.NewRegistry(logger)
	if cfg.MirrorURL != "" && cfg.MirrorRate > 0 {
		extensions.Register(mirror.New(cfg.MirrorURL, cfg.MirrorRate,
			mirror.WithLogger(logger)))
	}
	for _, e := range o.extensions {
		extensions.Register(e)
	}

	events := event.NewBus(st)
	deadletters := deadletter.NewService(st)
	controller := admission.NewController(st, st, o.limits,
		admission.WithDefaultCeiling(cfg.DefaultCeiling),
		admission.WithLogger(logger))
	gate := notify.NewGate(st, o.notifier,
		notify.WithResendInterval(cfg.NotifyResendInterval),
		notify.WithEmitter(extensions),
		notify.WithLogger(logger))

	eng := &Engine{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		broker:      o.broker,
		registry:    job.NewRegistry(),
		extensions:  extensions,
		controller:  controller,
		gate:        gate,
		events:      events,
		deadletters: deadletters,
	}

	eng.drainer = drain.NewDrainer(st, controller, st, events, deadletters, extensions,
		func(ctx context.Context, j *job.Job) error {
			_, err := eng.admit(ctx, j)
			return err
		},
		drain.WithLogger(logger))
	sweeper := drain.NewSweeper(eng.drainer, st,
		drain.WithSchedule(cfg.DrainSchedule),
		drain.WithSweeperLogger(logger))

	// The deadline guard wraps everything the host registered so a stuck
	// fetch cannot outlive the scrape timeout even inside custom middleware.
	middlewares := append([]middleware.Middleware{middleware.Timeout(logger, cfg.ScrapeTimeout)}, o.middlewares...)

	executor := worker.NewExecutor(eng.registry, extensions, o.broker, st, st, events, deadletters, o.backoff, logger,
		worker.WithActiveTTL(cfg.ActiveTTL),
		worker.WithMiddleware(middlewares...),
		worker.WithDrainFunc(func(ctx context.Context, teamID string) {
			if err := eng.drainer.DrainTeam(ctx, teamID); err != nil {
				logger.Error("post-completion drain failed",
					"team_id", teamID,
					"error", err)
			}
		}))

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(cfg.Concurrency),
		worker.WithPoolQueues(cfg.Queues),
		worker.WithPollInterval(cfg.PollInterval),
		worker.WithHeartbeatInterval(cfg.HeartbeatInterval),
		worker.WithPoolActiveTTL(cfg.ActiveTTL),
	}
	if len(o.queueCfgs) > 0 || len(o.teamCfgs) > 0 {
		qm := queue.NewManager(o.queueCfgs...)
		for _, tc := range o.teamCfgs {
			qm.SetTeamConfig(tc)
		}
		poolOpts = append(poolOpts, worker.WithQueueManager(qm))
	}
	eng.pool = worker.NewPool(o.broker, st, executor, extensions, logger, poolOpts...)

	waiterOpts := []waiter.Option{
		waiter.WithEventBus(events),
		waiter.WithPollInterval(cfg.WaitPollInterval),
		waiter.WithDefaultTimeout(cfg.WaitTimeout),
		waiter.WithLogger(logger),
	}
	if o.blobs != nil {
		waiterOpts = append(waiterOpts, waiter.WithBlobStore(o.blobs))
	}
	eng.coordinator = waiter.NewCoordinator(o.broker, st, waiterOpts...)

	s.SetPool(eng.pool)
	s.SetSweeper(sweeper)
	s.SetExtensions(extensions)
	return eng, nil
}

// Register binds a handler to a job mode.
func (e *Engine) Register(mode job.Mode, h job.Handler) {
	e.registry.Register(mode, h)
}

// RegisterCrawl stores a crawl record so its concurrency options gate the
// jobs that reference it. Call before submitting the crawl's jobs.
func (e *Engine) RegisterCrawl(ctx context.Context, c *crawl.Crawl) error {
	if err := e.store.SaveCrawl(ctx, c); err != nil {
		return fmt.Errorf("sluice/engine: save crawl: %w", err)
	}
	return nil
}

// Submit runs one job through admission. Admitted jobs return a broker
// handle; deferred jobs return a nil handle and surface later through the
// drainer. Ledger failures abort with ErrLedgerUnavailable.
func (e *Engine) Submit(ctx context.Context, j *job.Job) (*broker.Handle, error) {
	verdict, err := e.controller.Evaluate(ctx, j)
	if err != nil {
		return nil, err
	}
	if verdict == admission.Admit {
		return e.admit(ctx, j)
	}

	if err := e.park(ctx, j, verdict); err != nil {
		return nil, err
	}
	e.maybeNotifyAfterDefer(ctx, j)
	return nil, nil
}

// SubmitMany runs a batch through admission, partitioned by team
// regardless of input interleaving. Per-job dispatch failures are
// collected; admission continues for the remaining jobs.
func (e *Engine) SubmitMany(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	teams := make([]string, 0, 1)
	byTeam := make(map[string][]*job.Job)
	for _, j := range jobs {
		if _, seen := byTeam[j.TeamID]; !seen {
			teams = append(teams, j.TeamID)
		}
		byTeam[j.TeamID] = append(byTeam[j.TeamID], j)
	}

	var errs []error
	for _, teamID := range teams {
		plan, err := e.controller.EvaluateBatch(ctx, teamID, byTeam[teamID])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, j := range plan.Admit {
			if _, admitErr := e.admit(ctx, j); admitErr != nil {
				errs = append(errs, admitErr)
			}
		}
		for _, j := range plan.DeferCrawl {
			if parkErr := e.park(ctx, j, admission.DeferCrawl); parkErr != nil {
				errs = append(errs, parkErr)
			}
		}
		for _, j := range plan.DeferTenant {
			if parkErr := e.park(ctx, j, admission.DeferTenant); parkErr != nil {
				errs = append(errs, parkErr)
			}
		}
		if plan.Notify {
			e.gate.MaybeNotify(ctx, teamID, notify.KindConcurrencyLimitReached)
		}
	}
	return errors.Join(errs...)
}

// WaitForJob blocks until the job produces an outcome. A zero timeout
// means the configured default.
func (e *Engine) WaitForJob(ctx context.Context, jobID id.JobID, timeout time.Duration) ([]byte, error) {
	return e.coordinator.WaitForJob(ctx, jobID, timeout)
}

// SubmitAndWait submits a job and blocks for its outcome. The waiter
// handles deferred jobs transparently: it polls until the drainer
// promotes the job or the budget runs out.
func (e *Engine) SubmitAndWait(ctx context.Context, j *job.Job, timeout time.Duration) ([]byte, error) {
	if _, err := e.Submit(ctx, j); err != nil {
		return nil, err
	}
	return e.coordinator.WaitForJob(ctx, j.ID, timeout)
}

// DrainTeam promotes the team's deferred jobs into freed slots. Exposed
// for administrative callers; the pool and sweeper call it internally.
func (e *Engine) DrainTeam(ctx context.Context, teamID string) error {
	return e.drainer.DrainTeam(ctx, teamID)
}

// ReplayDeadLetter resubmits a dead-lettered job through admission.
func (e *Engine) ReplayDeadLetter(ctx context.Context, entryID id.ID) error {
	return e.deadletters.Replay(ctx, entryID, func(ctx context.Context, j *job.Job) error {
		_, err := e.Submit(ctx, j)
		return err
	})
}

// DeadLetters exposes the dead-letter service for list and purge.
func (e *Engine) DeadLetters() *deadletter.Service { return e.deadletters }

// Extensions exposes the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Pool exposes the worker pool, mainly for its worker ID.
func (e *Engine) Pool() *worker.Pool { return e.pool }

// admit writes the ledger entries and enqueues the job. A broker failure
// after the ledger writes is surfaced as ErrWorkerQueueUnavailable with
// no rollback: the active-entry TTL self-heals the leaked slot.
func (e *Engine) admit(ctx context.Context, j *job.Job) (*broker.Handle, error) {
	if err := e.store.PushActive(ctx, j.TeamID, j.ID, e.cfg.ActiveTTL); err != nil {
		return nil, fatal("push active", err)
	}
	if j.CrawlID != "" {
		c, err := e.store.GetCrawl(ctx, j.CrawlID)
		switch {
		case err == nil && c.Gated():
			if err := e.store.PushCrawlActive(ctx, j.CrawlID, j.ID, e.cfg.ActiveTTL); err != nil {
				return nil, fatal("push crawl active", err)
			}
		case err != nil && !errors.Is(err, sluice.ErrCrawlNotFound):
			e.logger.Warn("crawl lookup failed during admit, skipping crawl slot",
				"crawl_id", j.CrawlID,
				"error", err)
		}
	}
	e.extensions.EmitJobAdmitted(ctx, j)

	handle, err := e.broker.Enqueue(ctx, j)
	if err != nil {
		e.logger.Error("broker enqueue failed after ledger write",
			"job_id", j.ID.String(),
			"team_id", j.TeamID,
			"error", err)
		return nil, fmt.Errorf("%w: %v", sluice.ErrWorkerQueueUnavailable, err)
	}
	e.extensions.EmitJobEnqueued(ctx, j)
	return handle, nil
}

// park moves a job into the team's deferred queue. Ad-hoc jobs get a hold
// deadline from their timeout; crawl jobs are held indefinitely.
func (e *Engine) park(ctx context.Context, j *job.Job, verdict admission.Verdict) error {
	j.Deferred = true
	now := time.Now().UTC()
	entry := &ledger.DeferredEntry{Job: j, EnqueuedAt: now}
	if !j.PartOfCrawl() {
		entry.HoldDeadline = now.Add(j.EffectiveTimeout(e.cfg.ScrapeTimeout))
	}
	if err := e.store.PushDeferred(ctx, j.TeamID, entry); err != nil {
		return fatal("push deferred", err)
	}

	reason := "tenant"
	if verdict == admission.DeferCrawl {
		reason = "crawl"
	}
	e.extensions.EmitJobDeferred(ctx, j, reason)
	e.logger.Info("job deferred",
		"job_id", j.ID.String(),
		"team_id", j.TeamID,
		"reason", reason)
	return nil
}

// maybeNotifyAfterDefer consults the notification gate after a single-job
// deferral. Crawl and batch submissions are suppressed; only ad-hoc
// saturation warrants telling the team.
func (e *Engine) maybeNotifyAfterDefer(ctx context.Context, j *job.Job) {
	if j.PartOfCrawl() || j.Mode == job.ModeCrawl || j.Mode == job.ModeBatchScrape {
		return
	}
	parked, err := e.store.CountDeferred(ctx, j.TeamID)
	if err != nil {
		e.logger.Warn("deferred count failed, skipping notification check",
			"team_id", j.TeamID,
			"error", err)
		return
	}
	if parked > e.controller.Ceiling(ctx, j) {
		e.gate.MaybeNotify(ctx, j.TeamID, notify.KindConcurrencyLimitReached)
	}
}

func fatal(op string, err error) error {
	if !errors.Is(err, sluice.ErrLedgerUnavailable) {
		err = fmt.Errorf("%w: %v", sluice.ErrLedgerUnavailable, err)
	}
	return fmt.Errorf("sluice/engine: %s: %w", op, err)
}
