package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/sluice/broker"
	"github.com/xraph/sluice/ext"
	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/job"
	"github.com/xraph/sluice/ledger"
)

// QueueManager controls local per-queue, per-team, and per-crawl rate
// limiting and concurrency. The pool calls Acquire before executing a
// dequeued job and Release after execution completes.
type QueueManager interface {
	// Acquire checks rate limits and concurrency for the queue, team, and
	// crawl the job belongs to. crawlID is empty for ad-hoc scrapes.
	// Returns true if the job is allowed to proceed.
	Acquire(queue, teamID, crawlID string) bool
	// Release decrements the active counts taken by Acquire.
	Release(queue, teamID, crawlID string)
}

// Pool manages a set of concurrent worker goroutines that poll the broker
// for jobs and execute them through the Executor. A heartbeat loop keeps
// the ledger's active entries fresh for long-running jobs so they are not
// expired out from under the worker.
type Pool struct {
	queue        broker.Broker
	ledger       ledger.Store
	executor     *Executor
	extensions   *ext.Registry
	concurrency  int
	queues       []string
	pollInterval time.Duration
	workerID     id.WorkerID
	logger       *slog.Logger

	// Heartbeat configuration.
	heartbeatInterval time.Duration
	activeTTL         time.Duration

	// Queue manager (optional).
	queueManager QueueManager

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]*activeJob
	activeMu   sync.Mutex
}

// activeJob tracks one executing job so the heartbeat loop can refresh
// its ledger entries and shutdown can cancel it.
type activeJob struct {
	job    *job.Job
	cancel context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolQueues sets the queues the pool will poll.
func WithPoolQueues(queues []string) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithPollInterval sets how often workers poll for new jobs.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithHeartbeatInterval sets how often the pool refreshes active-entry
// TTLs for running jobs. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithPoolActiveTTL sets the TTL written on each heartbeat refresh.
func WithPoolActiveTTL(d time.Duration) PoolOption {
	return func(p *Pool) { p.activeTTL = d }
}

// WithQueueManager sets the queue manager for rate limiting and
// concurrency control.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// NewPool creates a worker pool.
func NewPool(
	queue broker.Broker,
	led ledger.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		queue:        queue,
		ledger:       led,
		executor:     executor,
		extensions:   extensions,
		concurrency:  10,
		queues:       []string{job.DefaultQueue},
		pollInterval: time.Second,
		activeTTL:    time.Minute,
		workerID:     id.NewWorkerID(),
		logger:       logger,
		stopCh:       make(chan struct{}),
		activeJobs:   make(map[string]*activeJob),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop()
	}

	// Launch heartbeat goroutine if configured.
	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, active jobs are cancelled when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	// Signal all workers to stop.
	close(p.stopCh)

	// Wait for completion or context deadline.
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}

	return nil
}

// dequeueLoop is run by each worker goroutine.
func (p *Pool) dequeueLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		jobs, err := p.queue.Dequeue(context.Background(), p.queues, 1)
		if err != nil {
			p.logger.Error("dequeue error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}

		if len(jobs) == 0 {
			p.sleep()
			continue
		}

		j := jobs[0]

		// Check queue/team/crawl rate limit and concurrency.
		if p.queueManager != nil && !p.queueManager.Acquire(j.Queue, j.TeamID, j.CrawlID) {
			// Rate limited locally; push the job back with a small delay.
			j.State = job.StatePending
			j.RunAt = time.Now().Add(p.pollInterval)
			if _, enqErr := p.queue.Enqueue(context.Background(), j); enqErr != nil {
				p.logger.Error("failed to re-enqueue rate-limited job",
					slog.String("job_id", j.ID.String()),
					slog.String("error", enqErr.Error()),
				)
			}
			p.sleep()
			continue
		}

		now := time.Now().UTC()
		j.StartedAt = &now
		p.extensions.EmitJobStarted(context.Background(), j)

		ctx, cancel := context.WithCancel(context.Background())
		p.trackJob(j, cancel)

		if execErr := p.executor.Execute(ctx, j); execErr != nil {
			p.logger.Debug("job execution failed",
				slog.String("job_id", j.ID.String()),
				slog.String("mode", string(j.Mode)),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrackJob(j.ID.String())
		cancel()

		// Release the queue/team/crawl slots.
		if p.queueManager != nil {
			p.queueManager.Release(j.Queue, j.TeamID, j.CrawlID)
		}
	}
}

// heartbeatLoop periodically refreshes the ledger's active entries for
// running jobs so the TTL safety net only fires for crashed workers.
func (p *Pool) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.refreshActiveEntries()
		}
	}
}

func (p *Pool) refreshActiveEntries() {
	p.activeMu.Lock()
	running := make([]*job.Job, 0, len(p.activeJobs))
	for _, a := range p.activeJobs {
		running = append(running, a.job)
	}
	p.activeMu.Unlock()

	ctx := context.Background()
	for _, j := range running {
		if err := p.ledger.PushActive(ctx, j.TeamID, j.ID, p.activeTTL); err != nil {
			p.logger.Warn("heartbeat: failed to refresh team entry",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		if j.CrawlID == "" {
			continue
		}
		if err := p.ledger.PushCrawlActive(ctx, j.CrawlID, j.ID, p.activeTTL); err != nil {
			p.logger.Warn("heartbeat: failed to refresh crawl entry",
				slog.String("job_id", j.ID.String()),
				slog.String("crawl_id", j.CrawlID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(j *job.Job, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[j.ID.String()] = &activeJob{job: j, cancel: cancel}
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, a := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		a.cancel()
	}
}
