package job

import (
	"time"

	"github.com/xraph/sluice/id"
)

// Mode identifies the kind of scrape a job performs. The worker pool
// dispatches to the handler registered for the job's mode.
type Mode string

const (
	// ModeSingleURLs is an ad-hoc scrape of one URL.
	ModeSingleURLs Mode = "single_urls"
	// ModeCrawl is one page fetch belonging to a crawl.
	ModeCrawl Mode = "crawl"
	// ModeBatchScrape is one URL of a bulk batch-scrape submission.
	ModeBatchScrape Mode = "batch_scrape"
	// ModeKickoff seeds a crawl by discovering its initial URL set.
	ModeKickoff Mode = "kickoff"
	// ModeExtract is an LLM extraction over scraped content.
	ModeExtract Mode = "extract"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting in the worker queue.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing the job.
	StateRunning State = "running"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job failed and will not be retried.
	StateFailed State = "failed"
	// StateRetrying means the job failed but is scheduled for retry.
	StateRetrying State = "retrying"
	// StateExpired means the job timed out while parked in the
	// deferred queue and never reached a worker.
	StateExpired State = "expired"
)

// Job is the unit of admission: one scrape to be executed by a worker,
// attributed to a team and optionally to a crawl.
type Job struct {
	ID      id.JobID `json:"id"`
	TeamID  string   `json:"team_id"`
	CrawlID string   `json:"crawl_id,omitempty"`
	Mode    Mode     `json:"mode"`
	Queue   string   `json:"queue"`

	Payload Payload `json:"payload"`

	// Priority orders jobs within the worker queue. Lower is more urgent.
	Priority int `json:"priority"`

	// Timeout is the per-job execution budget. It also bounds how long an
	// ad-hoc job may sit in the deferred queue before expiring.
	Timeout time.Duration `json:"timeout,omitempty"`

	IsExtract         bool `json:"is_extract,omitempty"`
	FromExtract       bool `json:"from_extract,omitempty"`
	ZeroDataRetention bool `json:"zero_data_retention,omitempty"`

	// DirectDispatch bypasses admission control entirely. The active-job
	// entry is still written so the ledger keeps counting the job.
	DirectDispatch bool `json:"direct_dispatch,omitempty"`

	// Deferred is set once the job has passed through the deferred queue.
	Deferred bool `json:"deferred,omitempty"`

	State      State     `json:"state"`
	RunAt      time.Time `json:"run_at"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	LastError  string    `json:"last_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending job for the given team with defaults applied.
func New(teamID string, payload Payload, opts ...Option) *Job {
	now := time.Now().UTC()
	j := &Job{
		ID:        id.NewJobID(),
		TeamID:    teamID,
		Mode:      ModeSingleURLs,
		Queue:     DefaultQueue,
		Payload:   payload,
		Timeout:   DefaultTimeout,
		State:     StatePending,
		RunAt:     now,
		CreatedAt: now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// PartOfCrawl reports whether the job belongs to a crawl or batch-scrape
// submission. Saturation notifications are suppressed for such jobs.
func (j *Job) PartOfCrawl() bool {
	return j.CrawlID != ""
}

// EffectiveTimeout returns the job's timeout, or the given default when the
// caller did not set one.
func (j *Job) EffectiveTimeout(fallback time.Duration) time.Duration {
	if j.Timeout > 0 {
		return j.Timeout
	}
	return fallback
}
