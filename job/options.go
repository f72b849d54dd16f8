package job

import (
	"time"

	"github.com/xraph/sluice/id"
)

const (
	// DefaultQueue is the worker queue jobs land on unless overridden.
	DefaultQueue = "scrape"

	// DefaultTimeout is the per-job execution budget when the caller
	// supplies none.
	DefaultTimeout = 60 * time.Second
)

// Option is a functional option applied when constructing a Job.
type Option func(*Job)

// WithID sets a caller-supplied job ID, allowing idempotent resubmission.
func WithID(jobID id.JobID) Option {
	return func(j *Job) {
		if !jobID.IsNil() {
			j.ID = jobID
		}
	}
}

// WithCrawlID attributes the job to a crawl or batch-scrape.
func WithCrawlID(crawlID string) Option {
	return func(j *Job) { j.CrawlID = crawlID }
}

// WithMode sets the scrape mode.
func WithMode(m Mode) Option {
	return func(j *Job) { j.Mode = m }
}

// WithQueue sets the worker queue for the job.
func WithQueue(q string) Option {
	return func(j *Job) { j.Queue = q }
}

// WithPriority sets the job priority. Lower values are processed first.
func WithPriority(p int) Option {
	return func(j *Job) { j.Priority = p }
}

// WithTimeout sets the per-job execution budget.
func WithTimeout(d time.Duration) Option {
	return func(j *Job) { j.Timeout = d }
}

// WithMaxRetries sets the retry budget before the job is dead-lettered.
func WithMaxRetries(n int) Option {
	return func(j *Job) { j.MaxRetries = n }
}

// WithRunAt schedules the job for execution at a specific time.
func WithRunAt(t time.Time) Option {
	return func(j *Job) { j.RunAt = t }
}

// WithExtract marks the job as an extraction, switching the applicable
// team ceiling from the crawl limit to the extract limit.
func WithExtract() Option {
	return func(j *Job) { j.IsExtract = true }
}

// WithFromExtract marks a scrape spawned by an extraction pipeline.
func WithFromExtract() Option {
	return func(j *Job) { j.FromExtract = true }
}

// WithZeroDataRetention requires the blob store to be purged after the
// result has been read once.
func WithZeroDataRetention() Option {
	return func(j *Job) { j.ZeroDataRetention = true }
}

// WithDirectDispatch bypasses admission control (administrative override).
func WithDirectDispatch() Option {
	return func(j *Job) { j.DirectDispatch = true }
}
