// Package mirror replays a sample of admitted jobs against a staging
// host. Delivery is fire and forget: the POST runs on its own goroutine
// with a detached context, and a failed or slow mirror never delays or
// fails admission.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/xraph/sluice/ext"
	"github.com/xraph/sluice/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension   = (*Extension)(nil)
	_ ext.JobAdmitted = (*Extension)(nil)
	_ ext.Shutdown    = (*Extension)(nil)
)

// DefaultTimeout bounds a single mirror delivery.
const DefaultTimeout = 10 * time.Second

// Extension posts a sample of admitted jobs to a staging host. Only the
// admitted path is mirrored; deferrals, drains and replays are not.
type Extension struct {
	url     string
	rate    float64
	client  *http.Client
	timeout time.Duration
	sample  func() float64
	logger  *slog.Logger

	inflight sync.WaitGroup
}

// Option configures an Extension.
type Option func(*Extension)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Extension) { m.client = c }
}

// WithTimeout bounds each mirror delivery. Default is [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(m *Extension) { m.timeout = d }
}

// WithSampler replaces the random source used for sampling. A job is
// mirrored when the sampled value is below the configured rate.
func WithSampler(fn func() float64) Option {
	return func(m *Extension) { m.sample = fn }
}

// WithLogger sets the logger for delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Extension) { m.logger = l }
}

// New creates a mirror Extension posting to url at the given sampling
// rate. A rate of 0 disables the mirror entirely, 1 mirrors every
// admitted job.
func New(url string, rate float64, opts ...Option) *Extension {
	m := &Extension{
		url:     url,
		rate:    rate,
		client:  &http.Client{},
		timeout: DefaultTimeout,
		sample:  rand.Float64, //nolint:gosec // sampling does not need crypto rand
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements ext.Extension.
func (m *Extension) Name() string { return "mirror" }

// OnJobAdmitted implements ext.JobAdmitted. The delivery is dispatched
// to a background goroutine and the hook returns immediately.
func (m *Extension) OnJobAdmitted(ctx context.Context, j *job.Job) error {
	if m.url == "" || m.rate <= 0 {
		return nil
	}
	if m.rate < 1 && m.sample() >= m.rate {
		return nil
	}

	body, err := json.Marshal(submission{
		JobID:   j.ID.String(),
		TeamID:  j.TeamID,
		CrawlID: j.CrawlID,
		Mode:    string(j.Mode),
		Payload: j.Payload,
	})
	if err != nil {
		m.logger.Warn("mirror: encode submission", "job_id", j.ID, "error", err)
		return nil
	}

	// Detach from the caller's context so admission completing (or the
	// request being cancelled) does not abort the mirror delivery.
	dctx := context.WithoutCancel(ctx)

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		m.deliver(dctx, j, body)
	}()
	return nil
}

// OnShutdown implements ext.Shutdown. It waits for in-flight deliveries
// until ctx is done.
func (m *Extension) OnShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Extension) deliver(ctx context.Context, j *job.Job, body []byte) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		m.logger.Warn("mirror: build request", "job_id", j.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("mirror: delivery failed", "job_id", j.ID, "url", m.url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		m.logger.Warn("mirror: staging host rejected submission",
			"job_id", j.ID, "url", m.url, "status", resp.StatusCode)
	}
}

// submission is the body posted to the staging host.
type submission struct {
	JobID   string      `json:"job_id"`
	TeamID  string      `json:"team_id"`
	CrawlID string      `json:"crawl_id,omitempty"`
	Mode    string      `json:"mode"`
	Payload job.Payload `json:"payload"`
}
