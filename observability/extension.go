// Package observability exposes sluice lifecycle events as Prometheus
// metrics. Register the extension to track admission rates, deferral
// reasons, execution outcomes, and limit notifications without touching
// the hot paths.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xraph/sluice/ext"
	"github.com/xraph/sluice/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobAdmitted     = (*MetricsExtension)(nil)
	_ ext.JobDeferred     = (*MetricsExtension)(nil)
	_ ext.JobEnqueued     = (*MetricsExtension)(nil)
	_ ext.JobCompleted    = (*MetricsExtension)(nil)
	_ ext.JobFailed       = (*MetricsExtension)(nil)
	_ ext.JobRetrying     = (*MetricsExtension)(nil)
	_ ext.JobExpired      = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered = (*MetricsExtension)(nil)
	_ ext.LimitReached    = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle metrics. All counters are labeled
// with the job mode except the per-team notification counter, which would
// otherwise explode cardinality with team IDs; it is labeled by kind.
type MetricsExtension struct {
	admitted     *prometheus.CounterVec
	deferred     *prometheus.CounterVec
	enqueued     *prometheus.CounterVec
	completed    *prometheus.CounterVec
	failed       *prometheus.CounterVec
	retried      *prometheus.CounterVec
	expired      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	limitReached *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewMetricsExtension creates a MetricsExtension registered on the
// default Prometheus registerer.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWith(prometheus.DefaultRegisterer)
}

// NewMetricsExtensionWith creates a MetricsExtension registered on the
// given registerer. Tests pass a fresh prometheus.NewRegistry.
func NewMetricsExtensionWith(reg prometheus.Registerer) *MetricsExtension {
	factory := promauto.With(reg)
	return &MetricsExtension{
		admitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_jobs_admitted_total",
			Help: "Jobs sent to the worker queue by admission.",
		}, []string{"mode"}),
		deferred: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_jobs_deferred_total",
			Help: "Jobs parked in the deferred queue, by gate.",
		}, []string{"mode", "reason"}),
		enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_jobs_enqueued_total",
			Help: "Jobs placed on the worker queue, including drain promotions.",
		}, []string{"mode"}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_jobs_completed_total",
			Help: "Jobs that finished successfully.",
		}, []string{"mode"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_jobs_failed_total",
			Help: "Jobs that failed terminally.",
		}, []string{"mode"}),
		retried: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_jobs_retried_total",
			Help: "Retry attempts scheduled after failures.",
		}, []string{"mode"}),
		expired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_jobs_expired_total",
			Help: "Deferred jobs dropped because their hold deadline passed.",
		}, []string{"mode"}),
		deadLettered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_jobs_dead_lettered_total",
			Help: "Jobs recorded in the dead-letter store, by reason.",
		}, []string{"mode", "reason"}),
		limitReached: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sluice_limit_notifications_total",
			Help: "Concurrency-limit notifications that passed the gate.",
		}, []string{"kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sluice_job_duration_seconds",
			Help:    "Wall-clock execution time of completed jobs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"mode"}),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobAdmitted implements ext.JobAdmitted.
func (m *MetricsExtension) OnJobAdmitted(_ context.Context, j *job.Job) error {
	m.admitted.WithLabelValues(string(j.Mode)).Inc()
	return nil
}

// OnJobDeferred implements ext.JobDeferred.
func (m *MetricsExtension) OnJobDeferred(_ context.Context, j *job.Job, reason string) error {
	m.deferred.WithLabelValues(string(j.Mode), reason).Inc()
	return nil
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(_ context.Context, j *job.Job) error {
	m.enqueued.WithLabelValues(string(j.Mode)).Inc()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	m.completed.WithLabelValues(string(j.Mode)).Inc()
	m.duration.WithLabelValues(string(j.Mode)).Observe(elapsed.Seconds())
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(_ context.Context, j *job.Job, _ error) error {
	m.failed.WithLabelValues(string(j.Mode)).Inc()
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(_ context.Context, j *job.Job, _ int, _ time.Time) error {
	m.retried.WithLabelValues(string(j.Mode)).Inc()
	return nil
}

// OnJobExpired implements ext.JobExpired.
func (m *MetricsExtension) OnJobExpired(_ context.Context, j *job.Job) error {
	m.expired.WithLabelValues(string(j.Mode)).Inc()
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(_ context.Context, j *job.Job, reason string) error {
	m.deadLettered.WithLabelValues(string(j.Mode), reason).Inc()
	return nil
}

// OnLimitReached implements ext.LimitReached.
func (m *MetricsExtension) OnLimitReached(_ context.Context, _ string, kind string) error {
	m.limitReached.WithLabelValues(kind).Inc()
	return nil
}
