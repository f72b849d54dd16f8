package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/sluice/ext"
	"github.com/xraph/sluice/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Extension)(nil)
	_ ext.JobAdmitted     = (*Extension)(nil)
	_ ext.JobDeferred     = (*Extension)(nil)
	_ ext.JobEnqueued     = (*Extension)(nil)
	_ ext.JobStarted      = (*Extension)(nil)
	_ ext.JobCompleted    = (*Extension)(nil)
	_ ext.JobFailed       = (*Extension)(nil)
	_ ext.JobRetrying     = (*Extension)(nil)
	_ ext.JobExpired      = (*Extension)(nil)
	_ ext.JobDeadLettered = (*Extension)(nil)
	_ ext.LimitReached    = (*Extension)(nil)
)

// Recorder is the interface audit backends must implement. It is defined
// locally so this package does not depend on any concrete audit system;
// callers inject an adapter at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *Event) error
}

// Event is the audit record emitted for each lifecycle hook.
type Event struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges sluice lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the
// [Recorder]. Recorder failures are logged, never propagated, so a slow
// or broken audit backend cannot stall admission or execution.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided
// Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit" }

// ── Admission hooks ─────────────────────────────────

// OnJobAdmitted implements ext.JobAdmitted.
func (e *Extension) OnJobAdmitted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobAdmitted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryAdmission, nil,
		"team_id", j.TeamID,
		"mode", string(j.Mode),
		"queue", j.Queue,
	)
}

// OnJobDeferred implements ext.JobDeferred.
func (e *Extension) OnJobDeferred(ctx context.Context, j *job.Job, reason string) error {
	return e.record(ctx, ActionJobDeferred, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryAdmission, nil,
		"team_id", j.TeamID,
		"mode", string(j.Mode),
		"defer_reason", reason,
	)
}

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryAdmission, nil,
		"team_id", j.TeamID,
		"queue", j.Queue,
	)
}

// OnLimitReached implements ext.LimitReached.
func (e *Extension) OnLimitReached(ctx context.Context, teamID string, kind string) error {
	return e.record(ctx, ActionLimitReached, SeverityWarning, OutcomeSuccess,
		ResourceTeam, teamID, CategoryNotification, nil,
		"kind", kind,
	)
}

// ── Execution hooks ─────────────────────────────────

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryExecution, nil,
		"team_id", j.TeamID,
		"mode", string(j.Mode),
		"queue", j.Queue,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryExecution, nil,
		"team_id", j.TeamID,
		"mode", string(j.Mode),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryExecution, jobErr,
		"team_id", j.TeamID,
		"mode", string(j.Mode),
		"retry_count", j.RetryCount,
		"max_retries", j.MaxRetries,
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryExecution, nil,
		"team_id", j.TeamID,
		"attempt", attempt,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnJobExpired implements ext.JobExpired.
func (e *Extension) OnJobExpired(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobExpired, SeverityWarning, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryAdmission, nil,
		"team_id", j.TeamID,
		"mode", string(j.Mode),
	)
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (e *Extension) OnJobDeadLettered(ctx context.Context, j *job.Job, reason string) error {
	return e.record(ctx, ActionJobDeadLettered, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryExecution, nil,
		"team_id", j.TeamID,
		"dead_letter_reason", reason,
		"retry_count", j.RetryCount,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &Event{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
