package audit

// Audit event actions. Each constant corresponds to one ext lifecycle
// hook and becomes the Action field of the audit event.
const (
	ActionJobAdmitted     = "job.admitted"
	ActionJobDeferred     = "job.deferred"
	ActionJobEnqueued     = "job.enqueued"
	ActionJobStarted      = "job.started"
	ActionJobCompleted    = "job.completed"
	ActionJobFailed       = "job.failed"
	ActionJobRetrying     = "job.retrying"
	ActionJobExpired      = "job.expired"
	ActionJobDeadLettered = "job.dead_lettered"
	ActionLimitReached    = "limit.reached"
)

// Audit event categories group related actions.
const (
	CategoryAdmission    = "sluice.admission"
	CategoryExecution    = "sluice.execution"
	CategoryNotification = "sluice.notification"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob  = "job"
	ResourceTeam = "team"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobAdmitted,
		ActionJobDeferred,
		ActionJobEnqueued,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobFailed,
		ActionJobRetrying,
		ActionJobExpired,
		ActionJobDeadLettered,
		ActionLimitReached,
	}
}
