// Package tenant resolves per-team concurrency ceilings. Production wires
// the Postgres-backed source under tenant/postgres; tests use the static
// source. A TTL cache wrapper keeps admission from hitting the database on
// every job.
package tenant

import (
	"context"

	"github.com/xraph/sluice/job"
)

// DefaultCeiling applies when no source knows the team.
const DefaultCeiling = 2

// Kind selects which of a team's ceilings applies to a job.
type Kind string

const (
	// KindCrawl is the ceiling for crawls and ad-hoc scrapes.
	KindCrawl Kind = "crawl"
	// KindExtract is the ceiling for extraction jobs.
	KindExtract Kind = "extract"
	// KindExtractAgentPreview is the ceiling for interactive agent
	// extraction previews.
	KindExtractAgentPreview Kind = "extract-agent-preview"
)

// KindFor maps a job to the ceiling kind that gates it.
func KindFor(j *job.Job) Kind {
	if j.IsExtract {
		return KindExtract
	}
	return KindCrawl
}

// Limits holds a team's per-kind concurrency ceilings. Zero values mean
// "not configured"; resolution falls back to DefaultCeiling. A negative
// value disables the kind: resolution yields zero and admission defers
// every job of that kind.
type Limits struct {
	Crawl               int `json:"crawl"`
	Extract             int `json:"extract"`
	ExtractAgentPreview int `json:"extract_agent_preview"`
}

// For returns the ceiling for the given kind, falling back to the crawl
// ceiling and then to DefaultCeiling.
func (l Limits) For(kind Kind) int {
	return l.Resolve(kind, DefaultCeiling)
}

// Resolve returns the ceiling for the given kind, falling back to the
// crawl ceiling and then to the caller's fallback. Hosts that tune
// SLUICE_DEFAULT_CEILING resolve through this path.
func (l Limits) Resolve(kind Kind, fallback int) int {
	var v int
	switch kind {
	case KindExtract:
		v = l.Extract
	case KindExtractAgentPreview:
		v = l.ExtractAgentPreview
	default:
		v = l.Crawl
	}
	if v == 0 {
		v = l.Crawl
	}
	if v == 0 {
		v = fallback
	}
	if v < 0 {
		v = 0
	}
	return v
}

// LimitSource resolves a team's concurrency ceilings.
//
// An unknown team yields the zero Limits and a nil error, which resolves
// to DefaultCeiling. Only infrastructure failures return errors, and the
// admission controller degrades those to the default ceiling.
type LimitSource interface {
	Limits(ctx context.Context, teamID string) (Limits, error)
}

// Static is a fixed in-memory limit source.
type Static struct {
	teams map[string]Limits
}

// NewStatic creates a static source over the given map. A nil map is valid
// and resolves every team to the default ceiling.
func NewStatic(teams map[string]Limits) *Static {
	return &Static{teams: teams}
}

// Limits implements LimitSource.
func (s *Static) Limits(_ context.Context, teamID string) (Limits, error) {
	if s.teams == nil {
		return Limits{}, nil
	}
	return s.teams[teamID], nil
}
