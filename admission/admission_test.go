package admission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/sluice"
	"github.com/xraph/sluice/crawl"
	"github.com/xraph/sluice/id"
	"github.com/xraph/sluice/job"
	"github.com/xraph/sluice/ledger"
	"github.com/xraph/sluice/store/memory"
	"github.com/xraph/sluice/tenant"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newJob(team string, opts ...job.Option) *job.Job {
	return job.New(team, job.Payload{URL: "https://example.com"}, opts...)
}

func controller(t *testing.T, limits map[string]tenant.Limits) (*Controller, *memory.Store) {
	t.Helper()
	store := memory.New()
	ctrl := NewController(store, store, tenant.NewStatic(limits), WithLogger(quietLogger()))
	return ctrl, store
}

func fillActive(t *testing.T, store *memory.Store, team string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if err := store.PushActive(ctx, team, id.NewJobID(), time.Minute); err != nil {
			t.Fatalf("PushActive: %v", err)
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Single-job evaluation
// ─────────────────────────────────────────────────────────────

func TestEvaluateAdmitsUnderCeiling(t *testing.T) {
	ctrl, store := controller(t, nil)
	ctx := context.Background()

	fillActive(t, store, "team-a", 1)

	v, err := ctrl.Evaluate(ctx, newJob("team-a"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != Admit {
		t.Errorf("verdict = %v, want admit", v)
	}
}

func TestEvaluateDefersAtCeiling(t *testing.T) {
	ctrl, store := controller(t, nil)
	ctx := context.Background()

	// Default ceiling is 2.
	fillActive(t, store, "team-a", 2)

	v, err := ctrl.Evaluate(ctx, newJob("team-a"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != DeferTenant {
		t.Errorf("verdict = %v, want defer_tenant", v)
	}
}

func TestEvaluateDirectDispatchSkipsLimits(t *testing.T) {
	ctrl, store := controller(t, nil)
	ctx := context.Background()

	fillActive(t, store, "team-a", 5)

	v, err := ctrl.Evaluate(ctx, newJob("team-a", job.WithDirectDispatch()))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != Admit {
		t.Errorf("verdict = %v, want admit", v)
	}
}

func TestEvaluateCrawlGate(t *testing.T) {
	ctrl, store := controller(t, map[string]tenant.Limits{
		"team-a": {Crawl: 10},
	})
	ctx := context.Background()

	if err := store.SaveCrawl(ctx, &crawl.Crawl{ID: "crawl-1", TeamID: "team-a", MaxConcurrency: 1}); err != nil {
		t.Fatalf("SaveCrawl: %v", err)
	}
	if err := store.PushCrawlActive(ctx, "crawl-1", id.NewJobID(), time.Minute); err != nil {
		t.Fatalf("PushCrawlActive: %v", err)
	}

	v, err := ctrl.Evaluate(ctx, newJob("team-a", job.WithCrawlID("crawl-1"), job.WithMode(job.ModeCrawl)))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != DeferCrawl {
		t.Errorf("verdict = %v, want defer_crawl", v)
	}
}

func TestEvaluateDelayImpliesCeilingOne(t *testing.T) {
	ctrl, store := controller(t, nil)
	ctx := context.Background()

	if err := store.SaveCrawl(ctx, &crawl.Crawl{ID: "crawl-1", TeamID: "team-a", Delay: 2 * time.Second}); err != nil {
		t.Fatalf("SaveCrawl: %v", err)
	}
	if err := store.PushCrawlActive(ctx, "crawl-1", id.NewJobID(), time.Minute); err != nil {
		t.Fatalf("PushCrawlActive: %v", err)
	}

	v, err := ctrl.Evaluate(ctx, newJob("team-a", job.WithCrawlID("crawl-1"), job.WithMode(job.ModeCrawl)))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != DeferCrawl {
		t.Errorf("verdict = %v, want defer_crawl", v)
	}
}

func TestEvaluateMissingCrawlIsUnbounded(t *testing.T) {
	ctrl, _ := controller(t, nil)
	ctx := context.Background()

	v, err := ctrl.Evaluate(ctx, newJob("team-a", job.WithCrawlID("nope"), job.WithMode(job.ModeCrawl)))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != Admit {
		t.Errorf("verdict = %v, want admit", v)
	}
}

func TestEvaluateZeroCeilingDefersEverything(t *testing.T) {
	ctrl, _ := controller(t, map[string]tenant.Limits{
		"team-a": {Crawl: -1},
	})
	ctx := context.Background()

	v, err := ctrl.Evaluate(ctx, newJob("team-a"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != DeferTenant {
		t.Errorf("verdict = %v, want defer_tenant", v)
	}
}

func TestEvaluateExtractUsesExtractCeiling(t *testing.T) {
	ctrl, store := controller(t, map[string]tenant.Limits{
		"team-a": {Crawl: 1, Extract: 5},
	})
	ctx := context.Background()

	fillActive(t, store, "team-a", 1)

	v, err := ctrl.Evaluate(ctx, newJob("team-a", job.WithExtract()))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != Admit {
		t.Errorf("extract verdict = %v, want admit", v)
	}

	v, err = ctrl.Evaluate(ctx, newJob("team-a"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != DeferTenant {
		t.Errorf("crawl verdict = %v, want defer_tenant", v)
	}
}

// ─────────────────────────────────────────────────────────────
// Degradation
// ─────────────────────────────────────────────────────────────

type failingLimits struct{}

func (failingLimits) Limits(context.Context, string) (tenant.Limits, error) {
	return tenant.Limits{}, errors.New("database is down")
}

func TestEvaluateLimitLookupFailureUsesDefault(t *testing.T) {
	store := memory.New()
	ctrl := NewController(store, store, failingLimits{}, WithLogger(quietLogger()))
	ctx := context.Background()

	fillActive(t, store, "team-a", tenant.DefaultCeiling)

	v, err := ctrl.Evaluate(ctx, newJob("team-a"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != DeferTenant {
		t.Errorf("verdict = %v, want defer_tenant at the default ceiling", v)
	}
}

type failingLedger struct {
	ledger.Store
}

func (failingLedger) CountActive(context.Context, string, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

func TestEvaluateLedgerFailureIsFatal(t *testing.T) {
	store := memory.New()
	ctrl := NewController(failingLedger{Store: store}, store, tenant.NewStatic(nil), WithLogger(quietLogger()))

	_, err := ctrl.Evaluate(context.Background(), newJob("team-a"))
	if !errors.Is(err, sluice.ErrLedgerUnavailable) {
		t.Fatalf("err = %v, want ErrLedgerUnavailable", err)
	}
}

// ─────────────────────────────────────────────────────────────
// Bulk evaluation
// ─────────────────────────────────────────────────────────────

func TestEvaluateBatchTenantSaturation(t *testing.T) {
	ctrl, _ := controller(t, nil)
	ctx := context.Background()

	jobs := make([]*job.Job, 5)
	for i := range jobs {
		jobs[i] = newJob("team-a")
	}

	plan, err := ctrl.EvaluateBatch(ctx, "team-a", jobs)
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	if len(plan.Admit) != 2 || len(plan.DeferTenant) != 3 || len(plan.DeferCrawl) != 0 {
		t.Fatalf("plan = %d/%d/%d, want 2 admitted, 3 tenant-deferred",
			len(plan.Admit), len(plan.DeferTenant), len(plan.DeferCrawl))
	}
	if !plan.Notify {
		t.Error("Notify = false, want true for a backlog above the ceiling")
	}
	// Input order wins regardless of priority.
	if plan.Admit[0] != jobs[0] || plan.Admit[1] != jobs[1] {
		t.Error("admitted jobs are not the first two in input order")
	}
}

func TestEvaluateBatchCrawlBackpressure(t *testing.T) {
	ctrl, store := controller(t, nil)
	ctx := context.Background()

	if err := store.SaveCrawl(ctx, &crawl.Crawl{ID: "crawl-1", TeamID: "team-a", MaxConcurrency: 1}); err != nil {
		t.Fatalf("SaveCrawl: %v", err)
	}

	jobs := make([]*job.Job, 4)
	for i := range jobs {
		jobs[i] = newJob("team-a", job.WithCrawlID("crawl-1"), job.WithMode(job.ModeCrawl))
	}

	plan, err := ctrl.EvaluateBatch(ctx, "team-a", jobs)
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	if len(plan.Admit) != 1 || len(plan.DeferCrawl) != 3 || len(plan.DeferTenant) != 0 {
		t.Fatalf("plan = %d/%d/%d, want 1 admitted, 3 crawl-deferred",
			len(plan.Admit), len(plan.DeferTenant), len(plan.DeferCrawl))
	}
	if plan.Notify {
		t.Error("Notify = true, want suppression for crawl submissions")
	}
}

func TestEvaluateBatchMixed(t *testing.T) {
	ctrl, store := controller(t, map[string]tenant.Limits{
		"team-a": {Crawl: 3},
	})
	ctx := context.Background()

	if err := store.SaveCrawl(ctx, &crawl.Crawl{ID: "crawl-c", TeamID: "team-a", MaxConcurrency: 1}); err != nil {
		t.Fatalf("SaveCrawl: %v", err)
	}

	var jobs []*job.Job
	for i := 0; i < 3; i++ {
		jobs = append(jobs, newJob("team-a", job.WithCrawlID("crawl-c"), job.WithMode(job.ModeCrawl)))
	}
	for i := 0; i < 3; i++ {
		jobs = append(jobs, newJob("team-a"))
	}

	plan, err := ctrl.EvaluateBatch(ctx, "team-a", jobs)
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	if len(plan.Admit) != 3 {
		t.Fatalf("admitted = %d, want 3", len(plan.Admit))
	}
	if plan.Admit[0] != jobs[0] || plan.Admit[1] != jobs[3] || plan.Admit[2] != jobs[4] {
		t.Error("admitted set should be the first crawl job plus the first two no-crawl jobs")
	}
	if len(plan.DeferCrawl) != 2 {
		t.Errorf("crawl-deferred = %d, want 2", len(plan.DeferCrawl))
	}
	if len(plan.DeferTenant) != 1 || plan.DeferTenant[0] != jobs[5] {
		t.Errorf("tenant-deferred = %d, want the last no-crawl job", len(plan.DeferTenant))
	}
	if plan.Notify {
		t.Error("Notify = true, want suppression when the batch touches a crawl")
	}
}

func TestEvaluateBatchGatesEachKindByItsOwnCeiling(t *testing.T) {
	ctrl, _ := controller(t, map[string]tenant.Limits{
		"team-a": {Crawl: 1, Extract: 3},
	})
	ctx := context.Background()

	// The low crawl ceiling must not gate the extraction jobs behind it.
	jobs := []*job.Job{
		newJob("team-a"),
		newJob("team-a", job.WithExtract()),
		newJob("team-a", job.WithExtract()),
	}
	plan, err := ctrl.EvaluateBatch(ctx, "team-a", jobs)
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	if len(plan.Admit) != 3 || len(plan.DeferTenant) != 0 {
		t.Fatalf("plan = %d admitted / %d deferred, want all 3 admitted",
			len(plan.Admit), len(plan.DeferTenant))
	}
	if plan.Ceiling != 3 {
		t.Errorf("plan ceiling = %d, want the highest kind ceiling 3", plan.Ceiling)
	}

	// And the high extract ceiling must not smuggle a scrape past the
	// crawl ceiling of 1: the admitted extract job fills the only slot
	// the scrape could have taken.
	jobs = []*job.Job{
		newJob("team-a", job.WithExtract()),
		newJob("team-a"),
	}
	plan, err = ctrl.EvaluateBatch(ctx, "team-a", jobs)
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	if len(plan.Admit) != 1 || !plan.Admit[0].IsExtract {
		t.Fatalf("admitted = %d, want only the extract job", len(plan.Admit))
	}
	if len(plan.DeferTenant) != 1 || plan.DeferTenant[0].IsExtract {
		t.Fatalf("tenant-deferred = %d, want only the scrape job", len(plan.DeferTenant))
	}
}

func TestEvaluateBatchDisabledKindDefersOnlyThatKind(t *testing.T) {
	ctrl, _ := controller(t, map[string]tenant.Limits{
		"team-a": {Crawl: -1, Extract: 2},
	})
	ctx := context.Background()

	plan, err := ctrl.EvaluateBatch(ctx, "team-a", []*job.Job{
		newJob("team-a", job.WithExtract()),
		newJob("team-a"),
	})
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	if len(plan.Admit) != 1 || !plan.Admit[0].IsExtract {
		t.Fatalf("admitted = %d, want only the extract job", len(plan.Admit))
	}
	if len(plan.DeferTenant) != 1 {
		t.Fatalf("tenant-deferred = %d, want the disabled-kind job", len(plan.DeferTenant))
	}
}

func TestWithDefaultCeilingRaisesUnknownTeams(t *testing.T) {
	store := memory.New()
	ctrl := NewController(store, store, tenant.NewStatic(nil),
		WithDefaultCeiling(3),
		WithLogger(quietLogger()))
	ctx := context.Background()

	fillActive(t, store, "team-a", 2)

	// A third slot exists under the raised default.
	v, err := ctrl.Evaluate(ctx, newJob("team-a"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != Admit {
		t.Errorf("verdict = %v, want admit under a default ceiling of 3", v)
	}

	jobs := make([]*job.Job, 4)
	for i := range jobs {
		jobs[i] = newJob("team-b")
	}
	plan, err := ctrl.EvaluateBatch(ctx, "team-b", jobs)
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	if len(plan.Admit) != 3 || len(plan.DeferTenant) != 1 {
		t.Fatalf("plan = %d/%d, want 3 admitted and 1 deferred",
			len(plan.Admit), len(plan.DeferTenant))
	}
}

func TestEvaluateBatchDirectDispatchBypasses(t *testing.T) {
	ctrl, store := controller(t, nil)
	ctx := context.Background()

	fillActive(t, store, "team-a", 2)

	plan, err := ctrl.EvaluateBatch(ctx, "team-a", []*job.Job{
		newJob("team-a", job.WithDirectDispatch()),
		newJob("team-a"),
	})
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	if len(plan.Admit) != 1 || !plan.Admit[0].DirectDispatch {
		t.Errorf("direct-dispatch job should be admitted past a saturated ceiling")
	}
	if len(plan.DeferTenant) != 1 {
		t.Errorf("tenant-deferred = %d, want 1", len(plan.DeferTenant))
	}
}

func TestEvaluateBatchLedgerRoundTrips(t *testing.T) {
	ctrl, store := controller(t, map[string]tenant.Limits{
		"team-a": {Crawl: 100},
	})
	ctx := context.Background()

	for _, c := range []string{"crawl-1", "crawl-2"} {
		if err := store.SaveCrawl(ctx, &crawl.Crawl{ID: c, TeamID: "team-a", MaxConcurrency: 5}); err != nil {
			t.Fatalf("SaveCrawl: %v", err)
		}
	}

	var jobs []*job.Job
	for i := 0; i < 40; i++ {
		jobs = append(jobs, newJob("team-a", job.WithCrawlID(fmt.Sprintf("crawl-%d", i%2+1)), job.WithMode(job.ModeCrawl)))
	}
	for i := 0; i < 20; i++ {
		jobs = append(jobs, newJob("team-a"))
	}

	store.ResetLedgerOps()
	if _, err := ctrl.EvaluateBatch(ctx, "team-a", jobs); err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}

	// One count per crawl bucket plus clean-expired and count-active.
	if got := store.LedgerOps(); got > 4 {
		t.Errorf("ledger ops = %d, want at most #crawl buckets + 2 = 4", got)
	}
}

func TestEvaluateBatchEmpty(t *testing.T) {
	ctrl, store := controller(t, nil)

	store.ResetLedgerOps()
	plan, err := ctrl.EvaluateBatch(context.Background(), "team-a", nil)
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	if len(plan.Admit)+len(plan.DeferTenant)+len(plan.DeferCrawl) != 0 {
		t.Error("empty input should produce an empty plan")
	}
	if store.LedgerOps() != 0 {
		t.Error("empty input should not touch the ledger")
	}
}
