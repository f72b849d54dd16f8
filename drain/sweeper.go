package drain

import (
	"context"
	"fmt"
	"log/slog"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/sluice/ledger"
)

// DefaultSchedule is the sweep cadence when none is configured.
const DefaultSchedule = "@every 5s"

// scheduleParser accepts standard 5-field cron and descriptors like
// "@every 5s".
var scheduleParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSchedule sets the cron expression for sweep runs.
func WithSchedule(expr string) SweeperOption {
	return func(s *Sweeper) { s.schedule = expr }
}

// WithSweeperLogger sets the sweeper's logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = logger }
}

// Sweeper periodically drains every team with parked entries. It backs up
// the completion-driven drain callbacks: a team whose last active job
// crashed (and whose ledger entry merely expired) still gets its holding
// area serviced on the next sweep.
type Sweeper struct {
	drainer  *Drainer
	ledger   ledger.Store
	schedule string
	runner   *cronlib.Cron
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(drainer *Drainer, led ledger.Store, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		drainer:  drainer,
		ledger:   led,
		schedule: DefaultSchedule,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep schedule.
func (s *Sweeper) Start(_ context.Context) error {
	if s.runner != nil {
		return nil
	}
	runner := cronlib.New(cronlib.WithParser(scheduleParser))
	if _, err := runner.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("sluice/drain: invalid sweep schedule %q: %w", s.schedule, err)
	}
	runner.Start()
	s.runner = runner
	s.logger.Info("drain sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.runner == nil {
		return nil
	}
	done := s.runner.Stop()
	s.runner = nil
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("drain sweeper stopped")
	return nil
}

func (s *Sweeper) sweep() {
	ctx := context.Background()

	teams, err := s.ledger.DeferredTeams(ctx)
	if err != nil {
		s.logger.Error("list deferred teams failed", "error", err)
		return
	}
	for _, teamID := range teams {
		if err := s.drainer.DrainTeam(ctx, teamID); err != nil {
			s.logger.Error("drain team failed",
				"team_id", teamID,
				"error", err)
		}
	}
}
