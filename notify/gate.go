package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Emitter emits the LimitReached lifecycle hook. ext.Registry satisfies
// this interface; the indirection keeps notify below ext in the import
// graph.
type Emitter interface {
	EmitLimitReached(ctx context.Context, teamID string, kind string)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithResendInterval sets the minimum gap between two notifications of
// the same kind to the same team.
func WithResendInterval(d time.Duration) GateOption {
	return func(g *Gate) { g.resendInterval = d }
}

// WithEmitter sets the lifecycle hook emitter.
func WithEmitter(e Emitter) GateOption {
	return func(g *Gate) { g.emitter = e }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// Gate decides whether a saturation notification may be sent and hands it
// to the notifier on a background goroutine.
type Gate struct {
	store          Store
	notifier       Notifier
	emitter        Emitter
	resendInterval time.Duration
	logger         *slog.Logger

	// wg tracks in-flight deliveries so Close can drain them.
	wg sync.WaitGroup
}

// NewGate creates a notification gate.
func NewGate(store Store, notifier Notifier, opts ...GateOption) *Gate {
	g := &Gate{
		store:          store,
		notifier:       notifier,
		resendInterval: 15 * 24 * time.Hour,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaybeNotify sends a notification of the given kind to the team unless
// one was sent within the resend interval. Delivery happens
// asynchronously; the only errors surfaced are suppression-store failures,
// and even those are logged rather than returned.
//
// Callers enforce the crawl/batch suppression rule: only ad-hoc
// saturation reaches this method.
func (g *Gate) MaybeNotify(ctx context.Context, teamID string, kind Kind) {
	now := time.Now().UTC()

	last, err := g.store.LastNotified(ctx, teamID, kind)
	if err != nil {
		g.logger.Warn("notification suppression lookup failed",
			slog.String("team_id", teamID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return
	}
	if !last.IsZero() && now.Sub(last) < g.resendInterval {
		return
	}

	if err := g.store.RecordNotified(ctx, teamID, kind, now); err != nil {
		g.logger.Warn("notification suppression record failed",
			slog.String("team_id", teamID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return
	}

	n := Notification{TeamID: teamID, Kind: kind, SentAt: now}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		// Detached from the caller's context: admission must not be able
		// to cancel delivery mid-flight.
		if sendErr := g.notifier.Send(context.WithoutCancel(ctx), n); sendErr != nil {
			g.logger.Warn("notification delivery failed",
				slog.String("team_id", teamID),
				slog.String("kind", string(kind)),
				slog.String("error", sendErr.Error()),
			)
		}
	}()

	if g.emitter != nil {
		g.emitter.EmitLimitReached(ctx, teamID, string(kind))
	}
}

// Close waits for in-flight deliveries to finish.
func (g *Gate) Close() {
	g.wg.Wait()
}
