package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/sluice/job"
)

// Timeout returns middleware that enforces a per-scrape execution deadline.
// Jobs that carry an explicit Timeout keep it; everything else gets the
// fallback, which is typically the engine's scrape timeout. A resolved
// timeout of zero leaves the context untouched, so a scrape against a slow
// but wanted site can opt out entirely.
//
// When the deadline fires the handler's context is cancelled and the
// executor records the run as failed with context.DeadlineExceeded, which
// makes it eligible for retry like any other transient fetch error.
func Timeout(logger *slog.Logger, fallback time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		d := j.EffectiveTimeout(fallback)
		if d <= 0 {
			return next(ctx)
		}
		logger.Debug("scrape deadline set",
			slog.String("job_id", j.ID.String()),
			slog.Duration("timeout", d),
		)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
