package newsletter

import (
	"context"
	"log/slog"
	"time"
)

// Runner sends to every subscriber on a fixed interval.
type Runner struct {
	composer *Composer
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a Runner. An interval of zero disables it.
func NewRunner(c *Composer, interval time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{composer: c, interval: interval, logger: logger.With("component", "newsletter_runner")}
}

// Run blocks until ctx is cancelled. It returns nil immediately when
// disabled.
func (r *Runner) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.Info("newsletter runner disabled")
		return nil
	}

	r.logger.Info("newsletter runner started", "interval", r.interval, "persona", r.composer.DefaultPersona())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("newsletter runner stopped")
			return nil
		case <-ticker.C:
			// Per-user failures are already logged by SendAll.
			_, _ = r.composer.SendAll(ctx, r.composer.DefaultPersona())
		}
	}
}
