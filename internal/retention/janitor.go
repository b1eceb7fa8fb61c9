// Package retention periodically removes old requests from the store.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/kre8/diagram-relay/internal/logging"
	"github.com/kre8/diagram-relay/internal/model"
)

// Purger deletes requests older than a number of days.
type Purger interface {
	Purge(ctx context.Context, days int) (model.PurgeResult, error)
}

const sweepTimeout = 30 * time.Second

// Janitor runs a purge on a fixed interval.
type Janitor struct {
	purger   Purger
	days     int
	interval time.Duration
	logger   *slog.Logger
}

// NewJanitor creates a janitor that keeps days worth of requests. A nil logger
// discards output.
func NewJanitor(purger Purger, days int, interval time.Duration, logger *slog.Logger) *Janitor {
	if days <= 0 {
		days = model.DefaultRetentionDays
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Janitor{
		purger:   purger,
		days:     days,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps once immediately and then every interval until ctx is done. A
// non-positive interval disables the janitor.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		j.logger.Info("retention sweeps disabled")
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		j.Sweep(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs a single purge. Failures are logged and retried next interval.
func (j *Janitor) Sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	result, err := j.purger.Purge(sweepCtx, j.days)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Warn("retention sweep failed", "error", err)
		}
		return
	}
	if result.Requests > 0 {
		j.logger.Debug("retention sweep finished", "requests", result.Requests, "responses", result.Responses)
	}
}
