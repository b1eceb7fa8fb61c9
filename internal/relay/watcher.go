package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/kre8/diagram-relay/internal/metrics"
	"github.com/kre8/diagram-relay/internal/ws"
)

// startWatcher runs a watcher for one request on its own goroutine. The
// watcher owns the capacity slot taken in handleGenerate.
func (e *Engine) startWatcher(client *ws.Client, id int64) {
	wake := e.addWaker(id)
	e.metrics.WatchersActive.Inc()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.removeWaker(id, wake)
		defer e.metrics.WatchersActive.Dec()
		defer e.releaseSlot()

		start := time.Now()
		outcome := e.watch(client, id, wake)
		e.metrics.WatcherOutcomes.WithLabelValues(outcome).Inc()
		if outcome == metrics.OutcomeDelivered {
			e.metrics.FulfillmentSeconds.Observe(time.Since(start).Seconds())
		}
	}()
}

// watch polls for the request's latest response until one exists, the
// deadline passes, or the engine is closed. It delivers at most one message.
func (e *Engine) watch(client *ws.Client, id int64, wake <-chan struct{}) string {
	ctx, cancel := context.WithTimeout(e.ctx, e.config.Timeout)
	defer cancel()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	logger := e.logger.With("request", id, "client", client.ID())

	for {
		resp, err := e.store.GetLatestResponse(ctx, id)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error("failed to read response", "error", err)
			e.deliverer.Deliver(client, ws.NewErrorMessage(
				fmt.Sprintf("Failed to read response for request #%d: %v", id, err)))
			return metrics.OutcomeFailed
		case resp != nil:
			logger.Info("response delivered", "response", resp.ID)
			e.deliverer.Deliver(client, ws.NewDiagramMessage(id, resp.DiagramCode))
			return metrics.OutcomeDelivered
		}

		select {
		case <-ticker.C:
		case <-wake:
		case <-ctx.Done():
			if e.ctx.Err() != nil {
				logger.Debug("watcher cancelled")
				return metrics.OutcomeCancelled
			}
			logger.Warn("request timed out", "timeout", e.config.Timeout)
			e.deliverer.Deliver(client, ws.NewErrorMessage(
				fmt.Sprintf("Timed out waiting for a response to request #%d after %s", id, e.config.Timeout)))
			return metrics.OutcomeTimedOut
		}
	}
}
