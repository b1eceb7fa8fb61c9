// Package metrics defines the Prometheus collectors exported by the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Watcher outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeTimedOut  = "timed_out"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics groups the relay's collectors.
type Metrics struct {
	RequestsCreated    prometheus.Counter
	ProtocolErrors     prometheus.Counter
	WatchersActive     prometheus.Gauge
	WatcherOutcomes    *prometheus.CounterVec
	FulfillmentSeconds prometheus.Histogram
	SessionsConnected  prometheus.Gauge
	DeliveriesDropped  prometheus.Counter
	PurgedRequests     prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_requests_created_total",
			Help: "Diagram requests persisted from live sessions.",
		}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_protocol_errors_total",
			Help: "Inbound session messages rejected before persistence.",
		}),
		WatchersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_watchers_active",
			Help: "Watchers currently polling for a response.",
		}),
		WatcherOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_watcher_outcomes_total",
			Help: "Watchers finished, by outcome.",
		}, []string{"outcome"}),
		FulfillmentSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_fulfillment_seconds",
			Help:    "Time from watch start to response detection.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		SessionsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_sessions_connected",
			Help: "Live websocket sessions.",
		}),
		DeliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_deliveries_dropped_total",
			Help: "Outbound messages dropped because the session was gone.",
		}),
		PurgedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_purged_requests_total",
			Help: "Requests removed by retention purges.",
		}),
	}

	reg.MustRegister(
		m.RequestsCreated,
		m.ProtocolErrors,
		m.WatchersActive,
		m.WatcherOutcomes,
		m.FulfillmentSeconds,
		m.SessionsConnected,
		m.DeliveriesDropped,
		m.PurgedRequests,
	)

	return m
}

// NewUnregistered returns collectors attached to a private registry, for tests
// and tools that do not expose /metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
