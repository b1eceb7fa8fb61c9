package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RequestsCreated.Inc()
	m.WatcherOutcomes.WithLabelValues(OutcomeDelivered).Inc()
	m.WatcherOutcomes.WithLabelValues(OutcomeTimedOut).Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WatcherOutcomes.WithLabelValues(OutcomeTimedOut)))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["relay_requests_created_total"])
	assert.True(t, names["relay_watcher_outcomes_total"])
}

func TestNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
