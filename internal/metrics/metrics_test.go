package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.TrialStarted("created")
	m.TrialStarted("created")
	m.TrialStarted("existing")
	m.LicenseRedeemed("success")
	m.LicensesGenerated("pro_yearly", 3)
	m.BillingEvent("invoice.paid", "applied")
	m.Linked("already_linked")
	m.EventPublished("error")

	assert.InDelta(t, 2, testutil.ToFloat64(m.trials.WithLabelValues("created")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.trials.WithLabelValues("existing")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.redemptions.WithLabelValues("success")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.generated.WithLabelValues("pro_yearly")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.webhooks.WithLabelValues("invoice.paid", "applied")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.links.WithLabelValues("already_linked")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.events.WithLabelValues("error")), 0)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TrialStarted("created")
		m.LicenseRedeemed("success")
		m.LicensesGenerated("p", 1)
		m.BillingEvent("t", "o")
		m.Linked("ok")
		m.EventPublished("ok")
		m.ObserveRequest("GET", "/health", "200", 0.1)
	})
}
