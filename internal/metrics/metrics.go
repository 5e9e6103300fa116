// Package metrics объявляет счётчики Prometheus для операций paywall.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "paywall"

// Metrics хранит счётчики. Методы безопасны для nil-получателя.
type Metrics struct {
	trials      *prometheus.CounterVec
	redemptions *prometheus.CounterVec
	generated   *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
	links       *prometheus.CounterVec
	events      *prometheus.CounterVec
	requests    *prometheus.HistogramVec
}

// New регистрирует счётчики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		trials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_total",
			Help:      "Trial start requests by result.",
		}, []string{"result"}),
		redemptions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_redemptions_total",
			Help:      "License key redemption attempts by result.",
		}, []string{"result"}),
		generated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_keys_generated_total",
			Help:      "Generated license keys by plan.",
		}, []string{"plan"}),
		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_events_total",
			Help:      "Billing webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		links: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_total",
			Help:      "Device to account link attempts by result.",
		}, []string{"result"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_events_published_total",
			Help:      "Entitlement change events by publish result.",
		}, []string{"result"}),
		requests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) TrialStarted(result string) {
	if m == nil {
		return
	}
	m.trials.WithLabelValues(result).Inc()
}

func (m *Metrics) LicenseRedeemed(result string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(result).Inc()
}

func (m *Metrics) LicensesGenerated(plan string, n int) {
	if m == nil {
		return
	}
	m.generated.WithLabelValues(plan).Add(float64(n))
}

func (m *Metrics) BillingEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) Linked(result string) {
	if m == nil {
		return
	}
	m.links.WithLabelValues(result).Inc()
}

func (m *Metrics) EventPublished(result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(result).Inc()
}

// ObserveRequest фиксирует длительность HTTP-запроса в секундах.
func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, status).Observe(seconds)
}
