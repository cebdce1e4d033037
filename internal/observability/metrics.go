// Package observability exposes Prometheus counters for the reconciliation
// engines. Counters are registered once on the default registry and served
// by the API's /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters the engines report into.
type Metrics struct {
	LinkOutcomes    *prometheus.CounterVec
	PaymentOutcomes *prometheus.CounterVec
	ErpFetches      *prometheus.CounterVec
}

// NewMetrics registers the counters on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry to
// avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LinkOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_link_outcomes_total",
			Help: "Auto-linking outcomes by marketplace and result.",
		}, []string{"marketplace", "outcome"}),
		PaymentOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_payment_outcomes_total",
			Help: "Payment import outcomes by marketplace and resolution rule.",
		}, []string{"marketplace", "rule"}),
		ErpFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recon_erp_fetches_total",
			Help: "On-demand ERP order fetches by result.",
		}, []string{"result"}),
	}
}

// ObserveLink records one auto-linking outcome. Nil-safe so engines can run
// without metrics wired.
func (m *Metrics) ObserveLink(marketplace, outcome string) {
	if m == nil {
		return
	}
	m.LinkOutcomes.WithLabelValues(marketplace, outcome).Inc()
}

// ObservePayment records one payment resolution rule application.
func (m *Metrics) ObservePayment(marketplace, rule string) {
	if m == nil {
		return
	}
	m.PaymentOutcomes.WithLabelValues(marketplace, rule).Inc()
}

// ObserveErpFetch records one on-demand ERP fetch result.
func (m *Metrics) ObserveErpFetch(result string) {
	if m == nil {
		return
	}
	m.ErpFetches.WithLabelValues(result).Inc()
}
