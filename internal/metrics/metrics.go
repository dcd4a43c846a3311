// Package metrics holds the Prometheus collectors for discovery, the label
// cache and reconciliation. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	discoveryPasses   *prometheus.CounterVec
	discoveryDuration prometheus.Histogram
	strategyFailures  *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	reconcileCycles   *prometheus.CounterVec
	remotePushErrors  prometheus.Counter
	mergedContacts    prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration against the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		discoveryPasses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_discovery_passes_total",
			Help: "Discovery passes by winning strategy (none when every strategy came back empty).",
		}, []string{"strategy"}),
		discoveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "overlay_discovery_duration_seconds",
			Help:    "Wall time of a full discovery pass.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		strategyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_discovery_strategy_failures_total",
			Help: "Strategy errors and panics downgraded to empty results.",
		}, []string{"strategy"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_label_cache_lookups_total",
			Help: "Label cache lookups by outcome (hit, refresh, stale).",
		}, []string{"outcome"}),
		reconcileCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_reconcile_cycles_total",
			Help: "Reconciliation cycles by outcome (ok, remote_unavailable, dropped).",
		}, []string{"outcome"}),
		remotePushErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "overlay_reconcile_push_errors_total",
			Help: "Contacts that failed to push to the remote store.",
		}),
		mergedContacts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "overlay_reconcile_contacts",
			Help: "Contacts in the merged set after the last cycle.",
		}),
	}
}

func (m *Metrics) DiscoveryPass(strategy string, seconds float64) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "none"
	}
	m.discoveryPasses.WithLabelValues(strategy).Inc()
	m.discoveryDuration.Observe(seconds)
}

func (m *Metrics) StrategyFailure(strategy string) {
	if m == nil {
		return
	}
	m.strategyFailures.WithLabelValues(strategy).Inc()
}

func (m *Metrics) CacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReconcileCycle(outcome string, merged int) {
	if m == nil {
		return
	}
	m.reconcileCycles.WithLabelValues(outcome).Inc()
	if outcome != "dropped" {
		m.mergedContacts.Set(float64(merged))
	}
}

func (m *Metrics) RemotePushError() {
	if m == nil {
		return
	}
	m.remotePushErrors.Inc()
}
