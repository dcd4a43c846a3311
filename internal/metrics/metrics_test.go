package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.DiscoveryPass("api", 0.1)
	m.StrategyFailure("markup")
	m.CacheLookup("hit")
	m.ReconcileCycle("ok", 3)
	m.RemotePushError()
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.DiscoveryPass("module-runtime", 0.2)
	m.DiscoveryPass("", 0.1)
	m.ReconcileCycle("ok", 7)
	m.ReconcileCycle("dropped", 0)

	if got := testutil.ToFloat64(m.discoveryPasses.WithLabelValues("module-runtime")); got != 1 {
		t.Errorf("expected 1 module-runtime pass, got %v", got)
	}
	if got := testutil.ToFloat64(m.discoveryPasses.WithLabelValues("none")); got != 1 {
		t.Errorf("expected empty strategy to count as none, got %v", got)
	}
	if got := testutil.ToFloat64(m.mergedContacts); got != 7 {
		t.Errorf("dropped cycle must not reset merged gauge, got %v", got)
	}
}
