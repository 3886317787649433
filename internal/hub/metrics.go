package hub

import (
	"github.com/prometheus/client_golang/prometheus"

	"cherryvm/vmhub/pkg/monitoring"
)

// Metrics holds the Prometheus metrics the hub exposes, built through the
// shared MetricsCollector so they share the service's naming prefix.
type Metrics struct {
	Sessions         *prometheus.GaugeVec
	BroadcastPasses  *prometheus.CounterVec
	EventsDispatched *prometheus.CounterVec
}

func NewMetrics(mc *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		Sessions:         mc.NewGauge("hub_sessions", "Live sessions per scope", []string{"scope"}),
		BroadcastPasses:  mc.NewCounter("hub_broadcast_passes_total", "Completed broadcast passes", []string{"scope", "kind"}),
		EventsDispatched: mc.NewCounter("hub_events_dispatched_total", "Lifecycle events dispatched to sessions", []string{"scope", "event"}),
	}
}
