// Package metrics implements the metrics/reporting surface: rolling
// counters for opportunities, drop reasons, PnL, registry tier-hit
// counts and submitter stats, exposed as Prometheus gauges/counters
// over an HTTP /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every counter/gauge this engine exports. It is a
// thin wrapper so callers don't need to hold onto individual
// prometheus.Collector handles.
type Registry struct {
	reg *prometheus.Registry

	OpportunitiesDetected prometheus.Counter
	OpportunitiesExecuted prometheus.Counter
	OpportunitiesFailed   prometheus.Counter
	DropReasons           *prometheus.CounterVec
	CumulativePnL         prometheus.Gauge
	RegistryTierHits      *prometheus.CounterVec
	SubmitterQueueDepth   prometheus.Gauge
	SubmitterQueueDrops   prometheus.Counter
	RPCCircuitTripped     prometheus.Gauge
}

// New constructs and registers every metric on a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		OpportunitiesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbengine_opportunities_detected_total",
			Help: "Total opportunities passing the detector's acceptance gate.",
		}),
		OpportunitiesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbengine_opportunities_executed_total",
			Help: "Total opportunities that reached bundle submission.",
		}),
		OpportunitiesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbengine_opportunities_failed_total",
			Help: "Total opportunities dropped after detection (any reason).",
		}),
		DropReasons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbengine_opportunity_drops_total",
			Help: "Opportunity drops broken down by reason.",
		}, []string{"reason"}),
		CumulativePnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbengine_cumulative_pnl_minor",
			Help: "Cumulative realized PnL in minor units.",
		}),
		RegistryTierHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbengine_registry_tier_hits_total",
			Help: "Pool registry resolution hits broken down by tier.",
		}, []string{"tier"}),
		SubmitterQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbengine_submitter_queue_depth",
			Help: "Current depth of the bundle submitter queue.",
		}),
		SubmitterQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbengine_submitter_queue_full_drops_total",
			Help: "Bundles dropped because the submitter queue was full.",
		}),
		RPCCircuitTripped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbengine_rpc_circuit_tripped",
			Help: "1 if the RPC client's circuit breaker is currently tripped, else 0.",
		}),
	}

	reg.MustRegister(
		m.OpportunitiesDetected,
		m.OpportunitiesExecuted,
		m.OpportunitiesFailed,
		m.DropReasons,
		m.CumulativePnL,
		m.RegistryTierHits,
		m.SubmitterQueueDepth,
		m.SubmitterQueueDrops,
		m.RPCCircuitTripped,
	)
	return m
}

// RecordDrop increments both the reason-tagged counter and the overall
// failed-opportunities counter.
func (m *Registry) RecordDrop(reason string) {
	m.DropReasons.WithLabelValues(reason).Inc()
	m.OpportunitiesFailed.Inc()
}

// Handler returns the HTTP handler to mount at /metrics.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
