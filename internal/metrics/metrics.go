// Package metrics exposes the simulator's own operational counters via
// prometheus/client_golang. These are metrics about the simulator (how
// many trace events, timer fires, transport drops occurred during a
// run) — not the modeled performance numbers themselves, which live in
// internal/registry's cost model.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rosdevs/pdevs-sim/internal/trace"
)

// Metrics bundles every counter/histogram a simulation run touches.
// Each field is a standalone collector rather than a single
// CounterVec so a caller can register only the ones it needs onto a
// custom registry (e.g. a test-local registry, to avoid global state
// leaking between table-driven test cases).
type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	TimerFiresTotal     prometheus.Counter
	TransportDropsTotal *prometheus.CounterVec
	QoSIncompatibleTotal prometheus.Counter
	TraceLogDepth       prometheus.Gauge
	PublishLatencyNS    prometheus.Histogram
}

// New creates a fresh Metrics bundle and registers every collector on
// reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rosdevs_trace_events_total",
			Help: "Total trace events emitted, by kind.",
		}, []string{"kind"}),
		TimerFiresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosdevs_timer_fires_total",
			Help: "Total timer callback firings across all nodes.",
		}),
		TransportDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rosdevs_transport_drops_total",
			Help: "Total modeled transport drops, by transport kind.",
		}, []string{"kind"}),
		QoSIncompatibleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosdevs_qos_incompatible_total",
			Help: "Total deliveries rejected by QoS gating.",
		}),
		TraceLogDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rosdevs_trace_log_depth",
			Help: "Number of records currently held in the trace log.",
		}),
		PublishLatencyNS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rosdevs_publish_latency_ns",
			Help:    "Modeled end-to-end publish-to-callback latency, in nanoseconds.",
			Buckets: prometheus.ExponentialBuckets(1_000, 4, 10),
		}),
	}
	reg.MustRegister(
		m.EventsTotal,
		m.TimerFiresTotal,
		m.TransportDropsTotal,
		m.QoSIncompatibleTotal,
		m.TraceLogDepth,
		m.PublishLatencyNS,
	)
	return m
}

// TraceSink adapts Metrics to trace.Sink (internal/trace) so every
// recorded trace event also increments EventsTotal and the
// kind-specific counters, without internal/trace needing to know
// Prometheus exists.
type TraceSink struct {
	m *Metrics
}

// NewTraceSink wraps m as a trace.Sink.
func NewTraceSink(m *Metrics) *TraceSink {
	return &TraceSink{m: m}
}

// Observe implements trace.Sink.
func (s *TraceSink) Observe(r trace.Record) {
	s.m.EventsTotal.WithLabelValues(r.Kind).Inc()
	s.m.TraceLogDepth.Inc()

	switch r.Kind {
	case "timer_callback":
		s.m.TimerFiresTotal.Inc()
	case "qos_incompatible":
		s.m.QoSIncompatibleTotal.Inc()
	case "transport_drop":
		kind := "unknown"
		for _, f := range r.Fields {
			if f.Key == "kind" {
				kind = f.Repr
				break
			}
		}
		s.m.TransportDropsTotal.WithLabelValues(kind).Inc()
	}
}
