package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exports event counts as Prometheus metrics, labeled by event
// type and agent name. It records no event content, only counts, so it is
// safe to run alongside a content-bearing sink via MultiSink.
type PrometheusSink struct {
	events *prometheus.CounterVec
}

// NewPrometheusSink registers the agentloop event counter with the given
// registerer (prometheus.DefaultRegisterer if nil) and returns the sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentloop",
		Name:      "events_total",
		Help:      "Lifecycle events emitted by the orchestration loop.",
	}, []string{"type", "agent"})
	reg.MustRegister(events)
	return &PrometheusSink{events: events}
}

// Record implements Sink.
func (s *PrometheusSink) Record(ev Event) {
	s.events.WithLabelValues(string(ev.Type), ev.AgentName).Inc()
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Record(ev)
		}
	}
}
