package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the stream layer's Prometheus collectors.
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	HandlerErrors    prometheus.Counter
	InFlight         prometheus.Gauge
	CommitFailures   prometheus.Counter
	SinkMessages     *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Subsystem: "stream",
			Name:      "messages_received_total",
			Help:      "Position messages read from a source.",
		}, []string{"source"}),
		MessagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Subsystem: "stream",
			Name:      "messages_dropped_total",
			Help:      "Position messages dropped before evaluation, by reason.",
		}, []string{"reason"}),
		HandlerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Subsystem: "stream",
			Name:      "handler_errors_total",
			Help:      "Messages the handler rejected.",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "fleet_alerts",
			Subsystem: "stream",
			Name:      "messages_in_flight",
			Help:      "Messages queued or being evaluated.",
		}),
		CommitFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Subsystem: "stream",
			Name:      "commit_failures_total",
			Help:      "Offset commits that failed.",
		}),
		SinkMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Subsystem: "stream",
			Name:      "sink_messages_total",
			Help:      "Alert messages written to a sink, by result.",
		}, []string{"sink", "result"}),
	}
}
