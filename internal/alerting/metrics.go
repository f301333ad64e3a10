package alerting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	SamplesEvaluated   prometheus.Counter
	SamplesRejected    prometheus.Counter
	RuleOutcomes       *prometheus.CounterVec
	AlertsPublished    *prometheus.CounterVec
	PublishFailures    *prometheus.CounterVec
	OracleFailures     prometheus.Counter
	OracleLatency      prometheus.Histogram
	EvaluationDuration prometheus.Histogram
	CacheEntries       *prometheus.GaugeVec
	CacheEvictions     *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg creates unregistered
// collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SamplesEvaluated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Name:      "samples_evaluated_total",
			Help:      "Position samples evaluated by the rule engine.",
		}),
		SamplesRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Name:      "samples_rejected_total",
			Help:      "Position samples rejected before evaluation.",
		}),
		RuleOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Name:      "rule_evaluations_total",
			Help:      "Rule evaluations by rule type and outcome.",
		}, []string{"rule_type", "outcome"}),
		AlertsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Name:      "alerts_published_total",
			Help:      "Alerts handed to the sinks, by alert type.",
		}, []string{"alert_type"}),
		PublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Name:      "publish_failures_total",
			Help:      "Alerts a sink failed to accept.",
		}, []string{"sink"}),
		OracleFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Name:      "oracle_failures_total",
			Help:      "Containment oracle calls that failed or timed out.",
		}),
		OracleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fleet_alerts",
			Name:      "oracle_duration_seconds",
			Help:      "Containment oracle call latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fleet_alerts",
			Name:      "evaluation_duration_seconds",
			Help:      "Time to evaluate one sample against all rules.",
			Buckets:   prometheus.DefBuckets,
		}),
		CacheEntries: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fleet_alerts",
			Name:      "cache_entries",
			Help:      "Entries held by the in-memory caches.",
		}, []string{"cache"}),
		CacheEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_alerts",
			Name:      "cache_evictions_total",
			Help:      "Entries removed by periodic cache maintenance.",
		}, []string{"cache"}),
	}
}
