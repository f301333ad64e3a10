package alerting

import (
	"context"
	"encoding/json"
	"time"

	"github.com/truckwatch/fleet-alerts/internal/logger"
)

// Sink delivers an encoded alert to an outbound stream. Key is the truck id
// so the stream can keep per-truck order.
type Sink interface {
	Name() string
	Publish(ctx context.Context, key string, payload []byte) error
}

// Publisher hands alerts to the outbound streams. Publishing never reports
// failure to the caller; losses are logged and counted.
type Publisher interface {
	Publish(ctx context.Context, event *AlertEvent)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event *AlertEvent)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, event *AlertEvent) { f(ctx, event) }

// SinkDispatcher fans an alert out to every configured sink.
type SinkDispatcher struct {
	sinks   []Sink
	timeout time.Duration
	metrics *Metrics
	log     logger.Logger
}

// NewSinkDispatcher creates a dispatcher. timeout bounds each sink call.
func NewSinkDispatcher(sinks []Sink, timeout time.Duration, metrics *Metrics, log logger.Logger) *SinkDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SinkDispatcher{
		sinks:   sinks,
		timeout: timeout,
		metrics: metrics,
		log:     log,
	}
}

// Publish implements Publisher.
func (d *SinkDispatcher) Publish(ctx context.Context, event *AlertEvent) {
	if err := event.Validate(); err != nil {
		d.log.Error("refusing to publish malformed alert",
			logger.String("rule_id", event.RuleID),
			logger.Error(err))
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		d.log.Error("failed to encode alert",
			logger.String("alert_id", event.ID),
			logger.Error(err))
		return
	}

	for _, sink := range d.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Publish(sinkCtx, event.TruckID, payload)
		cancel()
		if err != nil {
			d.metrics.PublishFailures.WithLabelValues(sink.Name()).Inc()
			d.log.Error("failed to publish alert",
				logger.String("sink", sink.Name()),
				logger.String("alert_id", event.ID),
				logger.String("truck_id", event.TruckID),
				logger.String("rule_id", event.RuleID),
				logger.Error(err))
		}
	}
}
