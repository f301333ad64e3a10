package alerting

import (
	"context"

	"github.com/truckwatch/fleet-alerts/internal/telemetry"
)

// HandlePayload decodes a raw position message and evaluates it. Undecodable
// messages are counted and returned as errors; the caller decides whether to
// log or dead-letter them. Alerts are published as a side effect.
func (e *Engine) HandlePayload(ctx context.Context, payload []byte) error {
	sample, err := telemetry.Decode(payload)
	if err != nil {
		e.metrics.SamplesRejected.Inc()
		return err
	}
	e.Evaluate(ctx, sample)
	return nil
}
