package alerting

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
	"github.com/truckwatch/fleet-alerts/internal/logger"
	"github.com/truckwatch/fleet-alerts/internal/telemetry"
)

// Evaluate runs one sample through every enabled rule, publishes the alerts
// that pass the cooldown gate and returns them. Missing speed or coordinates
// only disable the rules that need them.
func (e *Engine) Evaluate(ctx context.Context, sample *telemetry.PositionSample) []AlertEvent {
	if sample == nil {
		return nil
	}
	if err := sample.Validate(); err != nil {
		e.metrics.SamplesRejected.Inc()
		e.log.Debug("rejected position sample", logger.Error(err))
		return nil
	}

	start := time.Now()
	defer func() {
		e.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()
	e.metrics.SamplesEvaluated.Inc()

	ev := newEvaluation(e, sample)
	e.presence.Seen(sample.TruckID, ev.latPtr(), ev.lonPtr())
	if ev.hasSpeed {
		e.motion.Record(sample.TruckID, ev.speed, sample.Timestamp)
	}

	rules := e.snapshot()
	var events []AlertEvent
	for i := range rules {
		rule := &rules[i]
		if rule.Type == entities.RuleTypeOffline {
			// Driven by the presence monitor, not by samples.
			continue
		}
		outcome, event := ev.evaluateRule(ctx, rule)
		e.metrics.RuleOutcomes.WithLabelValues(string(rule.Type), string(outcome)).Inc()
		if event != nil {
			events = append(events, *event)
		}
	}
	return events
}

func (e *Engine) snapshot() []entities.AlertRule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	return e.rules
}

type geofenceResult struct {
	transition Transition
	ok         bool
}

// evaluation holds per-sample lookups so that each geofence is resolved and
// fed to the state cache once, however many rules reference it.
type evaluation struct {
	engine *Engine
	sample *telemetry.PositionSample

	lat, lon  float64
	hasCoords bool
	speed     float64
	hasSpeed  bool

	geofences map[string]geofenceResult

	groups       []string
	groupsErr    error
	groupsLoaded bool
}

func newEvaluation(e *Engine, sample *telemetry.PositionSample) *evaluation {
	ev := &evaluation{engine: e, sample: sample}
	ev.lat, ev.lon, ev.hasCoords = sample.Coordinates()
	ev.speed, ev.hasSpeed = sample.SpeedKmh()
	return ev
}

func (ev *evaluation) latPtr() *float64 {
	if !ev.hasCoords {
		return nil
	}
	return &ev.lat
}

func (ev *evaluation) lonPtr() *float64 {
	if !ev.hasCoords {
		return nil
	}
	return &ev.lon
}

func (ev *evaluation) speedPtr() *float64 {
	if !ev.hasSpeed {
		return nil
	}
	return &ev.speed
}

func (ev *evaluation) evaluateRule(ctx context.Context, rule *entities.AlertRule) (Outcome, *AlertEvent) {
	e := ev.engine
	truckID := ev.sample.TruckID

	if outcome, applies := ev.inScope(ctx, rule); !applies {
		return outcome, nil
	}

	in := alertInput{
		truckID:     truckID,
		latitude:    ev.latPtr(),
		longitude:   ev.lonPtr(),
		speed:       ev.speedPtr(),
		triggeredAt: ev.sample.Timestamp,
		sampleID:    ev.sample.SampleID,
	}

	switch rule.Type {
	case entities.RuleTypeSpeedLimit:
		if !ev.hasSpeed {
			return OutcomeSkipped, nil
		}
		limit := thresholdOr(rule, e.cfg.DefaultSpeedLimit)
		if ev.speed <= limit {
			return OutcomeNoEvent, nil
		}
		in.message = fmt.Sprintf("Truck %s is speeding: %.1f km/h (limit %.1f km/h)", truckID, ev.speed, limit)
		return e.fire(ctx, rule, &in)

	case entities.RuleTypeGeofenceEnter, entities.RuleTypeGeofenceExit:
		if !ev.hasCoords || rule.GeofenceID == nil || *rule.GeofenceID == "" {
			return OutcomeSkipped, nil
		}
		geofenceID := *rule.GeofenceID
		transition, ok := ev.transition(ctx, geofenceID)
		if !ok {
			return OutcomeSkipped, nil
		}
		want, verb := TransitionEntered, "entered"
		if rule.Type == entities.RuleTypeGeofenceExit {
			want, verb = TransitionExited, "left"
		}
		if transition != want {
			return OutcomeNoEvent, nil
		}
		in.geofenceID = geofenceID
		in.message = fmt.Sprintf("Truck %s %s geofence %s", truckID, verb, geofenceID)
		return e.fire(ctx, rule, &in)

	case entities.RuleTypeIdle:
		if !ev.hasSpeed {
			return OutcomeSkipped, nil
		}
		idleSpeed := thresholdOr(rule, e.cfg.IdleSpeed)
		if ev.speed > idleSpeed ||
			!e.motion.IsSustained(truckID, OperatorLessOrEqual, idleSpeed, e.cfg.IdleDuration, ev.sample.Timestamp) {
			return OutcomeNoEvent, nil
		}
		in.message = fmt.Sprintf("Truck %s has been idle for %s (at or below %.1f km/h)", truckID, e.cfg.IdleDuration, idleSpeed)
		return e.fire(ctx, rule, &in)

	default:
		return OutcomeSkipped, nil
	}
}

// inScope reports whether a group-scoped rule applies to the sample's truck.
// Directory failures skip scoped rules for this sample only.
func (ev *evaluation) inScope(ctx context.Context, rule *entities.AlertRule) (Outcome, bool) {
	if rule.TruckGroupID == nil || *rule.TruckGroupID == "" {
		return "", true
	}
	if !ev.groupsLoaded {
		ev.groupsLoaded = true
		ev.groups, ev.groupsErr = ev.engine.directory.TruckGroups(ctx, ev.sample.TruckID)
		if ev.groupsErr != nil {
			ev.engine.log.Warn("failed to resolve truck groups, skipping scoped rules",
				logger.String("truck_id", ev.sample.TruckID),
				logger.Error(ev.groupsErr))
		}
	}
	if ev.groupsErr != nil {
		return OutcomeSkipped, false
	}
	if !slices.Contains(ev.groups, *rule.TruckGroupID) {
		return OutcomeNoEvent, false
	}
	return "", true
}

// transition asks the oracle about geofenceID once per sample and feeds the
// answer to the state cache. ok is false when the oracle failed.
func (ev *evaluation) transition(ctx context.Context, geofenceID string) (Transition, bool) {
	if r, seen := ev.geofences[geofenceID]; seen {
		return r.transition, r.ok
	}
	if ev.geofences == nil {
		ev.geofences = make(map[string]geofenceResult)
	}

	e := ev.engine
	inside, err := e.isInside(ctx, geofenceID, ev.lat, ev.lon)
	if err != nil {
		e.metrics.OracleFailures.Inc()
		e.log.Warn("containment check failed, skipping geofence for this sample",
			logger.String("truck_id", ev.sample.TruckID),
			logger.String("geofence_id", geofenceID),
			logger.Error(err))
		ev.geofences[geofenceID] = geofenceResult{}
		return TransitionNone, false
	}

	t := e.geofences.CheckStateChange(ev.sample.TruckID, geofenceID, inside)
	ev.geofences[geofenceID] = geofenceResult{transition: t, ok: true}
	if t != TransitionNone {
		e.log.Debug("geofence transition",
			logger.String("truck_id", ev.sample.TruckID),
			logger.String("geofence_id", geofenceID),
			logger.String("transition", t.String()))
	}
	return t, true
}

func (e *Engine) isInside(ctx context.Context, geofenceID string, lat, lon float64) (bool, error) {
	oracleCtx, cancel := context.WithTimeout(ctx, e.cfg.OracleTimeout)
	defer cancel()

	start := time.Now()
	inside, err := e.oracle.IsInside(oracleCtx, geofenceID, lat, lon)
	e.metrics.OracleLatency.Observe(time.Since(start).Seconds())
	return inside, err
}

func thresholdOr(rule *entities.AlertRule, fallback float64) float64 {
	if rule.Threshold != nil {
		return *rule.Threshold
	}
	return fallback
}

// alertInput carries the sample-specific parts of an alert.
type alertInput struct {
	truckID     string
	message     string
	latitude    *float64
	longitude   *float64
	speed       *float64
	geofenceID  string
	triggeredAt time.Time
	sampleID    string
}

// fire passes (truck, rule) through the cooldown gate and, when allowed,
// builds and publishes the alert.
func (e *Engine) fire(ctx context.Context, rule *entities.AlertRule, in *alertInput) (Outcome, *AlertEvent) {
	if !e.gate.CheckAndRecord(ctx, in.truckID, rule.ID) {
		e.log.Debug("alert suppressed by cooldown",
			logger.String("truck_id", in.truckID),
			logger.String("rule_id", rule.ID))
		return OutcomeGated, nil
	}

	event := &AlertEvent{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		TruckID:     in.truckID,
		AlertType:   rule.Type,
		Severity:    severityFor(rule.Type),
		Message:     in.message,
		Latitude:    in.latitude,
		Longitude:   in.longitude,
		Speed:       in.speed,
		GeofenceID:  in.geofenceID,
		TriggeredAt: in.triggeredAt,
		Recipients:  e.directory.Recipients(ctx, rule),
		Channels:    rule.ChannelNames(),
		SampleID:    in.sampleID,
	}

	e.publisher.Publish(ctx, event)
	e.metrics.AlertsPublished.WithLabelValues(string(rule.Type)).Inc()
	e.log.Info("alert published",
		logger.String("alert_id", event.ID),
		logger.String("rule_id", rule.ID),
		logger.String("truck_id", in.truckID),
		logger.String("alert_type", string(rule.Type)),
		logger.String("severity", string(event.Severity)))
	return OutcomePublished, event
}

// CheckOffline fires OFFLINE rules for trucks that have been silent longer
// than the rule threshold (minutes) or the configured default. Each truck
// alerts once per silence; reporting again re-arms it.
func (e *Engine) CheckOffline(ctx context.Context) []AlertEvent {
	var events []AlertEvent
	rules := e.snapshot()
	for i := range rules {
		rule := &rules[i]
		if rule.Type != entities.RuleTypeOffline {
			continue
		}

		after := e.cfg.OfflineAfter
		if rule.Threshold != nil {
			after = time.Duration(*rule.Threshold * float64(time.Minute))
		}

		for _, truck := range e.presence.Overdue(rule.ID, after) {
			outcome, event := e.fireOffline(ctx, rule, &truck, after)
			e.metrics.RuleOutcomes.WithLabelValues(string(rule.Type), string(outcome)).Inc()
			if event != nil {
				events = append(events, *event)
			}
		}
	}
	return events
}

func (e *Engine) fireOffline(ctx context.Context, rule *entities.AlertRule, truck *OfflineTruck, after time.Duration) (Outcome, *AlertEvent) {
	if rule.TruckGroupID != nil && *rule.TruckGroupID != "" {
		groups, err := e.directory.TruckGroups(ctx, truck.TruckID)
		if err != nil {
			e.presence.Rearm(truck.TruckID, rule.ID)
			e.log.Warn("failed to resolve truck groups for offline check",
				logger.String("truck_id", truck.TruckID),
				logger.Error(err))
			return OutcomeSkipped, nil
		}
		if !slices.Contains(groups, *rule.TruckGroupID) {
			return OutcomeNoEvent, nil
		}
	}

	now := e.now()
	silence := now.Sub(truck.SeenAt).Round(time.Second)
	return e.fire(ctx, rule, &alertInput{
		truckID:     truck.TruckID,
		message:     fmt.Sprintf("Truck %s has not reported for %s (threshold %s)", truck.TruckID, silence, after),
		latitude:    truck.Latitude,
		longitude:   truck.Longitude,
		triggeredAt: now,
	})
}
