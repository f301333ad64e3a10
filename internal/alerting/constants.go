// Package alerting evaluates position samples against fleet alert rules.
package alerting

import "time"

// Severity ranks how urgently an alert needs attention.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Transition is the containment edge reported by the geofence state cache.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionEntered
	TransitionExited
)

func (t Transition) String() string {
	switch t {
	case TransitionEntered:
		return "ENTERED"
	case TransitionExited:
		return "EXITED"
	default:
		return "NONE"
	}
}

// Outcome is where a single rule evaluation ended up.
type Outcome string

const (
	OutcomeNoEvent   Outcome = "no_event"  // condition not met
	OutcomeSkipped   Outcome = "skipped"   // missing input or invalid rule
	OutcomeGated     Outcome = "gated"     // suppressed by cooldown
	OutcomePublished Outcome = "published" // passed the gate
)

// Comparison operators for sustained-condition checks.
const (
	OperatorGreaterThan    = "greater_than"
	OperatorLessThan       = "less_than"
	OperatorGreaterOrEqual = "greater_or_equal"
	OperatorLessOrEqual    = "less_or_equal"
)

const (
	// DefaultSpeedLimit applies to SPEED_LIMIT rules without a threshold, km/h.
	DefaultSpeedLimit = 100.0
	// DefaultCooldown is the minimum time between alerts for one truck and rule.
	DefaultCooldown = 5 * time.Minute
	// DefaultGeofenceRetention is how long an unobserved containment state is kept.
	DefaultGeofenceRetention = 24 * time.Hour
	// DefaultIdleSpeed is the speed at or below which a truck counts as idle, km/h.
	DefaultIdleSpeed = 3.0
	// DefaultIdleDuration is how long a truck must idle before an IDLE alert.
	DefaultIdleDuration = 15 * time.Minute
	// DefaultOfflineAfter is the silence after which a truck counts as offline.
	DefaultOfflineAfter = 30 * time.Minute
	// DefaultOracleTimeout bounds each containment oracle call.
	DefaultOracleTimeout = 2 * time.Second
)
