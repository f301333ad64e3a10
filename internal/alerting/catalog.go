package alerting

import "github.com/truckwatch/fleet-alerts/internal/datastore/entities"

// RuleTypeInfo describes a rule type for API clients building rule editors.
type RuleTypeInfo struct {
	Type             entities.RuleType `json:"type"`
	Label            string            `json:"label"`
	Severity         Severity          `json:"severity"`
	ThresholdUnit    string            `json:"threshold_unit,omitempty"`
	DefaultThreshold *float64          `json:"default_threshold,omitempty"`
	RequiresGeofence bool              `json:"requires_geofence"`
}

// RuleTypeCatalog lists every supported rule type with the defaults this
// engine applies when a rule leaves its threshold unset.
func (e *Engine) RuleTypeCatalog() []RuleTypeInfo {
	speed := e.cfg.DefaultSpeedLimit
	idle := e.cfg.IdleSpeed
	offline := e.cfg.OfflineAfter.Minutes()

	return []RuleTypeInfo{
		{
			Type:             entities.RuleTypeSpeedLimit,
			Label:            "Speed limit exceeded",
			Severity:         severityFor(entities.RuleTypeSpeedLimit),
			ThresholdUnit:    "km/h",
			DefaultThreshold: &speed,
		},
		{
			Type:             entities.RuleTypeGeofenceEnter,
			Label:            "Geofence entered",
			Severity:         severityFor(entities.RuleTypeGeofenceEnter),
			RequiresGeofence: true,
		},
		{
			Type:             entities.RuleTypeGeofenceExit,
			Label:            "Geofence left",
			Severity:         severityFor(entities.RuleTypeGeofenceExit),
			RequiresGeofence: true,
		},
		{
			Type:             entities.RuleTypeIdle,
			Label:            "Idling",
			Severity:         severityFor(entities.RuleTypeIdle),
			ThresholdUnit:    "km/h",
			DefaultThreshold: &idle,
		},
		{
			Type:             entities.RuleTypeOffline,
			Label:            "Stopped reporting",
			Severity:         severityFor(entities.RuleTypeOffline),
			ThresholdUnit:    "min",
			DefaultThreshold: &offline,
		},
	}
}
