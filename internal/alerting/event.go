package alerting

import (
	"time"

	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
	"github.com/truckwatch/fleet-alerts/internal/errors"
)

// AlertEvent is the message published on the alert topic. Downstream
// notification fan-out relies on AlertType, TruckID and TriggeredAt.
type AlertEvent struct {
	ID          string            `json:"id"`
	RuleID      string            `json:"rule_id"`
	RuleName    string            `json:"rule_name,omitempty"`
	TruckID     string            `json:"truck_id"`
	AlertType   entities.RuleType `json:"alert_type"`
	Severity    Severity          `json:"severity"`
	Message     string            `json:"message"`
	Latitude    *float64          `json:"lat,omitempty"`
	Longitude   *float64          `json:"lon,omitempty"`
	Speed       *float64          `json:"speed,omitempty"`
	GeofenceID  string            `json:"geofence_id,omitempty"`
	TriggeredAt time.Time         `json:"triggered_at"`
	Recipients  []string          `json:"recipients"`
	Channels    []string          `json:"channels"`
	SampleID    string            `json:"sample_id,omitempty"`
}

// ErrMalformedEvent is wrapped by Validate.
var ErrMalformedEvent = errors.New("malformed alert event")

// Validate checks the fields downstream consumers cannot do without.
func (e *AlertEvent) Validate() error {
	switch {
	case e.AlertType == "":
		return errors.Newf("%w: alert_type is empty", ErrMalformedEvent).Category(errors.CategoryValidation).Build()
	case e.TruckID == "":
		return errors.Newf("%w: truck_id is empty", ErrMalformedEvent).Category(errors.CategoryValidation).Build()
	case e.TriggeredAt.IsZero():
		return errors.Newf("%w: triggered_at is zero", ErrMalformedEvent).Category(errors.CategoryValidation).Build()
	}
	return nil
}

// severityFor maps a rule type to the severity of its alerts.
func severityFor(t entities.RuleType) Severity {
	switch t {
	case entities.RuleTypeSpeedLimit:
		return SeverityWarning
	case entities.RuleTypeOffline:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}
