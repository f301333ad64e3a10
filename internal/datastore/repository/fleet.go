package repository

import (
	"context"

	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
	"github.com/truckwatch/fleet-alerts/internal/errors"
)

var (
	// ErrRuleNotFound is returned when a rule id does not exist.
	ErrRuleNotFound = errors.New("alert rule not found")
	// ErrGeofenceNotFound is returned when a geofence id does not exist.
	ErrGeofenceNotFound = errors.New("geofence not found")
)

// RuleStore reads the active rule set.
type RuleStore interface {
	GetEnabledRules(ctx context.Context) ([]entities.AlertRule, error)
	GetRule(ctx context.Context, id string) (*entities.AlertRule, error)
}

// GeofenceStore reads geofence shapes.
type GeofenceStore interface {
	GetGeofence(ctx context.Context, id string) (*entities.Geofence, error)
}

// Directory answers fleet membership questions.
type Directory interface {
	// TruckGroups lists the groups a truck belongs to.
	TruckGroups(ctx context.Context, truckID string) ([]string, error)
	// RuleRecipients lists the users subscribed to a rule, excluding its owner.
	RuleRecipients(ctx context.Context, ruleID string) ([]string, error)
}

// FleetRepository is the read-only view of the fleet database.
type FleetRepository interface {
	RuleStore
	GeofenceStore
	Directory
}
