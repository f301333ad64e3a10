package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
	"github.com/truckwatch/fleet-alerts/internal/errors"
)

// fleetRepository implements FleetRepository.
type fleetRepository struct {
	db *gorm.DB
}

// NewFleetRepository creates a new FleetRepository.
func NewFleetRepository(db *gorm.DB) FleetRepository {
	return &fleetRepository{db: db}
}

func dbError(err error, format string, args ...any) error {
	return errors.Newf(format+": %w", append(args, err)...).
		Component("repository").
		Category(errors.CategoryDatabase).
		Build()
}

// GetEnabledRules returns all enabled rules with their channels, ordered by id.
func (r *fleetRepository) GetEnabledRules(ctx context.Context) ([]entities.AlertRule, error) {
	var rules []entities.AlertRule
	err := r.db.WithContext(ctx).
		Preload("Channels", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, id ASC") }).
		Where("enabled = ?", true).
		Order("id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, dbError(err, "failed to list enabled alert rules")
	}
	return rules, nil
}

// GetRule returns a single rule by id.
// Returns ErrRuleNotFound if the rule does not exist.
func (r *fleetRepository) GetRule(ctx context.Context, id string) (*entities.AlertRule, error) {
	var rule entities.AlertRule
	err := r.db.WithContext(ctx).
		Preload("Channels", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, id ASC") }).
		Where("id = ?", id).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, dbError(err, "failed to get alert rule %s", id)
	}
	return &rule, nil
}

// GetGeofence returns a geofence by id.
// Returns ErrGeofenceNotFound if it does not exist.
func (r *fleetRepository) GetGeofence(ctx context.Context, id string) (*entities.Geofence, error) {
	var g entities.Geofence
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGeofenceNotFound
		}
		return nil, dbError(err, "failed to get geofence %s", id)
	}
	return &g, nil
}

// TruckGroups returns the ids of the groups truckID belongs to.
func (r *fleetRepository) TruckGroups(ctx context.Context, truckID string) ([]string, error) {
	var groups []string
	err := r.db.WithContext(ctx).
		Model(&entities.TruckGroupMember{}).
		Where("truck_id = ?", truckID).
		Order("group_id ASC").
		Pluck("group_id", &groups).Error
	if err != nil {
		return nil, dbError(err, "failed to list groups for truck %s", truckID)
	}
	return groups, nil
}

// RuleRecipients returns the users subscribed to ruleID.
func (r *fleetRepository) RuleRecipients(ctx context.Context, ruleID string) ([]string, error) {
	var users []string
	err := r.db.WithContext(ctx).
		Model(&entities.AlertRecipient{}).
		Where("rule_id = ?", ruleID).
		Order("user_id ASC").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, dbError(err, "failed to list recipients for rule %s", ruleID)
	}
	return users, nil
}
