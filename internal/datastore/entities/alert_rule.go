package entities

import "time"

// RuleType identifies what an alert rule watches.
type RuleType string

const (
	RuleTypeSpeedLimit    RuleType = "SPEED_LIMIT"
	RuleTypeGeofenceEnter RuleType = "GEOFENCE_ENTER"
	RuleTypeGeofenceExit  RuleType = "GEOFENCE_EXIT"
	RuleTypeOffline       RuleType = "OFFLINE"
	RuleTypeIdle          RuleType = "IDLE"
)

// Valid reports whether t is one of the known rule types.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeSpeedLimit, RuleTypeGeofenceEnter, RuleTypeGeofenceExit, RuleTypeOffline, RuleTypeIdle:
		return true
	}
	return false
}

// IsGeofence reports whether t needs a geofence reference.
func (t RuleType) IsGeofence() bool {
	return t == RuleTypeGeofenceEnter || t == RuleTypeGeofenceExit
}

// AlertRule is an administrator-defined rule. The service only reads rules;
// they are managed by the fleet admin API.
type AlertRule struct {
	ID   string   `gorm:"primaryKey;size:64" json:"id"`
	Name string   `gorm:"size:255;not null" json:"name"`
	Type RuleType `gorm:"size:32;not null;index" json:"type"`
	// Threshold is km/h for SPEED_LIMIT and IDLE, minutes for OFFLINE.
	Threshold    *float64       `json:"threshold,omitempty"`
	GeofenceID   *string        `gorm:"size:64;index" json:"geofence_id,omitempty"`
	TruckGroupID *string        `gorm:"size:64;index" json:"truck_group_id,omitempty"`
	Enabled      bool           `gorm:"not null;index" json:"enabled"`
	OwnerID      string         `gorm:"size:64;not null;default:''" json:"owner_id"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	Channels     []AlertChannel `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"channels"`
}

// TableName returns the table name for GORM.
func (AlertRule) TableName() string {
	return "alert_rules"
}

// ChannelNames returns the rule's notification channels in configured order.
func (r *AlertRule) ChannelNames() []string {
	names := make([]string, 0, len(r.Channels))
	for i := range r.Channels {
		names = append(names, r.Channels[i].Channel)
	}
	return names
}
