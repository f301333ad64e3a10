package entities

// AlertChannel is a notification channel requested by a rule, e.g. "email",
// "push" or "sms". Delivery happens downstream of the alert topic.
type AlertChannel struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	RuleID    string `gorm:"size:64;not null;index" json:"rule_id"`
	Channel   string `gorm:"size:50;not null" json:"channel"`
	SortOrder int    `gorm:"default:0" json:"sort_order"`
}

// TableName returns the table name for GORM.
func (AlertChannel) TableName() string {
	return "alert_rule_channels"
}

// AlertRecipient subscribes a user to a rule in addition to its owner.
type AlertRecipient struct {
	RuleID string `gorm:"primaryKey;size:64" json:"rule_id"`
	UserID string `gorm:"primaryKey;size:64" json:"user_id"`
}

// TableName returns the table name for GORM.
func (AlertRecipient) TableName() string {
	return "alert_rule_recipients"
}

// TruckGroupMember places a truck in a group. A truck may be in several groups.
type TruckGroupMember struct {
	GroupID string `gorm:"primaryKey;size:64" json:"group_id"`
	TruckID string `gorm:"primaryKey;size:64;index" json:"truck_id"`
}

// TableName returns the table name for GORM.
func (TruckGroupMember) TableName() string {
	return "truck_group_members"
}
