package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
	"github.com/truckwatch/fleet-alerts/internal/errors"
)

// setupFleetTestDB creates an in-memory SQLite database. A single connection
// keeps every query on the same in-memory database.
func setupFleetTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=ON"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&entities.AlertRule{},
		&entities.AlertChannel{},
		&entities.AlertRecipient{},
		&entities.Geofence{},
		&entities.TruckGroupMember{},
	)
	require.NoError(t, err, "failed to migrate fleet tables")
	return db
}

func ptr[T any](v T) *T { return &v }

func seedRules(t *testing.T, db *gorm.DB) {
	t.Helper()
	rules := []entities.AlertRule{
		{
			ID: "r-speed", Name: "Highway", Type: entities.RuleTypeSpeedLimit, Threshold: ptr(120.0),
			Enabled: true, OwnerID: "u-owner",
			Channels: []entities.AlertChannel{
				{Channel: "sms", SortOrder: 1},
				{Channel: "push", SortOrder: 0},
			},
		},
		{
			ID: "r-depot", Name: "Depot arrival", Type: entities.RuleTypeGeofenceEnter, GeofenceID: ptr("g-depot"),
			TruckGroupID: ptr("north"), Enabled: true, OwnerID: "u-owner",
		},
		{ID: "r-off", Name: "Disabled", Type: entities.RuleTypeIdle, OwnerID: "u-owner"},
	}
	require.NoError(t, db.Create(&rules).Error)
}

func TestFleetRepository_GetEnabledRules(t *testing.T) {
	db := setupFleetTestDB(t)
	seedRules(t, db)
	repo := NewFleetRepository(db)

	rules, err := repo.GetEnabledRules(t.Context())
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "r-depot", rules[0].ID)
	assert.Equal(t, "g-depot", *rules[0].GeofenceID)
	assert.Equal(t, "north", *rules[0].TruckGroupID)
	assert.Nil(t, rules[0].Threshold)

	assert.Equal(t, "r-speed", rules[1].ID)
	assert.InDelta(t, 120.0, *rules[1].Threshold, 0)
	assert.Equal(t, []string{"push", "sms"}, rules[1].ChannelNames(), "channels follow sort order")
}

func TestFleetRepository_GetRule(t *testing.T) {
	db := setupFleetTestDB(t)
	seedRules(t, db)
	repo := NewFleetRepository(db)

	rule, err := repo.GetRule(t.Context(), "r-off")
	require.NoError(t, err)
	assert.False(t, rule.Enabled)
	assert.Equal(t, entities.RuleTypeIdle, rule.Type)

	_, err = repo.GetRule(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestFleetRepository_GetGeofence(t *testing.T) {
	db := setupFleetTestDB(t)
	repo := NewFleetRepository(db)

	circle := entities.Geofence{
		ID: "g-yard", Name: "Yard", Shape: entities.ShapeCircle,
		CenterLat: ptr(52.5), CenterLon: ptr(13.4), RadiusMeters: ptr(250.0),
	}
	require.NoError(t, db.Create(&circle).Error)

	got, err := repo.GetGeofence(t.Context(), "g-yard")
	require.NoError(t, err)
	assert.Equal(t, entities.ShapeCircle, got.Shape)
	assert.InDelta(t, 250.0, *got.RadiusMeters, 0)

	_, err = repo.GetGeofence(t.Context(), "g-none")
	assert.ErrorIs(t, err, ErrGeofenceNotFound)
}

func TestFleetRepository_Directory(t *testing.T) {
	db := setupFleetTestDB(t)
	repo := NewFleetRepository(db)

	require.NoError(t, db.Create(&[]entities.TruckGroupMember{
		{GroupID: "south", TruckID: "T1"},
		{GroupID: "north", TruckID: "T1"},
		{GroupID: "north", TruckID: "T2"},
	}).Error)
	require.NoError(t, db.Create(&[]entities.AlertRecipient{
		{RuleID: "r-speed", UserID: "u-2"},
		{RuleID: "r-speed", UserID: "u-1"},
	}).Error)

	groups, err := repo.TruckGroups(t.Context(), "T1")
	require.NoError(t, err)
	assert.Equal(t, []string{"north", "south"}, groups)

	groups, err = repo.TruckGroups(t.Context(), "T9")
	require.NoError(t, err)
	assert.Empty(t, groups)

	users, err := repo.RuleRecipients(t.Context(), "r-speed")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1", "u-2"}, users)
}

func TestFleetRepository_ClosedDatabase(t *testing.T) {
	db := setupFleetTestDB(t)
	repo := NewFleetRepository(db)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = repo.GetEnabledRules(t.Context())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryDatabase, errors.CategoryOf(err))
}
