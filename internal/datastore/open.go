// Package datastore opens the fleet database that holds rules, geofences and
// the truck directory.
package datastore

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
	"github.com/truckwatch/fleet-alerts/internal/errors"
)

// Config selects the database.
type Config struct {
	Driver string // "mysql" or "sqlite"
	DSN    string
	Debug  bool // log SQL statements
}

// Open connects to the configured database. The pool is sized for a
// read-mostly workload: rule refreshes and directory lookups.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, errors.Newf("unsupported database driver %q", cfg.Driver).
			Component("datastore").
			Category(errors.CategoryConfig).
			Build()
	}

	level := gorm_logger.Silent
	if cfg.Debug {
		level = gorm_logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gorm_logger.Default.LogMode(level)})
	if err != nil {
		return nil, errors.Newf("open %s database: %w", cfg.Driver, err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Newf("get sql.DB: %w", err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer; one connection also keeps
		// in-memory databases shared.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// Migrate creates the fleet tables. Production schemas are owned by the admin
// service; this is for local SQLite databases and tests.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&entities.AlertRule{},
		&entities.AlertChannel{},
		&entities.AlertRecipient{},
		&entities.Geofence{},
		&entities.TruckGroupMember{},
	)
	if err != nil {
		return errors.Newf("migrate fleet tables: %w", err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
