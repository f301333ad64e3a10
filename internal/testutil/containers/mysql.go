//go:build integration

package containers

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"gorm.io/gorm"

	"github.com/truckwatch/fleet-alerts/internal/datastore"
)

// fleetTables lists the fleet schema in an order that truncates cleanly.
var fleetTables = []string{
	"alert_rule_channels",
	"alert_rule_recipients",
	"truck_group_members",
	"alert_rules",
	"geofences",
}

// MySQLContainer wraps a testcontainers MySQL instance holding the fleet schema.
type MySQLContainer struct {
	container *mysql.MySQLContainer
	db        *gorm.DB
	dsn       string
}

// MySQLConfig holds configuration for MySQL container creation.
type MySQLConfig struct {
	// Database name (default: "fleet_test")
	Database string
	// Username for non-root user (default: "fleet")
	Username string
	// Password for non-root user (default: "fleetpass")
	Password string
	// Image tag (default: "8.0")
	ImageTag string
}

// DefaultMySQLConfig returns a MySQLConfig with sensible defaults.
func DefaultMySQLConfig() MySQLConfig {
	return MySQLConfig{
		Database: "fleet_test",
		Username: "fleet",
		Password: "fleetpass",
		ImageTag: "8.0",
	}
}

// NewMySQLContainer starts MySQL, opens it through the datastore package and
// migrates the fleet tables. If config is nil, uses DefaultMySQLConfig().
func NewMySQLContainer(ctx context.Context, config *MySQLConfig) (*MySQLContainer, error) {
	if config == nil {
		defaultCfg := DefaultMySQLConfig()
		config = &defaultCfg
	}

	// mysql.Run waits for the server to accept connections
	container, err := mysql.Run(ctx, "mysql:"+config.ImageTag,
		mysql.WithDatabase(config.Database),
		mysql.WithUsername(config.Username),
		mysql.WithPassword(config.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start MySQL container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "parseTime=true", "charset=utf8mb4")
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	db, err := datastore.Open(datastore.Config{Driver: "mysql", DSN: dsn})
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, err
	}
	if err := datastore.Migrate(db); err != nil {
		_ = datastore.Close(db)
		_ = testcontainers.TerminateContainer(container)
		return nil, err
	}

	mc := &MySQLContainer{container: container, db: db, dsn: dsn}
	if err := mc.HealthCheck(ctx); err != nil {
		_ = mc.Terminate(context.Background())
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return mc, nil
}

// DB returns the shared GORM handle. Tests must not close it.
func (c *MySQLContainer) DB() *gorm.DB {
	return c.db
}

// DSN returns the MySQL DSN (connection string) for the container.
func (c *MySQLContainer) DSN() string {
	return c.dsn
}

// HealthCheck performs a health check on the MySQL database.
func (c *MySQLContainer) HealthCheck(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Reset truncates the fleet tables with foreign key checks disabled.
func (c *MySQLContainer) Reset(ctx context.Context) error {
	return c.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		if err := tx.Exec("SET FOREIGN_KEY_CHECKS = 0").Error; err != nil {
			return fmt.Errorf("failed to disable foreign key checks: %w", err)
		}
		for _, table := range fleetTables {
			if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE `%s`", table)).Error; err != nil {
				return fmt.Errorf("failed to truncate table %s: %w", table, err)
			}
		}
		if err := tx.Exec("SET FOREIGN_KEY_CHECKS = 1").Error; err != nil {
			return fmt.Errorf("failed to enable foreign key checks: %w", err)
		}
		return nil
	})
}

// Terminate closes the database handle and removes the container.
func (c *MySQLContainer) Terminate(ctx context.Context) error {
	if c.db != nil {
		_ = datastore.Close(c.db)
		c.db = nil
	}
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}
