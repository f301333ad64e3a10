package alerting

import (
	"context"

	"github.com/truckwatch/fleet-alerts/internal/conf"
	"github.com/truckwatch/fleet-alerts/internal/logger"
)

// ConfigFromSettings maps the alerting section of the service configuration.
func ConfigFromSettings(s *conf.AlertingSettings) Config {
	return Config{
		DefaultSpeedLimit:       s.DefaultSpeedLimit,
		IdleSpeed:               s.IdleSpeed,
		IdleDuration:            s.IdleDuration.Std(),
		OfflineAfter:            s.OfflineAfter.Std(),
		OracleTimeout:           s.OracleTimeout.Std(),
		Retention:               s.GeofenceRetention.Std(),
		RuleRefreshInterval:     s.RuleRefreshInterval.Std(),
		CooldownCleanupInterval: s.CooldownCleanupInterval.Std(),
		GeofenceSweepInterval:   s.GeofenceSweepInterval.Std(),
		OfflineCheckInterval:    s.OfflineCheckInterval.Std(),
	}
}

// Initialize creates the engine, loads the enabled rules and starts the
// maintenance loop. A rule store that cannot be read at startup is fatal;
// later refresh failures keep the previous rules.
func Initialize(ctx context.Context, cfg Config, deps Deps) (*Engine, error) {
	engine, err := NewEngine(cfg, deps)
	if err != nil {
		return nil, err
	}

	if err := engine.RefreshRules(ctx); err != nil {
		return nil, err
	}
	engine.Start(ctx)

	engine.log.Info("alerting engine initialized",
		logger.Int("rules_loaded", len(engine.Rules())),
		logger.Float64("default_speed_limit", engine.cfg.DefaultSpeedLimit))
	return engine, nil
}
