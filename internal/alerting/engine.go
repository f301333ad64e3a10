package alerting

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
	"github.com/truckwatch/fleet-alerts/internal/datastore/repository"
	"github.com/truckwatch/fleet-alerts/internal/errors"
	"github.com/truckwatch/fleet-alerts/internal/geofence"
	"github.com/truckwatch/fleet-alerts/internal/logger"
)

const (
	// refreshTimeout bounds one rule reload.
	refreshTimeout = 10 * time.Second
	// offlineCheckTimeout bounds one pass over OFFLINE rules.
	offlineCheckTimeout = 30 * time.Second
)

// Config tunes rule evaluation and the maintenance loop.
type Config struct {
	DefaultSpeedLimit float64
	IdleSpeed         float64
	IdleDuration      time.Duration
	OfflineAfter      time.Duration
	OracleTimeout     time.Duration
	// Retention is how long per-truck motion and presence data outlive the
	// truck's last report.
	Retention time.Duration

	RuleRefreshInterval     time.Duration
	CooldownCleanupInterval time.Duration
	GeofenceSweepInterval   time.Duration
	OfflineCheckInterval    time.Duration
}

func (c *Config) applyDefaults() {
	if c.DefaultSpeedLimit <= 0 {
		c.DefaultSpeedLimit = DefaultSpeedLimit
	}
	if c.IdleSpeed <= 0 {
		c.IdleSpeed = DefaultIdleSpeed
	}
	if c.IdleDuration <= 0 {
		c.IdleDuration = DefaultIdleDuration
	}
	if c.OfflineAfter <= 0 {
		c.OfflineAfter = DefaultOfflineAfter
	}
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = DefaultOracleTimeout
	}
	if c.Retention <= 0 {
		c.Retention = DefaultGeofenceRetention
	}
	if c.RuleRefreshInterval <= 0 {
		c.RuleRefreshInterval = time.Minute
	}
	if c.CooldownCleanupInterval <= 0 {
		c.CooldownCleanupInterval = time.Minute
	}
	if c.GeofenceSweepInterval <= 0 {
		c.GeofenceSweepInterval = 10 * time.Minute
	}
	if c.OfflineCheckInterval <= 0 {
		c.OfflineCheckInterval = time.Minute
	}
}

// Deps are the collaborators of an Engine. Rules, Oracle, Geofences,
// Cooldowns and Publisher are required.
type Deps struct {
	Rules     repository.RuleStore
	Oracle    geofence.Oracle
	Geofences *GeofenceStateCache
	Cooldowns *CooldownCache
	// Gate defaults to Cooldowns. Set it to share cooldowns between instances.
	Gate      Gate
	Directory *Directory
	Motion    *MotionTracker
	Presence  *PresenceMonitor
	Publisher Publisher
	Metrics   *Metrics
	Log       logger.Logger
}

// Engine evaluates position samples against the enabled rules. It is safe
// for concurrent use; all mutable state lives in the injected caches.
type Engine struct {
	cfg       Config
	store     repository.RuleStore
	oracle    geofence.Oracle
	geofences *GeofenceStateCache
	cooldowns *CooldownCache
	gate      Gate
	directory *Directory
	motion    *MotionTracker
	presence  *PresenceMonitor
	publisher Publisher
	metrics   *Metrics
	log       logger.Logger
	now       func() time.Time

	// Cached rules (refreshed periodically)
	rules   []entities.AlertRule
	rulesMu sync.RWMutex

	// Maintenance loop
	loopMu sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Rules == nil:
		return nil, errors.Newf("alerting engine needs a rule store").Component("alerting").Category(errors.CategoryConfig).Build()
	case deps.Oracle == nil:
		return nil, errors.Newf("alerting engine needs a geofence oracle").Component("alerting").Category(errors.CategoryConfig).Build()
	case deps.Geofences == nil || deps.Cooldowns == nil:
		return nil, errors.Newf("alerting engine needs geofence state and cooldown caches").Component("alerting").Category(errors.CategoryConfig).Build()
	case deps.Publisher == nil:
		return nil, errors.Newf("alerting engine needs a publisher").Component("alerting").Category(errors.CategoryConfig).Build()
	}

	cfg.applyDefaults()
	if deps.Log == nil {
		deps.Log = logger.Discard()
	}
	if deps.Gate == nil {
		deps.Gate = deps.Cooldowns
	}
	if deps.Directory == nil {
		deps.Directory = NewDirectory(nil, 0, deps.Log)
	}
	if deps.Motion == nil {
		deps.Motion = NewMotionTracker(2 * cfg.IdleDuration)
	}
	if deps.Presence == nil {
		deps.Presence = NewPresenceMonitor()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}

	return &Engine{
		cfg:       cfg,
		store:     deps.Rules,
		oracle:    deps.Oracle,
		geofences: deps.Geofences,
		cooldowns: deps.Cooldowns,
		gate:      deps.Gate,
		directory: deps.Directory,
		motion:    deps.Motion,
		presence:  deps.Presence,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		log:       deps.Log.With(logger.String("component", "alerting")),
		now:       time.Now,
	}, nil
}

// RefreshRules reloads enabled rules from the store. On failure the previous
// rule set stays active.
func (e *Engine) RefreshRules(ctx context.Context) error {
	rules, err := e.store.GetEnabledRules(ctx)
	if err != nil {
		return err
	}
	e.SetRules(rules)
	return nil
}

// SetRules replaces the active rule set. Rules that cannot be evaluated are
// dropped here so evaluation never has to re-check them.
func (e *Engine) SetRules(rules []entities.AlertRule) {
	usable := make([]entities.AlertRule, 0, len(rules))
	for i := range rules {
		r := &rules[i]
		switch {
		case !r.Enabled:
			continue
		case !r.Type.Valid():
			e.log.Warn("skipping rule with unknown type",
				logger.String("rule_id", r.ID),
				logger.String("type", string(r.Type)))
		case r.Type.IsGeofence() && (r.GeofenceID == nil || *r.GeofenceID == ""):
			e.log.Debug("skipping geofence rule without geofence", logger.String("rule_id", r.ID))
		case r.Threshold != nil && (math.IsNaN(*r.Threshold) || *r.Threshold <= 0):
			e.log.Warn("skipping rule with invalid threshold",
				logger.String("rule_id", r.ID),
				logger.Float64("threshold", *r.Threshold))
		default:
			usable = append(usable, *r)
		}
	}

	e.rulesMu.Lock()
	e.rules = usable
	e.rulesMu.Unlock()
}

// Rules returns a copy of the active rule set.
func (e *Engine) Rules() []entities.AlertRule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	rules := make([]entities.AlertRule, len(e.rules))
	copy(rules, e.rules)
	return rules
}

// Start runs rule refresh, cache maintenance and the offline check in a
// background goroutine until Stop is called or ctx is done.
func (e *Engine) Start(ctx context.Context) {
	// Stop any existing loop before starting a new one.
	e.Stop()
	e.loopMu.Lock()
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.loopMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.maintenanceLoop(ctx, stopCh)
	}()
}

func (e *Engine) maintenanceLoop(ctx context.Context, stopCh <-chan struct{}) {
	refresh := time.NewTicker(e.cfg.RuleRefreshInterval)
	defer refresh.Stop()
	cleanup := time.NewTicker(e.cfg.CooldownCleanupInterval)
	defer cleanup.Stop()
	sweep := time.NewTicker(e.cfg.GeofenceSweepInterval)
	defer sweep.Stop()
	offline := time.NewTicker(e.cfg.OfflineCheckInterval)
	defer offline.Stop()

	for {
		select {
		case <-refresh.C:
			refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
			if err := e.RefreshRules(refreshCtx); err != nil {
				e.log.Error("alert rule refresh failed", logger.Error(err))
			}
			cancel()
		case <-cleanup.C:
			e.CleanupCooldowns()
		case <-sweep.C:
			e.SweepStates()
		case <-offline.C:
			checkCtx, cancel := context.WithTimeout(ctx, offlineCheckTimeout)
			e.CheckOffline(checkCtx)
			cancel()
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// CleanupCooldowns drops expired cooldown entries.
func (e *Engine) CleanupCooldowns() {
	if removed := e.cooldowns.CleanupExpiredEntries(); removed > 0 {
		e.metrics.CacheEvictions.WithLabelValues("cooldown").Add(float64(removed))
		e.log.Debug("cooldown cleanup completed", logger.Int("removed", removed))
	}
	e.updateCacheGauges()
}

// SweepStates drops containment states, speed histories and presence records
// of trucks that stopped reporting.
func (e *Engine) SweepStates() {
	states := e.geofences.Sweep()
	motion := e.motion.Forget(e.now().Add(-e.cfg.Retention))
	presence := e.presence.Forget(e.cfg.Retention)

	e.metrics.CacheEvictions.WithLabelValues("geofence_state").Add(float64(states))
	e.metrics.CacheEvictions.WithLabelValues("motion").Add(float64(motion))
	e.metrics.CacheEvictions.WithLabelValues("presence").Add(float64(presence))
	if states+motion+presence > 0 {
		e.log.Info("state sweep completed",
			logger.Int("geofence_states", states),
			logger.Int("motion_histories", motion),
			logger.Int("presence_records", presence))
	}
	e.updateCacheGauges()
}

// CacheSizes reports the number of entries in each in-memory cache.
func (e *Engine) CacheSizes() map[string]int {
	return map[string]int{
		"cooldown":       e.cooldowns.Len(),
		"geofence_state": e.geofences.Len(),
		"motion":         e.motion.Len(),
		"presence":       e.presence.Len(),
		"directory":      e.directory.Len(),
	}
}

func (e *Engine) updateCacheGauges() {
	for name, size := range e.CacheSizes() {
		e.metrics.CacheEntries.WithLabelValues(name).Set(float64(size))
	}
}

// Stop shuts down the maintenance goroutine and waits for it to exit.
// Safe to call multiple times.
func (e *Engine) Stop() {
	e.loopMu.Lock()
	ch := e.stopCh
	e.stopCh = nil
	e.loopMu.Unlock()
	if ch != nil {
		close(ch)
	}
	e.wg.Wait()
}
