// Package app wires the fleet-alerts service together from its settings.
package app

import (
	"context"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/truckwatch/fleet-alerts/internal/alerting"
	"github.com/truckwatch/fleet-alerts/internal/api"
	apiv1 "github.com/truckwatch/fleet-alerts/internal/api/v1"
	"github.com/truckwatch/fleet-alerts/internal/conf"
	"github.com/truckwatch/fleet-alerts/internal/datastore"
	"github.com/truckwatch/fleet-alerts/internal/datastore/repository"
	"github.com/truckwatch/fleet-alerts/internal/errors"
	"github.com/truckwatch/fleet-alerts/internal/geofence"
	"github.com/truckwatch/fleet-alerts/internal/logger"
	"github.com/truckwatch/fleet-alerts/internal/stream"
)

const shutdownTimeout = 15 * time.Second

// App owns every long-lived resource of the service.
type App struct {
	settings *conf.Settings
	log      logger.Logger
	registry *prometheus.Registry

	db     *gorm.DB
	repo   repository.FleetRepository
	pgPool *pgxpool.Pool
	redis  *redis.Client
	mqtt   paho.Client

	oracle    geofence.Oracle
	geofences *alerting.GeofenceStateCache
	cooldowns *alerting.CooldownCache
	gate      alerting.Gate
	inspector apiv1.CooldownInspector
	directory *alerting.Directory

	alertMetrics  *alerting.Metrics
	streamMetrics *stream.Metrics
	publisher     *alerting.SinkDispatcher
	kafkaSink     *stream.KafkaSink
}

// New opens the database and connections and builds the caches and sinks.
// Nothing consumes or publishes until Run.
func New(ctx context.Context, s *conf.Settings, log logger.Logger) (*App, error) {
	a := &App{
		settings: s,
		log:      log,
		registry: prometheus.NewRegistry(),
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	s := a.settings
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.alertMetrics = alerting.NewMetrics(a.registry)
	a.streamMetrics = stream.NewMetrics(a.registry)

	db, err := datastore.Open(datastore.Config{
		Driver: s.Database.Driver,
		DSN:    s.Database.DSN,
		Debug:  s.Log.Level == string(logger.LogLevelDebug),
	})
	if err != nil {
		return err
	}
	a.db = db
	if s.Database.Driver == "sqlite" {
		// Local deployments own their schema; MySQL is managed by the admin API.
		if err := datastore.Migrate(a.db); err != nil {
			return err
		}
	}
	a.repo = repository.NewFleetRepository(a.db)

	if err := a.buildOracle(ctx); err != nil {
		return err
	}
	a.buildCaches()
	a.buildGate(ctx)
	return a.buildSinks(ctx)
}

func (a *App) buildOracle(ctx context.Context) error {
	o := &a.settings.Oracle
	switch o.Kind {
	case "postgis":
		oracle, pool, err := geofence.NewPostGISOracle(ctx, o.PostGISDSN)
		if err != nil {
			return err
		}
		a.oracle, a.pgPool = oracle, pool
	case "http":
		a.oracle = geofence.NewHTTPOracle(geofence.HTTPOracleConfig{
			BaseURL:   o.BaseURL,
			Timeout:   o.HTTPTimeout.Std(),
			RateLimit: o.RateLimit,
			Burst:     o.Burst,
		})
	default:
		a.oracle = geofence.NewLocalOracle(a.repo, o.ShapeTTL.Std(), a.log)
	}
	a.log.Info("geofence oracle configured", logger.String("kind", o.Kind))
	return nil
}

func (a *App) buildCaches() {
	s := &a.settings.Alerting
	a.geofences = alerting.NewGeofenceStateCache(s.GeofenceRetention.Std(), s.EmitInitialEnter)
	a.cooldowns = alerting.NewCooldownCache(s.Cooldown.Std())
	a.gate = a.cooldowns
	a.inspector = apiv1.LocalCooldowns{Cache: a.cooldowns}
	a.directory = alerting.NewDirectory(a.repo, s.DirectoryCacheTTL.Std(), a.log)
}

func (a *App) buildGate(ctx context.Context) {
	if a.settings.Alerting.CooldownBackend != "redis" {
		return
	}
	r := &a.settings.Redis
	a.redis = redis.NewClient(&redis.Options{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		// The gate degrades to local cooldowns, so an unreachable Redis at
		// startup is not fatal.
		a.log.Warn("redis unreachable at startup, cooldowns are local until it recovers",
			logger.String("addr", r.Addr),
			logger.Error(err))
	}
	gate := alerting.NewRedisCooldownGate(a.redis, r.Prefix, a.cooldowns, a.log)
	a.gate = gate
	a.inspector = gate
}

func (a *App) buildSinks(ctx context.Context) error {
	s := a.settings
	var sinks []alerting.Sink
	for _, name := range s.Pipeline.Sinks {
		switch name {
		case "kafka":
			a.kafkaSink = stream.NewKafkaSink(stream.KafkaSinkConfig{
				Brokers: s.Kafka.Brokers,
				Topic:   s.Kafka.AlertTopic,
			}, a.streamMetrics, a.log)
			sinks = append(sinks, a.kafkaSink)
		case "mqtt":
			client, err := a.mqttClient(ctx)
			if err != nil {
				return err
			}
			sinks = append(sinks, stream.NewMQTTSink(client, s.MQTT.AlertTopic, s.MQTT.QoS, a.streamMetrics))
		}
	}
	a.publisher = alerting.NewSinkDispatcher(sinks, s.Alerting.PublishTimeout.Std(), a.alertMetrics, a.log)
	return nil
}

// mqttClient connects once and shares the session between source and sink.
func (a *App) mqttClient(ctx context.Context) (paho.Client, error) {
	if a.mqtt != nil {
		return a.mqtt, nil
	}
	m := &a.settings.MQTT
	client, err := stream.ConnectMQTT(ctx, stream.MQTTConfig{
		Broker:   m.Broker,
		ClientID: m.ClientID,
		Username: m.Username,
		Password: m.Password,
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.mqtt = client
	return client, nil
}

// Registry exposes the Prometheus registry.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// engineDeps assembles the engine's collaborators.
func (a *App) engineDeps() alerting.Deps {
	return alerting.Deps{
		Rules:     a.repo,
		Oracle:    a.oracle,
		Geofences: a.geofences,
		Cooldowns: a.cooldowns,
		Gate:      a.gate,
		Directory: a.directory,
		Publisher: a.publisher,
		Metrics:   a.alertMetrics,
		Log:       a.log,
	}
}

// source is a running position consumer.
type source interface {
	Run(ctx context.Context) error
}

func (a *App) newSource(ctx context.Context, pool *stream.Pool) (source, func() error, error) {
	s := a.settings
	switch s.Pipeline.Source {
	case "mqtt":
		client, err := a.mqttClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return stream.NewMQTTSource(client, s.MQTT.PositionTopic, s.MQTT.QoS, pool, a.streamMetrics, a.log),
			func() error { return nil }, nil
	default:
		src := stream.NewKafkaSource(stream.KafkaSourceConfig{
			Brokers:      s.Kafka.Brokers,
			Topic:        s.Kafka.PositionTopic,
			GroupID:      s.Kafka.GroupID,
			BatchSize:    s.Pipeline.BatchSize,
			BatchTimeout: s.Pipeline.BatchTimeout.Std(),
		}, pool, a.streamMetrics, a.log)
		return src, src.Close, nil
	}
}

func (a *App) healthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	if a.pgPool != nil {
		checks["postgis"] = a.pgPool.Ping
	}
	if a.mqtt != nil {
		checks["mqtt"] = func(context.Context) error {
			if !a.mqtt.IsConnectionOpen() {
				return errors.New("not connected")
			}
			return nil
		}
	}
	return checks
}

// Run starts the engine, the worker pool, the source and the HTTP server and
// blocks until ctx is cancelled or a component fails. On return every
// queued sample has been evaluated.
func (a *App) Run(ctx context.Context) error {
	engine, err := alerting.Initialize(ctx, alerting.ConfigFromSettings(&a.settings.Alerting), a.engineDeps())
	if err != nil {
		return err
	}
	defer engine.Stop()

	pool := stream.NewPool(stream.PoolConfig{
		Workers:   a.settings.Pipeline.Workers,
		QueueSize: a.settings.Pipeline.QueueSize,
	}, engine.HandlePayload, a.streamMetrics, a.log)
	pool.Start(ctx)
	defer func() {
		if err := pool.Close(); err != nil {
			a.log.Error("worker pool shutdown failed", logger.Error(err))
		}
	}()

	src, closeSource, err := a.newSource(ctx, pool)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSource(); err != nil {
			a.log.Warn("closing source failed", logger.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return src.Run(gctx)
	})

	if a.settings.HTTP.Enabled {
		server := api.NewServer(api.Config{
			Listen: a.settings.HTTP.Listen,
			Checks: a.healthChecks(),
		}, a.registry, apiv1.NewController(engine, a.inspector, a.log), a.log)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	a.log.Info("fleet-alerts running",
		logger.String("source", a.settings.Pipeline.Source),
		logger.Any("sinks", a.settings.Pipeline.Sinks),
		logger.Int("workers", a.settings.Pipeline.Workers))

	err = g.Wait()
	a.log.Info("shutting down")
	return err
}

// Close releases connections. Safe on a partially built App.
func (a *App) Close() {
	if a.kafkaSink != nil {
		if err := a.kafkaSink.Close(); err != nil {
			a.log.Warn("closing kafka sink failed", logger.Error(err))
		}
	}
	if a.mqtt != nil {
		a.mqtt.Disconnect(250)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.db != nil {
		if err := datastore.Close(a.db); err != nil {
			a.log.Warn("closing database failed", logger.Error(err))
		}
	}
}
