// Package conf loads and validates service configuration.
package conf

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/truckwatch/fleet-alerts/internal/errors"
)

// Settings is the full service configuration.
type Settings struct {
	Log      LogSettings      `mapstructure:"log" yaml:"log"`
	HTTP     HTTPSettings     `mapstructure:"http" yaml:"http"`
	Alerting AlertingSettings `mapstructure:"alerting" yaml:"alerting"`
	Pipeline PipelineSettings `mapstructure:"pipeline" yaml:"pipeline"`
	Kafka    KafkaSettings    `mapstructure:"kafka" yaml:"kafka"`
	MQTT     MQTTSettings     `mapstructure:"mqtt" yaml:"mqtt"`
	Redis    RedisSettings    `mapstructure:"redis" yaml:"redis"`
	Database DatabaseSettings `mapstructure:"database" yaml:"database"`
	Oracle   OracleSettings   `mapstructure:"oracle" yaml:"oracle"`
	Sentry   SentrySettings   `mapstructure:"sentry" yaml:"sentry"`
}

type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json or text
}

type HTTPSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// AlertingSettings tunes the rule engine and its caches.
type AlertingSettings struct {
	DefaultSpeedLimit       float64  `mapstructure:"default_speed_limit" yaml:"default_speed_limit"`
	Cooldown                Duration `mapstructure:"cooldown" yaml:"cooldown"`
	CooldownCleanupInterval Duration `mapstructure:"cooldown_cleanup_interval" yaml:"cooldown_cleanup_interval"`
	// CooldownBackend is "memory" or "redis".
	CooldownBackend        string   `mapstructure:"cooldown_backend" yaml:"cooldown_backend"`
	GeofenceRetention      Duration `mapstructure:"geofence_retention" yaml:"geofence_retention"`
	GeofenceSweepInterval  Duration `mapstructure:"geofence_sweep_interval" yaml:"geofence_sweep_interval"`
	EmitInitialEnter       bool     `mapstructure:"emit_initial_enter" yaml:"emit_initial_enter"`
	RuleRefreshInterval    Duration `mapstructure:"rule_refresh_interval" yaml:"rule_refresh_interval"`
	OracleTimeout          Duration `mapstructure:"oracle_timeout" yaml:"oracle_timeout"`
	PublishTimeout         Duration `mapstructure:"publish_timeout" yaml:"publish_timeout"`
	IdleSpeed              float64  `mapstructure:"idle_speed" yaml:"idle_speed"`
	IdleDuration           Duration `mapstructure:"idle_duration" yaml:"idle_duration"`
	OfflineAfter           Duration `mapstructure:"offline_after" yaml:"offline_after"`
	OfflineCheckInterval   Duration `mapstructure:"offline_check_interval" yaml:"offline_check_interval"`
	DirectoryCacheTTL      Duration `mapstructure:"directory_cache_ttl" yaml:"directory_cache_ttl"`
}

// PipelineSettings tunes the worker pool between the source and the engine.
type PipelineSettings struct {
	// Source is "kafka" or "mqtt".
	Source string `mapstructure:"source" yaml:"source"`
	// Sinks lists where alerts are published: "kafka", "mqtt" or both.
	Sinks        []string `mapstructure:"sinks" yaml:"sinks"`
	Workers      int      `mapstructure:"workers" yaml:"workers"`
	QueueSize    int      `mapstructure:"queue_size" yaml:"queue_size"`
	BatchSize    int      `mapstructure:"batch_size" yaml:"batch_size"`
	BatchTimeout Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
}

type KafkaSettings struct {
	Brokers       []string `mapstructure:"brokers" yaml:"brokers"`
	PositionTopic string   `mapstructure:"position_topic" yaml:"position_topic"`
	AlertTopic    string   `mapstructure:"alert_topic" yaml:"alert_topic"`
	GroupID       string   `mapstructure:"group_id" yaml:"group_id"`
}

type MQTTSettings struct {
	Broker        string `mapstructure:"broker" yaml:"broker"`
	ClientID      string `mapstructure:"client_id" yaml:"client_id"`
	Username      string `mapstructure:"username" yaml:"username"`
	Password      string `mapstructure:"password" yaml:"password"`
	PositionTopic string `mapstructure:"position_topic" yaml:"position_topic"`
	AlertTopic    string `mapstructure:"alert_topic" yaml:"alert_topic"`
	QoS           byte   `mapstructure:"qos" yaml:"qos"`
}

type RedisSettings struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// DatabaseSettings locates the rule store. Driver is "mysql" or "sqlite".
type DatabaseSettings struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// OracleSettings selects the containment oracle: "local", "postgis" or "http".
type OracleSettings struct {
	Kind        string   `mapstructure:"kind" yaml:"kind"`
	PostGISDSN  string   `mapstructure:"postgis_dsn" yaml:"postgis_dsn"`
	BaseURL     string   `mapstructure:"base_url" yaml:"base_url"`
	RateLimit   float64  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst       int      `mapstructure:"burst" yaml:"burst"`
	ShapeTTL    Duration `mapstructure:"shape_ttl" yaml:"shape_ttl"`
	HTTPTimeout Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
}

type SentrySettings struct {
	DSN         string  `mapstructure:"dsn" yaml:"dsn"`
	Environment string  `mapstructure:"environment" yaml:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

var (
	validSources   = []string{"kafka", "mqtt"}
	validOracles   = []string{"local", "postgis", "http"}
	validDrivers   = []string{"mysql", "sqlite"}
	validCooldowns = []string{"memory", "redis"}
)

// Validate reports every invalid setting at once.
func (s *Settings) Validate() error {
	var problems []string
	add := func(format string, a ...any) {
		problems = append(problems, fmt.Sprintf(format, a...))
	}

	a := &s.Alerting
	if a.DefaultSpeedLimit <= 0 {
		add("alerting.default_speed_limit must be positive")
	}
	if a.Cooldown.Std() <= 0 {
		add("alerting.cooldown must be positive")
	}
	if a.CooldownCleanupInterval.Std() <= 0 {
		add("alerting.cooldown_cleanup_interval must be positive")
	}
	if !slices.Contains(validCooldowns, a.CooldownBackend) {
		add("alerting.cooldown_backend must be one of %v", validCooldowns)
	}
	if a.GeofenceRetention.Std() < time.Minute {
		add("alerting.geofence_retention must be at least 1m")
	}
	if a.GeofenceSweepInterval.Std() <= 0 {
		add("alerting.geofence_sweep_interval must be positive")
	}
	if a.RuleRefreshInterval.Std() <= 0 {
		add("alerting.rule_refresh_interval must be positive")
	}
	if a.OracleTimeout.Std() <= 0 {
		add("alerting.oracle_timeout must be positive")
	}
	if a.OfflineCheckInterval.Std() <= 0 {
		add("alerting.offline_check_interval must be positive")
	}

	p := &s.Pipeline
	if !slices.Contains(validSources, p.Source) {
		add("pipeline.source must be one of %v", validSources)
	}
	if len(p.Sinks) == 0 {
		add("pipeline.sinks must name at least one sink")
	}
	for _, sink := range p.Sinks {
		if !slices.Contains(validSources, sink) {
			add("pipeline.sinks: unknown sink %q", sink)
		}
	}
	if p.Workers < 1 {
		add("pipeline.workers must be at least 1")
	}
	if p.QueueSize < 1 {
		add("pipeline.queue_size must be at least 1")
	}
	if p.BatchSize < 1 {
		add("pipeline.batch_size must be at least 1")
	}

	if s.usesKafka() {
		if len(s.Kafka.Brokers) == 0 {
			add("kafka.brokers is required when kafka is used")
		}
		if p.Source == "kafka" && (s.Kafka.PositionTopic == "" || s.Kafka.GroupID == "") {
			add("kafka.position_topic and kafka.group_id are required for the kafka source")
		}
		if slices.Contains(p.Sinks, "kafka") && s.Kafka.AlertTopic == "" {
			add("kafka.alert_topic is required for the kafka sink")
		}
	}
	if s.usesMQTT() && s.MQTT.Broker == "" {
		add("mqtt.broker is required when mqtt is used")
	}
	if s.MQTT.QoS > 2 {
		add("mqtt.qos must be 0, 1 or 2")
	}
	if a.CooldownBackend == "redis" && s.Redis.Addr == "" {
		add("redis.addr is required for the redis cooldown backend")
	}

	if !slices.Contains(validDrivers, s.Database.Driver) {
		add("database.driver must be one of %v", validDrivers)
	}
	if s.Database.DSN == "" {
		add("database.dsn is required")
	}

	switch s.Oracle.Kind {
	case "local":
	case "postgis":
		if s.Oracle.PostGISDSN == "" {
			add("oracle.postgis_dsn is required for the postgis oracle")
		}
	case "http":
		if s.Oracle.BaseURL == "" {
			add("oracle.base_url is required for the http oracle")
		}
	default:
		add("oracle.kind must be one of %v", validOracles)
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("invalid configuration: %s", strings.Join(problems, "; ")).
		Component("conf").
		Category(errors.CategoryValidation).
		Build()
}

func (s *Settings) usesKafka() bool {
	return s.Pipeline.Source == "kafka" || slices.Contains(s.Pipeline.Sinks, "kafka")
}

func (s *Settings) usesMQTT() bool {
	return s.Pipeline.Source == "mqtt" || slices.Contains(s.Pipeline.Sinks, "mqtt")
}

const redacted = "[redacted]"

// Redacted returns a copy of s with credentials masked, for printing.
func (s Settings) Redacted() Settings {
	mask := func(v *string) {
		if *v != "" {
			*v = redacted
		}
	}
	mask(&s.MQTT.Password)
	mask(&s.Redis.Password)
	mask(&s.Sentry.DSN)
	mask(&s.Oracle.PostGISDSN)
	if s.Database.Driver != "sqlite" {
		mask(&s.Database.DSN)
	}
	s.Kafka.Brokers = slices.Clone(s.Kafka.Brokers)
	s.Pipeline.Sinks = slices.Clone(s.Pipeline.Sinks)
	return s
}
