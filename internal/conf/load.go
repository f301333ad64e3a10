package conf

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/truckwatch/fleet-alerts/internal/errors"
)

// EnvPrefix namespaces environment overrides, e.g. FLEETALERTS_KAFKA_BROKERS.
const EnvPrefix = "FLEETALERTS"

// setDefaults registers every key so that env-only configuration works.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", ":8085")

	v.SetDefault("alerting.default_speed_limit", 100.0)
	v.SetDefault("alerting.cooldown", "5m")
	v.SetDefault("alerting.cooldown_cleanup_interval", "1m")
	v.SetDefault("alerting.cooldown_backend", "memory")
	v.SetDefault("alerting.geofence_retention", "24h")
	v.SetDefault("alerting.geofence_sweep_interval", "10m")
	v.SetDefault("alerting.emit_initial_enter", false)
	v.SetDefault("alerting.rule_refresh_interval", "1m")
	v.SetDefault("alerting.oracle_timeout", "2s")
	v.SetDefault("alerting.publish_timeout", "5s")
	v.SetDefault("alerting.idle_speed", 3.0)
	v.SetDefault("alerting.idle_duration", "15m")
	v.SetDefault("alerting.offline_after", "30m")
	v.SetDefault("alerting.offline_check_interval", "1m")
	v.SetDefault("alerting.directory_cache_ttl", "5m")

	v.SetDefault("pipeline.source", "kafka")
	v.SetDefault("pipeline.sinks", []string{"kafka"})
	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.queue_size", 256)
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.batch_timeout", "1s")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.position_topic", "truck.positions")
	v.SetDefault("kafka.alert_topic", "truck.alerts")
	v.SetDefault("kafka.group_id", "fleet-alerts")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "fleet-alerts")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.position_topic", "fleet/+/position")
	v.SetDefault("mqtt.alert_topic", "fleet/alerts")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "fleet-alerts")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:fleet.db?_foreign_keys=ON")

	v.SetDefault("oracle.kind", "local")
	v.SetDefault("oracle.postgis_dsn", "")
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.rate_limit", 200.0)
	v.SetDefault("oracle.burst", 50)
	v.SetDefault("oracle.shape_ttl", "10m")
	v.SetDefault("oracle.http_timeout", "2s")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.sample_rate", 1.0)
}

// Load reads configuration from defaults, an optional YAML file, an optional
// .env file and the environment, in increasing priority, then validates it.
func Load(configFile string) (*Settings, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Newf("load .env: %w", err).Component("conf").Category(errors.CategoryConfig).Build()
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Newf("read config %s: %w", configFile, err).
				Component("conf").
				Category(errors.CategoryConfig).
				Build()
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, errors.Newf("decode config: %w", err).Component("conf").Category(errors.CategoryConfig).Build()
	}
	normalize(settings)

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Defaults returns the built-in configuration without reading any file or env.
func Defaults() *Settings {
	v := viper.New()
	setDefaults(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		panic(fmt.Sprintf("built-in defaults do not decode: %v", err))
	}
	normalize(settings)
	return settings
}

// normalize trims list entries that arrive as a single comma-joined env var.
func normalize(s *Settings) {
	s.Kafka.Brokers = splitList(s.Kafka.Brokers)
	s.Pipeline.Sinks = splitList(s.Pipeline.Sinks)
	for i := range s.Pipeline.Sinks {
		s.Pipeline.Sinks[i] = strings.ToLower(s.Pipeline.Sinks[i])
	}
	s.Pipeline.Source = strings.ToLower(strings.TrimSpace(s.Pipeline.Source))
	s.Oracle.Kind = strings.ToLower(strings.TrimSpace(s.Oracle.Kind))
	s.Alerting.CooldownBackend = strings.ToLower(strings.TrimSpace(s.Alerting.CooldownBackend))
	if s.Pipeline.BatchTimeout.Std() <= 0 {
		s.Pipeline.BatchTimeout = Duration(time.Second)
	}
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for part := range strings.SplitSeq(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
