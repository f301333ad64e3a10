package conf

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes "5m"-style strings in
// JSON, YAML and viper-decoded config. Bare numbers are taken as seconds,
// which is how operators write cooldowns and retention windows in env vars.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Seconds returns the duration in whole seconds.
func (d Duration) Seconds() int64 {
	return int64(time.Duration(d) / time.Second)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := parseDurationValue(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", node.Kind)
	}
	parsed, err := parseDurationValue(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func parseDurationValue(v any) (Duration, error) {
	switch value := v.(type) {
	case nil:
		return 0, nil
	case string:
		if parsed, err := time.ParseDuration(value); err == nil {
			return Duration(parsed), nil
		}
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			return Duration(time.Duration(secs * float64(time.Second))), nil
		}
		return 0, fmt.Errorf("invalid duration %q: expected a value like \"30s\" or \"5m\"", value)
	case float64:
		return Duration(time.Duration(value * float64(time.Second))), nil
	case int:
		return Duration(time.Duration(value) * time.Second), nil
	case int64:
		return Duration(time.Duration(value) * time.Second), nil
	default:
		return 0, fmt.Errorf("invalid duration value %v (%T)", v, v)
	}
}

var durationType = reflect.TypeFor[Duration]()

// DurationDecodeHook lets viper decode config strings into Duration fields
// while keeping mapstructure's stock hooks for time.Duration and comma lists.
func DurationDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(func(_, to reflect.Type, data any) (any, error) {
			if to != durationType {
				return data, nil
			}
			return parseDurationValue(data)
		}),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
