// Package config loads pwdedup's run configuration from CLI flags and
// environment variables, in that order of precedence, with built-in
// defaults underneath both. There is no configuration file: a batch
// tool invoked once per run has nothing worth persisting between
// invocations.
package config

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pwdedup/pwdedup/internal/bytesize"
	"github.com/pwdedup/pwdedup/internal/recordstore"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// PWDEDUP_WORKERS.
const envPrefix = "PWDEDUP"

// Config is pwdedup's full run configuration.
type Config struct {
	Workers     int               `mapstructure:"workers" validate:"gte=0"`
	SizeHint    bytesize.ByteSize `mapstructure:"size-hint" validate:"gt=0,pagealigned"`
	SlabBytes   bytesize.ByteSize `mapstructure:"slab-bytes" validate:"gt=0"`
	TempDir     string            `mapstructure:"temp-dir"`
	LogLevel    string            `mapstructure:"log-level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	LogFormat   string            `mapstructure:"log-format" validate:"required,oneof=text json"`
	MetricsFile string            `mapstructure:"metrics-file"`
}

// Default returns the built-in defaults, used for any field neither a
// flag nor an environment variable sets.
func Default() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		SizeHint:    bytesize.ByteSize(512 * 4096),
		SlabBytes:   bytesize.ByteSize(recordstore.DefaultSlabBytes),
		TempDir:     "",
		LogLevel:    "INFO",
		LogFormat:   "text",
		MetricsFile: "",
	}
}

// configKeys lists every field's viper key, used to register defaults
// and environment bindings. Kept in struct order for readability.
var configKeys = []string{
	"workers", "size-hint", "slab-bytes", "temp-dir",
	"log-level", "log-format", "metrics-file",
}

// Load builds a Config from flags, then environment variables
// (PWDEDUP_*), then defaults, and validates the result. flags should
// already have been parsed by Cobra by the time Load is called.
//
// Viper's AutomaticEnv only affects explicit Get calls, not
// Unmarshal, so every key is bound individually with BindEnv; an
// explicit v.Set for a changed flag outranks both the env binding and
// the registered default, giving the required flags > env > defaults
// precedence.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setupViper(v, flags)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, flags *pflag.FlagSet) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	def := Default()
	v.SetDefault("workers", def.Workers)
	v.SetDefault("size-hint", def.SizeHint)
	v.SetDefault("slab-bytes", def.SlabBytes)
	v.SetDefault("temp-dir", def.TempDir)
	v.SetDefault("log-level", def.LogLevel)
	v.SetDefault("log-format", def.LogFormat)
	v.SetDefault("metrics-file", def.MetricsFile)

	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}

	if flags == nil {
		return
	}
	flags.Visit(func(f *pflag.Flag) {
		v.Set(f.Name, f.Value.String())
	})
}

// decodeHooks composes the decode hooks needed to turn flag/env string
// values into their typed Config fields.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numeric types to
// bytesize.ByteSize, so "--slab-bytes 256KiB" and
// PWDEDUP_SLAB_BYTES=256KiB both work.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}
