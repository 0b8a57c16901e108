// Package config loads shopcore runtime configuration from defaults, an optional config
// file and SHOPCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: SHOPCORE_CACHE_BACKEND=sqlite.
const EnvPrefix = "SHOPCORE"

const (
	// CacheBackendMemory keeps query results in process memory.
	CacheBackendMemory = "memory"
	// CacheBackendSQLite stores query results in a sqlite database.
	CacheBackendSQLite = "sqlite"
	// CacheBackendNATS stores query results in a JetStream key-value bucket.
	CacheBackendNATS = "nats"
)

const (
	// ExporterNone disables trace export.
	ExporterNone = "none"
	// ExporterStdout prints finished spans as JSON.
	ExporterStdout = "stdout"
	// ExporterSQLite persists finished spans next to the application data.
	ExporterSQLite = "sqlite"
)

// Config is the runtime configuration.
type Config struct {
	// File is the config file that was read, empty when none was found.
	File      string          `mapstructure:"-"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Users     UsersConfig     `mapstructure:"users"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig points at the application database.
type StorageConfig struct {
	DSN string `mapstructure:"dsn"`
}

// CacheConfig selects and tunes the query cache backend.
type CacheConfig struct {
	Backend         string        `mapstructure:"backend"`
	Codec           string        `mapstructure:"codec"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
	// DSN is the sqlite cache database. Empty shares the storage database.
	DSN  string     `mapstructure:"dsn"`
	NATS NATSConfig `mapstructure:"nats"`
}

// NATSConfig configures the JetStream key-value cache backend.
type NATSConfig struct {
	URL    string `mapstructure:"url"`
	Bucket string `mapstructure:"bucket"`
	// Embedded starts an in-process server instead of dialing URL.
	Embedded bool          `mapstructure:"embedded"`
	StoreDir string        `mapstructure:"store_dir"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	// Replicas is the bucket replication factor, applied when the bucket is created.
	Replicas int `mapstructure:"replicas"`
}

// TelemetryConfig controls tracing and metrics.
type TelemetryConfig struct {
	Exporter    string  `mapstructure:"exporter"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
	// Retention bounds how long spans stay in the sqlite exporter.
	Retention time.Duration `mapstructure:"retention"`
}

// UsersConfig tunes account handling.
type UsersConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

var defaultConfig = Config{
	Log: LogConfig{
		Level:  "info",
		Format: "console",
	},
	Storage: StorageConfig{
		DSN: "shopcore.db",
	},
	Cache: CacheConfig{
		Backend:         CacheBackendMemory,
		Codec:           "json",
		JanitorInterval: time.Minute,
		NATS: NATSConfig{
			URL:      "nats://127.0.0.1:4222",
			Bucket:   "shopcore_cache",
			Replicas: 1,
		},
	},
	Telemetry: TelemetryConfig{
		Exporter:    ExporterNone,
		SampleRate:  1.0,
		Environment: "development",
		Retention:   24 * time.Hour,
	},
	Users: UsersConfig{
		BcryptCost: 12,
	},
}

// Default returns a copy of the built-in defaults.
func Default() Config {
	return defaultConfig
}

// Load merges defaults, the config file at path (if any) and environment overrides,
// in that order. An empty path looks for shopcore.{toml,yaml,json} in the working
// directory; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("shopcore")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || (!errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", defaultConfig.Log.Level)
	v.SetDefault("log.format", defaultConfig.Log.Format)

	v.SetDefault("storage.dsn", defaultConfig.Storage.DSN)

	v.SetDefault("cache.backend", defaultConfig.Cache.Backend)
	v.SetDefault("cache.codec", defaultConfig.Cache.Codec)
	v.SetDefault("cache.janitor_interval", defaultConfig.Cache.JanitorInterval)
	v.SetDefault("cache.dsn", defaultConfig.Cache.DSN)
	v.SetDefault("cache.nats.url", defaultConfig.Cache.NATS.URL)
	v.SetDefault("cache.nats.bucket", defaultConfig.Cache.NATS.Bucket)
	v.SetDefault("cache.nats.embedded", defaultConfig.Cache.NATS.Embedded)
	v.SetDefault("cache.nats.store_dir", defaultConfig.Cache.NATS.StoreDir)
	v.SetDefault("cache.nats.max_age", defaultConfig.Cache.NATS.MaxAge)
	v.SetDefault("cache.nats.replicas", defaultConfig.Cache.NATS.Replicas)

	v.SetDefault("telemetry.exporter", defaultConfig.Telemetry.Exporter)
	v.SetDefault("telemetry.sample_rate", defaultConfig.Telemetry.SampleRate)
	v.SetDefault("telemetry.environment", defaultConfig.Telemetry.Environment)
	v.SetDefault("telemetry.retention", defaultConfig.Telemetry.Retention)

	v.SetDefault("users.bcrypt_cost", defaultConfig.Users.BcryptCost)
}
