package config

import (
	"errors"
	"fmt"

	"github.com/plaenen/shopcore/pkg/password"
)

// maxNATSReplicas is the largest replication factor JetStream accepts.
const maxNATSReplicas = 5

// Validate checks every section and joins the failures.
func (c *Config) Validate() error {
	return errors.Join(
		c.Log.Validate(),
		c.Cache.Validate(),
		c.Telemetry.Validate(),
		c.Users.Validate(),
	)
}

func (c LogConfig) Validate() error {
	switch c.Format {
	case "text", "json", "console":
	default:
		return fmt.Errorf("invalid log.format %q (allowed: text, json, console)", c.Format)
	}
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log.level %q (allowed: debug, info, warn, error)", c.Level)
	}
}

func (c CacheConfig) Validate() error {
	switch c.Backend {
	case CacheBackendMemory, CacheBackendSQLite:
	case CacheBackendNATS:
		if c.NATS.Bucket == "" {
			return errors.New("cache.nats.bucket is required for the nats backend")
		}
		if !c.NATS.Embedded && c.NATS.URL == "" {
			return errors.New("cache.nats.url is required unless cache.nats.embedded=true")
		}
		if c.NATS.Replicas < 1 || c.NATS.Replicas > maxNATSReplicas {
			return fmt.Errorf("cache.nats.replicas must be within [1, %d], got %d", maxNATSReplicas, c.NATS.Replicas)
		}
	default:
		return fmt.Errorf("invalid cache.backend %q (allowed: %q, %q, %q)",
			c.Backend, CacheBackendMemory, CacheBackendSQLite, CacheBackendNATS)
	}
	switch c.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("invalid cache.codec %q (allowed: json, cbor)", c.Codec)
	}
	if c.JanitorInterval <= 0 {
		return errors.New("cache.janitor_interval must be positive")
	}
	return nil
}

func (c TelemetryConfig) Validate() error {
	switch c.Exporter {
	case ExporterNone, ExporterStdout, ExporterSQLite:
	default:
		return fmt.Errorf("invalid telemetry.exporter %q (allowed: %q, %q, %q)",
			c.Exporter, ExporterNone, ExporterStdout, ExporterSQLite)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0, 1], got %v", c.SampleRate)
	}
	return nil
}

func (c UsersConfig) Validate() error {
	if c.BcryptCost < password.MinCost || c.BcryptCost > password.MaxCost {
		return fmt.Errorf("users.bcrypt_cost must be within [%d, %d], got %d",
			password.MinCost, password.MaxCost, c.BcryptCost)
	}
	return nil
}
