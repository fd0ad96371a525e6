package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/condorshop/storefront/internal/domain"
	pkgconfig "github.com/condorshop/storefront/pkg/config"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`

	// Backend REST API
	BackendBaseURL string `env:"BACKEND_BASE_URL" envDefault:"http://localhost:9000"`

	// Redis (persisted cart items)
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Persisted cart TTL in hours (default: 7 days)
	CartTTLHours int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Debounce window for quantity edits, in milliseconds
	DebounceMillis int `env:"CART_DEBOUNCE_MS" envDefault:"300"`

	// In-memory shopper session idle eviction, in minutes
	SessionIdleMinutes int `env:"SESSION_IDLE_MINUTES" envDefault:"30"`

	// Shipping policy (cents)
	FreeShippingThreshold int64 `env:"FREE_SHIPPING_THRESHOLD" envDefault:"50000"`
	FlatShippingRate      int64 `env:"FLAT_SHIPPING_RATE" envDefault:"4900"`

	// Kafka; empty broker list disables event publishing
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if u, err := url.Parse(c.BackendBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend base URL: %q", c.BackendBaseURL)
	}
	if c.DebounceMillis < 0 {
		return fmt.Errorf("debounce must not be negative: %d", c.DebounceMillis)
	}
	if c.FreeShippingThreshold < 0 || c.FlatShippingRate < 0 {
		return fmt.Errorf("shipping policy values must not be negative")
	}
	return nil
}

// Debounce returns the debounce window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMillis) * time.Millisecond
}

// CartTTL returns the persisted cart TTL as a duration.
func (c *Config) CartTTL() time.Duration {
	return time.Duration(c.CartTTLHours) * time.Hour
}

// SessionIdleTTL returns the session idle eviction TTL as a duration.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// ShippingPolicy returns the configured shipping policy.
func (c *Config) ShippingPolicy() domain.ShippingPolicy {
	return domain.ShippingPolicy{
		FreeShippingThreshold: c.FreeShippingThreshold,
		FlatRate:              c.FlatShippingRate,
	}
}

// EventsEnabled reports whether Kafka event publishing is configured.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaBrokers[0] != ""
}
