package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/foodcart/pkg/config"
	"github.com/utafrali/foodcart/pkg/tracing"
)

// Config holds all configuration for the storefront.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"5173"`

	// Food API
	APIURL        string        `env:"STOREFRONT_API_URL" envDefault:"http://localhost:4000"`
	APITimeout    time.Duration `env:"STOREFRONT_API_TIMEOUT" envDefault:"30s"`
	APIMaxRetries int           `env:"STOREFRONT_API_MAX_RETRIES" envDefault:"0"`

	BreakerEnabled     bool `env:"STOREFRONT_BREAKER_ENABLED" envDefault:"false"`
	ReconcileOnFailure bool `env:"STOREFRONT_RECONCILE_ON_FAILURE" envDefault:"false"`

	// Session token. STOREFRONT_TOKEN wins over Redis when both are set.
	Token    string `env:"STOREFRONT_TOKEN" envDefault:""`
	TokenKey string `env:"STOREFRONT_TOKEN_KEY" envDefault:"token"`

	// Redis (token storage). Empty address disables it.
	RedisAddr string `env:"REDIS_ADDR" envDefault:""`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka (notification events). No brokers disables it.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	NotifyTopic  string   `env:"STOREFRONT_NOTIFY_TOPIC" envDefault:"storefront.cart.notifications"`

	// Size of the in-memory notification feed.
	FeedSize int `env:"STOREFRONT_FEED_SIZE" envDefault:"100"`

	Tracing tracing.Config `envPrefix:"OTEL_"`
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
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("STOREFRONT_API_URL must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("STOREFRONT_API_TIMEOUT must be positive, got %s", c.APITimeout)
	}
	if c.APIMaxRetries < 0 {
		return fmt.Errorf("STOREFRONT_API_MAX_RETRIES must not be negative, got %d", c.APIMaxRetries)
	}
	if c.FeedSize < 1 {
		return fmt.Errorf("STOREFRONT_FEED_SIZE must be at least 1, got %d", c.FeedSize)
	}
	if len(c.KafkaBrokers) > 0 && c.NotifyTopic == "" {
		return fmt.Errorf("STOREFRONT_NOTIFY_TOPIC is required when KAFKA_BROKERS is set")
	}
	return c.Tracing.Validate()
}
