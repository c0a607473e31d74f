// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration
type Config struct {
	Port        string `env:"PORT" envDefault:"3000"`
	UseMockData bool   `env:"USE_MOCK_DATA" envDefault:"true"`
	RedisAddr   string `env:"REDIS_ADDR"`
	SentryDSN   string `env:"SENTRY_DSN"`

	Mock    MockConfig
	Genesys GenesysConfig
	Fetch   FetchConfig
	Cache   CacheConfig
	Log     LogConfig
}

// MockConfig controls generated data
type MockConfig struct {
	UserCount int   `env:"MOCK_USER_COUNT" envDefault:"100" validate:"gte=1,lte=100000"`
	Seed      int64 `env:"MOCK_SEED" envDefault:"42"`
}

// GenesysConfig holds upstream API credentials
type GenesysConfig struct {
	Region       string `env:"REGION" envDefault:"us-west-2"`
	Organization string `env:"ORGANIZATION"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// FetchConfig bounds upstream calls
type FetchConfig struct {
	PageSize          int           `env:"PAGE_SIZE" envDefault:"100" validate:"gte=1,lte=500"`
	MaxPages          int           `env:"MAX_PAGES" envDefault:"0" validate:"gte=0"`
	MaxRetries        int           `env:"MAX_RETRIES" envDefault:"3" validate:"gte=0,lte=10"`
	RetryDelay        time.Duration `env:"RETRY_DELAY" envDefault:"1s" validate:"gte=0"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s" validate:"gte=0"`
	MemberConcurrency int           `env:"MEMBER_CONCURRENCY" envDefault:"4" validate:"gte=1,lte=32"`
	MemberFetchDelay  time.Duration `env:"MEMBER_FETCH_DELAY" envDefault:"100ms" validate:"gte=0"`
}

// CacheConfig controls snapshot storage and refresh
type CacheConfig struct {
	TTL             time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	Dir             string        `env:"OUTPUT_DIR" envDefault:"data"`
	Backend         string        `env:"STORE_BACKEND" envDefault:"file" validate:"oneof=file postgres"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	RefreshTimeout  time.Duration `env:"REFRESH_TIMEOUT" envDefault:"5m" validate:"gt=0"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL"`
}

// LogConfig controls the root logger
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error"`
	Format string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json console"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// HasGenesys returns true if upstream credentials are complete
func (c *Config) HasGenesys() bool {
	return c.Genesys.ClientID != "" && c.Genesys.ClientSecret != ""
}

// Mode names the data source in use.
func (c *Config) Mode() string {
	if c.UseMockData {
		return "mock"
	}
	return "genesys"
}

// RefreshEvery returns how often the worker warms the cache.
func (c *Config) RefreshEvery() time.Duration {
	if c.Cache.RefreshInterval > 0 {
		return c.Cache.RefreshInterval
	}
	if c.Cache.TTL > 0 {
		return c.Cache.TTL
	}
	return time.Hour
}

// Validate checks field ranges and the settings each mode depends on
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !c.UseMockData && !c.HasGenesys() {
		return fmt.Errorf("USE_MOCK_DATA=false requires CLIENT_ID and CLIENT_SECRET")
	}
	if c.Cache.Backend == "postgres" && c.Cache.DatabaseURL == "" {
		return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
	}
	return nil
}
