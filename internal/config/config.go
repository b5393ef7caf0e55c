// Package config loads process configuration from SENTINEL_* variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const prefix = "SENTINEL"

// Config holds every setting of the API server.
type Config struct {
	Env     string `envconfig:"ENV" default:"development"`
	Version string `envconfig:"VERSION" default:"dev"`
	Commit  string `envconfig:"COMMIT" default:"none"`

	HTTPAddr          string        `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr          string        `envconfig:"GRPC_ADDR" default:":9090"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	HealthInterval    time.Duration `envconfig:"HEALTH_INTERVAL" default:"10s"`
	MaxBodyBytes      int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	RateBurst         int           `envconfig:"RATE_BURST" default:"50"`
	RatePerSecond     int           `envconfig:"RATE_PER_SECOND" default:"20"`
	InvalidTokenDelay time.Duration `envconfig:"INVALID_TOKEN_DELAY" default:"50ms"`

	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is honoured.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	PGDSN string `envconfig:"PG_DSN" required:"true"`

	CookieSecret string        `envconfig:"COOKIE_SECRET"`
	CookieTTL    time.Duration `envconfig:"COOKIE_TTL" default:"720h"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PGDSN == "" {
		return errors.New("pg dsn must be provided")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}
	if c.RateBurst <= 0 || c.RatePerSecond <= 0 {
		return errors.New("rate limit must be positive")
	}
	if c.HealthInterval <= 0 {
		return errors.New("health interval must be positive")
	}
	for _, p := range c.TrustedProxies {
		if !validProxy(p) {
			return fmt.Errorf("trusted proxy %q is neither an address nor a CIDR", p)
		}
	}
	if c.InvalidTokenDelay < 0 {
		return errors.New("invalid token delay must not be negative")
	}
	if c.CookieSecret != "" && len(c.CookieSecret) < 32 {
		return fmt.Errorf("cookie secret must be at least 32 bytes, got %d", len(c.CookieSecret))
	}
	if c.IsProduction() && c.CookieSecret == "" {
		return errors.New("cookie secret must be provided in production")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// CookiesEnabled reports whether the signed session cookie is configured.
func (c *Config) CookiesEnabled() bool {
	return c.CookieSecret != ""
}

func validProxy(s string) bool {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
