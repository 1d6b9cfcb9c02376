// Package config loads service settings from defaults, an optional YAML file
// and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the service reads at startup
type Config struct {
	Port string `yaml:"port"`

	Store struct {
		Driver string `yaml:"driver"` // memory, sqlite, postgres or mysql
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`

	Redis struct {
		Addr    string `yaml:"addr"`
		Channel string `yaml:"channel"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	AdminEmails    []string `yaml:"admin_emails"`
	MaxBidAttempts int      `yaml:"max_bid_attempts"`
	LogLevel       string   `yaml:"log_level"`
	CORSOrigins    []string `yaml:"cors_origins"`
	SeedDemoItems  bool     `yaml:"seed_demo_items"`
}

// Default returns the settings used when nothing is configured
func Default() Config {
	var c Config
	c.Port = "8080"
	c.Store.Driver = "memory"
	c.Redis.Channel = "auction-changes"
	c.Auth.TokenTTL = 24 * time.Hour
	c.MaxBidAttempts = 5
	c.LogLevel = "info"
	c.CORSOrigins = []string{"*"}
	return c
}

// Load builds the configuration from the environment. AUCTION_CONFIG names an
// optional YAML file applied before the individual variables.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(getenv("AUCTION_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &cfg.Port)
	str("STORE_DRIVER", &cfg.Store.Driver)
	str("STORE_DSN", &cfg.Store.DSN)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_CHANNEL", &cfg.Redis.Channel)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("LOG_LEVEL", &cfg.LogLevel)

	if v := getenv("ADMIN_EMAILS"); strings.TrimSpace(v) != "" {
		cfg.AdminEmails = splitList(v)
	}
	if v := getenv("CORS_ORIGINS"); strings.TrimSpace(v) != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if v := strings.TrimSpace(getenv("MAX_BID_ATTEMPTS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: MAX_BID_ATTEMPTS: %w", err)
		}
		cfg.MaxBidAttempts = n
	}
	if v := strings.TrimSpace(getenv("SEED_DEMO_ITEMS")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: SEED_DEMO_ITEMS: %w", err)
		}
		cfg.SeedDemoItems = b
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("config: port %q is not a number", c.Port)
	}
	switch strings.ToLower(c.Store.Driver) {
	case "memory":
	case "sqlite", "postgres", "postgresql", "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store driver %s needs a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.MaxBidAttempts < 1 {
		return fmt.Errorf("config: max bid attempts must be at least 1, got %d", c.MaxBidAttempts)
	}
	return nil
}

// Addr is the listen address for the HTTP server
func (c Config) Addr() string {
	return ":" + c.Port
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
