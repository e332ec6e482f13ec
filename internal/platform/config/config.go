// Package config loads and validates the service configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:""`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// RedisURL selects the redis-backed token verifier when set; empty
	// falls back to the static AUTH_TOKENS verifier.
	RedisURL   string `env:"REDIS_URL" default:""`
	AuthTokens string `env:"AUTH_TOKENS" default:""`

	MaxConnections    int           `env:"MAX_CONNECTIONS" default:"10000"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" default:"1m"`
	InactivityTimeout time.Duration `env:"INACTIVITY_TIMEOUT" default:"5m"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", cfg.SweepInterval)
	}
	if cfg.InactivityTimeout <= cfg.SweepInterval {
		return fmt.Errorf("INACTIVITY_TIMEOUT (%s) must exceed SWEEP_INTERVAL (%s)", cfg.InactivityTimeout, cfg.SweepInterval)
	}
	if cfg.RedisURL == "" && cfg.AuthTokens == "" {
		return fmt.Errorf("either REDIS_URL or AUTH_TOKENS must be set")
	}
	if cfg.AuthTokens != "" {
		if _, err := ParseStaticTokens(cfg.AuthTokens); err != nil {
			return err
		}
	}
	return nil
}

// ParseStaticTokens parses the AUTH_TOKENS value, a comma-separated list
// of token:userID pairs, e.g. "s3cret:alice,t0ken:bob".
func ParseStaticTokens(raw string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, userID, ok := strings.Cut(pair, ":")
		if !ok || token == "" || userID == "" {
			return nil, fmt.Errorf("AUTH_TOKENS entry %q must be token:userID", pair)
		}
		tokens[token] = userID
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("AUTH_TOKENS contains no valid entries")
	}
	return tokens, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
