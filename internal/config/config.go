// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config holds runtime-tunable values. It is validated once at process start.
type Config struct {
	Port     string `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	DeckPath string `env:"DECK_PATH,default=decks/sample.yaml"`

	TurnDuration   time.Duration `env:"TURN_DURATION,default=30s"`
	RevealDuration time.Duration `env:"REVEAL_DURATION,default=5s"`
	WinCardCount   int           `env:"WIN_CARD_COUNT,default=10"`
	MinPlayers     int           `env:"MIN_PLAYERS,default=1"`

	TerminationTTL time.Duration `env:"TERMINATION_TTL,default=15m"`
	TeardownDelay  time.Duration `env:"TEARDOWN_DELAY,default=500ms"`

	// Both paths must be set to sign sessions with a fixed key pair.
	SessionPrivateKeyPath string `env:"SESSION_PRIVATE_KEY_PATH"`
	SessionPublicKeyPath  string `env:"SESSION_PUBLIC_KEY_PATH"`

	RedisAddr      string `env:"REDIS_ADDR"`
	RedisDB        int    `env:"REDIS_DB,default=0"`
	TelemetryQueue string `env:"TELEMETRY_QUEUE,default=hitline_telemetry"`

	DatabaseURL            string        `env:"DATABASE_URL"`
	HistorianBatchSize     int           `env:"HISTORIAN_BATCH_SIZE,default=20"`
	HistorianFlushInterval time.Duration `env:"HISTORIAN_FLUSH_INTERVAL,default=500ms"`
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Load decodes the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every duration and count is positive.
func (c *Config) Validate() error {
	durations := map[string]time.Duration{
		"TURN_DURATION":   c.TurnDuration,
		"REVEAL_DURATION": c.RevealDuration,
		"TERMINATION_TTL": c.TerminationTTL,
		"TEARDOWN_DELAY":  c.TeardownDelay,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalid, name, d)
		}
	}
	if c.WinCardCount <= 0 {
		return fmt.Errorf("%w: WIN_CARD_COUNT must be positive, got %d", ErrInvalid, c.WinCardCount)
	}
	if c.MinPlayers <= 0 {
		return fmt.Errorf("%w: MIN_PLAYERS must be positive, got %d", ErrInvalid, c.MinPlayers)
	}
	if (c.SessionPrivateKeyPath == "") != (c.SessionPublicKeyPath == "") {
		return fmt.Errorf("%w: SESSION_PRIVATE_KEY_PATH and SESSION_PUBLIC_KEY_PATH must be set together", ErrInvalid)
	}
	return nil
}
