// Package config loads process configuration from .env and the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mcdev12/musicbingo/go/internal/dbconfig"
	"github.com/rs/zerolog/log"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendNATS     = "nats"
	BackendFile     = "file"
)

// Config is shared by the host and guest commands.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	SessionSource string `env:"SESSION_SOURCE" envDefault:"file"`
	SessionsFile  string `env:"SESSIONS_FILE" envDefault:"sessions.yaml"`

	Store    string `env:"LIVE_STORE" envDefault:"memory"`
	Bus      string `env:"LIVE_BUS" envDefault:"memory"`
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	NATSURL  string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	PlaybackURL   string `env:"PLAYBACK_URL" envDefault:"http://localhost:3000"`
	PlaybackToken string `env:"PLAYBACK_TOKEN"`

	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	HeartbeatInterval time.Duration `env:"LOCK_HEARTBEAT_INTERVAL" envDefault:"10s"`
	StaleAfter        time.Duration `env:"LOCK_STALE_AFTER" envDefault:"30s"`
	ResyncInterval    time.Duration `env:"RESYNC_INTERVAL" envDefault:"2s"`

	DB dbconfig.Config
}

// Load reads .env if present and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects unknown backends and non-positive intervals.
func (c Config) Validate() error {
	switch c.SessionSource {
	case BackendFile, BackendPostgres:
	default:
		return fmt.Errorf("unknown SESSION_SOURCE %q", c.SessionSource)
	}
	switch c.Store {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown LIVE_STORE %q", c.Store)
	}
	switch c.Bus {
	case BackendMemory, BackendRedis, BackendNATS:
	default:
		return fmt.Errorf("unknown LIVE_BUS %q", c.Bus)
	}
	for name, d := range map[string]time.Duration{
		"POLL_INTERVAL":           c.PollInterval,
		"LOCK_HEARTBEAT_INTERVAL": c.HeartbeatInterval,
		"LOCK_STALE_AFTER":        c.StaleAfter,
		"RESYNC_INTERVAL":         c.ResyncInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.StaleAfter <= c.HeartbeatInterval {
		return fmt.Errorf("LOCK_STALE_AFTER %s must exceed LOCK_HEARTBEAT_INTERVAL %s", c.StaleAfter, c.HeartbeatInterval)
	}
	return nil
}
