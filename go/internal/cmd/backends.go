package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/musicbingo/go/internal/config"
	"github.com/mcdev12/musicbingo/go/internal/live/broadcast"
	"github.com/mcdev12/musicbingo/go/internal/live/kv"
	"github.com/mcdev12/musicbingo/go/internal/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Backends are the shared resources every runtime in the process uses.
type Backends struct {
	Sessions sessions.Source
	Store    kv.Store
	Bus      broadcast.Channel

	closers []func()
}

// Close releases everything in reverse order of opening.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func setupBackends(ctx context.Context, cfg config.Config) (*Backends, error) {
	b := &Backends{}
	var rdb *redis.Client
	redisClient := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		b.closers = append(b.closers, func() { rdb.Close() })
		return rdb, nil
	}

	if err := b.setupSessions(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}

	switch cfg.Store {
	case config.BackendMemory:
		b.Store = kv.NewMemory()
	case config.BackendRedis:
		client, err := redisClient()
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Store = kv.NewRedis(client)
	case config.BackendPostgres:
		db, err := setupDatabase(ctx, cfg.DB)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { db.Close() })
		store := kv.NewPostgres(db)
		if err := store.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Store = store
	}

	switch cfg.Bus {
	case config.BackendMemory:
		b.Bus = broadcast.NewMemory()
	case config.BackendRedis:
		client, err := redisClient()
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Bus = broadcast.NewRedis(client)
	case config.BackendNATS:
		natsCfg := broadcast.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		bus, err := broadcast.ConnectNATS(natsCfg)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { bus.Close() })
		b.Bus = bus
	}

	log.Info().
		Str("sessions", cfg.SessionSource).
		Str("store", cfg.Store).
		Str("bus", cfg.Bus).
		Msg("backends ready")
	return b, nil
}

func (b *Backends) setupSessions(ctx context.Context, cfg config.Config) error {
	switch cfg.SessionSource {
	case config.BackendPostgres:
		pool, err := setupPool(ctx, cfg.DB)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, pool.Close)
		b.Sessions = sessions.NewPostgresSource(pool)
	default:
		b.Sessions = sessions.NewFileSource(cfg.SessionsFile)
	}
	return nil
}
