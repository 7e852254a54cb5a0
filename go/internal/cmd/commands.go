package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/musicbingo/go/clients/playback"
	"github.com/mcdev12/musicbingo/go/internal/config"
	"github.com/mcdev12/musicbingo/go/internal/live/gateway"
	"github.com/mcdev12/musicbingo/go/internal/live/guest"
	"github.com/mcdev12/musicbingo/go/internal/live/host"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
	"github.com/rs/zerolog/log"
)

type HostCmd struct {
	Sessions []string `arg:"" name:"session" help:"Session ids to host."`
	TabID    string   `help:"Instance id used as the lock owner. Random when empty." env:"TAB_ID"`
}

type GuestCmd struct {
	Sessions []string `arg:"" name:"session" help:"Session ids to follow."`
}

func tabID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (c *HostCmd) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	ctx := context.Background()
	backends, err := setupBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer backends.Close()

	tab := tabID(c.TabID)
	adapter := playback.NewClient(cfg.PlaybackURL, cfg.PlaybackToken)
	clock := clockwork.NewRealClock()
	svc := gateway.NewService(gateway.Config{
		ConnectionConfig: gateway.DefaultConnectionConfig(),
		HostWindow:       cfg.StaleAfter,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var started []*host.Session
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		for _, s := range started {
			s.Close(closeCtx)
		}
	}()

	for _, id := range c.Sessions {
		sc, err := backends.Sessions.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("session %s: %w", id, err)
		}
		sess := host.NewSession(host.Config{
			TabID:             tab,
			PollInterval:      cfg.PollInterval,
			HeartbeatInterval: cfg.HeartbeatInterval,
			StaleAfter:        cfg.StaleAfter,
			ResyncInterval:    cfg.ResyncInterval,
		}, sc, backends.Store, backends.Bus, adapter, clock)
		if err := sess.Start(runCtx); err != nil {
			return fmt.Errorf("session %s: %w", id, err)
		}
		started = append(started, sess)
		svc.Register(gateway.Runtime{Store: sess.Store(), Follower: sess.Follower(), Host: sess})
	}

	log.Info().Str("tab_id", tab).Strs("sessions", c.Sessions).Msg("host instance running")
	return serve(runCtx, cfg.Port, svc)
}

func (c *GuestCmd) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	ctx := context.Background()
	backends, err := setupBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer backends.Close()

	tab := uuid.NewString()
	clock := clockwork.NewRealClock()
	svc := gateway.NewService(gateway.Config{
		ConnectionConfig: gateway.DefaultConnectionConfig(),
		HostWindow:       cfg.StaleAfter,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, id := range c.Sessions {
		if _, err := backends.Sessions.Get(ctx, id); err != nil {
			return fmt.Errorf("session %s: %w", id, err)
		}
		store := runtime.NewStore(id, tab, backends.Store, backends.Bus, clock)
		if _, err := store.Load(ctx); err != nil {
			return fmt.Errorf("session %s: %w", id, err)
		}
		follower := guest.NewFollower(store, backends.Bus, clock, cfg.ResyncInterval)
		if err := follower.Start(runCtx); err != nil {
			return fmt.Errorf("session %s: %w", id, err)
		}
		defer follower.Stop()
		svc.Register(gateway.Runtime{Store: store, Follower: follower})
	}

	log.Info().Str("tab_id", tab).Strs("sessions", c.Sessions).Msg("guest instance running")
	return serve(runCtx, cfg.Port, svc)
}
