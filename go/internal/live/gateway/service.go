// Package gateway serves the live runtime to browsers: websocket fan-out for
// guest displays and a small JSON API for the host controls.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/mcdev12/musicbingo/go/internal/live/guest"
	"github.com/mcdev12/musicbingo/go/internal/live/host"
	"github.com/mcdev12/musicbingo/go/internal/live/lock"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
	"github.com/rs/zerolog/log"
)

// Runtime is one session served by this instance. Host is nil on guest
// instances, which then answer host routes with 404.
type Runtime struct {
	Store    *runtime.Store
	Follower *guest.Follower
	Host     *host.Session
}

type Config struct {
	ConnectionConfig ConnectionConfig
	// HostWindow is how recent a host heartbeat must be to count as connected.
	HostWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		HostWindow:       lock.DefaultStaleAfter,
	}
}

// Service owns the connection manager and the registered runtimes.
type Service struct {
	config            Config
	connectionManager *ConnectionManager

	mu       sync.RWMutex
	runtimes map[string]*registered
}

type registered struct {
	Runtime
	unwatch func()
}

func NewService(config Config) *Service {
	return &Service{
		config:            config,
		connectionManager: NewConnectionManager(config.ConnectionConfig),
		runtimes:          make(map[string]*registered),
	}
}

// Register serves rt and pushes every snapshot its store observes to the
// session's displays.
func (s *Service) Register(rt Runtime) {
	sessionID := rt.Store.SessionID()
	unwatch := rt.Store.Watch(func(st runtime.State) {
		event, err := NewEvent(sessionID, EventTypeRuntimeUpdate, st)
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("failed to build runtime event")
			return
		}
		s.connectionManager.BroadcastToSession(sessionID, event)
	})

	s.mu.Lock()
	if prev, ok := s.runtimes[sessionID]; ok {
		prev.unwatch()
	}
	s.runtimes[sessionID] = &registered{Runtime: rt, unwatch: unwatch}
	s.mu.Unlock()

	log.Info().Str("session_id", sessionID).Bool("host", rt.Host != nil).Msg("runtime registered with gateway")
}

// Unregister stops serving a session.
func (s *Service) Unregister(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.runtimes[sessionID]; ok {
		rt.unwatch()
		delete(s.runtimes, sessionID)
	}
}

func (s *Service) lookup(sessionID string) (Runtime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.runtimes[sessionID]
	if !ok {
		return Runtime{}, false
	}
	return rt.Runtime, true
}

// Start runs the broadcast loop and a presence ticker until ctx is done.
func (s *Service) Start(ctx context.Context) {
	go s.connectionManager.Start(ctx)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway service stopped")
			return
		case <-ticker.C:
			s.publishPresence()
		}
	}
}

func (s *Service) publishPresence() {
	s.mu.RLock()
	rts := make([]Runtime, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		rts = append(rts, rt.Runtime)
	}
	s.mu.RUnlock()

	for _, rt := range rts {
		sessionID := rt.Store.SessionID()
		if s.connectionManager.ConnectionCount(sessionID) == 0 {
			continue
		}
		event, err := NewEvent(sessionID, EventTypePresence, s.presence(rt))
		if err != nil {
			continue
		}
		s.connectionManager.BroadcastToSession(sessionID, event)
	}
}

func (s *Service) presence(rt Runtime) PresencePayload {
	if rt.Host != nil && rt.Host.LockStatus().Status == lock.StatusOwner {
		return PresencePayload{HostConnected: true, HostTabID: rt.Store.Origin()}
	}
	if rt.Follower == nil {
		return PresencePayload{}
	}
	return PresencePayload{
		HostConnected: rt.Follower.HostConnected(s.config.HostWindow),
		HostTabID:     rt.Follower.Host().TabID,
		LatestWarning: rt.Follower.LatestWarning(),
	}
}
