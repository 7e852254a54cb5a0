// Package guest keeps a read-only runtime view in sync with whichever
// instance holds the control lock.
package guest

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/musicbingo/go/internal/live/broadcast"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
	"github.com/mcdev12/musicbingo/go/internal/live/task"
	"github.com/rs/zerolog/log"
)

// DefaultResyncInterval bounds how long a missed broadcast can go unnoticed.
const DefaultResyncInterval = 2 * time.Second

// HostPresence is the last host heartbeat seen on the channel.
type HostPresence struct {
	TabID      string `json:"tab_id,omitempty"`
	LastSeenMs int64  `json:"last_seen_ms,omitempty"`
}

// Follower applies channel messages to a Store and periodically re-reads the
// persisted snapshot.
type Follower struct {
	store    *runtime.Store
	bus      broadcast.Channel
	clock    clockwork.Clock
	interval time.Duration

	mu      sync.RWMutex
	host    HostPresence
	warning string

	unsubscribe func()
	resync      *task.Periodic
}

// NewFollower creates a follower. A zero interval uses DefaultResyncInterval.
func NewFollower(store *runtime.Store, bus broadcast.Channel, clock clockwork.Clock, interval time.Duration) *Follower {
	if interval <= 0 {
		interval = DefaultResyncInterval
	}
	return &Follower{store: store, bus: bus, clock: clock, interval: interval}
}

// Start subscribes to the session channel and begins resyncing.
func (f *Follower) Start(ctx context.Context) error {
	unsubscribe, err := f.bus.Subscribe(ctx, f.store.SessionID(), f.Handle)
	if err != nil {
		return err
	}
	f.unsubscribe = unsubscribe
	f.resync = task.Start(ctx, f.clock, f.interval, "resync", func(ctx context.Context) {
		if _, err := f.store.Resync(ctx); err != nil {
			log.Warn().Err(err).Str("session_id", f.store.SessionID()).Msg("runtime resync failed")
		}
	})
	return nil
}

// Stop unsubscribes and stops resyncing.
func (f *Follower) Stop() {
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
	if f.resync != nil {
		f.resync.Stop()
	}
}

// Handle processes one raw channel payload. Invalid payloads and the
// instance's own messages are dropped.
func (f *Follower) Handle(payload []byte) {
	m, err := runtime.DecodeMessage(payload, f.store.SessionID())
	if err != nil {
		log.Debug().Err(err).Str("session_id", f.store.SessionID()).Msg("dropping channel message")
		return
	}
	if m.Origin == f.store.Origin() {
		return
	}

	switch m.Type {
	case runtime.MessageRuntimeUpdate:
		f.store.Apply(*m.Runtime)
	case runtime.MessageHostHeartbeat:
		f.mu.Lock()
		if m.Heartbeat.LastSeenMs >= f.host.LastSeenMs {
			f.host = HostPresence{TabID: m.Heartbeat.TabID, LastSeenMs: m.Heartbeat.LastSeenMs}
		}
		f.mu.Unlock()
	case runtime.MessageWarning:
		f.mu.Lock()
		f.warning = m.Warning.Message
		f.mu.Unlock()
	}
}

// Host returns the last host heartbeat seen.
func (f *Follower) Host() HostPresence {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.host
}

// HostConnected reports whether a host heartbeat arrived within window.
func (f *Follower) HostConnected(window time.Duration) bool {
	h := f.Host()
	if h.TabID == "" {
		return false
	}
	return f.clock.Now().UnixMilli()-h.LastSeenMs <= window.Milliseconds()
}

// LatestWarning returns the last warning message received.
func (f *Follower) LatestWarning() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.warning
}
