// Package lock elects the single instance allowed to send playback commands
// and fire auto-advance for a session.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/musicbingo/go/internal/live/kv"
	"github.com/rs/zerolog/log"
)

const (
	DefaultStaleAfter        = 30 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
)

// Lock is the persisted control lock record.
type Lock struct {
	TabID      string `json:"tab_id"`
	LastSeenMs int64  `json:"last_seen_ms"`
}

// IsStale reports whether the owner has not been seen for more than staleMs.
// At exactly staleMs the lock is still fresh.
func IsStale(l Lock, nowMs, staleMs int64) bool {
	return nowMs-l.LastSeenMs > staleMs
}

// TryAcquire decides whether tabID may take the lock given the current record.
func TryAcquire(current *Lock, tabID string, force bool, nowMs, staleMs int64) bool {
	switch {
	case force:
		return true
	case current == nil:
		return true
	case current.TabID == tabID:
		return true
	default:
		return IsStale(*current, nowMs, staleMs)
	}
}

// Status is how an instance sees the lock after a heartbeat.
type Status string

const (
	StatusOwner         Status = "owner"
	StatusReadOnly      Status = "read_only"
	StatusPossiblyStale Status = "possibly_stale"
	StatusFree          Status = "free"
)

// AcquireResult reports the outcome of Acquire. Lock is the caller's new lock
// on success and the conflicting lock otherwise.
type AcquireResult struct {
	Acquired bool `json:"acquired"`
	Lock     Lock `json:"lock"`
}

func decodeLock(data []byte) (*Lock, error) {
	var w struct {
		TabID      *string `json:"tab_id"`
		LastSeenMs *int64  `json:"last_seen_ms"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	if w.TabID == nil || *w.TabID == "" || w.LastSeenMs == nil || *w.LastSeenMs < 0 {
		return nil, errors.New("malformed lock record")
	}
	return &Lock{TabID: *w.TabID, LastSeenMs: *w.LastSeenMs}, nil
}

// Manager reads and writes a session's lock record.
type Manager struct {
	sessionID  string
	kv         kv.Store
	clock      clockwork.Clock
	staleAfter time.Duration
}

// NewManager creates a lock manager. A zero staleAfter uses DefaultStaleAfter.
func NewManager(sessionID string, store kv.Store, clock clockwork.Clock, staleAfter time.Duration) *Manager {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Manager{sessionID: sessionID, kv: store, clock: clock, staleAfter: staleAfter}
}

func (m *Manager) staleMs() int64 { return m.staleAfter.Milliseconds() }

// Current returns the lock record, or nil when there is none. Malformed
// records are treated as absent.
func (m *Manager) Current(ctx context.Context) (*Lock, error) {
	data, err := m.kv.Get(ctx, kv.LockKey(m.sessionID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read control lock: %w", err)
	}
	l, err := decodeLock(data)
	if err != nil {
		log.Warn().Err(err).Str("session_id", m.sessionID).Msg("ignoring control lock record")
		return nil, nil
	}
	return l, nil
}

func (m *Manager) write(ctx context.Context, l Lock) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	if err := m.kv.Put(ctx, kv.LockKey(m.sessionID), data); err != nil {
		return fmt.Errorf("failed to write control lock: %w", err)
	}
	return nil
}

// Acquire takes the lock for tabID when it is free, stale, already ours, or
// force is set. Two tabs forcing at once may both succeed; the last write wins.
func (m *Manager) Acquire(ctx context.Context, tabID string, force bool) (AcquireResult, error) {
	now := m.clock.Now().UnixMilli()
	cur, err := m.Current(ctx)
	if err != nil {
		return AcquireResult{}, err
	}
	if !TryAcquire(cur, tabID, force, now, m.staleMs()) {
		return AcquireResult{Acquired: false, Lock: *cur}, nil
	}

	l := Lock{TabID: tabID, LastSeenMs: now}
	if err := m.write(ctx, l); err != nil {
		return AcquireResult{}, err
	}
	if cur != nil && cur.TabID != tabID {
		log.Info().
			Str("session_id", m.sessionID).
			Str("tab_id", tabID).
			Str("previous_tab_id", cur.TabID).
			Bool("force", force).
			Msg("control lock taken over")
	}
	return AcquireResult{Acquired: true, Lock: l}, nil
}

// Heartbeat refreshes the lock if tabID still owns it and otherwise reports
// how the lock looks from a non-owner. A tab that lost the lock never
// rewrites it.
func (m *Manager) Heartbeat(ctx context.Context, tabID string) (Status, *Lock, error) {
	now := m.clock.Now().UnixMilli()
	cur, err := m.Current(ctx)
	if err != nil {
		return "", nil, err
	}
	switch {
	case cur == nil:
		return StatusFree, nil, nil
	case cur.TabID == tabID:
		l := Lock{TabID: tabID, LastSeenMs: now}
		if err := m.write(ctx, l); err != nil {
			return "", cur, err
		}
		return StatusOwner, &l, nil
	case IsStale(*cur, now, m.staleMs()):
		return StatusPossiblyStale, cur, nil
	default:
		return StatusReadOnly, cur, nil
	}
}

// Release deletes the lock only if tabID owns it.
func (m *Manager) Release(ctx context.Context, tabID string) (bool, error) {
	cur, err := m.Current(ctx)
	if err != nil {
		return false, err
	}
	if cur == nil || cur.TabID != tabID {
		return false, nil
	}
	if err := m.kv.Delete(ctx, kv.LockKey(m.sessionID)); err != nil {
		return false, fmt.Errorf("failed to release control lock: %w", err)
	}
	return true, nil
}

// Holds reports whether tabID currently owns the lock.
func (m *Manager) Holds(ctx context.Context, tabID string) (bool, error) {
	cur, err := m.Current(ctx)
	if err != nil {
		return false, err
	}
	return cur != nil && cur.TabID == tabID, nil
}
