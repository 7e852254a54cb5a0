package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/musicbingo/go/internal/live/kv"
	"github.com/rs/zerolog/log"
)

// Publisher is the send side of the broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, payload []byte) error
}

// Updater computes the next full snapshot from the current one. It receives
// a private copy and must not call back into the Store.
type Updater func(State) State

// Store owns one instance's view of a session's runtime state. Every local
// mutation goes through Commit, which persists and then broadcasts.
type Store struct {
	sessionID string
	origin    string
	kv        kv.Store
	pub       Publisher
	clock     clockwork.Clock

	commitMu sync.Mutex
	// notifyMu is taken before mu by every state change and held while
	// watchers run, so watchers see snapshots in the order they were set.
	notifyMu sync.Mutex

	mu       sync.RWMutex
	current  State
	watchers map[int]func(State)
	nextID   int
}

// NewStore creates a store for sessionID. origin identifies this instance on
// the broadcast channel.
func NewStore(sessionID, origin string, store kv.Store, pub Publisher, clock clockwork.Clock) *Store {
	return &Store{
		sessionID: sessionID,
		origin:    origin,
		kv:        store,
		pub:       pub,
		clock:     clock,
		current:   Idle(sessionID),
		watchers:  make(map[int]func(State)),
	}
}

// SessionID returns the session this store belongs to.
func (s *Store) SessionID() string { return s.sessionID }

// Origin returns the instance id stamped on outgoing messages.
func (s *Store) Origin() string { return s.origin }

// Current returns a copy of the latest snapshot.
func (s *Store) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// readPersisted returns the persisted snapshot, or ok=false when it is absent
// or fails validation.
func (s *Store) readPersisted(ctx context.Context) (State, bool, error) {
	data, err := s.kv.Get(ctx, kv.RuntimeKey(s.sessionID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("failed to read runtime snapshot: %w", err)
	}
	st, err := DecodeState(data, s.sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.sessionID).Msg("ignoring persisted runtime snapshot")
		return State{}, false, nil
	}
	return st, true, nil
}

// Load initializes the store from durable storage. An absent or invalid
// record yields the idle default.
func (s *Store) Load(ctx context.Context) (State, error) {
	st, ok, err := s.readPersisted(ctx)
	if err != nil {
		return s.Current(), err
	}
	if !ok {
		st = Idle(s.sessionID)
	}
	s.set(st)
	log.Info().
		Str("session_id", s.sessionID).
		Str("mode", string(st.Mode)).
		Bool("restored", ok).
		Msg("runtime state loaded")
	return st.Clone(), nil
}

// Commit applies fn, stamps the result, persists it and broadcasts it.
// If persisting fails nothing is broadcast and the current state is kept.
func (s *Store) Commit(ctx context.Context, fn Updater) (State, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	cur := s.Current()
	next := fn(cur.Clone())
	next.Version = SchemaVersion
	next.SessionID = s.sessionID

	now := s.clock.Now().UnixMilli()
	if now <= cur.UpdatedAtMs {
		now = cur.UpdatedAtMs + 1
	}
	next.UpdatedAtMs = now

	data, err := EncodeState(next)
	if err != nil {
		return cur, fmt.Errorf("refusing to commit runtime state: %w", err)
	}
	if err := s.kv.Put(ctx, kv.RuntimeKey(s.sessionID), data); err != nil {
		return cur, fmt.Errorf("failed to persist runtime state: %w", err)
	}
	s.set(next)

	if err := s.publish(ctx, Message{Type: MessageRuntimeUpdate, Runtime: &next}); err != nil {
		log.Warn().Err(err).Str("session_id", s.sessionID).Msg("runtime update not broadcast")
	}
	return next.Clone(), nil
}

// Apply accepts a snapshot committed elsewhere. Snapshots older than the
// current one are ignored; otherwise the whole object replaces the current one.
func (s *Store) Apply(next State) bool {
	if next.SessionID != s.sessionID || next.Validate() != nil {
		return false
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	cur := s.current
	if next.UpdatedAtMs < cur.UpdatedAtMs || next.Equal(cur) {
		s.mu.Unlock()
		return false
	}
	s.current = next.Clone()
	fns := s.watcherFuncs()
	s.mu.Unlock()

	notify(fns, next)
	return true
}

// Resync re-reads the persisted snapshot and applies it. It reports whether
// the current state changed.
func (s *Store) Resync(ctx context.Context) (bool, error) {
	st, ok, err := s.readPersisted(ctx)
	if err != nil || !ok {
		return false, err
	}
	return s.Apply(st), nil
}

// Publish sends an ephemeral message (heartbeat or warning) on the channel.
func (s *Store) Publish(ctx context.Context, m Message) error {
	return s.publish(ctx, m)
}

func (s *Store) publish(ctx context.Context, m Message) error {
	if s.pub == nil {
		return nil
	}
	m.SessionID = s.sessionID
	m.Origin = s.origin
	m.SentAtMs = s.clock.Now().UnixMilli()
	data, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, s.sessionID, data)
}

// Watch registers fn to be called with every new snapshot, in the order the
// snapshots were set. fn runs on the goroutine that changed the state and
// must not block or call Commit, Apply or Load.
func (s *Store) Watch(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) set(st State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.current = st.Clone()
	fns := s.watcherFuncs()
	s.mu.Unlock()

	notify(fns, st)
}

// watcherFuncs must be called with s.mu held.
func (s *Store) watcherFuncs() []func(State) {
	fns := make([]func(State), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(State), st State) {
	for _, fn := range fns {
		fn(st.Clone())
	}
}
