package host

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/musicbingo/go/internal/live/broadcast"
	"github.com/mcdev12/musicbingo/go/internal/live/guest"
	"github.com/mcdev12/musicbingo/go/internal/live/kv"
	"github.com/mcdev12/musicbingo/go/internal/live/lock"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
	"github.com/mcdev12/musicbingo/go/internal/live/task"
	"github.com/mcdev12/musicbingo/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Config tunes a host session. Zero durations take the package defaults.
type Config struct {
	TabID             string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	ResyncInterval    time.Duration
}

// LockView is the lock as this tab currently sees it.
type LockView struct {
	TabID  string      `json:"tab_id"`
	Status lock.Status `json:"status"`
	Holder *lock.Lock  `json:"holder,omitempty"`
}

// Session wires one host tab: store, lock, poller, dispatcher and a follower
// so the tab keeps mirroring state while it is read-only.
type Session struct {
	cfg       Config
	session   *models.SessionConfig
	store     *runtime.Store
	locks     *lock.Manager
	breaker   *Breaker
	poller    *Poller
	dispatch  *Dispatcher
	follower  *guest.Follower
	clock     clockwork.Clock
	heartbeat *task.Periodic
	polling   *task.Periodic

	mu     sync.RWMutex
	status lock.Status
	holder *lock.Lock
}

func NewSession(cfg Config, sc *models.SessionConfig, store kv.Store, bus broadcast.Channel, adapter Adapter, clock clockwork.Clock) *Session {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = lock.DefaultHeartbeatInterval
	}
	rs := runtime.NewStore(sc.ID, cfg.TabID, store, bus, clock)
	locks := lock.NewManager(sc.ID, store, clock, cfg.StaleAfter)
	breaker := &Breaker{}
	rec := NewReconciler(sc, rs, clock)

	return &Session{
		cfg:      cfg,
		session:  sc,
		store:    rs,
		locks:    locks,
		breaker:  breaker,
		poller:   NewPoller(cfg.TabID, adapter, rs, rec, locks, breaker, clock, cfg.PollInterval),
		dispatch: NewDispatcher(cfg.TabID, sc, adapter, rs, rec, locks, breaker),
		follower: guest.NewFollower(rs, bus, clock, cfg.ResyncInterval),
		clock:    clock,
		status:   lock.StatusFree,
	}
}

func (s *Session) Store() *runtime.Store { return s.store }

func (s *Session) Dispatcher() *Dispatcher { return s.dispatch }

func (s *Session) Follower() *guest.Follower { return s.follower }

func (s *Session) Config() *models.SessionConfig { return s.session }

// Start loads the persisted state, tries to take the lock without force and
// starts the background tasks. Losing the lock race is not an error: the tab
// runs read-only until it takes control.
func (s *Session) Start(ctx context.Context) error {
	if _, err := s.store.Load(ctx); err != nil {
		return err
	}
	if err := s.follower.Start(ctx); err != nil {
		return err
	}

	res, err := s.locks.Acquire(ctx, s.cfg.TabID, false)
	if err != nil {
		s.follower.Stop()
		return err
	}
	s.recordAcquire(res)

	s.heartbeat = task.Start(ctx, s.clock, s.cfg.HeartbeatInterval, "lock-heartbeat", s.beat)
	s.polling = s.poller.Run(ctx)

	log.Info().
		Str("session_id", s.session.ID).
		Str("tab_id", s.cfg.TabID).
		Bool("owner", res.Acquired).
		Msg("host session started")
	return nil
}

// Close stops every task and releases the lock if this tab still owns it.
func (s *Session) Close(ctx context.Context) {
	if s.polling != nil {
		s.polling.Stop()
	}
	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	s.follower.Stop()

	released, err := s.locks.Release(ctx, s.cfg.TabID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.session.ID).Msg("failed to release control lock")
	}
	log.Info().
		Str("session_id", s.session.ID).
		Str("tab_id", s.cfg.TabID).
		Bool("released", released).
		Msg("host session closed")
}

func (s *Session) beat(ctx context.Context) {
	status, holder, err := s.locks.Heartbeat(ctx, s.cfg.TabID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.session.ID).Msg("lock heartbeat failed")
		return
	}

	s.mu.Lock()
	prev := s.status
	s.status = status
	s.holder = holder
	s.mu.Unlock()

	if prev == lock.StatusOwner && status != lock.StatusOwner {
		log.Warn().Str("session_id", s.session.ID).Str("status", string(status)).Msg("control lock lost")
	}
	if status == lock.StatusOwner {
		hb := &runtime.Heartbeat{TabID: s.cfg.TabID, LastSeenMs: holder.LastSeenMs}
		if err := s.store.Publish(ctx, runtime.Message{Type: runtime.MessageHostHeartbeat, Heartbeat: hb}); err != nil {
			log.Debug().Err(err).Str("session_id", s.session.ID).Msg("host heartbeat not broadcast")
		}
	}
}

func (s *Session) recordAcquire(res lock.AcquireResult) {
	l := res.Lock
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holder = &l
	if res.Acquired {
		s.status = lock.StatusOwner
	} else {
		s.status = lock.StatusReadOnly
	}
}

// TakeControl force-acquires the lock for this tab.
func (s *Session) TakeControl(ctx context.Context) (lock.AcquireResult, error) {
	res, err := s.locks.Acquire(ctx, s.cfg.TabID, true)
	if err != nil {
		return res, err
	}
	s.recordAcquire(res)
	return res, nil
}

// Reconnect clears the auth breaker once the adapter accepts the credential.
func (s *Session) Reconnect(ctx context.Context) (runtime.State, error) {
	return s.poller.Reconnect(ctx)
}

// Halted reports whether polling is stopped waiting for a reconnect.
func (s *Session) Halted() bool { return s.breaker.Tripped() }

// LockStatus returns the lock state observed at the last heartbeat.
func (s *Session) LockStatus() LockView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := LockView{TabID: s.cfg.TabID, Status: s.status}
	if s.holder != nil {
		h := *s.holder
		v.Holder = &h
	}
	return v
}
