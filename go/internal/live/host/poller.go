package host

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/musicbingo/go/clients/playback"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
	"github.com/mcdev12/musicbingo/go/internal/live/task"
	"github.com/mcdev12/musicbingo/go/internal/reveal"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is the playback status cadence.
const DefaultPollInterval = time.Second

// Poller fetches playback status on a fixed interval and folds it into the
// runtime state. Only the lock owner polls and fires auto-advance.
//
// Ticks never overlap, and every adapter call made by a tick is bounded by
// the interval, so at most one request is outstanding and it is abandoned
// before the next tick starts.
type Poller struct {
	tabID    string
	adapter  Adapter
	store    *runtime.Store
	rec      *Reconciler
	locks    LockHolder
	breaker  *Breaker
	clock    clockwork.Clock
	interval time.Duration
}

func NewPoller(tabID string, adapter Adapter, store *runtime.Store, rec *Reconciler, locks LockHolder, breaker *Breaker, clock clockwork.Clock, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		tabID:    tabID,
		adapter:  adapter,
		store:    store,
		rec:      rec,
		locks:    locks,
		breaker:  breaker,
		clock:    clock,
		interval: interval,
	}
}

// Run starts polling until ctx is done or the returned task is stopped.
func (p *Poller) Run(ctx context.Context) *task.Periodic {
	return task.Start(ctx, p.clock, p.interval, "playback-poll", p.Tick)
}

// bounded returns a context that expires one interval from now on the
// poller's clock.
func (p *Poller) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return clockwork.WithTimeout(ctx, p.clock, p.interval)
}

// Tick performs one poll.
func (p *Poller) Tick(ctx context.Context) {
	if p.breaker.Tripped() {
		return
	}
	sessionID := p.store.SessionID()
	if p.store.Current().Mode == runtime.ModeEnded {
		return
	}
	// Read-only tabs follow the owner's commits instead of writing their own.
	if holds, err := p.locks.Holds(ctx, p.tabID); err != nil || !holds {
		return
	}

	reqCtx, cancel := p.bounded(ctx)
	st, err := p.adapter.Status(reqCtx, sessionID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.fail(ctx, err)
		return
	}

	state, err := p.rec.Fold(ctx, st, nil, "")
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to commit playback status")
		return
	}
	p.maybeAdvance(ctx, state)
}

func (p *Poller) fail(ctx context.Context, err error) {
	sessionID := p.store.SessionID()
	if errors.Is(err, playback.ErrUnauthorized) {
		p.breaker.Trip()
		log.Warn().Err(err).Str("session_id", sessionID).Msg("playback polling halted until reconnect")
		p.warn(ctx, warnUnauthorized)
		return
	}
	log.Debug().Err(err).Str("session_id", sessionID).Msg("playback status poll failed")
	p.warn(ctx, warnStatusFailed)
}

// warn surfaces msg without touching track or reveal state. Nothing is
// committed when the warning is already showing.
func (p *Poller) warn(ctx context.Context, msg string) {
	if p.store.Current().WarningMessage == msg {
		return
	}
	_, err := p.store.Commit(ctx, func(s runtime.State) runtime.State {
		s.WarningMessage = msg
		return s
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", p.store.SessionID()).Msg("failed to commit warning")
	}
	_ = p.store.Publish(ctx, runtime.Message{Type: runtime.MessageWarning, Warning: &runtime.Warning{Message: msg}})
}

func (p *Poller) maybeAdvance(ctx context.Context, s runtime.State) {
	trackID := s.TrackID()
	if s.Mode != runtime.ModeRunning || !s.SpotifyControlAvailable {
		return
	}
	if !reveal.ShouldTrigger(trackID, s.Reveal, s.AdvanceTriggeredForTrackID) {
		return
	}
	holds, err := p.locks.Holds(ctx, p.tabID)
	if err != nil || !holds {
		return
	}

	// The marker is committed before the command so a retry or a second
	// instance never skips twice.
	marked := false
	_, err = p.store.Commit(ctx, func(cur runtime.State) runtime.State {
		if cur.TrackID() == trackID && cur.AdvanceTriggeredForTrackID != trackID {
			cur.AdvanceTriggeredForTrackID = trackID
			marked = true
		}
		return cur
	})
	if err != nil || !marked {
		return
	}

	log.Info().Str("session_id", s.SessionID).Str("track_id", trackID).Msg("auto-advancing")
	cmdCtx, cancel := p.bounded(ctx)
	resp, err := p.adapter.Command(cmdCtx, playback.Command{SessionID: s.SessionID, Action: playback.ActionNext})
	cancel()
	if err == nil {
		// The response carries the post-skip snapshot; an empty one waits for the next poll.
		if !resp.Status.Connected {
			return
		}
		if _, err := p.rec.Fold(ctx, resp.Status, nil, ""); err != nil {
			log.Error().Err(err).Str("session_id", s.SessionID).Msg("failed to commit auto-advance result")
		}
		return
	}
	log.Warn().Err(err).Str("session_id", s.SessionID).Str("track_id", trackID).Msg("auto-advance command failed")
	switch {
	case errors.Is(err, playback.ErrUnauthorized):
		p.breaker.Trip()
		p.warn(ctx, warnUnauthorized)
	case playback.IsDeviceUnavailable(err):
		_, _ = p.store.Commit(ctx, func(cur runtime.State) runtime.State {
			cur.SpotifyControlAvailable = false
			cur.WarningMessage = warnNoDevice
			return cur
		})
	default:
		p.warn(ctx, warnAdvanceFailed+err.Error())
	}
}

// Reconnect checks the credential again and resumes polling if it works.
func (p *Poller) Reconnect(ctx context.Context) (runtime.State, error) {
	st, err := p.adapter.Status(ctx, p.store.SessionID())
	if err != nil {
		return p.store.Current(), err
	}
	p.breaker.Reset()
	log.Info().Str("session_id", p.store.SessionID()).Msg("playback polling resumed")
	return p.rec.Fold(ctx, st, nil, "")
}
