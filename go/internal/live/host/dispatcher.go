package host

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mcdev12/musicbingo/go/clients/playback"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
	"github.com/mcdev12/musicbingo/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultExtensionMs is one press of the extend button.
const DefaultExtensionMs = 30000

var (
	ErrInvalidTransition  = errors.New("action not allowed in current mode")
	ErrUnknownGame        = errors.New("unknown game")
	ErrControlUnavailable = errors.New("playback control unavailable")
	ErrSessionEnded       = errors.New("session has ended")
	ErrNotLockHolder      = errors.New("control lock held by another tab")
	ErrPlaybackHalted     = errors.New("playback halted until reconnect")
	ErrNoTrack            = errors.New("no current track")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// Action names a host action accepted over the control API.
type Action string

const (
	ActionStartGame       Action = "start_game"
	ActionPause           Action = "pause"
	ActionResume          Action = "resume"
	ActionNext            Action = "next"
	ActionPrevious        Action = "previous"
	ActionSeek            Action = "seek"
	ActionPlayBreak       Action = "play_break"
	ActionResumeFromTrack Action = "resume_from_track"
	ActionExtendReveal    Action = "extend_reveal"
	ActionRestartSong     Action = "restart_song"
	ActionEndSession      Action = "end_session"
)

// Request carries an action and its arguments.
type Request struct {
	Action     Action `json:"action"`
	GameNumber int    `json:"game_number,omitempty"`
	PositionMs int64  `json:"position_ms,omitempty"`
	DeltaMs    int64  `json:"delta_ms,omitempty"`
}

// Dispatcher turns host actions into playback commands and folds the result
// back through the Reconciler.
type Dispatcher struct {
	tabID   string
	cfg     *models.SessionConfig
	adapter Adapter
	store   *runtime.Store
	rec     *Reconciler
	locks   LockHolder
	breaker *Breaker
}

func NewDispatcher(tabID string, cfg *models.SessionConfig, adapter Adapter, store *runtime.Store, rec *Reconciler, locks LockHolder, breaker *Breaker) *Dispatcher {
	return &Dispatcher{
		tabID:   tabID,
		cfg:     cfg,
		adapter: adapter,
		store:   store,
		rec:     rec,
		locks:   locks,
		breaker: breaker,
	}
}

// Do routes a request to the matching action.
func (d *Dispatcher) Do(ctx context.Context, req Request) (runtime.State, error) {
	switch req.Action {
	case ActionStartGame:
		return d.StartGame(ctx, req.GameNumber)
	case ActionPause:
		return d.Pause(ctx)
	case ActionResume:
		return d.Resume(ctx)
	case ActionNext:
		return d.Next(ctx)
	case ActionPrevious:
		return d.Previous(ctx)
	case ActionSeek:
		return d.Seek(ctx, req.PositionMs)
	case ActionPlayBreak:
		return d.PlayBreak(ctx)
	case ActionResumeFromTrack:
		return d.ResumeFromTrack(ctx)
	case ActionExtendReveal:
		return d.ExtendReveal(ctx, req.DeltaMs)
	case ActionRestartSong:
		return d.RestartSong(ctx)
	case ActionEndSession:
		return d.EndSession(ctx)
	default:
		return d.store.Current(), fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, req.Action)
	}
}

// step describes one action.
type step struct {
	action Action
	from   []runtime.Mode
	pre    runtime.Updater
	// cmd is nil for actions that never touch the player.
	cmd func(s runtime.State) playback.Command
	// manual actions still commit pre when control is unavailable.
	manual bool
}

func (d *Dispatcher) command(a playback.Action) playback.Command {
	return playback.Command{SessionID: d.store.SessionID(), Action: a}
}

func (d *Dispatcher) run(ctx context.Context, st step) (runtime.State, error) {
	cur := d.store.Current()
	if cur.Mode == runtime.ModeEnded {
		return cur, ErrSessionEnded
	}
	if !slices.Contains(st.from, cur.Mode) {
		return cur, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, st.action, cur.Mode)
	}
	holds, err := d.locks.Holds(ctx, d.tabID)
	if err != nil {
		return cur, err
	}
	if !holds {
		return cur, ErrNotLockHolder
	}

	logger := log.With().Str("session_id", cur.SessionID).Str("action", string(st.action)).Logger()

	if st.cmd == nil {
		return d.rec.Recompute(ctx, st.pre)
	}
	if d.breaker.Tripped() {
		return cur, ErrPlaybackHalted
	}
	if !cur.SpotifyControlAvailable {
		if !st.manual {
			return cur, ErrControlUnavailable
		}
		logger.Info().Msg("manual host control, committing without a playback command")
		return d.rec.Recompute(ctx, st.pre)
	}

	if _, err := d.adapter.Command(ctx, st.cmd(cur)); err != nil {
		return d.commandFailed(ctx, st, err)
	}
	logger.Info().Msg("playback command sent")

	status, err := d.adapter.Status(ctx, cur.SessionID)
	if err != nil {
		logger.Warn().Err(err).Msg("playback status refresh failed")
		return d.rec.Recompute(ctx, withWarning(st.pre, warnRefreshFailed))
	}
	return d.rec.Fold(ctx, status, st.pre, "")
}

func (d *Dispatcher) commandFailed(ctx context.Context, st step, err error) (runtime.State, error) {
	log.Warn().Err(err).Str("session_id", d.store.SessionID()).Str("action", string(st.action)).Msg("playback command failed")
	switch {
	case errors.Is(err, playback.ErrUnauthorized):
		d.breaker.Trip()
		s, cerr := d.store.Commit(ctx, withWarning(nil, warnUnauthorized))
		return s, errors.Join(err, cerr)
	case playback.IsDeviceUnavailable(err):
		pre := st.pre
		if !st.manual {
			pre = nil
		}
		s, cerr := d.rec.Recompute(ctx, func(s runtime.State) runtime.State {
			if pre != nil {
				s = pre(s)
			}
			s.SpotifyControlAvailable = false
			s.WarningMessage = warnNoDevice
			return s
		})
		return s, errors.Join(fmt.Errorf("%w: %w", ErrControlUnavailable, err), cerr)
	default:
		s, cerr := d.store.Commit(ctx, withWarning(nil, err.Error()))
		return s, errors.Join(err, cerr)
	}
}

func withWarning(pre runtime.Updater, msg string) runtime.Updater {
	return func(s runtime.State) runtime.State {
		if pre != nil {
			s = pre(s)
		}
		s.WarningMessage = msg
		return s
	}
}

// resetTrackState clears the per-track fields so the next track starts a
// fresh reveal.
func resetTrackState(s runtime.State) runtime.State {
	s.AdvanceTriggeredForTrackID = ""
	s.ExtensionMs = 0
	return s
}

// StartGame plays the game's playlist from the top. It is also how the host
// switches games mid-session.
func (d *Dispatcher) StartGame(ctx context.Context, number int) (runtime.State, error) {
	game, ok := d.cfg.Game(number)
	if !ok {
		return d.store.Current(), fmt.Errorf("%w: %d", ErrUnknownGame, number)
	}
	return d.run(ctx, step{
		action: ActionStartGame,
		from:   []runtime.Mode{runtime.ModeIdle, runtime.ModeRunning, runtime.ModePaused},
		pre: func(s runtime.State) runtime.State {
			s = resetTrackState(s)
			s.Mode = runtime.ModeRunning
			s.ActiveGameNumber = game.Number
			s.PreBreakTrackID = ""
			s.PreBreakPlaylistID = ""
			return s
		},
		cmd: func(runtime.State) playback.Command {
			c := d.command(playback.ActionPlay)
			c.PlaylistID = game.PlaylistID
			return c.At(0)
		},
		manual: true,
	})
}

func (d *Dispatcher) Pause(ctx context.Context) (runtime.State, error) {
	return d.run(ctx, step{
		action: ActionPause,
		from:   []runtime.Mode{runtime.ModeRunning},
		pre: func(s runtime.State) runtime.State {
			s.Mode = runtime.ModePaused
			return s
		},
		cmd:    func(runtime.State) playback.Command { return d.command(playback.ActionPause) },
		manual: true,
	})
}

func (d *Dispatcher) Resume(ctx context.Context) (runtime.State, error) {
	return d.run(ctx, step{
		action: ActionResume,
		from:   []runtime.Mode{runtime.ModePaused},
		pre: func(s runtime.State) runtime.State {
			s.Mode = runtime.ModeRunning
			if s.CurrentTrack != nil {
				t := *s.CurrentTrack
				t.IsPlaying = true
				s.CurrentTrack = &t
			}
			return s
		},
		cmd:    func(runtime.State) playback.Command { return d.command(playback.ActionResume) },
		manual: true,
	})
}

// Next skips the current track. The track is marked as advanced so a poll
// landing before the skip is observed does not skip again.
func (d *Dispatcher) Next(ctx context.Context) (runtime.State, error) {
	return d.run(ctx, step{
		action: ActionNext,
		from:   []runtime.Mode{runtime.ModeRunning, runtime.ModePaused, runtime.ModeBreak},
		pre: func(s runtime.State) runtime.State {
			if id := s.TrackID(); id != "" {
				s.AdvanceTriggeredForTrackID = id
			}
			return s
		},
		cmd: func(runtime.State) playback.Command { return d.command(playback.ActionNext) },
	})
}

func (d *Dispatcher) Previous(ctx context.Context) (runtime.State, error) {
	return d.run(ctx, step{
		action: ActionPrevious,
		from:   []runtime.Mode{runtime.ModeRunning, runtime.ModePaused, runtime.ModeBreak},
		cmd:    func(runtime.State) playback.Command { return d.command(playback.ActionPrevious) },
	})
}

func (d *Dispatcher) Seek(ctx context.Context, positionMs int64) (runtime.State, error) {
	if positionMs < 0 {
		return d.store.Current(), fmt.Errorf("%w: position_ms %d", ErrInvalidArgument, positionMs)
	}
	return d.run(ctx, step{
		action: ActionSeek,
		from:   []runtime.Mode{runtime.ModeRunning, runtime.ModePaused, runtime.ModeBreak},
		cmd: func(runtime.State) playback.Command {
			return d.command(playback.ActionSeek).At(positionMs)
		},
	})
}

// PlayBreak remembers the current track and switches to the break playlist,
// or pauses when the session has none.
func (d *Dispatcher) PlayBreak(ctx context.Context) (runtime.State, error) {
	return d.run(ctx, step{
		action: ActionPlayBreak,
		from:   []runtime.Mode{runtime.ModeRunning, runtime.ModePaused},
		pre: func(s runtime.State) runtime.State {
			s.PreBreakTrackID = s.TrackID()
			s.PreBreakPlaylistID = ""
			if s.CurrentTrack != nil {
				s.PreBreakPlaylistID = s.CurrentTrack.PlaylistID
			}
			if s.PreBreakPlaylistID == "" {
				if game, ok := d.cfg.Game(s.ActiveGameNumber); ok {
					s.PreBreakPlaylistID = game.PlaylistID
				}
			}
			s.Mode = runtime.ModeBreak
			return s
		},
		cmd: func(runtime.State) playback.Command {
			if d.cfg.BreakPlaylistID == "" {
				return d.command(playback.ActionPause)
			}
			c := d.command(playback.ActionPlay)
			c.PlaylistID = d.cfg.BreakPlaylistID
			return c.At(0)
		},
		manual: true,
	})
}

// ResumeFromTrack leaves the break by replaying the pre-break track from 0,
// so guests get the full reveal again.
func (d *Dispatcher) ResumeFromTrack(ctx context.Context) (runtime.State, error) {
	return d.run(ctx, step{
		action: ActionResumeFromTrack,
		from:   []runtime.Mode{runtime.ModeBreak},
		pre: func(s runtime.State) runtime.State {
			s = resetTrackState(s)
			s.Mode = runtime.ModeRunning
			if s.PreBreakTrackID != "" {
				s.CurrentTrack = replayTrack(s.CurrentTrack, s.PreBreakTrackID, s.PreBreakPlaylistID)
			}
			s.PreBreakTrackID = ""
			s.PreBreakPlaylistID = ""
			return s
		},
		cmd: func(s runtime.State) playback.Command {
			c := d.command(playback.ActionPlay)
			c.PlaylistID = s.PreBreakPlaylistID
			c.TrackID = s.PreBreakTrackID
			if c.PlaylistID == "" {
				if game, ok := d.cfg.Game(s.ActiveGameNumber); ok {
					c.PlaylistID = game.PlaylistID
				}
			}
			return c.At(0)
		},
		manual: true,
	})
}

// replayTrack is the pre-break track restarted from 0. Metadata is kept when
// cur is still that track; otherwise the next observation fills it in.
func replayTrack(cur *runtime.Track, trackID, playlistID string) *runtime.Track {
	t := runtime.Track{ID: trackID}
	if cur != nil && cur.ID == trackID {
		t = *cur
	}
	if playlistID != "" {
		t.PlaylistID = playlistID
	}
	t.ProgressMs = 0
	t.IsPlaying = true
	return &t
}

// ExtendReveal pushes the advance threshold of the current track back by
// deltaMs. Zero means one press of the button.
func (d *Dispatcher) ExtendReveal(ctx context.Context, deltaMs int64) (runtime.State, error) {
	if deltaMs == 0 {
		deltaMs = DefaultExtensionMs
	}
	if deltaMs < 0 {
		return d.store.Current(), fmt.Errorf("%w: delta_ms %d", ErrInvalidArgument, deltaMs)
	}
	if d.store.Current().CurrentTrack == nil {
		return d.store.Current(), ErrNoTrack
	}
	return d.run(ctx, step{
		action: ActionExtendReveal,
		from:   []runtime.Mode{runtime.ModeRunning, runtime.ModePaused, runtime.ModeBreak},
		pre: func(s runtime.State) runtime.State {
			s.ExtensionMs += deltaMs
			return s
		},
	})
}

// RestartSong drops any extension and plays the current track from 0.
func (d *Dispatcher) RestartSong(ctx context.Context) (runtime.State, error) {
	if d.store.Current().CurrentTrack == nil {
		return d.store.Current(), ErrNoTrack
	}
	return d.run(ctx, step{
		action: ActionRestartSong,
		from:   []runtime.Mode{runtime.ModeRunning, runtime.ModePaused},
		pre: func(s runtime.State) runtime.State {
			s = resetTrackState(s)
			if s.CurrentTrack != nil {
				t := *s.CurrentTrack
				t.ProgressMs = 0
				s.CurrentTrack = &t
			}
			return s
		},
		cmd: func(runtime.State) playback.Command {
			return d.command(playback.ActionSeek).At(0)
		},
		manual: true,
	})
}

// EndSession moves to the terminal mode. Playback is paused on a best-effort
// basis.
func (d *Dispatcher) EndSession(ctx context.Context) (runtime.State, error) {
	cur := d.store.Current()
	if cur.Mode == runtime.ModeEnded {
		return cur, ErrSessionEnded
	}
	holds, err := d.locks.Holds(ctx, d.tabID)
	if err != nil {
		return cur, err
	}
	if !holds {
		return cur, ErrNotLockHolder
	}

	if cur.SpotifyControlAvailable && !d.breaker.Tripped() {
		if _, err := d.adapter.Command(ctx, d.command(playback.ActionPause)); err != nil {
			log.Warn().Err(err).Str("session_id", cur.SessionID).Msg("pause on session end failed")
		}
	}
	s, err := d.store.Commit(ctx, func(s runtime.State) runtime.State {
		s.Mode = runtime.ModeEnded
		s.WarningMessage = ""
		s.AdvanceTriggeredForTrackID = ""
		return s
	})
	if err == nil {
		log.Info().Str("session_id", cur.SessionID).Msg("session ended")
	}
	return s, err
}
