package host

import (
	"testing"
	"time"

	"github.com/mcdev12/musicbingo/go/clients/playback"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
	"github.com/mcdev12/musicbingo/go/internal/reveal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartGame(t *testing.T) {
	h := newHarness(t, "host-tab")
	h.adapter.set(func(f *fakeAdapter) {
		f.onCommand = func(cmd playback.Command, st *playback.Status) {
			*st = playing("t1", "Opening", "Band", 0)
			st.Playback.PlaylistID = cmd.PlaylistID
		}
	})

	s, err := h.dispatcher.StartGame(h.ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, runtime.ModeRunning, s.Mode)
	assert.Equal(t, 2, s.ActiveGameNumber)
	assert.Equal(t, "t1", s.TrackID())
	assert.Equal(t, "pl-2", s.CurrentTrack.PlaylistID)

	sent := h.adapter.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, playback.ActionPlay, sent[0].Action)
	assert.Equal(t, "pl-2", sent[0].PlaylistID)
	require.NotNil(t, sent[0].PositionMs)
	assert.Zero(t, *sent[0].PositionMs)

	// Switching games mid-session is allowed.
	s, err = h.dispatcher.StartGame(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.ActiveGameNumber)
}

func TestStartGameUnknown(t *testing.T) {
	h := newHarness(t, "host-tab")
	_, err := h.dispatcher.StartGame(h.ctx, 7)
	require.ErrorIs(t, err, ErrUnknownGame)
	assert.Empty(t, h.adapter.sent())
}

func TestModeTransitions(t *testing.T) {
	h := newHarness(t, "host-tab")

	_, err := h.dispatcher.Resume(h.ctx)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = h.dispatcher.Pause(h.ctx)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = h.dispatcher.ResumeFromTrack(h.ctx)
	require.ErrorIs(t, err, ErrInvalidTransition)

	h.running(t, playing("t1", "Song", "Band", 1000))

	s, err := h.dispatcher.Pause(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, runtime.ModePaused, s.Mode)

	_, err = h.dispatcher.Pause(h.ctx)
	require.ErrorIs(t, err, ErrInvalidTransition)

	s, err = h.dispatcher.Resume(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, runtime.ModeRunning, s.Mode)

	actions := []playback.Action{}
	for _, c := range h.adapter.sent() {
		actions = append(actions, c.Action)
	}
	assert.Equal(t, []playback.Action{playback.ActionPause, playback.ActionResume}, actions)
}

func TestBreakAndResumeFromTrack(t *testing.T) {
	h := newHarness(t, "host-tab")
	h.running(t, playing("t1", "Song", "Band", 15000))
	h.adapter.set(func(f *fakeAdapter) {
		f.onCommand = func(cmd playback.Command, st *playback.Status) {
			id := "b1"
			if cmd.TrackID != "" {
				id = cmd.TrackID
			}
			*st = playing(id, "Song", "Band", 0)
			st.Playback.PlaylistID = cmd.PlaylistID
		}
	})

	s, err := h.dispatcher.PlayBreak(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, runtime.ModeBreak, s.Mode)
	assert.Equal(t, "t1", s.PreBreakTrackID)
	assert.Equal(t, "pl-1", s.PreBreakPlaylistID)
	assert.Equal(t, "b1", s.TrackID())

	s, err = h.dispatcher.ResumeFromTrack(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, runtime.ModeRunning, s.Mode)
	assert.Empty(t, s.PreBreakTrackID)
	assert.Equal(t, "t1", s.TrackID())
	assert.Zero(t, s.CurrentTrack.ProgressMs)
	assert.False(t, s.Reveal.ShowAlbum)

	sent := h.adapter.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "pl-break", sent[0].PlaylistID)
	assert.Equal(t, playback.ActionPlay, sent[1].Action)
	assert.Equal(t, "pl-1", sent[1].PlaylistID)
	assert.Equal(t, "t1", sent[1].TrackID)
	require.NotNil(t, sent[1].PositionMs)
	assert.Zero(t, *sent[1].PositionMs)
}

func TestPlayBreakWithoutBreakPlaylistPauses(t *testing.T) {
	h := newHarness(t, "host-tab")
	h.dispatcher.cfg.BreakPlaylistID = ""
	h.running(t, playing("t1", "Song", "Band", 15000))

	s, err := h.dispatcher.PlayBreak(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, runtime.ModeBreak, s.Mode)

	sent := h.adapter.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, playback.ActionPause, sent[0].Action)
}

func TestExtendAndRestartSong(t *testing.T) {
	h := newHarness(t, "host-tab")
	s := h.running(t, playing("t1", "Song", "Band", 30000))
	require.True(t, s.Reveal.ShouldAdvance)

	s, err := h.dispatcher.ExtendReveal(h.ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), s.ExtensionMs)
	assert.False(t, s.Reveal.ShouldAdvance)
	assert.True(t, s.Reveal.ShowArtist)
	assert.Empty(t, h.adapter.sent(), "extending never talks to the player")

	h.adapter.set(func(f *fakeAdapter) {
		f.onCommand = func(cmd playback.Command, st *playback.Status) {
			*st = playing("t1", "Song", "Band", 0)
		}
	})
	s, err = h.dispatcher.RestartSong(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, s.ExtensionMs)
	assert.Zero(t, s.CurrentTrack.ProgressMs)
	assert.False(t, s.Reveal.ShowAlbum)

	sent := h.adapter.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, playback.ActionSeek, sent[0].Action)
	require.NotNil(t, sent[0].PositionMs)
	assert.Zero(t, *sent[0].PositionMs)
}

func TestExtendRequiresTrack(t *testing.T) {
	h := newHarness(t, "host-tab")
	_, err := h.dispatcher.ExtendReveal(h.ctx, 0)
	require.ErrorIs(t, err, ErrNoTrack)
	_, err = h.dispatcher.RestartSong(h.ctx)
	require.ErrorIs(t, err, ErrNoTrack)
}

func TestDeviceUnavailableEntersManualMode(t *testing.T) {
	h := newHarness(t, "host-tab")
	h.adapter.set(func(f *fakeAdapter) {
		f.cmdErr = &playback.CommandError{Action: playback.ActionPlay, Code: playback.CodePremiumRequired}
	})

	s, err := h.dispatcher.StartGame(h.ctx, 1)
	require.ErrorIs(t, err, ErrControlUnavailable)
	assert.Equal(t, runtime.ModeRunning, s.Mode)
	assert.Equal(t, 1, s.ActiveGameNumber)
	assert.False(t, s.SpotifyControlAvailable)
	assert.Equal(t, warnNoDevice, s.WarningMessage)
	sentBefore := len(h.adapter.sent())

	s, err = h.dispatcher.Pause(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, runtime.ModePaused, s.Mode)

	_, err = h.dispatcher.Next(h.ctx)
	require.ErrorIs(t, err, ErrControlUnavailable)
	assert.Len(t, h.adapter.sent(), sentBefore, "no commands while control is unavailable")
}

func TestCommandFailureKeepsMode(t *testing.T) {
	h := newHarness(t, "host-tab")
	h.running(t, playing("t1", "Song", "Band", 1000))
	h.adapter.set(func(f *fakeAdapter) {
		f.cmdErr = &playback.CommandError{Action: playback.ActionPause, Code: "rate_limited", Message: "slow down"}
	})

	s, err := h.dispatcher.Pause(h.ctx)
	require.Error(t, err)
	assert.Equal(t, runtime.ModeRunning, s.Mode)
	assert.Contains(t, s.WarningMessage, "rate_limited")
	assert.True(t, s.SpotifyControlAvailable)
}

func TestRefreshFailureStillCommits(t *testing.T) {
	h := newHarness(t, "host-tab")
	h.running(t, playing("t1", "Song", "Band", 1000))
	h.adapter.set(func(f *fakeAdapter) {
		f.onCommand = func(playback.Command, *playback.Status) { f.statusErr = assert.AnError }
	})

	s, err := h.dispatcher.Pause(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, runtime.ModePaused, s.Mode)
	assert.Equal(t, warnRefreshFailed, s.WarningMessage)
}

func TestNextMarksCurrentTrack(t *testing.T) {
	h := newHarness(t, "host-tab")
	h.running(t, playing("t1", "Song", "Band", 1000))

	s, err := h.dispatcher.Next(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", s.AdvanceTriggeredForTrackID)
}

func TestActionsRequireLock(t *testing.T) {
	h := newHarness(t, "other-tab")
	h.running(t, playing("t1", "Song", "Band", 1000))

	_, err := h.dispatcher.Pause(h.ctx)
	require.ErrorIs(t, err, ErrNotLockHolder)
	_, err = h.dispatcher.EndSession(h.ctx)
	require.ErrorIs(t, err, ErrNotLockHolder)
	assert.Empty(t, h.adapter.sent())
}

func TestEndSessionIsTerminal(t *testing.T) {
	h := newHarness(t, "host-tab")
	h.running(t, playing("t1", "Song", "Band", 1000))

	s, err := h.dispatcher.EndSession(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, runtime.ModeEnded, s.Mode)

	sent := h.adapter.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, playback.ActionPause, sent[0].Action)

	_, err = h.dispatcher.StartGame(h.ctx, 1)
	require.ErrorIs(t, err, ErrSessionEnded)
	_, err = h.dispatcher.EndSession(h.ctx)
	require.ErrorIs(t, err, ErrSessionEnded)
}

func TestDoRoutesRequests(t *testing.T) {
	h := newHarness(t, "host-tab")
	h.running(t, playing("t1", "Song", "Band", 1000))

	s, err := h.dispatcher.Do(h.ctx, Request{Action: ActionSeek, PositionMs: 5000})
	require.NoError(t, err)
	assert.Equal(t, runtime.ModeRunning, s.Mode)
	sent := h.adapter.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(5000), *sent[0].PositionMs)

	_, err = h.dispatcher.Do(h.ctx, Request{Action: "dance"})
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.dispatcher.Do(h.ctx, Request{Action: ActionSeek, PositionMs: -1})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

// manual drops the player's device so the host falls back to manual control.
func (h *harness) manual(t *testing.T) runtime.State {
	t.Helper()
	h.adapter.set(func(f *fakeAdapter) { f.status = playback.Status{Connected: true} })
	h.poller.Tick(h.ctx)
	s := h.store.Current()
	require.False(t, s.SpotifyControlAvailable)
	return s
}

func (h *harness) tickFor(seconds int) {
	for i := 0; i < seconds; i++ {
		h.clock.Advance(time.Second)
		h.poller.Tick(h.ctx)
	}
}

func TestManualBreakResumeReplaysTrackFromStart(t *testing.T) {
	h := newHarness(t, "host-tab")
	h.running(t, playing("t1", "Song", "Band", 5000))
	h.manual(t)

	s, err := h.dispatcher.PlayBreak(h.ctx)
	require.NoError(t, err)
	require.Equal(t, runtime.ModeBreak, s.Mode)
	require.Equal(t, "t1", s.PreBreakTrackID)
	progress := s.CurrentTrack.ProgressMs

	h.tickFor(60)
	s = h.store.Current()
	assert.Equal(t, progress, s.CurrentTrack.ProgressMs, "break freezes reveal timing")
	assert.False(t, s.Reveal.ShouldAdvance)

	s, err = h.dispatcher.ResumeFromTrack(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, runtime.ModeRunning, s.Mode)
	require.NotNil(t, s.CurrentTrack)
	assert.Equal(t, "t1", s.CurrentTrack.ID)
	assert.Equal(t, "Song", s.CurrentTrack.Title)
	assert.Equal(t, "pl-1", s.CurrentTrack.PlaylistID)
	assert.Zero(t, s.CurrentTrack.ProgressMs)
	assert.True(t, s.CurrentTrack.IsPlaying)
	assert.Equal(t, reveal.State{}, s.Reveal)
	assert.Empty(t, s.PreBreakTrackID)
	assert.Empty(t, h.adapter.sent(), "manual control sends no commands")

	h.tickFor(11)
	s = h.store.Current()
	assert.GreaterOrEqual(t, s.CurrentTrack.ProgressMs, int64(10000))
	assert.True(t, s.Reveal.ShowAlbum)
	assert.False(t, s.Reveal.ShowTitle)
}

func TestManualPauseFreezesReveal(t *testing.T) {
	h := newHarness(t, "host-tab")
	h.running(t, playing("t1", "Song", "Band", 6000))
	h.manual(t)

	s, err := h.dispatcher.Pause(h.ctx)
	require.NoError(t, err)
	require.Equal(t, runtime.ModePaused, s.Mode)
	progress := s.CurrentTrack.ProgressMs

	h.tickFor(30)
	s = h.store.Current()
	assert.Equal(t, runtime.ModePaused, s.Mode)
	assert.Equal(t, progress, s.CurrentTrack.ProgressMs)
	assert.False(t, s.Reveal.ShouldAdvance)

	s, err = h.dispatcher.Resume(h.ctx)
	require.NoError(t, err)
	require.Equal(t, runtime.ModeRunning, s.Mode)

	h.tickFor(2)
	assert.Greater(t, h.store.Current().CurrentTrack.ProgressMs, progress+1000)
}
