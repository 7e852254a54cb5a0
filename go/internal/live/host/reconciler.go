package host

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/musicbingo/go/clients/playback"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
	"github.com/mcdev12/musicbingo/go/internal/models"
	"github.com/mcdev12/musicbingo/go/internal/reveal"
)

// Reconciler is the single path through which playback observations become
// runtime state. Both the poller and the dispatcher commit through it.
type Reconciler struct {
	cfg   *models.SessionConfig
	store *runtime.Store
	clock clockwork.Clock
}

func NewReconciler(cfg *models.SessionConfig, store *runtime.Store, clock clockwork.Clock) *Reconciler {
	return &Reconciler{cfg: cfg, store: store, clock: clock}
}

// Fold commits pre (if any) followed by the observation st. A non-empty
// warning replaces the warning derived from st.
func (r *Reconciler) Fold(ctx context.Context, st playback.Status, pre runtime.Updater, warning string) (runtime.State, error) {
	return r.store.Commit(ctx, func(s runtime.State) runtime.State {
		if pre != nil {
			s = pre(s)
		}
		s = r.observe(s, st, r.clock.Now().UnixMilli())
		if warning != "" {
			s.WarningMessage = warning
		}
		return s
	})
}

// Recompute commits pre and re-derives reveal state from the track already
// held, without a new observation.
func (r *Reconciler) Recompute(ctx context.Context, pre runtime.Updater) (runtime.State, error) {
	return r.store.Commit(ctx, func(s runtime.State) runtime.State {
		if pre != nil {
			s = pre(s)
		}
		return r.derive(s)
	})
}

func (r *Reconciler) observe(s runtime.State, st playback.Status, nowMs int64) runtime.State {
	s.SpotifyControlAvailable = st.Connected && st.CanControlPlayback && st.ActiveDevice != nil

	track := NormalizeTrack(st)
	switch {
	case track != nil:
		if track.ID != s.TrackID() {
			s.ExtensionMs = 0
		}
		s.CurrentTrack = track
	case s.Mode == runtime.ModeRunning && s.CurrentTrack != nil && s.CurrentTrack.IsPlaying && !s.SpotifyControlAvailable:
		// Manual host control: keep the clock running on the last known track
		// while the session is running. Paused and break freeze it.
		t := *s.CurrentTrack
		t.ProgressMs += max(nowMs-s.UpdatedAtMs, 0)
		if t.DurationMs > 0 && t.ProgressMs > t.DurationMs {
			t.ProgressMs = t.DurationMs
		}
		s.CurrentTrack = &t
	case s.CurrentTrack != nil:
		t := *s.CurrentTrack
		t.IsPlaying = false
		s.CurrentTrack = &t
	}

	switch {
	case !st.Connected:
		s.WarningMessage = warnDisconnected
	case len(st.Warnings) > 0:
		s.WarningMessage = st.Warnings[0]
	case !s.SpotifyControlAvailable:
		s.WarningMessage = warnNoDevice
	default:
		s.WarningMessage = ""
	}
	return r.derive(s)
}

// derive recomputes every field that follows from the track and config.
func (r *Reconciler) derive(s runtime.State) runtime.State {
	t := s.CurrentTrack
	if t == nil {
		s.IsChallengeSong = false
		s.Reveal = reveal.State{}
		return s
	}

	s.IsChallengeSong = false
	if game, ok := r.cfg.Game(s.ActiveGameNumber); ok {
		s.IsChallengeSong = reveal.MatchesChallenge(t.Title, t.Artist, game.ChallengeSong)
	}
	th := reveal.Effective(r.cfg.Reveal, r.cfg.ChallengeReveal, s.IsChallengeSong, s.ExtensionMs)
	s.Reveal = reveal.Compute(t.ProgressMs, th)
	s.AdvanceTriggeredForTrackID = reveal.ReconcileMarker(s.AdvanceTriggeredForTrackID, t.ID)
	return s
}
