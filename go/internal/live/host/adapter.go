// Package host runs the controlling side of a live session: it polls the
// playback adapter, folds what it sees into the runtime state, fires
// auto-advance and executes host actions.
package host

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/mcdev12/musicbingo/go/clients/playback"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
)

// Adapter is the playback adapter surface the host drives.
type Adapter interface {
	Status(ctx context.Context, sessionID string) (playback.Status, error)
	Command(ctx context.Context, cmd playback.Command) (playback.CommandResponse, error)
}

// LockHolder answers whether a tab currently owns the control lock.
type LockHolder interface {
	Holds(ctx context.Context, tabID string) (bool, error)
}

const (
	warnUnauthorized  = "Playback authorization expired. Reconnect to resume."
	warnNoDevice      = "No active playback device. Manual host control: reveal timing continues from the last known track."
	warnDisconnected  = "Playback adapter is not connected."
	warnStatusFailed  = "Could not reach the playback adapter. Retrying."
	warnRefreshFailed = "Command sent but playback status could not be refreshed."
	warnAdvanceFailed = "Auto-advance failed: "
)

// NormalizeTrack converts the adapter's playback report into a track
// snapshot. It returns nil when nothing identifiable is playing.
func NormalizeTrack(st playback.Status) *runtime.Track {
	p := st.Playback
	if p == nil || p.Item == nil || p.Item.ID == "" {
		return nil
	}
	progress := p.ProgressMs
	if progress < 0 {
		progress = 0
	}
	duration := p.Item.DurationMs
	if duration < 0 {
		duration = 0
	}
	return &runtime.Track{
		ID:         p.Item.ID,
		Title:      p.Item.Name,
		Artist:     strings.Join(p.Item.Artists, ", "),
		Album:      p.Item.Album,
		ArtworkURL: p.Item.ArtworkURL,
		PlaylistID: p.PlaylistID,
		DurationMs: duration,
		ProgressMs: progress,
		IsPlaying:  p.IsPlaying,
	}
}

// Breaker halts polling and commands after the adapter rejects the
// credential, until an explicit reconnect succeeds.
type Breaker struct {
	tripped atomic.Bool
}

func (b *Breaker) Trip() { b.tripped.Store(true) }

func (b *Breaker) Reset() { b.tripped.Store(false) }

func (b *Breaker) Tripped() bool { return b.tripped.Load() }
