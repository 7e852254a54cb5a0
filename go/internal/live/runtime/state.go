package runtime

import (
	"errors"
	"fmt"

	"github.com/mcdev12/musicbingo/go/internal/reveal"
)

// SchemaVersion tags every persisted and broadcast snapshot. A record with any
// other tag is treated as absent.
const SchemaVersion = "live-runtime/v1"

// Mode is the session's position in the host state machine.
type Mode string

const (
	ModeIdle    Mode = "idle"
	ModeRunning Mode = "running"
	ModePaused  Mode = "paused"
	ModeBreak   Mode = "break"
	ModeEnded   Mode = "ended"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeIdle, ModeRunning, ModePaused, ModeBreak, ModeEnded:
		return true
	}
	return false
}

var (
	// ErrInvalidSnapshot is returned for records that fail validation.
	ErrInvalidSnapshot = errors.New("invalid runtime snapshot")
	// ErrVersionMismatch is returned for records written under another schema.
	ErrVersionMismatch = errors.New("runtime snapshot version mismatch")
	// ErrSessionMismatch is returned for records belonging to another session.
	ErrSessionMismatch = errors.New("runtime snapshot session mismatch")
)

// Track is the normalized snapshot of the track the external player reports.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	ArtworkURL string `json:"artwork_url,omitempty"`
	PlaylistID string `json:"playlist_id,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	ProgressMs int64  `json:"progress_ms"`
	IsPlaying  bool   `json:"is_playing"`
}

// State is the canonical runtime snapshot of a session. It is replaced
// wholesale on every commit.
type State struct {
	Version                    string       `json:"version"`
	SessionID                  string       `json:"session_id"`
	Mode                       Mode         `json:"mode"`
	ActiveGameNumber           int          `json:"active_game_number,omitempty"`
	SpotifyControlAvailable    bool         `json:"spotify_control_available"`
	CurrentTrack               *Track       `json:"current_track,omitempty"`
	Reveal                     reveal.State `json:"reveal_state"`
	AdvanceTriggeredForTrackID string       `json:"advance_triggered_for_track_id,omitempty"`
	WarningMessage             string       `json:"warning_message,omitempty"`
	IsChallengeSong            bool         `json:"is_challenge_song"`
	PreBreakTrackID            string       `json:"pre_break_track_id,omitempty"`
	PreBreakPlaylistID         string       `json:"pre_break_playlist_id,omitempty"`
	ExtensionMs                int64        `json:"extension_ms"`
	UpdatedAtMs                int64        `json:"updated_at_ms"`
}

// Idle is the explicit empty state used when nothing valid is persisted.
func Idle(sessionID string) State {
	return State{
		Version:                 SchemaVersion,
		SessionID:               sessionID,
		Mode:                    ModeIdle,
		SpotifyControlAvailable: true,
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		s.CurrentTrack = &t
	}
	return s
}

// Equal compares two snapshots by value.
func (s State) Equal(o State) bool {
	a, b := s, o
	a.CurrentTrack, b.CurrentTrack = nil, nil
	if a != b {
		return false
	}
	switch {
	case s.CurrentTrack == nil && o.CurrentTrack == nil:
		return true
	case s.CurrentTrack == nil || o.CurrentTrack == nil:
		return false
	default:
		return *s.CurrentTrack == *o.CurrentTrack
	}
}

// TrackID returns the current track id or "".
func (s State) TrackID() string {
	if s.CurrentTrack == nil {
		return ""
	}
	return s.CurrentTrack.ID
}

// Validate checks the invariants every persisted snapshot must hold.
func (s State) Validate() error {
	if s.Version != SchemaVersion {
		return fmt.Errorf("%w: %q", ErrVersionMismatch, s.Version)
	}
	if s.SessionID == "" {
		return fmt.Errorf("%w: missing session_id", ErrInvalidSnapshot)
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSnapshot, s.Mode)
	}
	if s.ActiveGameNumber < 0 {
		return fmt.Errorf("%w: active_game_number %d", ErrInvalidSnapshot, s.ActiveGameNumber)
	}
	if !s.Reveal.Valid() {
		return fmt.Errorf("%w: reveal_state %+v is not a phase", ErrInvalidSnapshot, s.Reveal)
	}
	if s.ExtensionMs < 0 {
		return fmt.Errorf("%w: extension_ms %d", ErrInvalidSnapshot, s.ExtensionMs)
	}
	if s.UpdatedAtMs < 0 {
		return fmt.Errorf("%w: updated_at_ms %d", ErrInvalidSnapshot, s.UpdatedAtMs)
	}
	if t := s.CurrentTrack; t != nil {
		if t.ID == "" {
			return fmt.Errorf("%w: track without id", ErrInvalidSnapshot)
		}
		if t.DurationMs < 0 || t.ProgressMs < 0 {
			return fmt.Errorf("%w: negative track timing", ErrInvalidSnapshot)
		}
	}
	return nil
}
