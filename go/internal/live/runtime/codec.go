package runtime

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/musicbingo/go/internal/reveal"
)

// The wire types mirror State with pointer fields so a missing key can be told
// apart from a zero value. Nothing downstream of DecodeState sees them.

type wireTrack struct {
	ID         *string `json:"id"`
	Title      *string `json:"title"`
	Artist     *string `json:"artist"`
	Album      *string `json:"album"`
	ArtworkURL *string `json:"artwork_url"`
	PlaylistID *string `json:"playlist_id"`
	DurationMs *int64  `json:"duration_ms"`
	ProgressMs *int64  `json:"progress_ms"`
	IsPlaying  *bool   `json:"is_playing"`
}

type wireReveal struct {
	ShowAlbum     *bool `json:"show_album"`
	ShowTitle     *bool `json:"show_title"`
	ShowArtist    *bool `json:"show_artist"`
	ShouldAdvance *bool `json:"should_advance"`
}

type wireState struct {
	Version                    *string     `json:"version"`
	SessionID                  *string     `json:"session_id"`
	Mode                       *string     `json:"mode"`
	ActiveGameNumber           *int        `json:"active_game_number"`
	SpotifyControlAvailable    *bool       `json:"spotify_control_available"`
	CurrentTrack               *wireTrack  `json:"current_track"`
	Reveal                     *wireReveal `json:"reveal_state"`
	AdvanceTriggeredForTrackID *string     `json:"advance_triggered_for_track_id"`
	WarningMessage             *string     `json:"warning_message"`
	IsChallengeSong            *bool       `json:"is_challenge_song"`
	PreBreakTrackID            *string     `json:"pre_break_track_id"`
	PreBreakPlaylistID         *string     `json:"pre_break_playlist_id"`
	ExtensionMs                *int64      `json:"extension_ms"`
	UpdatedAtMs                *int64      `json:"updated_at_ms"`
}

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrInvalidSnapshot, field)
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func decodeTrack(w *wireTrack) (*Track, error) {
	switch {
	case w.ID == nil:
		return nil, missing("current_track.id")
	case w.Title == nil:
		return nil, missing("current_track.title")
	case w.Artist == nil:
		return nil, missing("current_track.artist")
	case w.Album == nil:
		return nil, missing("current_track.album")
	case w.DurationMs == nil:
		return nil, missing("current_track.duration_ms")
	case w.ProgressMs == nil:
		return nil, missing("current_track.progress_ms")
	case w.IsPlaying == nil:
		return nil, missing("current_track.is_playing")
	}
	return &Track{
		ID:         *w.ID,
		Title:      *w.Title,
		Artist:     *w.Artist,
		Album:      *w.Album,
		ArtworkURL: optional(w.ArtworkURL),
		PlaylistID: optional(w.PlaylistID),
		DurationMs: *w.DurationMs,
		ProgressMs: *w.ProgressMs,
		IsPlaying:  *w.IsPlaying,
	}, nil
}

func decodeReveal(w *wireReveal) (reveal.State, error) {
	if w.ShowAlbum == nil || w.ShowTitle == nil || w.ShowArtist == nil || w.ShouldAdvance == nil {
		return reveal.State{}, missing("reveal_state field")
	}
	return reveal.State{
		ShowAlbum:     *w.ShowAlbum,
		ShowTitle:     *w.ShowTitle,
		ShowArtist:    *w.ShowArtist,
		ShouldAdvance: *w.ShouldAdvance,
	}, nil
}

// DecodeState parses a persisted or broadcast snapshot for sessionID.
// Any missing field, type mismatch, unknown mode or version/session mismatch
// rejects the whole record.
func DecodeState(data []byte, sessionID string) (State, error) {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	if w.Version == nil || *w.Version != SchemaVersion {
		return State{}, fmt.Errorf("%w: got %q", ErrVersionMismatch, optional(w.Version))
	}
	if w.SessionID == nil {
		return State{}, missing("session_id")
	}
	if *w.SessionID != sessionID {
		return State{}, fmt.Errorf("%w: %q != %q", ErrSessionMismatch, *w.SessionID, sessionID)
	}
	switch {
	case w.Mode == nil:
		return State{}, missing("mode")
	case w.SpotifyControlAvailable == nil:
		return State{}, missing("spotify_control_available")
	case w.Reveal == nil:
		return State{}, missing("reveal_state")
	case w.IsChallengeSong == nil:
		return State{}, missing("is_challenge_song")
	case w.ExtensionMs == nil:
		return State{}, missing("extension_ms")
	case w.UpdatedAtMs == nil:
		return State{}, missing("updated_at_ms")
	}

	rs, err := decodeReveal(w.Reveal)
	if err != nil {
		return State{}, err
	}

	s := State{
		Version:                    *w.Version,
		SessionID:                  *w.SessionID,
		Mode:                       Mode(*w.Mode),
		SpotifyControlAvailable:    *w.SpotifyControlAvailable,
		Reveal:                     rs,
		AdvanceTriggeredForTrackID: optional(w.AdvanceTriggeredForTrackID),
		WarningMessage:             optional(w.WarningMessage),
		IsChallengeSong:            *w.IsChallengeSong,
		PreBreakTrackID:            optional(w.PreBreakTrackID),
		PreBreakPlaylistID:         optional(w.PreBreakPlaylistID),
		ExtensionMs:                *w.ExtensionMs,
		UpdatedAtMs:                *w.UpdatedAtMs,
	}
	if w.ActiveGameNumber != nil {
		s.ActiveGameNumber = *w.ActiveGameNumber
	}
	if w.CurrentTrack != nil {
		if s.CurrentTrack, err = decodeTrack(w.CurrentTrack); err != nil {
			return State{}, err
		}
	}

	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

// EncodeState serializes a snapshot after checking it is valid.
func EncodeState(s State) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal runtime state: %w", err)
	}
	return data, nil
}
