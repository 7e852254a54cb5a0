package reveal

import (
	"errors"
	"fmt"
)

// Phase is the stage of metadata disclosure for the playing track.
type Phase int

const (
	PhaseHidden Phase = iota
	PhaseAlbum
	PhaseTitle
	PhaseArtist
	PhaseAdvance
)

func (p Phase) String() string {
	switch p {
	case PhaseHidden:
		return "hidden"
	case PhaseAlbum:
		return "album"
	case PhaseTitle:
		return "title"
	case PhaseArtist:
		return "artist"
	case PhaseAdvance:
		return "advance"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ErrInvalidThresholds is returned when a threshold config is out of order or negative.
var ErrInvalidThresholds = errors.New("invalid reveal thresholds")

// Thresholds are the playback offsets at which each phase starts.
type Thresholds struct {
	AlbumMs  int64 `json:"album_ms" yaml:"album_ms"`
	TitleMs  int64 `json:"title_ms" yaml:"title_ms"`
	ArtistMs int64 `json:"artist_ms" yaml:"artist_ms"`
	NextMs   int64 `json:"next_ms" yaml:"next_ms"`
}

// DefaultThresholds are used when a session does not override them.
var DefaultThresholds = Thresholds{AlbumMs: 10000, TitleMs: 20000, ArtistMs: 25000, NextMs: 30000}

// Validate requires album <= title <= artist <= next, all non-negative.
func (t Thresholds) Validate() error {
	if t.AlbumMs < 0 {
		return fmt.Errorf("%w: album_ms %d is negative", ErrInvalidThresholds, t.AlbumMs)
	}
	if t.TitleMs < t.AlbumMs {
		return fmt.Errorf("%w: title_ms %d before album_ms %d", ErrInvalidThresholds, t.TitleMs, t.AlbumMs)
	}
	if t.ArtistMs < t.TitleMs {
		return fmt.Errorf("%w: artist_ms %d before title_ms %d", ErrInvalidThresholds, t.ArtistMs, t.TitleMs)
	}
	if t.NextMs < t.ArtistMs {
		return fmt.Errorf("%w: next_ms %d before artist_ms %d", ErrInvalidThresholds, t.NextMs, t.ArtistMs)
	}
	return nil
}

// PhaseAt maps playback progress to a phase. Thresholds are inclusive.
func PhaseAt(progressMs int64, t Thresholds) Phase {
	switch {
	case progressMs >= t.NextMs:
		return PhaseAdvance
	case progressMs >= t.ArtistMs:
		return PhaseArtist
	case progressMs >= t.TitleMs:
		return PhaseTitle
	case progressMs >= t.AlbumMs:
		return PhaseAlbum
	default:
		return PhaseHidden
	}
}

// State is the set of reveal booleans shown to guests.
// It is always derived from a Phase, never toggled field by field.
type State struct {
	ShowAlbum     bool `json:"show_album"`
	ShowTitle     bool `json:"show_title"`
	ShowArtist    bool `json:"show_artist"`
	ShouldAdvance bool `json:"should_advance"`
}

// StateFor returns the booleans implied by a phase.
func StateFor(p Phase) State {
	return State{
		ShowAlbum:     p >= PhaseAlbum,
		ShowTitle:     p >= PhaseTitle,
		ShowArtist:    p >= PhaseArtist,
		ShouldAdvance: p >= PhaseAdvance,
	}
}

// Compute is StateFor(PhaseAt(progressMs, t)).
func Compute(progressMs int64, t Thresholds) State {
	return StateFor(PhaseAt(progressMs, t))
}

// Phase recovers the phase a state was derived from.
func (s State) Phase() Phase {
	switch {
	case s.ShouldAdvance:
		return PhaseAdvance
	case s.ShowArtist:
		return PhaseArtist
	case s.ShowTitle:
		return PhaseTitle
	case s.ShowAlbum:
		return PhaseAlbum
	default:
		return PhaseHidden
	}
}

// Valid reports whether the booleans are exactly the set of some phase.
func (s State) Valid() bool {
	return StateFor(s.Phase()) == s
}
