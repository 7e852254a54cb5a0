package models

import (
	"errors"
	"fmt"

	"github.com/mcdev12/musicbingo/go/internal/reveal"
)

// ErrInvalidSession is returned when a session configuration fails validation.
var ErrInvalidSession = errors.New("invalid session configuration")

// GameConfig describes one bingo game inside a session.
type GameConfig struct {
	Number        int                  `json:"number" yaml:"number"`
	Theme         string               `json:"theme" yaml:"theme"`
	PlaylistID    string               `json:"playlist_id" yaml:"playlist_id"`
	ChallengeSong reveal.ChallengeSong `json:"challenge_song" yaml:"challenge_song"`
}

// SessionConfig is the read-only session record prepared ahead of the event.
type SessionConfig struct {
	ID              string            `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	EventDate       string            `json:"event_date" yaml:"event_date"`
	Venue           string            `json:"venue,omitempty" yaml:"venue,omitempty"`
	Games           []GameConfig      `json:"games" yaml:"games"`
	Reveal          reveal.Thresholds `json:"reveal" yaml:"reveal"`
	ChallengeReveal reveal.Thresholds `json:"challenge_reveal" yaml:"challenge_reveal"`
	BreakPlaylistID string            `json:"break_playlist_id,omitempty" yaml:"break_playlist_id,omitempty"`
}

// Game returns the game with the given number.
func (s *SessionConfig) Game(number int) (GameConfig, bool) {
	for _, g := range s.Games {
		if g.Number == number {
			return g, true
		}
	}
	return GameConfig{}, false
}

// Validate rejects configs the runtime cannot run with.
func (s *SessionConfig) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidSession)
	}
	if err := s.Reveal.Validate(); err != nil {
		return fmt.Errorf("%w: reveal: %v", ErrInvalidSession, err)
	}
	if err := s.ChallengeReveal.Validate(); err != nil {
		return fmt.Errorf("%w: challenge_reveal: %v", ErrInvalidSession, err)
	}
	if s.ChallengeReveal.NextMs < s.Reveal.NextMs {
		return fmt.Errorf("%w: challenge next_ms %d shorter than next_ms %d",
			ErrInvalidSession, s.ChallengeReveal.NextMs, s.Reveal.NextMs)
	}
	if len(s.Games) == 0 {
		return fmt.Errorf("%w: no games", ErrInvalidSession)
	}
	seen := make(map[int]bool, len(s.Games))
	for _, g := range s.Games {
		if g.Number <= 0 {
			return fmt.Errorf("%w: game number %d", ErrInvalidSession, g.Number)
		}
		if seen[g.Number] {
			return fmt.Errorf("%w: duplicate game number %d", ErrInvalidSession, g.Number)
		}
		seen[g.Number] = true
		if g.PlaylistID == "" {
			return fmt.Errorf("%w: game %d has no playlist", ErrInvalidSession, g.Number)
		}
	}
	return nil
}

// ApplyDefaults fills in reveal thresholds left at zero.
func (s *SessionConfig) ApplyDefaults() {
	if s.Reveal == (reveal.Thresholds{}) {
		s.Reveal = reveal.DefaultThresholds
	}
	if s.ChallengeReveal == (reveal.Thresholds{}) {
		s.ChallengeReveal = s.Reveal
		s.ChallengeReveal.NextMs = DefaultChallengeNextMs
		if s.ChallengeReveal.NextMs < s.Reveal.NextMs {
			s.ChallengeReveal.NextMs = s.Reveal.NextMs
		}
	}
}

// DefaultChallengeNextMs is the advance threshold for challenge songs.
const DefaultChallengeNextMs = 90000
