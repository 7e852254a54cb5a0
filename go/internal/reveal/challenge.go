package reveal

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ChallengeSong is the per-game track that gets the longer reveal window.
type ChallengeSong struct {
	Artist string `json:"artist" yaml:"artist"`
	Title  string `json:"title" yaml:"title"`
}

// Configured reports whether both fields are set.
func (c ChallengeSong) Configured() bool {
	return normalize(c.Artist) != "" && normalize(c.Title) != ""
}

var folder = cases.Fold()

func normalize(s string) string {
	return strings.TrimSpace(folder.String(norm.NFKC.String(s)))
}

// fuzzyEqual is a case-insensitive mutual substring match.
func fuzzyEqual(a, b string) bool {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// MatchesChallenge reports whether a playing track is the configured challenge song.
// Title and artist must each match.
func MatchesChallenge(title, artist string, song ChallengeSong) bool {
	if !song.Configured() {
		return false
	}
	return fuzzyEqual(title, song.Title) && fuzzyEqual(artist, song.Artist)
}

// Effective picks the thresholds in force for the current track and applies the
// host's manual extension to NextMs.
func Effective(base, challenge Thresholds, isChallenge bool, extensionMs int64) Thresholds {
	t := base
	if isChallenge {
		t = challenge
	}
	if extensionMs > 0 {
		t.NextMs += extensionMs
	}
	return t
}
