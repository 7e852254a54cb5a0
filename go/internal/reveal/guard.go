package reveal

// ShouldTrigger reports whether the auto-advance for trackID may fire now.
// marker is the id of the track an advance was already triggered for ("" when none).
func ShouldTrigger(trackID string, s State, marker string) bool {
	return trackID != "" && s.ShouldAdvance && marker != trackID
}

// ReconcileMarker clears the marker once a different track is observed.
// An empty trackID (nothing observed) leaves it untouched.
func ReconcileMarker(marker, trackID string) string {
	if trackID != "" && marker != "" && marker != trackID {
		return ""
	}
	return marker
}
