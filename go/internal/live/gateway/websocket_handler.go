package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// HandleSessionConnection handles GET /ws/session?session_id=
func (s *Service) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	rt, ok := s.lookup(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	first, err := NewEvent(sessionID, EventTypeRuntimeUpdate, rt.Store.Current())
	if err != nil {
		http.Error(w, "failed to build snapshot", http.StatusInternalServerError)
		return
	}

	// The upgrader writes its own error response on failure.
	if err := s.connectionManager.UpgradeConnection(w, r, sessionID, first); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns display counts per session.
func (s *Service) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.connectionManager.Stats()})
}
