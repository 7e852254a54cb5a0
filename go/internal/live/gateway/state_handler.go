package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/musicbingo/go/clients/playback"
	"github.com/mcdev12/musicbingo/go/internal/live/host"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
	"github.com/rs/zerolog/log"
)

// StateResponse is returned by the state endpoint.
type StateResponse struct {
	Runtime  runtime.State   `json:"runtime"`
	Presence PresencePayload `json:"presence"`
	Halted   bool            `json:"halted,omitempty"`
	Lock     *host.LockView  `json:"lock,omitempty"`
}

// ActionResponse carries the state after an action and the action error, if any.
type ActionResponse struct {
	Runtime runtime.State `json:"runtime"`
	Error   string        `json:"error,omitempty"`
}

// RegisterRoutes adds the HTTP and websocket routes to mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/{id}/state", s.HandleGetState)
	mux.HandleFunc("GET /api/sessions/{id}/lock", s.HandleGetLock)
	mux.HandleFunc("POST /api/sessions/{id}/actions", s.HandleAction)
	mux.HandleFunc("POST /api/sessions/{id}/lock/take", s.HandleTakeControl)
	mux.HandleFunc("POST /api/sessions/{id}/reconnect", s.HandleReconnect)
	mux.HandleFunc("GET /ws/session", s.HandleSessionConnection)
	mux.HandleFunc("GET /ws/stats", s.HandleConnectionStats)
	log.Info().Msg("gateway routes registered")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Service) runtimeFor(w http.ResponseWriter, r *http.Request) (Runtime, bool) {
	rt, ok := s.lookup(r.PathValue("id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
	}
	return rt, ok
}

func (s *Service) hostFor(w http.ResponseWriter, r *http.Request) (*host.Session, bool) {
	rt, ok := s.runtimeFor(w, r)
	if !ok {
		return nil, false
	}
	if rt.Host == nil {
		http.Error(w, "host controls are not served by this instance", http.StatusNotFound)
		return nil, false
	}
	return rt.Host, true
}

// HandleGetState handles GET /api/sessions/{id}/state
func (s *Service) HandleGetState(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.runtimeFor(w, r)
	if !ok {
		return
	}
	resp := StateResponse{Runtime: rt.Store.Current(), Presence: s.presence(rt)}
	if rt.Host != nil {
		view := rt.Host.LockStatus()
		resp.Lock = &view
		resp.Halted = rt.Host.Halted()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetLock handles GET /api/sessions/{id}/lock
func (s *Service) HandleGetLock(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hostFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.LockStatus())
}

// HandleAction handles POST /api/sessions/{id}/actions
func (s *Service) HandleAction(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hostFor(w, r)
	if !ok {
		return
	}

	var req host.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	st, err := h.Dispatcher().Do(r.Context(), req)
	if err != nil {
		log.Warn().Err(err).Str("session_id", st.SessionID).Str("action", string(req.Action)).Msg("host action failed")
		writeJSON(w, actionStatus(err), ActionResponse{Runtime: st, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Runtime: st})
}

func actionStatus(err error) int {
	switch {
	case errors.Is(err, host.ErrUnknownGame), errors.Is(err, host.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, host.ErrNotLockHolder):
		return http.StatusForbidden
	case errors.Is(err, host.ErrInvalidTransition), errors.Is(err, host.ErrSessionEnded), errors.Is(err, host.ErrNoTrack):
		return http.StatusConflict
	case errors.Is(err, host.ErrControlUnavailable), errors.Is(err, host.ErrPlaybackHalted):
		return http.StatusServiceUnavailable
	case errors.Is(err, playback.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

// HandleTakeControl handles POST /api/sessions/{id}/lock/take
func (s *Service) HandleTakeControl(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hostFor(w, r)
	if !ok {
		return
	}
	res, err := h.TakeControl(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("take control failed")
		http.Error(w, "failed to take control", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReconnect handles POST /api/sessions/{id}/reconnect
func (s *Service) HandleReconnect(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hostFor(w, r)
	if !ok {
		return
	}
	st, err := h.Reconnect(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, playback.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, ActionResponse{Runtime: st, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Runtime: st})
}
