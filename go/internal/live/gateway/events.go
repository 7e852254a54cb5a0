package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the frame pushed to display clients.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type EventType string

const (
	EventTypeRuntimeUpdate EventType = "runtime_update"
	EventTypePresence      EventType = "presence"
)

// PresencePayload tells displays whether a host is driving the session.
type PresencePayload struct {
	HostConnected bool   `json:"host_connected"`
	HostTabID     string `json:"host_tab_id,omitempty"`
	LatestWarning string `json:"latest_warning,omitempty"`
}

// NewEvent wraps payload in an event frame.
func NewEvent(sessionID string, eventType EventType, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}
