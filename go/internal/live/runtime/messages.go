package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType tags a channel message.
type MessageType string

const (
	MessageRuntimeUpdate MessageType = "runtime_update"
	MessageHostHeartbeat MessageType = "host_heartbeat"
	MessageWarning       MessageType = "warning"
)

// ErrInvalidMessage is returned for channel payloads that fail validation.
var ErrInvalidMessage = errors.New("invalid channel message")

// Heartbeat is published by the lock owner on every lock heartbeat.
type Heartbeat struct {
	TabID      string `json:"tab_id"`
	LastSeenMs int64  `json:"last_seen_ms"`
}

// Warning is a user-visible, non-persisted notice.
type Warning struct {
	Message string `json:"message"`
}

// Message is the tagged union carried on the broadcast channel. Exactly one of
// Runtime, Heartbeat and Warning is set, matching Type.
type Message struct {
	Type      MessageType
	SessionID string
	Origin    string
	SentAtMs  int64

	Runtime   *State
	Heartbeat *Heartbeat
	Warning   *Warning
}

type envelope struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id"`
	Origin    string          `json:"origin"`
	SentAtMs  int64           `json:"sent_at_ms"`
	Payload   json.RawMessage `json:"payload"`
}

// EncodeMessage serializes a message into its envelope.
func EncodeMessage(m Message) ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	switch m.Type {
	case MessageRuntimeUpdate:
		if m.Runtime == nil {
			return nil, fmt.Errorf("%w: runtime_update without state", ErrInvalidMessage)
		}
		payload, err = EncodeState(*m.Runtime)
	case MessageHostHeartbeat:
		if m.Heartbeat == nil {
			return nil, fmt.Errorf("%w: host_heartbeat without body", ErrInvalidMessage)
		}
		payload, err = json.Marshal(m.Heartbeat)
	case MessageWarning:
		if m.Warning == nil {
			return nil, fmt.Errorf("%w: warning without body", ErrInvalidMessage)
		}
		payload, err = json.Marshal(m.Warning)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Type:      m.Type,
		SessionID: m.SessionID,
		Origin:    m.Origin,
		SentAtMs:  m.SentAtMs,
		Payload:   payload,
	})
}

// DecodeMessage validates an envelope and its payload for the given kind.
func DecodeMessage(data []byte, sessionID string) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if env.SessionID != sessionID {
		return Message{}, fmt.Errorf("%w: session %q", ErrInvalidMessage, env.SessionID)
	}
	if len(env.Payload) == 0 {
		return Message{}, fmt.Errorf("%w: empty payload", ErrInvalidMessage)
	}

	m := Message{Type: env.Type, SessionID: env.SessionID, Origin: env.Origin, SentAtMs: env.SentAtMs}
	switch env.Type {
	case MessageRuntimeUpdate:
		s, err := DecodeState(env.Payload, sessionID)
		if err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		m.Runtime = &s
	case MessageHostHeartbeat:
		var hb struct {
			TabID      *string `json:"tab_id"`
			LastSeenMs *int64  `json:"last_seen_ms"`
		}
		if err := json.Unmarshal(env.Payload, &hb); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if hb.TabID == nil || *hb.TabID == "" || hb.LastSeenMs == nil || *hb.LastSeenMs < 0 {
			return Message{}, fmt.Errorf("%w: malformed host_heartbeat", ErrInvalidMessage)
		}
		m.Heartbeat = &Heartbeat{TabID: *hb.TabID, LastSeenMs: *hb.LastSeenMs}
	case MessageWarning:
		var w struct {
			Message *string `json:"message"`
		}
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if w.Message == nil {
			return Message{}, fmt.Errorf("%w: malformed warning", ErrInvalidMessage)
		}
		m.Warning = &Warning{Message: *w.Message}
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, env.Type)
	}
	return m, nil
}
