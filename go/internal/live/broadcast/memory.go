package broadcast

import (
	"context"
	"sync"
)

// Memory is an in-process hub. Handlers run synchronously on the publisher's
// goroutine, outside the hub lock.
type Memory struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

// NewMemory creates an empty hub.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]Handler)}
}

func (m *Memory) Publish(_ context.Context, sessionID string, payload []byte) error {
	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.subs[sessionID]))
	for _, h := range m.subs[sessionID] {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		h(msg)
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, sessionID string, handler Handler) (func(), error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	if m.subs[sessionID] == nil {
		m.subs[sessionID] = make(map[int]Handler)
	}
	m.subs[sessionID][id] = handler
	m.mu.Unlock()

	cancel := releaseOnDone(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[sessionID], id)
		if len(m.subs[sessionID]) == 0 {
			delete(m.subs, sessionID)
		}
	})
	return cancel, nil
}

// Subscribers returns the number of live subscriptions for a session.
func (m *Memory) Subscribers(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[sessionID])
}
