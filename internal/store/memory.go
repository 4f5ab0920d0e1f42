package store

import (
	"context"
	"sync"
)

// MemoryStore is a process-local SessionStore. Contents vanish with the
// process, like storage scoped to a closed tab.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) GetSlot(_ context.Context, sessionID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.slots[sessionID][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) SetSlot(_ context.Context, sessionID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.slots[sessionID]
	if !ok {
		session = make(map[string][]byte)
		m.slots[sessionID] = session
	}
	v := make([]byte, len(value))
	copy(v, value)
	session[key] = v
	return nil
}

func (m *MemoryStore) DeleteSlot(_ context.Context, sessionID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.slots[sessionID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := session[key]; !ok {
		return ErrNotFound
	}
	delete(session, key)
	if len(session) == 0 {
		delete(m.slots, sessionID)
	}
	return nil
}
