package session

import (
	"context"
	"sync"
)

// MemStore keeps sessions in process memory. Suitable for single
// instance deployments and tests; state is lost on restart.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]*Session)}
}

func (m *MemStore) Get(_ context.Context, key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return &Session{}, nil
	}
	return s.Clone(), nil
}

func (m *MemStore) Save(_ context.Context, key string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = s.Clone()
	return nil
}

func (m *MemStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}
