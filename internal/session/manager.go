package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/pi-gateway/pi-gateway/internal/common/logger"
)

// Manager owns every live Session, keyed by ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  func(ctx context.Context, id string) (*Session, error)
	logger   *logger.Logger
}

// NewManager builds a Manager that lazily creates sessions via factory.
func NewManager(factory func(ctx context.Context, id string) (*Session, error), log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
		logger:   log,
	}
}

// GetOrCreate returns the session for id, creating it via the factory on
// first use.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}

	s, err := m.factory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("create session %q: %w", id, err)
	}
	m.sessions[id] = s
	return s, nil
}

// Get returns the session for id without creating it.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops a session from the manager. The caller is responsible for
// any cleanup of the session's own resources beforehand.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// List returns every known session ID.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}
