package rpcsession

import (
	"sync"

	"github.com/pi-gateway/pi-gateway/internal/common/apierr"
	"github.com/pi-gateway/pi-gateway/internal/common/logger"
)

// Manager owns every live RPC session, keyed by caller-supplied ID.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *logger.Logger
}

// NewManager builds an empty Manager.
func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{sessions: make(map[string]*Session), logger: log}
}

// Create starts a new long-lived agent subprocess under id. Returns
// apierr.ErrDuplicateSessionID if id is already in use.
func (m *Manager) Create(id, binary, workDir string, argv []string) (*Session, error) {
	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, apierr.ErrDuplicateSessionID
	}
	m.mu.Unlock()

	s, err := newSession(id, binary, workDir, argv, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	go m.cleanupOnExit(s)

	return s, nil
}

// cleanupOnExit removes a session from the registry once its subprocess
// has exited, so a later Create with the same ID is not spuriously
// rejected. It waits on Session.Done rather than draining Events, leaving
// the event stream for whatever consumer the caller attached.
func (m *Manager) cleanupOnExit(s *Session) {
	<-s.Done()
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
}

// Get returns the session registered under id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns every live session ID.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}

// Kill stops a single session.
func (m *Manager) Kill(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return apierr.New(apierr.CodeNotFound, "rpc session not found")
	}
	return s.Kill()
}

// KillAll stops every live session.
func (m *Manager) KillAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Kill()
	}
}
