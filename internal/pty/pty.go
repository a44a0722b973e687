// Package pty manages interactive pseudo-terminal sessions spawned for a
// user-facing shell, one creack/pty-backed process per session.
package pty

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"

	"github.com/pi-gateway/pi-gateway/internal/common/logger"
)

// maxScrollback is the number of characters retained per session; older
// output is trimmed from the head once exceeded.
const maxScrollback = 100_000

// postExitRetention is how long a dead session's handle (and its final
// scrollback) stays addressable after the underlying process exits, so a
// client that was briefly disconnected can still fetch the tail of output.
const postExitRetention = 30 * time.Second

// Handle abstracts a running pseudo-terminal as io.ReadWriteCloser plus
// Resize. The only implementation is the creack/pty-backed
// unixHandleAdapter; there is no Windows ConPTY implementation.
type Handle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	Resize(cols, rows uint16) error
}

// Session is one live (or recently-dead) pseudo-terminal.
type Session struct {
	ID      string
	Shell   string
	WorkDir string

	mu         sync.Mutex
	handle     Handle
	cmd        *exec.Cmd
	scrollback []byte
	alive      bool
	exitedAt   time.Time
	onOutput   func(chunk []byte)
}

// Manager owns every pseudo-terminal session the gateway has spawned.
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

// Spawn starts shell (falling back to "/bin/sh" if empty) in workDir at the
// given terminal size, returning the new session's ID.
func (m *Manager) Spawn(shell, workDir string, cols, rows uint16) (string, error) {
	if shell == "" {
		shell = "/bin/sh"
	}
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	cmd := exec.Command(shell)
	cmd.Dir = workDir

	handle, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return "", fmt.Errorf("start pty: %w", err)
	}

	s := &Session{
		ID:      uuid.NewString(),
		Shell:   shell,
		WorkDir: workDir,
		handle:  &unixHandleAdapter{f: handle},
		cmd:     cmd,
		alive:   true,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	go m.pump(s)
	go m.reap(s)

	return s.ID, nil
}

// pump copies PTY output into the session's scrollback buffer, trimming
// from the head once maxScrollback is exceeded, and forwards each chunk to
// OnOutput if one was registered.
func (m *Manager) pump(s *Session) {
	buf := make([]byte, 4096)
	for {
		n, err := s.handle.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			s.mu.Lock()
			s.scrollback = append(s.scrollback, chunk...)
			if len(s.scrollback) > maxScrollback {
				s.scrollback = s.scrollback[len(s.scrollback)-maxScrollback:]
			}
			cb := s.onOutput
			s.mu.Unlock()
			if cb != nil {
				cb(chunk)
			}
		}
		if err != nil {
			return
		}
	}
}

// reap waits for the underlying process to exit, marks the session dead,
// and schedules its removal after postExitRetention.
func (m *Manager) reap(s *Session) {
	_ = s.cmd.Wait()

	s.mu.Lock()
	s.alive = false
	s.exitedAt = time.Now()
	s.mu.Unlock()

	time.AfterFunc(postExitRetention, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, ok := m.sessions[s.ID]; ok && cur == s && !s.alive {
			delete(m.sessions, s.ID)
		}
	})
}

// Write sends input to a live session. Writing to a dead session is a
// silent no-op so a slow client racing the process exit does not error.
func (m *Manager) Write(id string, data []byte) error {
	s, ok := m.get(id)
	if !ok {
		return fmt.Errorf("pty session %q not found", id)
	}
	s.mu.Lock()
	alive := s.alive
	handle := s.handle
	s.mu.Unlock()
	if !alive {
		return nil
	}
	_, err := handle.Write(data)
	return err
}

// Resize changes a live session's terminal dimensions. A no-op on a dead
// session.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	s, ok := m.get(id)
	if !ok {
		return fmt.Errorf("pty session %q not found", id)
	}
	s.mu.Lock()
	alive := s.alive
	handle := s.handle
	s.mu.Unlock()
	if !alive {
		return nil
	}
	return handle.Resize(cols, rows)
}

// Kill terminates a session's process and closes its PTY.
func (m *Manager) Kill(id string) error {
	s, ok := m.get(id)
	if !ok {
		return fmt.Errorf("pty session %q not found", id)
	}
	s.mu.Lock()
	handle := s.handle
	cmd := s.cmd
	s.mu.Unlock()

	_ = handle.Close()
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	return nil
}

// Scrollback returns a copy of a session's retained output.
func (m *Manager) Scrollback(id string) ([]byte, bool) {
	s, ok := m.get(id)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.scrollback...), true
}

// IsAlive reports whether id's process is still running.
func (m *Manager) IsAlive(id string) bool {
	s, ok := m.get(id)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// OnOutput registers a callback invoked with each chunk of output read
// from id's PTY, for forwarding to a WebSocket client. Only one callback
// is retained per session; a later call replaces an earlier one.
func (m *Manager) OnOutput(id string, cb func(chunk []byte)) {
	s, ok := m.get(id)
	if !ok {
		return
	}
	s.mu.Lock()
	s.onOutput = cb
	s.mu.Unlock()
}

func (m *Manager) get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// unixHandleAdapter narrows creack/pty's *os.File to the Handle interface,
// adding Resize via pty.Setsize.
type unixHandleAdapter struct {
	f *os.File
}

func (h *unixHandleAdapter) Read(p []byte) (int, error)  { return h.f.Read(p) }
func (h *unixHandleAdapter) Write(p []byte) (int, error) { return h.f.Write(p) }
func (h *unixHandleAdapter) Close() error                { return h.f.Close() }

func (h *unixHandleAdapter) Resize(cols, rows uint16) error {
	return pty.Setsize(h.f, &pty.Winsize{Cols: cols, Rows: rows})
}
