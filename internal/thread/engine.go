package thread

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pi-gateway/pi-gateway/internal/common/logger"
	"github.com/pi-gateway/pi-gateway/internal/rpcsession"
)

// Status is a Thread's lifecycle state.
type Status string

const (
	StatusRunning Status = "running"
	StatusIdle    Status = "idle"
	StatusError   Status = "error"
	StatusKilled  Status = "killed"
)

// ThreadEvent is one item appended to a Thread's event log as its RPC
// session reports progress.
type ThreadEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	TextDelta string          `json:"textDelta,omitempty"`
	ToolName  string          `json:"toolName,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Thread is one run compiled from a Spec and driven through a dedicated
// RPC session: exactly one Thread owns exactly one rpcsession.Session,
// never shared across runs.
type Thread struct {
	ID        string
	SessionID string
	Type      Type
	Command   string
	StartedAt time.Time

	mu     sync.Mutex
	status Status
	events []ThreadEvent
}

// Status returns the thread's current lifecycle status.
func (t *Thread) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Events returns a copy of the thread's event log.
func (t *Thread) Events() []ThreadEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ThreadEvent(nil), t.events...)
}

func (t *Thread) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

func (t *Thread) appendEvent(e ThreadEvent) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

// Engine launches and tracks threads, driving each one through its own
// rpcsession.Session.
type Engine struct {
	rpc *rpcsession.Manager

	mu      sync.Mutex
	threads map[string]*Thread

	logger *logger.Logger
}

// NewEngine builds an Engine that launches runs through rpc.
func NewEngine(rpc *rpcsession.Manager, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{rpc: rpc, threads: make(map[string]*Thread), logger: log}
}

// Launch compiles spec into a slash command, starts a dedicated RPC
// session for it, and prompts that session with the compiled command.
func (e *Engine) Launch(spec Spec) (string, error) {
	command, err := Compile(spec)
	if err != nil {
		return "", err
	}

	id := newThreadID()
	binary := spec.Binary
	if binary == "" {
		binary = "claude"
	}

	sess, err := e.rpc.Create(id, binary, spec.CWD, spec.Argv)
	if err != nil {
		return "", fmt.Errorf("create rpc session for thread %q: %w", id, err)
	}

	t := &Thread{
		ID:        id,
		SessionID: sess.ID,
		Type:      spec.Type,
		Command:   command,
		StartedAt: time.Now(),
		status:    StatusRunning,
	}

	e.mu.Lock()
	e.threads[t.ID] = t
	e.mu.Unlock()

	go e.pump(t, sess)

	if err := sess.Prompt(context.Background(), command); err != nil {
		t.setStatus(StatusError)
		return "", fmt.Errorf("prompt thread %q: %w", id, err)
	}

	return t.ID, nil
}

// pump drains sess's event stream into t's event log, filtered by session
// ID, translating terminal events into the thread's status.
func (e *Engine) pump(t *Thread, sess *rpcsession.Session) {
	for ev := range sess.Events() {
		if ev.SessionID != t.SessionID {
			continue
		}

		te := ThreadEvent{Timestamp: ev.Timestamp, Kind: string(ev.Type), Raw: ev.Data}
		te.TextDelta, te.ToolName = extractDelta(ev.Data)
		t.appendEvent(te)

		switch ev.Type {
		case rpcsession.EventIdle:
			t.setStatus(StatusIdle)
		case rpcsession.EventKilled:
			t.setStatus(StatusKilled)
		case rpcsession.EventError:
			t.setStatus(StatusError)
		}
	}
}

// extractDelta pulls an assistant message's text delta and active tool
// name out of a raw event payload, tolerating payloads that carry
// neither.
func extractDelta(raw json.RawMessage) (textDelta, toolName string) {
	if len(raw) == 0 {
		return "", ""
	}
	var probe struct {
		Event struct {
			TextDelta struct {
				Delta string `json:"delta"`
			} `json:"text_delta"`
			ToolName string `json:"tool_name"`
		} `json:"event"`
		ToolName string `json:"tool_name"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", ""
	}
	toolName = probe.Event.ToolName
	if toolName == "" {
		toolName = probe.ToolName
	}
	return probe.Event.TextDelta.Delta, toolName
}

// GetThread returns the thread registered under id.
func (e *Engine) GetThread(id string) (*Thread, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.threads[id]
	return t, ok
}

// ListThreads returns every known thread ID.
func (e *Engine) ListThreads() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.threads))
	for id := range e.threads {
		out = append(out, id)
	}
	return out
}

// SteerThread prompts a running thread's session with newMessage,
// interrupting and redirecting its current turn.
func (e *Engine) SteerThread(ctx context.Context, id, newMessage string) error {
	t, ok := e.GetThread(id)
	if !ok {
		return fmt.Errorf("thread %q not found", id)
	}
	sess, ok := e.rpc.Get(t.SessionID)
	if !ok {
		return fmt.Errorf("thread %q has no live rpc session", id)
	}
	return sess.Prompt(ctx, newMessage)
}

// AbortThread asks a thread's session to stop its current turn without
// necessarily exiting.
func (e *Engine) AbortThread(ctx context.Context, id string) error {
	t, ok := e.GetThread(id)
	if !ok {
		return fmt.Errorf("thread %q not found", id)
	}
	sess, ok := e.rpc.Get(t.SessionID)
	if !ok {
		return nil
	}
	return sess.Abort(ctx)
}

// KillThread terminates a thread's session.
func (e *Engine) KillThread(id string) error {
	t, ok := e.GetThread(id)
	if !ok {
		return fmt.Errorf("thread %q not found", id)
	}
	return e.rpc.Kill(t.SessionID)
}

// CleanDead removes every idle, errored, or killed thread from the
// registry, returning the IDs it removed.
func (e *Engine) CleanDead() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var removed []string
	for id, t := range e.threads {
		switch t.Status() {
		case StatusIdle, StatusError, StatusKilled:
			delete(e.threads, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func newThreadID() string {
	var buf [3]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("thread-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}
