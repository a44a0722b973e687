// Package session implements the session orchestrator: the component that
// turns a user message into an agent turn, applies middleware, and persists
// the resulting chat history.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pi-gateway/pi-gateway/internal/agent"
	"github.com/pi-gateway/pi-gateway/internal/chatstore"
	"github.com/pi-gateway/pi-gateway/internal/common/apierr"
	"github.com/pi-gateway/pi-gateway/internal/common/logger"
	"github.com/pi-gateway/pi-gateway/internal/events/bus"
)

// ChatMessage is one line of a session's transcript.
type ChatMessage struct {
	ID         string
	Role       string // "user" or "agent"
	Content    string
	AgentUsed  string
	DurationMs int64
	Timestamp  time.Time
}

// Executor is the subset of the registry a session needs: pick a wrapper
// for a task and run it. Implemented by *registry.Registry.
type Executor interface {
	Execute(ctx context.Context, task agent.Task) (agent.Result, error)
	ExecuteStream(ctx context.Context, task agent.Task) (<-chan string, <-chan agent.StreamOutcome, error)
}

// Decision is what a Middleware returns after inspecting an in-flight turn.
type Decision int

const (
	// DecisionPass lets the turn proceed unmodified.
	DecisionPass Decision = iota
	// DecisionBlock stops the turn; Middleware must set a reason.
	DecisionBlock
	// DecisionRoute overrides which agent capability/ID handles the turn.
	DecisionRoute
)

// MiddlewareResult is what a Middleware hands back to the orchestrator.
type MiddlewareResult struct {
	Decision   Decision
	Reason     string // required for DecisionBlock
	Capability string // optional, set for DecisionRoute
	AgentID    string // optional, set for DecisionRoute
	Prompt     string // optional transformed prompt; empty means unchanged
}

// Middleware inspects (and may transform, block, or reroute) one turn
// before it reaches the registry.
type Middleware interface {
	Process(ctx context.Context, s *Session, prompt string) MiddlewareResult
}

// MiddlewareFunc adapts a plain function to Middleware.
type MiddlewareFunc func(ctx context.Context, s *Session, prompt string) MiddlewareResult

func (f MiddlewareFunc) Process(ctx context.Context, s *Session, prompt string) MiddlewareResult {
	return f(ctx, s, prompt)
}

// capabilityKeywords maps a keyword found in a prompt to the capability it
// implies, used when no middleware and no explicit capability was given.
var capabilityKeywords = map[string]string{
	"plan":     "planning",
	"design":   "planning",
	"refactor": "refactor",
	"rename":   "refactor",
}

func inferCapability(prompt string) string {
	lower := strings.ToLower(prompt)
	for kw, cap := range capabilityKeywords {
		if strings.Contains(lower, kw) {
			return cap
		}
	}
	return ""
}

// Session is one conversation: a message history, a pending-message queue
// (while a turn is in flight), and the executor/store it is wired to.
type Session struct {
	ID      string
	WorkDir string

	mu          sync.Mutex
	busy        bool
	history     []ChatMessage
	pending     []string
	middlewares []Middleware

	executor Executor
	store    chatstore.Store
	eventBus bus.EventBus
	logger   *logger.Logger
}

// Config bundles a Session's collaborators.
type Config struct {
	ID          string
	WorkDir     string
	Executor    Executor
	Store       chatstore.Store
	EventBus    bus.EventBus
	Logger      *logger.Logger
	Middlewares []Middleware
}

// New creates a session, seeding its history from store.LoadRecent.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	s := &Session{
		ID:          cfg.ID,
		WorkDir:     cfg.WorkDir,
		executor:    cfg.Executor,
		store:       cfg.Store,
		eventBus:    cfg.EventBus,
		logger:      cfg.Logger,
		middlewares: cfg.Middlewares,
	}

	if cfg.Store != nil {
		recent, err := cfg.Store.LoadRecent(ctx, 200)
		if err != nil {
			return nil, fmt.Errorf("load recent chat history: %w", err)
		}
		for _, m := range recent {
			s.history = append(s.history, ChatMessage{
				ID: m.ID, Role: m.Role, Content: m.Content,
				AgentUsed: m.AgentUsed, DurationMs: m.DurationMs, Timestamp: m.Timestamp,
			})
		}
	}
	return s, nil
}

// History returns a copy of the session's transcript.
func (s *Session) History() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatMessage(nil), s.history...)
}

// IsBusy reports whether a turn is currently in flight.
func (s *Session) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// ProcessMessage runs one turn: queue if busy, else run the three-phase
// turn (middleware -> prompt construction -> execute) and drain any
// messages that queued up while this one ran.
func (s *Session) ProcessMessage(ctx context.Context, content string) (ChatMessage, error) {
	s.mu.Lock()
	if s.busy {
		s.pending = append(s.pending, content)
		s.mu.Unlock()
		return ChatMessage{}, apierr.ErrSessionBusy
	}
	s.busy = true
	s.mu.Unlock()

	defer s.drainPending(ctx)

	return s.runTurn(ctx, content)
}

func (s *Session) drainPending(ctx context.Context) {
	s.mu.Lock()
	s.busy = false
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	go func() {
		if _, err := s.ProcessMessage(ctx, next); err != nil {
			s.logger.Warn("queued message failed", zap.Error(err))
		}
	}()
}

func (s *Session) runTurn(ctx context.Context, content string) (ChatMessage, error) {
	userMsg := ChatMessage{ID: uuid.NewString(), Role: "user", Content: content, Timestamp: time.Now()}
	s.appendAndPersist(ctx, userMsg)

	prompt := content
	capability := inferCapability(content)
	var targetAgentID string

	for _, mw := range s.middlewares {
		result := mw.Process(ctx, s, prompt)
		switch result.Decision {
		case DecisionBlock:
			blocked := ChatMessage{ID: uuid.NewString(), Role: "agent", Content: result.Reason, Timestamp: time.Now()}
			s.appendAndPersist(ctx, blocked)
			return blocked, apierr.New(apierr.CodeValidation, result.Reason)
		case DecisionRoute:
			if result.Capability != "" {
				capability = result.Capability
			}
			if result.AgentID != "" {
				targetAgentID = result.AgentID
			}
			fallthrough
		case DecisionPass:
			if result.Prompt != "" {
				prompt = result.Prompt
			}
		}
	}

	fullPrompt := s.buildPrompt(prompt)

	task := agent.Task{Prompt: fullPrompt, WorkDir: s.WorkDir, Capability: capability}
	start := time.Now()

	var (
		res agent.Result
		err error
	)
	if targetAgentID != "" {
		res, err = s.executeSpecific(ctx, targetAgentID, task)
	} else {
		res, err = s.executor.Execute(ctx, task)
	}

	reply := ChatMessage{
		ID:         uuid.NewString(),
		Role:       "agent",
		Timestamp:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		reply.Content = err.Error()
	} else {
		reply.Content = res.Output
		reply.AgentUsed = res.AgentID
	}
	s.appendAndPersist(ctx, reply)

	if s.eventBus != nil {
		_ = s.eventBus.Publish(ctx, bus.SubjectSessionPrefix+s.ID, bus.NewEvent("session.reply", "session", reply))
	}

	return reply, err
}

// executeSpecific is used when middleware routes a turn to a named agent
// rather than letting capability-based selection pick one.
func (s *Session) executeSpecific(ctx context.Context, agentID string, task agent.Task) (agent.Result, error) {
	type getter interface {
		Get(id string) (*agent.Wrapper, bool)
	}
	if g, ok := s.executor.(getter); ok {
		if w, found := g.Get(agentID); found {
			return w.Execute(ctx, task), nil
		}
	}
	return s.executor.Execute(ctx, task)
}

// buildPrompt prefixes content with up to the last 6 messages of context,
// each truncated to 500 characters, matching the turn-construction rule.
func (s *Session) buildPrompt(content string) string {
	s.mu.Lock()
	history := append([]ChatMessage(nil), s.history...)
	s.mu.Unlock()

	start := 0
	if len(history) > 6 {
		start = len(history) - 6
	}

	var b strings.Builder
	for _, m := range history[start:] {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(truncate(m.Content, 500))
		b.WriteString("\n")
	}
	b.WriteString("user: ")
	b.WriteString(content)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (s *Session) appendAndPersist(ctx context.Context, msg ChatMessage) {
	s.mu.Lock()
	s.history = append(s.history, msg)
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	err := s.store.Upsert(ctx, chatstore.Message{
		ID: msg.ID, Role: msg.Role, Content: msg.Content,
		AgentUsed: msg.AgentUsed, DurationMs: msg.DurationMs, Timestamp: msg.Timestamp,
	})
	if err != nil {
		s.logger.Warn("persist chat message failed", zap.Error(err))
	}
}

// Clear wipes in-memory history; does not touch the backing store.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}
