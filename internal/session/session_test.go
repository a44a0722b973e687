package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pi-gateway/pi-gateway/internal/agent"
	"github.com/pi-gateway/pi-gateway/internal/chatstore"
	"github.com/pi-gateway/pi-gateway/internal/common/apierr"
)

// fakeExecutor is a stand-in for *registry.Registry in tests.
type fakeExecutor struct {
	mu       sync.Mutex
	calls    []agent.Task
	result   agent.Result
	err      error
	blockFor time.Duration
}

func (f *fakeExecutor) Execute(ctx context.Context, task agent.Task) (agent.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, task)
	f.mu.Unlock()
	if f.blockFor > 0 {
		time.Sleep(f.blockFor)
	}
	return f.result, f.err
}

func (f *fakeExecutor) ExecuteStream(ctx context.Context, task agent.Task) (<-chan string, <-chan agent.StreamOutcome, error) {
	chunks := make(chan string)
	outcome := make(chan agent.StreamOutcome, 1)
	close(chunks)
	outcome <- agent.StreamOutcome{Status: agent.StatusSuccess}
	close(outcome)
	return chunks, outcome, nil
}

func newTestSession(t *testing.T, exec Executor) *Session {
	t.Helper()
	store, err := chatstore.Open(":memory:")
	require.NoError(t, err)
	s, err := New(context.Background(), Config{Executor: exec, Store: store})
	require.NoError(t, err)
	return s
}

func TestProcessMessageAppendsUserAndAgentTurns(t *testing.T) {
	exec := &fakeExecutor{result: agent.Result{AgentID: "claude", Status: agent.StatusSuccess, Output: "done"}}
	s := newTestSession(t, exec)

	reply, err := s.ProcessMessage(context.Background(), "fix the bug")
	require.NoError(t, err)
	assert.Equal(t, "done", reply.Content)
	assert.Equal(t, "claude", reply.AgentUsed)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "agent", history[1].Role)
}

func TestProcessMessageQueuesWhileBusy(t *testing.T) {
	exec := &fakeExecutor{result: agent.Result{Status: agent.StatusSuccess, Output: "ok"}, blockFor: 50 * time.Millisecond}
	s := newTestSession(t, exec)

	go func() { _, _ = s.ProcessMessage(context.Background(), "first") }()
	time.Sleep(5 * time.Millisecond)

	_, err := s.ProcessMessage(context.Background(), "second")
	assert.ErrorIs(t, err, apierr.ErrSessionBusy)
}

func TestBuildPromptTruncatesAndLimitsHistory(t *testing.T) {
	exec := &fakeExecutor{result: agent.Result{Status: agent.StatusSuccess, Output: "ok"}}
	s := newTestSession(t, exec)

	for i := 0; i < 10; i++ {
		_, err := s.ProcessMessage(context.Background(), "message")
		require.NoError(t, err)
	}

	prompt := s.buildPrompt("final")
	lines := strings.Count(prompt, "\n")
	assert.LessOrEqual(t, lines, 7)
}

func TestMiddlewareBlockStopsTurn(t *testing.T) {
	exec := &fakeExecutor{result: agent.Result{Status: agent.StatusSuccess, Output: "ok"}}
	store, err := chatstore.Open(":memory:")
	require.NoError(t, err)
	blocker := MiddlewareFunc(func(ctx context.Context, s *Session, prompt string) MiddlewareResult {
		return MiddlewareResult{Decision: DecisionBlock, Reason: "blocked by policy"}
	})
	s, err := New(context.Background(), Config{Executor: exec, Store: store, Middlewares: []Middleware{blocker}})
	require.NoError(t, err)

	reply, err := s.ProcessMessage(context.Background(), "do something disallowed")
	require.Error(t, err)
	assert.Equal(t, "blocked by policy", reply.Content)
	assert.Empty(t, exec.calls)
}

func TestMiddlewareRouteOverridesCapability(t *testing.T) {
	exec := &fakeExecutor{result: agent.Result{Status: agent.StatusSuccess, Output: "ok"}}
	store, err := chatstore.Open(":memory:")
	require.NoError(t, err)
	router := MiddlewareFunc(func(ctx context.Context, s *Session, prompt string) MiddlewareResult {
		return MiddlewareResult{Decision: DecisionRoute, Capability: "planning"}
	})
	s, err := New(context.Background(), Config{Executor: exec, Store: store, Middlewares: []Middleware{router}})
	require.NoError(t, err)

	_, err = s.ProcessMessage(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, "planning", exec.calls[0].Capability)
}

func TestInferCapabilityFromKeywords(t *testing.T) {
	assert.Equal(t, "planning", inferCapability("please plan the migration"))
	assert.Equal(t, "refactor", inferCapability("refactor this function"))
	assert.Equal(t, "", inferCapability("what time is it"))
}
