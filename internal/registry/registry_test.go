package registry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pi-gateway/pi-gateway/internal/agent"
)

func healthyWrapper(id string, capabilities ...string) *agent.Wrapper {
	return agent.NewWrapper(id, id, "true", capabilities, func(agent.Task) []string { return nil },
		agent.WithVersionProbe(func(ctx context.Context, w *agent.Wrapper) (string, bool) { return "1.0", true }))
}

func unhealthyWrapper(id string, capabilities ...string) *agent.Wrapper {
	return agent.NewWrapper(id, id, "false", capabilities, func(agent.Task) []string { return nil },
		agent.WithVersionProbe(func(ctx context.Context, w *agent.Wrapper) (string, bool) { return "", false }))
}

func TestSelectForTaskPrefersOrderAmongHealthy(t *testing.T) {
	r := New([]string{"b", "a"}, time.Minute, nil)
	r.Register(healthyWrapper("a", "code-edit"))
	r.Register(healthyWrapper("b", "code-edit"))

	w, err := r.SelectForTask(context.Background(), agent.Task{Capability: "code-edit"})
	require.NoError(t, err)
	assert.Equal(t, "b", w.ID())
}

func TestSelectForTaskFallsBackPastUnhealthy(t *testing.T) {
	r := New([]string{"a", "b"}, time.Minute, nil)
	r.Register(unhealthyWrapper("a", "code-edit"))
	r.Register(healthyWrapper("b", "code-edit"))

	w, err := r.SelectForTask(context.Background(), agent.Task{Capability: "code-edit"})
	require.NoError(t, err)
	assert.Equal(t, "b", w.ID())
}

func TestSelectForTaskFiltersByCapability(t *testing.T) {
	r := New(nil, time.Minute, nil)
	r.Register(healthyWrapper("a", "planning"))

	_, err := r.SelectForTask(context.Background(), agent.Task{Capability: "code-edit"})
	assert.Error(t, err)
}

func TestSelectForTaskNoneAvailableReturnsTriedList(t *testing.T) {
	r := New([]string{"a", "b"}, time.Minute, nil)
	r.Register(unhealthyWrapper("a", "code-edit"))
	r.Register(unhealthyWrapper("b", "code-edit"))

	_, err := r.SelectForTask(context.Background(), agent.Task{Capability: "code-edit"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "a"))
	assert.True(t, strings.Contains(err.Error(), "b"))
}

func TestAvailableAgentsOnlyListsHealthy(t *testing.T) {
	r := New(nil, time.Minute, nil)
	r.Register(healthyWrapper("a"))
	r.Register(unhealthyWrapper("b"))

	got := r.AvailableAgents(context.Background())
	assert.Equal(t, []string{"a"}, got)
}

func TestHealthIsCachedWithinTTL(t *testing.T) {
	calls := 0
	w := agent.NewWrapper("a", "a", "true", nil, func(agent.Task) []string { return nil },
		agent.WithVersionProbe(func(ctx context.Context, w *agent.Wrapper) (string, bool) {
			calls++
			return "1.0", true
		}))
	r := New(nil, time.Minute, nil)
	r.Register(w)

	r.IsHealthy(context.Background(), "a")
	r.IsHealthy(context.Background(), "a")

	assert.Equal(t, 1, calls)
}

func TestUnregisterRemovesWrapperAndHealthCache(t *testing.T) {
	r := New(nil, time.Minute, nil)
	r.Register(healthyWrapper("a"))
	r.IsHealthy(context.Background(), "a")

	r.Unregister("a")

	_, ok := r.Get("a")
	assert.False(t, ok)
	assert.False(t, r.IsHealthy(context.Background(), "a"))
}

func TestExecuteReturnsResultFromSelectedWrapper(t *testing.T) {
	r := New(nil, time.Minute, nil)
	r.Register(healthyWrapper("a", "code-edit"))

	res, err := r.Execute(context.Background(), agent.Task{Prompt: "hi", Capability: "code-edit"})
	require.NoError(t, err)
	assert.Equal(t, "a", res.AgentID)
}

func TestExecuteNoCandidatesReturnsNoAgentAvailable(t *testing.T) {
	r := New(nil, time.Minute, nil)

	_, err := r.Execute(context.Background(), agent.Task{Prompt: "hi", Capability: "code-edit"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no available agent found")
}
