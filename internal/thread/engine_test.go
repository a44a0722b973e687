package thread

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pi-gateway/pi-gateway/internal/rpcsession"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(rpcsession.NewManager(nil), nil)
}

func waitForEvent(t *testing.T, th *Thread, substr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, ev := range th.Events() {
			if strings.Contains(string(ev.Raw), substr) {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("thread never produced an event containing %q", substr)
}

func waitForStatus(t *testing.T, th *Thread, want Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if th.Status() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("thread did not reach status %q, got %q", want, th.Status())
}

func TestLaunchDrivesCommandThroughDedicatedSession(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.Launch(Spec{Type: TypeBase, Task: "hello-thread", Binary: "cat"})
	require.NoError(t, err)

	th, ok := e.GetThread(id)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(th.ID, "thread-"))
	assert.Equal(t, th.SessionID, id)

	waitForEvent(t, th, "hello-thread", 2*time.Second)
	assert.Equal(t, StatusRunning, th.Status())

	require.NoError(t, e.KillThread(id))
}

func TestKillThreadMarksKilled(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.Launch(Spec{Type: TypeBase, Task: "ping", Binary: "cat"})
	require.NoError(t, err)

	require.NoError(t, e.KillThread(id))

	th, _ := e.GetThread(id)
	waitForStatus(t, th, StatusKilled, 2*time.Second)
}

func TestSteerThreadPromptsRunningSession(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.Launch(Spec{Type: TypeBase, Task: "first", Binary: "cat"})
	require.NoError(t, err)

	th, _ := e.GetThread(id)
	waitForEvent(t, th, "first", 2*time.Second)

	require.NoError(t, e.SteerThread(context.Background(), id, "second"))
	waitForEvent(t, th, "second", 2*time.Second)

	require.NoError(t, e.KillThread(id))
}

func TestAbortThreadSignalsSession(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.Launch(Spec{Type: TypeBase, Task: "ping", Binary: "cat"})
	require.NoError(t, err)

	require.NoError(t, e.AbortThread(context.Background(), id))
}

func TestCleanDeadRemovesTerminatedThreads(t *testing.T) {
	e := newTestEngine(t)
	id, err := e.Launch(Spec{Type: TypeBase, Task: "ping", Binary: "cat"})
	require.NoError(t, err)

	require.NoError(t, e.KillThread(id))
	th, _ := e.GetThread(id)
	waitForStatus(t, th, StatusKilled, 2*time.Second)

	removed := e.CleanDead()
	assert.Contains(t, removed, id)

	_, ok := e.GetThread(id)
	assert.False(t, ok)
}

func TestLaunchUnknownTypeDoesNotCreateSession(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Launch(Spec{Type: "nope", Task: "x", Binary: "cat"})
	assert.Error(t, err)
	assert.Empty(t, e.ListThreads())
}

func TestPresetsLookup(t *testing.T) {
	fn, ok := Preset("debug-fusion")
	require.True(t, ok)

	spec := fn("a flaky test")
	assert.Equal(t, TypeFusion, spec.Type)
	assert.NotEmpty(t, spec.Agents)

	_, ok = Preset("does-not-exist")
	assert.False(t, ok)
}
