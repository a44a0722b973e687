package rpcsession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRejectsDuplicateID(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Create("dup", "/bin/cat", "", nil)
	require.NoError(t, err)
	defer m.KillAll()

	_, err = m.Create("dup", "/bin/cat", "", nil)
	assert.Error(t, err)
}

func TestPromptWritesToStdinAndEmitsMessageEvent(t *testing.T) {
	m := NewManager(nil)
	s, err := m.Create("echoer", "/bin/cat", "", nil)
	require.NoError(t, err)
	defer m.KillAll()

	require.NoError(t, s.Prompt(context.Background(), `{"hello":"world"}`))

	select {
	case ev := <-s.Events():
		assert.Equal(t, EventMessage, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a message event")
	}
}

func TestKillEmitsKilledEvent(t *testing.T) {
	m := NewManager(nil)
	s, err := m.Create("killme", "/bin/cat", "", nil)
	require.NoError(t, err)

	require.NoError(t, s.Kill())

	select {
	case ev, ok := <-s.Events():
		require.True(t, ok)
		assert.Equal(t, EventKilled, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a killed event")
	}
}

func TestManagerListAndGet(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Create("a", "/bin/cat", "", nil)
	require.NoError(t, err)
	defer m.KillAll()

	_, ok := m.Get("a")
	assert.True(t, ok)
	assert.Contains(t, m.List(), "a")
}

func TestManagerKillRemovesFromRegistryEventually(t *testing.T) {
	m := NewManager(nil)
	s, err := m.Create("b", "/bin/cat", "", nil)
	require.NoError(t, err)

	require.NoError(t, m.Kill("b"))
	<-s.Done()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.Get("b"); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected session to be removed from registry after exit")
}
