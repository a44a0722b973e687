package pty

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnWriteAndReadBack(t *testing.T) {
	m := NewManager(nil)

	id, err := m.Spawn("/bin/sh", "", 80, 24)
	require.NoError(t, err)

	err = m.Write(id, []byte("echo hello-pty\n"))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		out, ok := m.Scrollback(id)
		if ok && strings.Contains(string(out), "hello-pty") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected scrollback to contain echoed output")
}

func TestKillMarksSessionDead(t *testing.T) {
	m := NewManager(nil)
	id, err := m.Spawn("/bin/sh", "", 80, 24)
	require.NoError(t, err)

	require.NoError(t, m.Kill(id))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && m.IsAlive(id) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, m.IsAlive(id))
}

func TestWriteToUnknownSessionErrors(t *testing.T) {
	m := NewManager(nil)
	err := m.Write("does-not-exist", []byte("x"))
	assert.Error(t, err)
}

// readerHandle is a Handle whose Read drains r and then reports io.EOF.
type readerHandle struct{ r *bytes.Reader }

func (h *readerHandle) Read(p []byte) (int, error)     { return h.r.Read(p) }
func (h *readerHandle) Write(p []byte) (int, error)    { return len(p), nil }
func (h *readerHandle) Close() error                   { return nil }
func (h *readerHandle) Resize(cols, rows uint16) error { return nil }

func TestScrollbackTrimsFromHead(t *testing.T) {
	data := make([]byte, maxScrollback+10)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	s := &Session{handle: &readerHandle{r: bytes.NewReader(data)}}

	NewManager(nil).pump(s)

	assert.Len(t, s.scrollback, maxScrollback)
	assert.Equal(t, data[10:], s.scrollback)
}
