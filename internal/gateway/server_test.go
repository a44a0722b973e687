package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pi-gateway/pi-gateway/internal/common/config"
	"github.com/pi-gateway/pi-gateway/internal/common/logger"
	"github.com/pi-gateway/pi-gateway/pkg/wsproto"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Auth:   config.AuthConfig{Token: "", TrustLocalhost: true},
		Agent: config.AgentConfig{
			WorkDir:     t.TempDir(),
			HealthTTLMs: 30000,
		},
		Events:  config.EventsConfig{Mode: "memory"},
		ChatDB:  config.ChatDBConfig{DSN: ":memory:"},
		Teams:   config.TeamsConfig{BaseDir: t.TempDir()},
		Logging: logger.Config{Level: "error", Format: "console", OutputPath: "stdout"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := New(testConfig(t))
	require.NoError(t, err)
	return srv
}

func dispatch(t *testing.T, srv *Server, action string, payload interface{}) *wsproto.Message {
	t.Helper()
	req, err := wsproto.NewRequest("req-1", action, payload)
	require.NoError(t, err)
	resp, err := srv.dispatcher.Dispatch(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func TestHealthCheckReturnsOK(t *testing.T) {
	srv := newTestServer(t)
	resp := dispatch(t, srv, wsproto.ActionHealthCheck, nil)
	assert.Equal(t, wsproto.MessageTypeResponse, resp.Type)

	var payload map[string]interface{}
	require.NoError(t, resp.ParsePayload(&payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestUnknownActionReturnsError(t *testing.T) {
	srv := newTestServer(t)
	resp := dispatch(t, srv, "bogus.action", nil)
	assert.Equal(t, wsproto.MessageTypeError, resp.Type)
}

func TestSessionSendRequiresSessionIDAndContent(t *testing.T) {
	srv := newTestServer(t)
	resp := dispatch(t, srv, wsproto.ActionSessionSend, map[string]string{"session_id": ""})
	assert.Equal(t, wsproto.MessageTypeError, resp.Type)
}

func TestSessionModePinsAgentForLaterRouting(t *testing.T) {
	srv := newTestServer(t)
	resp := dispatch(t, srv, wsproto.ActionSessionMode, map[string]string{
		"session_id": "s1", "agent_id": "claude-code",
	})
	assert.Equal(t, wsproto.MessageTypeResponse, resp.Type)

	agentID, ok := srv.pinnedAgent("s1")
	assert.True(t, ok)
	assert.Equal(t, "claude-code", agentID)
}

func TestAgentListReturnsRegisteredWrappers(t *testing.T) {
	srv := newTestServer(t)
	resp := dispatch(t, srv, wsproto.ActionAgentList, nil)
	assert.Equal(t, wsproto.MessageTypeResponse, resp.Type)

	var payload struct {
		Agents []map[string]interface{} `json:"agents"`
	}
	require.NoError(t, resp.ParsePayload(&payload))
	assert.NotEmpty(t, payload.Agents)
}

func TestTeamsCreateAndGetRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	created := dispatch(t, srv, wsproto.ActionTeamsCreate, map[string]interface{}{
		"name": "squad-1",
	})
	require.Equal(t, wsproto.MessageTypeResponse, created.Type)

	var team struct {
		TeamName string `json:"teamName"`
	}
	require.NoError(t, created.ParsePayload(&team))
	require.Equal(t, "squad-1", team.TeamName)

	got := dispatch(t, srv, wsproto.ActionTeamsGet, map[string]string{"teamName": team.TeamName})
	assert.Equal(t, wsproto.MessageTypeResponse, got.Type)
}

func TestTeamsCreateFromUnknownPresetErrors(t *testing.T) {
	srv := newTestServer(t)
	resp := dispatch(t, srv, wsproto.ActionTeamsCreatePreset, map[string]string{"preset": "nope"})
	assert.Equal(t, wsproto.MessageTypeError, resp.Type)
}

func TestThreadLaunchAndListRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	launched := dispatch(t, srv, wsproto.ActionThreadLaunch, map[string]interface{}{
		"type": "base", "task": "echo hi", "binary": "cat",
	})
	require.Equal(t, wsproto.MessageTypeResponse, launched.Type)

	listed := dispatch(t, srv, wsproto.ActionThreadList, nil)
	assert.Equal(t, wsproto.MessageTypeResponse, listed.Type)
}

func TestPTYWriteOnUnknownSessionErrors(t *testing.T) {
	srv := newTestServer(t)
	resp := dispatch(t, srv, wsproto.ActionPTYWrite, map[string]string{"pty_id": "nope", "data": "x"})
	assert.Equal(t, wsproto.MessageTypeError, resp.Type)
}

func TestRPCPromptOnUnknownSessionErrors(t *testing.T) {
	srv := newTestServer(t)
	resp := dispatch(t, srv, wsproto.ActionRPCPrompt, map[string]string{"id": "nope", "text": "hi"})
	assert.Equal(t, wsproto.MessageTypeError, resp.Type)
}
