package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pi-gateway/pi-gateway/internal/common/config"
)

func authServer(t *testing.T, cfg config.AuthConfig) *Server {
	t.Helper()
	full := testConfig(t)
	full.Auth = cfg
	srv, err := New(full)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func TestAuthenticateAllowsWhenNoTokenConfigured(t *testing.T) {
	srv := authServer(t, config.AuthConfig{Token: ""})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, srv.authenticate(r))
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	srv := authServer(t, config.AuthConfig{Token: "secret", TrustLocalhost: false})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "203.0.113.5:5555"
	assert.False(t, srv.authenticate(r))
}

func TestAuthenticateAcceptsQueryToken(t *testing.T) {
	srv := authServer(t, config.AuthConfig{Token: "secret", TrustLocalhost: false})
	r := httptest.NewRequest(http.MethodGet, "/ws?token=secret", nil)
	r.RemoteAddr = "203.0.113.5:5555"
	assert.True(t, srv.authenticate(r))
}

func TestAuthenticateAcceptsBearerHeader(t *testing.T) {
	srv := authServer(t, config.AuthConfig{Token: "secret", TrustLocalhost: false})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "203.0.113.5:5555"
	r.Header.Set("Authorization", "Bearer secret")
	assert.True(t, srv.authenticate(r))
}

func TestAuthenticateTrustsLoopbackWithoutToken(t *testing.T) {
	srv := authServer(t, config.AuthConfig{Token: "secret", TrustLocalhost: true})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "127.0.0.1:5555"
	assert.True(t, srv.authenticate(r))
}

func TestIsLoopbackHandlesHostPortAndBareIP(t *testing.T) {
	assert.True(t, isLoopback("127.0.0.1:1234"))
	assert.True(t, isLoopback("::1"))
	assert.False(t, isLoopback("203.0.113.5:1234"))
}

func TestExtractTokenPrefersQueryOverHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-query", extractToken(r))
}
