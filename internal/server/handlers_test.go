package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/chatgate/internal/testhelpers"
)

// TestHealthHandlerUnit tests the health handler in isolation.
func TestHealthHandlerUnit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	HealthHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Expected content type text/plain, got %s", ct)
	}
	if body := rr.Body.String(); body != "chatgate is running!" {
		t.Errorf("Unexpected body %q", body)
	}
}

func TestTestPageHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	TestPageHandler(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	if ct := rr.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("Expected content type text/html, got %s", ct)
	}
	if !strings.Contains(rr.Body.String(), "chatgate WebSocket Test") {
		t.Error("Expected the test page title in the body")
	}
}

// TestRoutes verifies that every route is mounted on the router.
func TestRoutes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		body   string
	}{
		{"Health", http.MethodGet, "/", http.StatusOK, "chatgate is running!"},
		{"Test page", http.MethodGet, "/test", http.StatusOK, "<!DOCTYPE html>"},
		{"Metrics", http.MethodGet, "/metrics", http.StatusOK, "chatgate_connections_open"},
		{"WebSocket rejects POST", http.MethodPost, "/ws", http.StatusMethodNotAllowed, "Method not allowed"},
		{"WebSocket without credential", http.MethodGet, "/ws", http.StatusUnauthorized, "unauthenticated"},
		{"Unknown path", http.MethodGet, "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, tt.method, env.srv.URL+tt.path, "", nil)
			defer func() { _ = resp.Body.Close() }()
			testhelpers.AssertStatusCode(t, resp, tt.status)

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("Failed to read body: %v", err)
			}
			if tt.body != "" && !strings.Contains(string(body), tt.body) {
				t.Errorf("Expected body to contain %q, got %q", tt.body, string(body))
			}
		})
	}
}

// TestCreateServer tests the HTTP server construction.
func TestCreateServer(t *testing.T) {
	handler := http.NewServeMux()
	srv := CreateServer(":9999", handler)

	if srv.Addr != ":9999" {
		t.Errorf("Expected addr :9999, got %s", srv.Addr)
	}
	if srv.Handler != handler {
		t.Error("Expected the given handler to be used")
	}
	if srv.ReadTimeout != 15*time.Second || srv.WriteTimeout != 15*time.Second || srv.IdleTimeout != 60*time.Second {
		t.Errorf("Unexpected timeouts: read=%v write=%v idle=%v", srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}
}

func TestNewGatewayRequiresCollaborators(t *testing.T) {
	if _, err := NewGateway(*NewConfig(), Deps{}); err == nil {
		t.Error("Expected an error without a verifier and store")
	}
}
