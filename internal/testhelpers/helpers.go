// Package testhelpers provides common utilities for exercising the gateway
// over real HTTP and WebSocket connections in tests.
//
// WSClient reads frames on a background goroutine into a channel, so a test
// can wait for one event while skipping unrelated ones, or assert that an
// event does not arrive, without corrupting the connection with read
// deadlines.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatgate/internal/realtime"
)

// DefaultOrigin is the origin allowed by the default configuration.
const DefaultOrigin = "http://localhost:8080"

// EventTimeout bounds how long tests wait for an expected event.
const EventTimeout = 2 * time.Second

// WebSocketURL converts an httptest server URL into the gateway's ws URL.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest executes an HTTP request with an optional bearer token and
// JSON body. The caller closes the response body.
func MakeRequest(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	return resp
}

// DecodeJSON decodes and closes the response body.
func DecodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

// Dial opens a WebSocket to wsURL with token in the query string and the
// given Origin header. The handshake response is returned so callers can
// inspect rejected upgrades.
func Dial(wsURL, token, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	target := wsURL
	if token != "" {
		target += "?token=" + token
	}
	return dialer.Dial(target, headers)
}

// WSClient is a test-side WebSocket peer.
type WSClient struct {
	Conn   *websocket.Conn
	events chan realtime.Envelope
}

// Connect dials as the holder of token and fails the test on error. The
// connection is closed when the test ends.
func Connect(t *testing.T, wsURL, token string) *WSClient {
	t.Helper()

	conn, resp, err := Dial(wsURL, token, DefaultOrigin)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}

	c := &WSClient{Conn: conn, events: make(chan realtime.Envelope, 256)}
	go c.readLoop()
	t.Cleanup(func() { _ = c.Conn.Close() })
	return c
}

func (c *WSClient) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := realtime.Decode(data)
		if err != nil {
			continue
		}
		c.events <- env
	}
}

// Send writes one event envelope.
func (c *WSClient) Send(t *testing.T, event string, data any) {
	t.Helper()
	frame, err := realtime.Encode(event, data)
	if err != nil {
		t.Fatalf("Failed to encode %s: %v", event, err)
	}
	if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// WaitFor returns the next event named event, discarding others, and fails
// the test if none arrives within EventTimeout.
func (c *WSClient) WaitFor(t *testing.T, event string) realtime.Envelope {
	t.Helper()
	deadline := time.After(EventTimeout)
	for {
		select {
		case env, ok := <-c.events:
			if !ok {
				t.Fatalf("Connection closed while waiting for %s", event)
			}
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for %s", event)
		}
	}
}

// WaitForData is WaitFor followed by decoding the event data into out.
func (c *WSClient) WaitForData(t *testing.T, event string, out any) {
	t.Helper()
	env := c.WaitFor(t, event)
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("Failed to decode %s data: %v", event, err)
	}
}

// ExpectNone fails the test if an event named event arrives within wait.
func (c *WSClient) ExpectNone(t *testing.T, event string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case env, ok := <-c.events:
			if !ok {
				return
			}
			if env.Event == event {
				t.Fatalf("Unexpected %s event: %s", event, string(env.Data))
			}
		case <-deadline:
			return
		}
	}
}

// WaitClosed fails the test unless the server closes the connection within
// EventTimeout.
func (c *WSClient) WaitClosed(t *testing.T) {
	t.Helper()
	deadline := time.After(EventTimeout)
	for {
		select {
		case _, ok := <-c.events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Timed out waiting for the connection to close")
		}
	}
}

// Close sends a normal close frame and closes the connection.
func (c *WSClient) Close() error {
	err := c.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return c.Conn.Close()
}
