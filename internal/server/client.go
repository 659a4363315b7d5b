// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client is one authenticated WebSocket connection. It implements
// realtime.Conn so the presence registry, the room router and the fan-out
// can hold it without knowing about WebSockets.
type Client struct {
	conn    *websocket.Conn
	gateway *Gateway
	id      string
	actorID string
	addr    string
	log     *slog.Logger

	// mu guards send and closed so Send never races the close of send.
	mu     sync.Mutex
	send   chan []byte
	closed bool

	disconnectOnce sync.Once

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a Client for actorID on conn. The send channel holds up
// to cfg.SendBuffer queued events.
func NewClient(conn *websocket.Conn, g *Gateway, actorID, addr string) *Client {
	cfg := g.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := uuid.NewString()

	return &Client{
		conn:           conn,
		gateway:        g,
		id:             id,
		actorID:        actorID,
		addr:           addr,
		log:            g.log.With("conn", id, "actor", actorID),
		send:           make(chan []byte, cfg.SendBuffer),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the connection identifier, unique across processes.
func (c *Client) ID() string { return c.id }

// ActorID returns the authenticated actor that owns the connection.
func (c *Client) ActorID() string { return c.actorID }

// Send queues payload without blocking. A client whose buffer is full is
// too slow to keep up: its send channel is closed, which makes the write
// pump close the connection, and the event is dropped.
func (c *Client) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.log.Warn("send_buffer_full_dropping_client", "addr", c.addr, "buffer", cap(c.send))
		c.closed = true
		close(c.send)
		return false
	}
}

// closeSend stops further queuing and lets the write pump finish.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("set_read_deadline_failed", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("set_read_deadline_failed", "error", err)
		}
		return nil
	})
}

// handleReadError logs why the read loop ended.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("message_too_large", "addr", c.addr, "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client_disconnected", "addr", c.addr, "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("client_connection_closed", "addr", c.addr, "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("unexpected_websocket_close", "addr", c.addr, "error", err)
	default:
		c.log.Warn("websocket_read_error", "addr", c.addr, "error", err)
	}
}

// checkRateLimit reports whether the next inbound event may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn("rate_limit_exceeded_discarding_event",
			"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.gateway.disconnect(c)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.gateway.dispatch(c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("close_connection_failed", "error", err)
		}
	}
}

// handleMessage writes one outgoing event and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("set_write_deadline_failed", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("write_close_failed", "error", err)
		}
	}
	return false
}

// writeTextMessage writes one event per frame; clients decode a frame as a
// single JSON envelope.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("write_message_failed", "error", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("set_write_deadline_failed", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("write_ping_failed", "error", err)
		return false
	}
	return true
}
