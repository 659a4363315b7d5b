// Package server coordinates client registration, presence announcements,
// and connection teardown for the chatgate WebSocket gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatgate/internal/auth"
	"github.com/Tyrowin/chatgate/internal/chat"
	"github.com/Tyrowin/chatgate/internal/fanout"
	"github.com/Tyrowin/chatgate/internal/keylock"
	"github.com/Tyrowin/chatgate/internal/metrics"
	"github.com/Tyrowin/chatgate/internal/presence"
	"github.com/Tyrowin/chatgate/internal/realtime"
	"github.com/Tyrowin/chatgate/internal/relay"
	"github.com/Tyrowin/chatgate/internal/room"
)

const lastSeenWriteTimeout = 5 * time.Second

// Deps are the collaborators a Gateway cannot build itself.
type Deps struct {
	Verifier auth.Verifier
	Store    chat.Store
	// Bus, when set, carries room and global broadcasts to other instances.
	Bus    fanout.Bus
	Logger *slog.Logger
}

// Gateway owns every live connection on this process. It authenticates
// upgrades, keeps presence and room membership in step with connection
// lifecycles, and dispatches inbound events to the message manager and the
// ephemeral relay.
type Gateway struct {
	cfg      Config
	origins  originPolicy
	upgrader websocket.Upgrader
	verifier auth.Verifier
	store    chat.Store
	log      *slog.Logger

	presence *presence.Registry
	rooms    *room.Router
	fanout   *fanout.Fanout
	messages *chat.Manager
	relay    *relay.Relay

	// actorLocks serializes online/offline announcements per actor.
	actorLocks *keylock.Map

	mutex   sync.Mutex
	clients map[*Client]struct{}
	closing bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	now func() time.Time
}

// NewGateway builds a Gateway from a sanitized copy of cfg.
func NewGateway(cfg Config, deps Deps) (*Gateway, error) {
	if deps.Verifier == nil {
		return nil, errors.New("gateway: verifier is required")
	}
	if deps.Store == nil {
		return nil, errors.New("gateway: store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)
	cfg = cfg.Sanitize()

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		cfg:        cfg,
		origins:    origins,
		verifier:   deps.Verifier,
		store:      deps.Store,
		log:        logger,
		presence:   presence.NewRegistry(deps.Store),
		rooms:      room.NewRouter(),
		actorLocks: keylock.New(),
		clients:    make(map[*Client]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		now:        func() time.Time { return time.Now().UTC() },
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.origins.check,
	}
	g.fanout = fanout.New(g.rooms, g.presence, logger)
	g.messages = chat.NewManager(deps.Store, g.fanout, logger)
	g.relay = relay.New(g.rooms, g.fanout, g.presence)

	if deps.Bus != nil {
		if err := g.fanout.AttachBus(deps.Bus); err != nil {
			cancel()
			return nil, fmt.Errorf("gateway: attach bus: %w", err)
		}
	}
	return g, nil
}

// Messages returns the message lifecycle manager shared by the WebSocket and
// REST paths.
func (g *Gateway) Messages() *chat.Manager { return g.messages }

// Presence returns the process-local presence registry.
func (g *Gateway) Presence() *presence.Registry { return g.presence }

// Authenticate resolves the actor behind r's credential.
func (g *Gateway) Authenticate(r *http.Request) (string, error) {
	credential := auth.CredentialFromRequest(r)
	if credential == "" {
		return "", fmt.Errorf("%w: missing credential", auth.ErrUnauthenticated)
	}
	return g.verifier.Verify(r.Context(), credential)
}

// connect registers an upgraded connection and starts its pumps. The first
// connection of an actor announces it online to everyone; every new
// connection receives the current online list.
func (g *Gateway) connect(conn *websocket.Conn, actorID, addr string) {
	c := NewClient(conn, g, actorID, addr)
	if !g.track(c) {
		c.log.Info("rejecting_client_during_shutdown", "addr", addr)
		c.closeConnection()
		return
	}

	unlock := g.actorLocks.Lock(actorID)
	first := g.presence.Register(actorID, c)
	if first {
		g.announce(actorID, true, nil)
	}
	unlock()

	g.sendOnlineList(c)
	g.updateGauges()
	c.log.Info("client_registered", "addr", addr, "first_connection", first)

	go func() {
		defer g.wg.Done()
		c.writePump()
	}()
	go func() {
		defer g.wg.Done()
		c.readPump()
	}()
}

// disconnect tears c down once, whoever notices first.
func (g *Gateway) disconnect(c *Client) {
	c.disconnectOnce.Do(func() { g.teardown(c) })
}

func (g *Gateway) teardown(c *Client) {
	left := g.rooms.LeaveAll(c)
	wasLast := g.presence.Unregister(c.actorID, c)
	c.closeSend()
	g.untrack(c)
	g.updateGauges()
	c.log.Info("client_unregistered", "addr", c.addr, "rooms_left", len(left), "last_connection", wasLast)

	if !wasLast {
		return
	}

	lastSeen := g.now()
	ctx, cancel := context.WithTimeout(context.Background(), lastSeenWriteTimeout)
	defer cancel()
	if err := g.store.UpdateActorLastSeen(ctx, c.actorID, lastSeen); err != nil {
		metrics.LastSeenWriteFailures.Inc()
		c.log.Error("last_seen_write_failed", "error", err)
	}

	unlock := g.actorLocks.Lock(c.actorID)
	defer unlock()
	// A connection registered while the write was in flight already
	// announced the actor online.
	if g.presence.IsOnline(c.actorID) {
		return
	}
	g.announce(c.actorID, false, &lastSeen)
}

func (g *Gateway) announce(actorID string, online bool, lastSeen *time.Time) {
	payload, err := realtime.Encode(realtime.EventUserPresence, realtime.Presence{
		ActorID:  actorID,
		Online:   online,
		LastSeen: lastSeen,
	})
	if err != nil {
		g.log.Error("encode_failed", "event", realtime.EventUserPresence, "error", err)
		return
	}
	g.fanout.ToAll(payload)
}

func (g *Gateway) sendOnlineList(c *Client) {
	payload, err := realtime.Encode(realtime.EventOnlineList, realtime.OnlineList{
		ActorIDs: g.presence.OnlineActors(),
	})
	if err != nil {
		g.log.Error("encode_failed", "event", realtime.EventOnlineList, "error", err)
		return
	}
	g.fanout.ToConn(c, payload)
}

func (g *Gateway) updateGauges() {
	conns, actors := g.presence.Count()
	metrics.ConnectionsOpen.Set(float64(conns))
	metrics.OnlineActors.Set(float64(actors))
}

// track records c for shutdown and reserves its two pump goroutines. It
// refuses new clients once shutdown has begun.
func (g *Gateway) track(c *Client) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.closing {
		return false
	}
	g.clients[c] = struct{}{}
	g.wg.Add(2)
	return true
}

func (g *Gateway) untrack(c *Client) {
	g.mutex.Lock()
	delete(g.clients, c)
	g.mutex.Unlock()
}

// shutdownClients closes every tracked connection; the pumps then run the
// normal disconnect path.
func (g *Gateway) shutdownClients() {
	g.mutex.Lock()
	g.closing = true
	clients := make([]*Client, 0, len(g.clients))
	for client := range g.clients {
		clients = append(clients, client)
	}
	g.mutex.Unlock()

	for _, client := range clients {
		client.closeConnection()
	}
	g.log.Info("closed_client_connections", "count", len(clients))
}

// Shutdown stops accepting connections, closes the open ones and waits for
// their goroutines to finish, or until timeout.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	g.log.Info("gateway_shutdown_started")

	g.cancel()
	g.shutdownClients()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.log.Info("gateway_shutdown_completed")
		return nil
	case <-time.After(timeout):
		g.log.Warn("gateway_shutdown_timeout", "timeout", timeout)
		return context.DeadlineExceeded
	}
}
