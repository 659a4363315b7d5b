// Package fanout queues encoded events to sets of live connections. Every
// send is fire-and-forget: a slow recipient loses its own delivery and
// never delays the others.
package fanout

import (
	"log/slog"

	"github.com/Tyrowin/chatgate/internal/cluster"
	"github.com/Tyrowin/chatgate/internal/metrics"
	"github.com/Tyrowin/chatgate/internal/realtime"
)

// RoomMembers resolves a conversation to its live connections.
type RoomMembers interface {
	MembersOf(conversationID string) []realtime.Conn
}

// AllConnections lists every live connection on this process.
type AllConnections interface {
	Connections() []realtime.Conn
}

// Bus relays envelopes between gateway instances.
type Bus interface {
	Publish(env cluster.Envelope) error
	Subscribe(handler func(cluster.Envelope)) error
}

// Fanout delivers to local connections, or through a Bus when one is
// attached so that every instance delivers to its own connections.
type Fanout struct {
	rooms RoomMembers
	all   AllConnections
	bus   Bus
	log   *slog.Logger
}

// New creates a process-local fan-out.
func New(rooms RoomMembers, all AllConnections, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{rooms: rooms, all: all, log: logger}
}

// AttachBus routes later broadcasts through bus and delivers what the bus
// receives to local connections.
func (f *Fanout) AttachBus(bus Bus) error {
	if err := bus.Subscribe(func(env cluster.Envelope) { f.deliver(env) }); err != nil {
		return err
	}
	f.bus = bus
	return nil
}

// ToRoom queues payload to every connection in the room. It returns the
// number of local connections reached, or zero when sent through the bus.
func (f *Fanout) ToRoom(conversationID string, payload []byte) int {
	return f.dispatch(cluster.Envelope{Scope: cluster.ScopeRoom, Room: conversationID, Payload: payload})
}

// ToRoomExcept is ToRoom without the connection identified by exceptConnID.
func (f *Fanout) ToRoomExcept(conversationID, exceptConnID string, payload []byte) int {
	return f.dispatch(cluster.Envelope{Scope: cluster.ScopeRoom, Room: conversationID, Except: exceptConnID, Payload: payload})
}

// ToAll queues payload to every connection.
func (f *Fanout) ToAll(payload []byte) int {
	return f.dispatch(cluster.Envelope{Scope: cluster.ScopeAll, Payload: payload})
}

// ToConn queues payload to a single connection. Direct replies never cross
// the bus.
func (f *Fanout) ToConn(conn realtime.Conn, payload []byte) bool {
	if conn.Send(payload) {
		metrics.EventsDelivered.WithLabelValues("conn").Inc()
		return true
	}
	metrics.DeliveriesDropped.Inc()
	return false
}

func (f *Fanout) dispatch(env cluster.Envelope) int {
	if f.bus != nil {
		err := f.bus.Publish(env)
		if err == nil {
			return 0
		}
		f.log.Warn("bus_publish_failed_delivering_locally", "scope", env.Scope, "room", env.Room, "error", err)
	}
	return f.deliver(env)
}

func (f *Fanout) deliver(env cluster.Envelope) int {
	var targets []realtime.Conn
	switch env.Scope {
	case cluster.ScopeRoom:
		targets = f.rooms.MembersOf(env.Room)
	case cluster.ScopeAll:
		targets = f.all.Connections()
	default:
		f.log.Warn("unknown_fanout_scope", "scope", env.Scope)
		return 0
	}

	delivered := 0
	for _, c := range targets {
		if env.Except != "" && c.ID() == env.Except {
			continue
		}
		if c.Send(env.Payload) {
			delivered++
		} else {
			metrics.DeliveriesDropped.Inc()
		}
	}
	metrics.EventsDelivered.WithLabelValues(string(env.Scope)).Add(float64(delivered))
	return delivered
}
