// Package presence tracks which actors currently hold at least one open
// connection on this process.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Tyrowin/chatgate/internal/realtime"
)

// LastSeenReader resolves the persisted last-seen time of an offline actor.
type LastSeenReader interface {
	GetActorLastSeen(ctx context.Context, actorID string) (*time.Time, error)
}

// Registry maps actor identifiers to their open connections. It is the only
// source of truth for "is this actor online" and is process-local.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]realtime.Conn // actorID -> connID -> conn

	lastSeen LastSeenReader
}

// NewRegistry creates an empty registry. lastSeen may be nil, in which case
// LastSeen reports nil for offline actors.
func NewRegistry(lastSeen LastSeenReader) *Registry {
	return &Registry{
		conns:    make(map[string]map[string]realtime.Conn),
		lastSeen: lastSeen,
	}
}

// Register adds conn under actorID and reports whether it is the actor's
// first concurrently open connection.
func (r *Registry) Register(actorID string, conn realtime.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[actorID]
	if !ok {
		set = make(map[string]realtime.Conn)
		r.conns[actorID] = set
	}
	first := len(set) == 0
	set[conn.ID()] = conn
	return first
}

// Unregister removes conn and reports whether it was the actor's last open
// connection. The check and the removal happen in one critical section.
// Removing a connection that is not registered reports false.
func (r *Registry) Unregister(actorID string, conn realtime.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[actorID]
	if !ok {
		return false
	}
	if _, ok := set[conn.ID()]; !ok {
		return false
	}
	delete(set, conn.ID())
	if len(set) == 0 {
		delete(r.conns, actorID)
		return true
	}
	return false
}

// IsOnline reports whether the actor has any open connection.
func (r *Registry) IsOnline(actorID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[actorID]) > 0
}

// OnlineActors returns the sorted identifiers of every online actor.
func (r *Registry) OnlineActors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for actorID := range r.conns {
		out = append(out, actorID)
	}
	sort.Strings(out)
	return out
}

// Connections returns a snapshot of every open connection.
func (r *Registry) Connections() []realtime.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []realtime.Conn
	for _, set := range r.conns {
		for _, c := range set {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionsOf returns a snapshot of the actor's open connections.
func (r *Registry) ConnectionsOf(actorID string) []realtime.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[actorID]
	out := make([]realtime.Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Count returns the number of open connections and online actors.
func (r *Registry) Count() (connections, actors int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, set := range r.conns {
		connections += len(set)
	}
	return connections, len(r.conns)
}

// LastSeen returns nil while the actor is online. For an offline actor it
// returns the persisted value, read without holding the registry lock.
func (r *Registry) LastSeen(ctx context.Context, actorID string) (*time.Time, error) {
	if r.IsOnline(actorID) || r.lastSeen == nil {
		return nil, nil
	}
	return r.lastSeen.GetActorLastSeen(ctx, actorID)
}
