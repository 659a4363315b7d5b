// Package room routes conversation events to the live connections that
// joined the conversation's room.
package room

import (
	"sort"
	"sync"

	"github.com/Tyrowin/chatgate/internal/realtime"
)

// Router keeps a forward index (conversation -> connections) and a reverse
// index (connection -> conversations) so a disconnect can leave every room
// in one step. Empty sets are deleted eagerly.
//
// Router does not check conversation membership; callers authorize the
// actor before calling Join.
type Router struct {
	mu    sync.RWMutex
	rooms map[string]map[string]realtime.Conn // conversationID -> connID -> conn
	conns map[string]map[string]struct{}      // connID -> conversationIDs
}

// NewRouter creates an empty routing table.
func NewRouter() *Router {
	return &Router{
		rooms: make(map[string]map[string]realtime.Conn),
		conns: make(map[string]map[string]struct{}),
	}
}

// Join subscribes conn to the conversation's room. It reports false if the
// connection had already joined.
func (r *Router) Join(conn realtime.Conn, conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[conversationID]
	if !ok {
		members = make(map[string]realtime.Conn)
		r.rooms[conversationID] = members
	}
	if _, already := members[conn.ID()]; already {
		return false
	}
	members[conn.ID()] = conn

	joined, ok := r.conns[conn.ID()]
	if !ok {
		joined = make(map[string]struct{})
		r.conns[conn.ID()] = joined
	}
	joined[conversationID] = struct{}{}
	return true
}

// Leave unsubscribes conn from one room.
func (r *Router) Leave(conn realtime.Conn, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conn.ID(), conversationID)
}

// LeaveAll removes conn from every room it joined and returns those rooms.
func (r *Router) LeaveAll(conn realtime.Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.conns[conn.ID()]
	affected := make([]string, 0, len(joined))
	for conversationID := range joined {
		affected = append(affected, conversationID)
	}
	for _, conversationID := range affected {
		r.leaveLocked(conn.ID(), conversationID)
	}
	sort.Strings(affected)
	return affected
}

func (r *Router) leaveLocked(connID, conversationID string) {
	if members, ok := r.rooms[conversationID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, conversationID)
		}
	}
	if joined, ok := r.conns[connID]; ok {
		delete(joined, conversationID)
		if len(joined) == 0 {
			delete(r.conns, connID)
		}
	}
}

// MembersOf returns a snapshot of the live connections in a room.
func (r *Router) MembersOf(conversationID string) []realtime.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[conversationID]
	if len(members) == 0 {
		return nil
	}
	out := make([]realtime.Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Joined reports whether conn is currently subscribed to the room.
func (r *Router) Joined(conn realtime.Conn, conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[conversationID][conn.ID()]
	return ok
}

// RoomsOf returns the sorted rooms conn has joined.
func (r *Router) RoomsOf(conn realtime.Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.conns[conn.ID()]
	out := make([]string, 0, len(joined))
	for conversationID := range joined {
		out = append(out, conversationID)
	}
	sort.Strings(out)
	return out
}

// RoomCount returns the number of non-empty rooms.
func (r *Router) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
