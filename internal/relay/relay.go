// Package relay forwards transient signals that are never persisted:
// typing indicators and on-demand presence lookups.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tyrowin/chatgate/internal/chat"
	"github.com/Tyrowin/chatgate/internal/realtime"
)

// Rooms reports room subscriptions.
type Rooms interface {
	Joined(conn realtime.Conn, conversationID string) bool
}

// Sender delivers encoded events.
type Sender interface {
	ToRoomExcept(conversationID, exceptConnID string, payload []byte) int
	ToConn(conn realtime.Conn, payload []byte) bool
}

// Presence answers online state and persisted last-seen.
type Presence interface {
	IsOnline(actorID string) bool
	LastSeen(ctx context.Context, actorID string) (*time.Time, error)
}

// Relay is stateless; all state lives in its collaborators.
type Relay struct {
	rooms    Rooms
	out      Sender
	presence Presence
}

// New creates a Relay.
func New(rooms Rooms, out Sender, presence Presence) *Relay {
	return &Relay{rooms: rooms, out: out, presence: presence}
}

// TypingStart tells the other connections in the room that conn's actor is
// typing. conn must have joined the room.
func (r *Relay) TypingStart(conn realtime.Conn, conversationID string) error {
	return r.typing(realtime.EventTypingStart, conn, conversationID)
}

// TypingStop is the counterpart of TypingStart.
func (r *Relay) TypingStop(conn realtime.Conn, conversationID string) error {
	return r.typing(realtime.EventTypingStop, conn, conversationID)
}

func (r *Relay) typing(event string, conn realtime.Conn, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("%w: conversationId is required", chat.ErrInvalidArgument)
	}
	if !r.rooms.Joined(conn, conversationID) {
		return fmt.Errorf("%w: connection has not joined %s", chat.ErrForbidden, conversationID)
	}
	payload, err := realtime.Encode(event, realtime.Typing{
		ConversationID: conversationID,
		ActorID:        conn.ActorID(),
	})
	if err != nil {
		return err
	}
	r.out.ToRoomExcept(conversationID, conn.ID(), payload)
	return nil
}

// PresenceCheck answers conn with presence:state for target: online, or
// offline with the persisted last-seen. An actor unknown to storage is
// reported offline with no last-seen.
func (r *Relay) PresenceCheck(ctx context.Context, conn realtime.Conn, targetActorID string) error {
	state, err := r.State(ctx, targetActorID)
	if err != nil {
		return err
	}
	payload, err := realtime.Encode(realtime.EventPresenceState, state)
	if err != nil {
		return err
	}
	r.out.ToConn(conn, payload)
	return nil
}

// State resolves the presence of targetActorID. It also backs the REST
// presence endpoint.
func (r *Relay) State(ctx context.Context, targetActorID string) (realtime.Presence, error) {
	if targetActorID == "" {
		return realtime.Presence{}, fmt.Errorf("%w: targetActorId is required", chat.ErrInvalidArgument)
	}
	state := realtime.Presence{ActorID: targetActorID, Online: r.presence.IsOnline(targetActorID)}
	if state.Online {
		return state, nil
	}

	lastSeen, err := r.presence.LastSeen(ctx, targetActorID)
	switch {
	case errors.Is(err, chat.ErrNotFound):
	case err != nil:
		return realtime.Presence{}, fmt.Errorf("last seen of %s: %w: %w", targetActorID, chat.ErrStorage, err)
	default:
		state.LastSeen = lastSeen
	}
	return state, nil
}
