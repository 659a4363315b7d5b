// Package realtime defines the connection handle shared by the presence,
// room and fan-out layers, and the JSON envelope exchanged with clients.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Conn is a live client connection as seen by the routing layers.
// Send must never block: it either queues the payload or reports false.
type Conn interface {
	ID() string
	ActorID() string
	Send(payload []byte) bool
}

// Inbound event names.
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventPresenceCheck     = "presence:check"
)

// Event names used in both directions.
const (
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
	EventMessageNew       = "message:new"
	EventMessageEdit      = "message:edit"
	EventMessageDelete    = "message:delete"
	EventConversationRead = "conversation:read"
)

// Outbound-only event names.
const (
	EventOnlineList         = "user:online:list"
	EventUserPresence       = "user:presence"
	EventPresenceState      = "presence:state"
	EventConversationJoined = "conversation:joined"
	EventError              = "error"
)

// Envelope is the frame format for every event on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds an outbound frame for the named event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Decode parses an inbound frame. The payload is left raw so the
// dispatcher can decode it into the event specific type.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("missing event name")
	}
	return env, nil
}

// ConversationRef carries a conversation identifier. Used by join, leave,
// typing and read events.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// NewMessage is the inbound message:new payload.
type NewMessage struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

// MessageEdit is the inbound message:edit payload.
type MessageEdit struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

// MessageRef is the inbound message:delete payload.
type MessageRef struct {
	MessageID string `json:"messageId"`
}

// PresenceQuery is the inbound presence:check payload.
type PresenceQuery struct {
	TargetActorID string `json:"targetActorId"`
}

// OnlineList is sent to a freshly connected client.
type OnlineList struct {
	ActorIDs []string `json:"actorIds"`
}

// Presence is the payload of user:presence and presence:state.
type Presence struct {
	ActorID  string     `json:"actorId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen"`
}

// Typing is the outbound typing:start / typing:stop payload.
type Typing struct {
	ConversationID string `json:"conversationId"`
	ActorID        string `json:"actorId"`
}

// ReadReceipt is the outbound conversation:read payload.
type ReadReceipt struct {
	ConversationID string `json:"conversationId"`
	ActorID        string `json:"actorId"`
}

// MessageEvent wraps a message for message:new, message:edit and
// message:delete.
type MessageEvent struct {
	Message any `json:"message"`
}

// ErrorReply is sent only to the connection whose request failed.
type ErrorReply struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
