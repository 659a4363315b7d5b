package chat

import (
	"context"
	"time"
)

// Store is the persistence collaborator. Implementations return an error
// wrapping ErrNotFound for absent entities; every other error is treated as
// a storage failure.
type Store interface {
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	IsMember(ctx context.Context, conversationID, actorID string) (bool, error)
	UpdateConversation(ctx context.Context, id string, patch ConversationPatch) error

	GetMessage(ctx context.Context, id string) (*Message, error)
	CreateMessage(ctx context.Context, fields NewMessage) (*Message, error)
	UpdateMessage(ctx context.Context, id string, patch MessagePatch) (*Message, error)
	// MarkConversationRead adds actorID to ReadBy of every message of the
	// conversation that lacks it and returns how many messages changed.
	MarkConversationRead(ctx context.Context, conversationID, actorID string) (int, error)
	// ListMessages returns the conversation's messages in creation order.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	GetActor(ctx context.Context, id string) (*Actor, error)
	// UpdateActorLastSeen records at unless a later time is already stored,
	// so overlapping disconnects cannot move last-seen backwards.
	UpdateActorLastSeen(ctx context.Context, id string, at time.Time) error
	GetActorLastSeen(ctx context.Context, id string) (*time.Time, error)
}

// Seeder writes actors and conversations. Conversation administration is
// not part of the real-time core; stores expose this for fixtures and tests.
type Seeder interface {
	PutActor(ctx context.Context, a Actor) error
	PutConversation(ctx context.Context, c Conversation) error
}
