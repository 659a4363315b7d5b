package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Tyrowin/chatgate/internal/keylock"
	"github.com/Tyrowin/chatgate/internal/metrics"
	"github.com/Tyrowin/chatgate/internal/realtime"
)

// Broadcaster delivers an encoded event to every live connection in a
// conversation's room. It must not block on slow recipients.
type Broadcaster interface {
	ToRoom(conversationID string, payload []byte) int
}

// Manager is the single authorization and persistence path for message
// writes, shared by the WebSocket and REST entry points.
//
// All writes to one conversation are serialized, and the broadcast is
// queued before the conversation lock is released, so every member
// connection observes events in commit order.
type Manager struct {
	store Store
	out   Broadcaster
	log   *slog.Logger
	locks *keylock.Map
	now   func() time.Time
}

// NewManager wires a Manager to its store and broadcaster.
func NewManager(store Store, out Broadcaster, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store: store,
		out:   out,
		log:   logger,
		locks: keylock.New(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a message from actorID with the sender already in ReadBy,
// bumps the conversation's activity time and broadcasts message:new to the
// room, sender's own connections included.
func (m *Manager) Create(ctx context.Context, actorID, conversationID, text string) (*Message, error) {
	msg, err := m.create(context.WithoutCancel(ctx), actorID, conversationID, text)
	metrics.ObserveOp("create", Code(err))
	return msg, err
}

func (m *Manager) create(ctx context.Context, actorID, conversationID, text string) (*Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversationId is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidArgument)
	}
	if err := m.requireMember(ctx, actorID, conversationID); err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(conversationID)
	defer unlock()

	msg, err := m.store.CreateMessage(ctx, NewMessage{
		ConversationID: conversationID,
		SenderID:       actorID,
		Text:           text,
		ReadBy:         []string{actorID},
	})
	if err != nil {
		return nil, storageErr("create message", err)
	}

	activity := msg.CreatedAt
	if err := m.store.UpdateConversation(ctx, conversationID, ConversationPatch{LastActivityAt: &activity}); err != nil {
		m.log.Warn("conversation_activity_update_failed",
			"conversation", conversationID, "message", msg.ID, "error", err)
	}

	m.attachSender(ctx, msg)
	m.broadcast(realtime.EventMessageNew, msg)
	m.log.Debug("message_created", "conversation", conversationID, "message", msg.ID, "actor", actorID)
	return msg, nil
}

// Edit replaces the text of a message. Only the sender may edit, and only
// while the message is not deleted.
func (m *Manager) Edit(ctx context.Context, actorID, messageID, text string) (*Message, error) {
	ctx = context.WithoutCancel(ctx)
	var msg *Message
	var err error
	if strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%w: text is required", ErrInvalidArgument)
	} else {
		now := m.now()
		msg, err = m.modify(ctx, actorID, messageID, realtime.EventMessageEdit, MessagePatch{
			Text:     &text,
			EditedAt: &now,
		})
	}
	metrics.ObserveOp("edit", Code(err))
	return msg, err
}

// SoftDelete marks a message deleted and replaces its text with
// DeletedPlaceholder. There is no way back.
func (m *Manager) SoftDelete(ctx context.Context, actorID, messageID string) (*Message, error) {
	placeholder := DeletedPlaceholder
	deleted := true
	msg, err := m.modify(context.WithoutCancel(ctx), actorID, messageID, realtime.EventMessageDelete, MessagePatch{
		Text:      &placeholder,
		IsDeleted: &deleted,
	})
	metrics.ObserveOp("delete", Code(err))
	return msg, err
}

func (m *Manager) modify(ctx context.Context, actorID, messageID, event string, patch MessagePatch) (*Message, error) {
	if messageID == "" {
		return nil, fmt.Errorf("%w: messageId is required", ErrInvalidArgument)
	}
	current, err := m.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storageErr("get message", err)
	}

	unlock := m.locks.Lock(current.ConversationID)
	defer unlock()

	// Re-read under the lock so a concurrent delete is observed.
	current, err = m.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storageErr("get message", err)
	}
	if current.SenderID != actorID {
		return nil, fmt.Errorf("%w: only the sender can change message %s", ErrForbidden, messageID)
	}
	if err := m.requireMember(ctx, actorID, current.ConversationID); err != nil {
		return nil, err
	}
	if current.IsDeleted {
		return nil, fmt.Errorf("%w: %s", ErrMessageDeleted, messageID)
	}

	updated, err := m.store.UpdateMessage(ctx, messageID, patch)
	if err != nil {
		return nil, storageErr("update message", err)
	}

	m.attachSender(ctx, updated)
	m.broadcast(event, updated)
	return updated, nil
}

// MarkConversationRead adds actorID to ReadBy of every message in the
// conversation and broadcasts one conversation:read event, whatever the
// backlog size. It returns the number of messages that changed; calling it
// again is a no-op apart from the broadcast.
func (m *Manager) MarkConversationRead(ctx context.Context, actorID, conversationID string) (int, error) {
	n, err := m.markRead(context.WithoutCancel(ctx), actorID, conversationID)
	metrics.ObserveOp("read", Code(err))
	return n, err
}

func (m *Manager) markRead(ctx context.Context, actorID, conversationID string) (int, error) {
	if conversationID == "" {
		return 0, fmt.Errorf("%w: conversationId is required", ErrInvalidArgument)
	}
	if err := m.requireMember(ctx, actorID, conversationID); err != nil {
		return 0, err
	}

	unlock := m.locks.Lock(conversationID)
	defer unlock()

	n, err := m.store.MarkConversationRead(ctx, conversationID, actorID)
	if err != nil {
		return 0, storageErr("mark read", err)
	}

	payload, err := realtime.Encode(realtime.EventConversationRead, realtime.ReadReceipt{
		ConversationID: conversationID,
		ActorID:        actorID,
	})
	if err != nil {
		m.log.Error("encode_failed", "event", realtime.EventConversationRead, "error", err)
		return n, nil
	}
	m.out.ToRoom(conversationID, payload)
	return n, nil
}

// AuthorizeMember returns nil when conversationID exists and actorID is one
// of its members.
func (m *Manager) AuthorizeMember(ctx context.Context, actorID, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("%w: conversationId is required", ErrInvalidArgument)
	}
	return m.requireMember(ctx, actorID, conversationID)
}

// History returns the conversation's messages in creation order for a
// member. Clients use it to catch up after a reconnect.
func (m *Manager) History(ctx context.Context, actorID, conversationID string) ([]Message, error) {
	if err := m.AuthorizeMember(ctx, actorID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := m.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	return msgs, nil
}

func (m *Manager) requireMember(ctx context.Context, actorID, conversationID string) error {
	if _, err := m.store.GetConversation(ctx, conversationID); err != nil {
		return storageErr("get conversation", err)
	}
	ok, err := m.store.IsMember(ctx, conversationID, actorID)
	if err != nil {
		return storageErr("check membership", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not a member of %s", ErrForbidden, actorID, conversationID)
	}
	return nil
}

// attachSender denormalizes the sender's display attributes onto msg. A
// failed lookup degrades to the bare identifier.
func (m *Manager) attachSender(ctx context.Context, msg *Message) {
	actor, err := m.store.GetActor(ctx, msg.SenderID)
	if err != nil {
		m.log.Debug("sender_lookup_failed", "actor", msg.SenderID, "error", err)
		msg.Sender = &Profile{ID: msg.SenderID}
		return
	}
	msg.Sender = actor.Profile()
}

func (m *Manager) broadcast(event string, msg *Message) {
	payload, err := realtime.Encode(event, realtime.MessageEvent{Message: msg})
	if err != nil {
		m.log.Error("encode_failed", "event", event, "message", msg.ID, "error", err)
		return
	}
	m.out.ToRoom(msg.ConversationID, payload)
}
