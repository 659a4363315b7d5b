// Package memstore is an in-process implementation of chat.Store used for
// development and tests.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/chatgate/internal/chat"
)

// Store keeps everything in maps guarded by one mutex. Values are copied in
// and out so callers never share memory with the store.
type Store struct {
	mu            sync.RWMutex
	actors        map[string]chat.Actor
	conversations map[string]chat.Conversation
	messages      map[string]chat.Message
	order         map[string][]string // conversationID -> message IDs in creation order
	now           func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		actors:        make(map[string]chat.Actor),
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string]chat.Message),
		order:         make(map[string][]string),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// PutActor implements chat.Seeder. An existing LastSeen is preserved when
// the incoming actor has none.
func (s *Store) PutActor(_ context.Context, a chat.Actor) error {
	if a.ID == "" {
		return fmt.Errorf("%w: actor id is required", chat.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.actors[a.ID]; ok && a.LastSeen == nil {
		a.LastSeen = prev.LastSeen
	}
	s.actors[a.ID] = cloneActor(a)
	return nil
}

// PutConversation implements chat.Seeder.
func (s *Store) PutConversation(_ context.Context, c chat.Conversation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.conversations[c.ID] = cloneConversation(c)
	return nil
}

// GetConversation implements chat.Store.
func (s *Store) GetConversation(_ context.Context, id string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, chat.ErrNotFound)
	}
	c = cloneConversation(c)
	return &c, nil
}

// IsMember implements chat.Store.
func (s *Store) IsMember(_ context.Context, conversationID, actorID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return false, fmt.Errorf("conversation %s: %w", conversationID, chat.ErrNotFound)
	}
	return c.HasMember(actorID), nil
}

// UpdateConversation implements chat.Store.
func (s *Store) UpdateConversation(_ context.Context, id string, patch chat.ConversationPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, chat.ErrNotFound)
	}
	patch.Apply(&c)
	s.conversations[id] = c
	return nil
}

// GetMessage implements chat.Store.
func (s *Store) GetMessage(_ context.Context, id string) (*chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, chat.ErrNotFound)
	}
	m = cloneMessage(m)
	return &m, nil
}

// CreateMessage implements chat.Store.
func (s *Store) CreateMessage(_ context.Context, fields chat.NewMessage) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[fields.ConversationID]; !ok {
		return nil, fmt.Errorf("conversation %s: %w", fields.ConversationID, chat.ErrNotFound)
	}

	m := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: fields.ConversationID,
		SenderID:       fields.SenderID,
		Text:           fields.Text,
		ReadBy:         slices.Clone(fields.ReadBy),
		CreatedAt:      s.now(),
	}
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	s.messages[m.ID] = m
	s.order[m.ConversationID] = append(s.order[m.ConversationID], m.ID)

	out := cloneMessage(m)
	return &out, nil
}

// UpdateMessage implements chat.Store.
func (s *Store) UpdateMessage(_ context.Context, id string, patch chat.MessagePatch) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, chat.ErrNotFound)
	}
	patch.Apply(&m)
	s.messages[id] = m

	out := cloneMessage(m)
	return &out, nil
}

// MarkConversationRead implements chat.Store.
func (s *Store) MarkConversationRead(_ context.Context, conversationID, actorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return 0, fmt.Errorf("conversation %s: %w", conversationID, chat.ErrNotFound)
	}

	changed := 0
	for _, id := range s.order[conversationID] {
		m := cloneMessage(s.messages[id])
		if m.MarkReadBy(actorID) {
			s.messages[id] = m
			changed++
		}
	}
	return changed, nil
}

// ListMessages implements chat.Store.
func (s *Store) ListMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, chat.ErrNotFound)
	}
	ids := s.order[conversationID]
	out := make([]chat.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneMessage(s.messages[id]))
	}
	return out, nil
}

// GetActor implements chat.Store.
func (s *Store) GetActor(_ context.Context, id string) (*chat.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[id]
	if !ok {
		return nil, fmt.Errorf("actor %s: %w", id, chat.ErrNotFound)
	}
	a = cloneActor(a)
	return &a, nil
}

// UpdateActorLastSeen implements chat.Store.
func (s *Store) UpdateActorLastSeen(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[id]
	if !ok {
		return fmt.Errorf("actor %s: %w", id, chat.ErrNotFound)
	}
	if a.LastSeen != nil && !at.After(*a.LastSeen) {
		return nil
	}
	t := at
	a.LastSeen = &t
	s.actors[id] = a
	return nil
}

// GetActorLastSeen implements chat.Store.
func (s *Store) GetActorLastSeen(_ context.Context, id string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[id]
	if !ok {
		return nil, fmt.Errorf("actor %s: %w", id, chat.ErrNotFound)
	}
	if a.LastSeen == nil {
		return nil, nil
	}
	t := *a.LastSeen
	return &t, nil
}

func cloneActor(a chat.Actor) chat.Actor {
	if a.LastSeen != nil {
		t := *a.LastSeen
		a.LastSeen = &t
	}
	return a
}

func cloneConversation(c chat.Conversation) chat.Conversation {
	c.Members = slices.Clone(c.Members)
	c.Admins = slices.Clone(c.Admins)
	return c
}

func cloneMessage(m chat.Message) chat.Message {
	m.ReadBy = slices.Clone(m.ReadBy)
	if m.EditedAt != nil {
		t := *m.EditedAt
		m.EditedAt = &t
	}
	if m.Sender != nil {
		p := *m.Sender
		m.Sender = &p
	}
	return m
}
