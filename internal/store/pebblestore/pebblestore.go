// Package pebblestore persists actors, conversations and messages in a
// Pebble key-value database.
//
// Key layout:
//
//	actor:<id>                               -> JSON chat.Actor
//	conv:<id>                                -> JSON chat.Conversation
//	msg:<id>                                 -> JSON chat.Message
//	convmsg:<len>:<conversation>:<unixnano>-<seq>  -> message id
//
// The convmsg index sorts by creation time, so a prefix scan yields a
// conversation's messages in order. The zero-padded byte length of the
// conversation id keeps the prefix of "a" from matching "a:b".
package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/Tyrowin/chatgate/internal/chat"
)

// Store implements chat.Store and chat.Seeder on top of Pebble.
type Store struct {
	db  *pebble.DB
	log *slog.Logger

	// mu serializes read-modify-write sequences; Pebble has no row locks.
	mu  sync.Mutex
	seq atomic.Uint64
	now func() time.Time
}

// Open opens (or creates) the database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Store{
		db:  db,
		log: logger,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	s.log.Info("pebble_closed")
	return nil
}

func actorKey(id string) []byte { return []byte("actor:" + id) }
func convKey(id string) []byte  { return []byte("conv:" + id) }
func msgKey(id string) []byte   { return []byte("msg:" + id) }

func convIndexPrefix(conversationID string) []byte {
	return []byte(fmt.Sprintf("convmsg:%08d:%s:", len(conversationID), conversationID))
}

func (s *Store) convIndexKey(conversationID string, at time.Time) []byte {
	n := s.seq.Add(1)
	key := convIndexPrefix(conversationID)
	return append(key, fmt.Sprintf("%020d-%06d", at.UnixNano(), n%1_000_000)...)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *Store) getJSON(key []byte, what string, out any) error {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, chat.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", what, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(val, out); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

func setJSON(b *pebble.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Set(key, data, nil)
}

func (s *Store) putJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Set(key, data, pebble.Sync)
}

// PutActor implements chat.Seeder. An existing LastSeen is preserved when
// the incoming actor has none.
func (s *Store) PutActor(_ context.Context, a chat.Actor) error {
	if a.ID == "" {
		return fmt.Errorf("%w: actor id is required", chat.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.LastSeen == nil {
		var prev chat.Actor
		if err := s.getJSON(actorKey(a.ID), "actor "+a.ID, &prev); err == nil {
			a.LastSeen = prev.LastSeen
		}
	}
	return s.putJSON(actorKey(a.ID), a)
}

// PutConversation implements chat.Seeder.
func (s *Store) PutConversation(_ context.Context, c chat.Conversation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(convKey(c.ID), c)
}

// GetConversation implements chat.Store.
func (s *Store) GetConversation(_ context.Context, id string) (*chat.Conversation, error) {
	var c chat.Conversation
	if err := s.getJSON(convKey(id), "conversation "+id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// IsMember implements chat.Store.
func (s *Store) IsMember(ctx context.Context, conversationID, actorID string) (bool, error) {
	c, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return c.HasMember(actorID), nil
}

// UpdateConversation implements chat.Store.
func (s *Store) UpdateConversation(_ context.Context, id string, patch chat.ConversationPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c chat.Conversation
	if err := s.getJSON(convKey(id), "conversation "+id, &c); err != nil {
		return err
	}
	patch.Apply(&c)
	return s.putJSON(convKey(id), c)
}

// GetMessage implements chat.Store.
func (s *Store) GetMessage(_ context.Context, id string) (*chat.Message, error) {
	var m chat.Message
	if err := s.getJSON(msgKey(id), "message "+id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMessage implements chat.Store. The message row and its ordering
// index are committed in one batch.
func (s *Store) CreateMessage(_ context.Context, fields chat.NewMessage) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c chat.Conversation
	if err := s.getJSON(convKey(fields.ConversationID), "conversation "+fields.ConversationID, &c); err != nil {
		return nil, err
	}

	m := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: fields.ConversationID,
		SenderID:       fields.SenderID,
		Text:           fields.Text,
		ReadBy:         append([]string{}, fields.ReadBy...),
		CreatedAt:      s.now(),
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, msgKey(m.ID), m); err != nil {
		return nil, err
	}
	if err := b.Set(s.convIndexKey(m.ConversationID, m.CreatedAt), []byte(m.ID), nil); err != nil {
		return nil, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		s.log.Error("save_message_failed", "conversation", m.ConversationID, "message", m.ID, "error", err)
		return nil, err
	}
	return &m, nil
}

// UpdateMessage implements chat.Store.
func (s *Store) UpdateMessage(_ context.Context, id string, patch chat.MessagePatch) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var m chat.Message
	if err := s.getJSON(msgKey(id), "message "+id, &m); err != nil {
		return nil, err
	}
	patch.Apply(&m)
	if err := s.putJSON(msgKey(id), m); err != nil {
		return nil, err
	}
	return &m, nil
}

// messageIDs scans the conversation index in creation order.
func (s *Store) messageIDs(conversationID string) ([]string, error) {
	prefix := convIndexPrefix(conversationID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, string(iter.Value()))
	}
	return ids, iter.Error()
}

// MarkConversationRead implements chat.Store. All changed messages are
// written in one batch.
func (s *Store) MarkConversationRead(_ context.Context, conversationID, actorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c chat.Conversation
	if err := s.getJSON(convKey(conversationID), "conversation "+conversationID, &c); err != nil {
		return 0, err
	}
	ids, err := s.messageIDs(conversationID)
	if err != nil {
		return 0, err
	}

	b := s.db.NewBatch()
	defer b.Close()
	changed := 0
	for _, id := range ids {
		var m chat.Message
		if err := s.getJSON(msgKey(id), "message "+id, &m); err != nil {
			return 0, err
		}
		if !m.MarkReadBy(actorID) {
			continue
		}
		if err := setJSON(b, msgKey(id), m); err != nil {
			return 0, err
		}
		changed++
	}
	if changed == 0 {
		return 0, nil
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return changed, nil
}

// ListMessages implements chat.Store.
func (s *Store) ListMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	var c chat.Conversation
	if err := s.getJSON(convKey(conversationID), "conversation "+conversationID, &c); err != nil {
		return nil, err
	}
	ids, err := s.messageIDs(conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(ids))
	for _, id := range ids {
		var m chat.Message
		if err := s.getJSON(msgKey(id), "message "+id, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// GetActor implements chat.Store.
func (s *Store) GetActor(_ context.Context, id string) (*chat.Actor, error) {
	var a chat.Actor
	if err := s.getJSON(actorKey(id), "actor "+id, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateActorLastSeen implements chat.Store.
func (s *Store) UpdateActorLastSeen(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var a chat.Actor
	if err := s.getJSON(actorKey(id), "actor "+id, &a); err != nil {
		return err
	}
	if a.LastSeen != nil && !at.After(*a.LastSeen) {
		return nil
	}
	t := at.UTC()
	a.LastSeen = &t
	return s.putJSON(actorKey(id), a)
}

// GetActorLastSeen implements chat.Store.
func (s *Store) GetActorLastSeen(ctx context.Context, id string) (*time.Time, error) {
	a, err := s.GetActor(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.LastSeen, nil
}
