package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatgate/internal/chat"
	"github.com/Tyrowin/chatgate/internal/logging"
	"github.com/Tyrowin/chatgate/internal/realtime"
	"github.com/Tyrowin/chatgate/internal/store/memstore"
)

const (
	convDM    = "dm"
	convGroup = "group"
)

// recorder collects broadcasts in the order they were queued.
type recorder struct {
	mu     sync.Mutex
	events []realtime.Envelope
	rooms  []string
}

func (r *recorder) ToRoom(conversationID string, payload []byte) int {
	env, err := realtime.Decode(payload)
	if err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
	r.rooms = append(r.rooms, conversationID)
	return 1
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Event
	}
	return out
}

func (r *recorder) message(t *testing.T, i int) chat.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var ev struct {
		Message chat.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal(r.events[i].Data, &ev))
	return ev.Message
}

// activityFailStore fails every conversation update.
type activityFailStore struct {
	*memstore.Store
}

func (activityFailStore) UpdateConversation(context.Context, string, chat.ConversationPatch) error {
	return errors.New("write timeout")
}

// brokenStore fails every membership check.
type brokenStore struct {
	*memstore.Store
}

func (brokenStore) IsMember(context.Context, string, string) (bool, error) {
	return false, errors.New("connection reset")
}

func seed(t *testing.T) *memstore.Store {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, s.PutActor(ctx, chat.Actor{ID: id, DisplayName: id + " display", Username: id}))
	}
	require.NoError(t, s.PutConversation(ctx, chat.Conversation{ID: convDM, Kind: chat.KindDirect, Members: []string{"alice", "bob"}}))
	require.NoError(t, s.PutConversation(ctx, chat.Conversation{
		ID: convGroup, Kind: chat.KindGroup, Name: "team",
		Members: []string{"alice", "bob", "carol"}, Admins: []string{"alice"},
	}))
	return s
}

func newManager(t *testing.T, store chat.Store) (*chat.Manager, *recorder) {
	t.Helper()
	rec := &recorder{}
	return chat.NewManager(store, rec, logging.Discard()), rec
}

func TestCreate(t *testing.T) {
	store := seed(t)
	m, rec := newManager(t, store)
	ctx := context.Background()

	msg, err := m.Create(ctx, "alice", convDM, "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, []string{"alice"}, msg.ReadBy)
	assert.False(t, msg.IsDeleted)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "alice display", msg.Sender.DisplayName)

	assert.Equal(t, []string{realtime.EventMessageNew}, rec.names())
	assert.Equal(t, []string{convDM}, rec.rooms)
	assert.Equal(t, msg.ID, rec.message(t, 0).ID)

	conv, err := store.GetConversation(ctx, convDM)
	require.NoError(t, err)
	assert.True(t, conv.LastActivityAt.Equal(msg.CreatedAt))
}

func TestCreateRejections(t *testing.T) {
	m, rec := newManager(t, seed(t))
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  string
		conv   string
		text   string
		target error
	}{
		{"non-member", "carol", convDM, "hi", chat.ErrForbidden},
		{"unknown conversation", "alice", "nope", "hi", chat.ErrNotFound},
		{"blank text", "alice", convDM, "   ", chat.ErrInvalidArgument},
		{"missing conversation", "alice", "", "hi", chat.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(ctx, tt.actor, tt.conv, tt.text)
			assert.ErrorIs(t, err, tt.target)
		})
	}
	assert.Empty(t, rec.names(), "rejected writes broadcast nothing")
}

func TestCreateSurvivesActivityUpdateFailure(t *testing.T) {
	m, rec := newManager(t, activityFailStore{seed(t)})

	msg, err := m.Create(context.Background(), "bob", convDM, "still delivered")
	require.NoError(t, err)
	assert.Equal(t, "still delivered", msg.Text)
	assert.Equal(t, []string{realtime.EventMessageNew}, rec.names())
}

func TestStorageFailureIsClassified(t *testing.T) {
	m, _ := newManager(t, brokenStore{seed(t)})

	_, err := m.Create(context.Background(), "alice", convDM, "hi")
	require.ErrorIs(t, err, chat.ErrStorage)
	assert.Equal(t, chat.CodeStorage, chat.Code(err))
}

// TestConcurrentCreatesBroadcastInCommitOrder checks that broadcasts for one
// conversation are queued in the same order the store assigned.
func TestConcurrentCreatesBroadcastInCommitOrder(t *testing.T) {
	store := seed(t)
	m, rec := newManager(t, store)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := []string{"alice", "bob", "carol"}[i%3]
			_, err := m.Create(ctx, actor, convGroup, fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := store.ListMessages(ctx, convGroup)
	require.NoError(t, err)
	require.Len(t, stored, n)
	require.Len(t, rec.names(), n)
	for i := range stored {
		assert.Equal(t, stored[i].ID, rec.message(t, i).ID, "position %d", i)
	}
}

func TestEdit(t *testing.T) {
	m, rec := newManager(t, seed(t))
	ctx := context.Background()
	msg, err := m.Create(ctx, "alice", convDM, "first")
	require.NoError(t, err)

	_, err = m.Edit(ctx, "bob", msg.ID, "hijack")
	assert.ErrorIs(t, err, chat.ErrForbidden)

	_, err = m.Edit(ctx, "alice", msg.ID, "")
	assert.ErrorIs(t, err, chat.ErrInvalidArgument)

	_, err = m.Edit(ctx, "alice", "missing", "x")
	assert.ErrorIs(t, err, chat.ErrNotFound)

	edited, err := m.Edit(ctx, "alice", msg.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, "second", edited.Text)
	require.NotNil(t, edited.EditedAt)
	assert.Equal(t, msg.CreatedAt, edited.CreatedAt)

	assert.Equal(t, []string{realtime.EventMessageNew, realtime.EventMessageEdit}, rec.names())
}

func TestSoftDelete(t *testing.T) {
	store := seed(t)
	m, rec := newManager(t, store)
	ctx := context.Background()
	msg, err := m.Create(ctx, "alice", convDM, "oops")
	require.NoError(t, err)

	_, err = m.SoftDelete(ctx, "bob", msg.ID)
	assert.ErrorIs(t, err, chat.ErrForbidden)

	deleted, err := m.SoftDelete(ctx, "alice", msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, chat.DeletedPlaceholder, deleted.Text)

	_, err = m.SoftDelete(ctx, "alice", msg.ID)
	assert.ErrorIs(t, err, chat.ErrMessageDeleted)
	_, err = m.Edit(ctx, "alice", msg.ID, "revive")
	assert.ErrorIs(t, err, chat.ErrMessageDeleted)
	assert.Equal(t, chat.CodeConflict, chat.Code(err))

	stored, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, chat.DeletedPlaceholder, stored.Text)

	assert.Equal(t, []string{realtime.EventMessageNew, realtime.EventMessageDelete}, rec.names())
}

func TestSenderWhoLeftCannotEdit(t *testing.T) {
	store := seed(t)
	m, _ := newManager(t, store)
	ctx := context.Background()
	msg, err := m.Create(ctx, "carol", convGroup, "bye")
	require.NoError(t, err)

	require.NoError(t, store.PutConversation(ctx, chat.Conversation{
		ID: convGroup, Kind: chat.KindGroup, Members: []string{"alice", "bob"}, Admins: []string{"alice"},
	}))

	_, err = m.Edit(ctx, "carol", msg.ID, "edited")
	assert.ErrorIs(t, err, chat.ErrForbidden)
}

func TestMarkConversationRead(t *testing.T) {
	store := seed(t)
	m, rec := newManager(t, store)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx, "alice", convGroup, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	n, err := m.MarkConversationRead(ctx, "bob", convGroup)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = m.MarkConversationRead(ctx, "bob", convGroup)
	require.NoError(t, err)
	assert.Zero(t, n, "second read changes nothing")

	msgs, err := store.ListMessages(ctx, convGroup)
	require.NoError(t, err)
	for _, msg := range msgs {
		assert.Equal(t, []string{"alice", "bob"}, msg.ReadBy)
	}

	names := rec.names()
	assert.Equal(t, []string{realtime.EventConversationRead, realtime.EventConversationRead}, names[3:],
		"one read event per call regardless of backlog")

	var receipt realtime.ReadReceipt
	require.NoError(t, json.Unmarshal(rec.events[3].Data, &receipt))
	assert.Equal(t, realtime.ReadReceipt{ConversationID: convGroup, ActorID: "bob"}, receipt)

	_, err = m.MarkConversationRead(ctx, "carol", convDM)
	assert.ErrorIs(t, err, chat.ErrForbidden)
}

func TestHistoryAndAuthorizeMember(t *testing.T) {
	m, _ := newManager(t, seed(t))
	ctx := context.Background()
	first, err := m.Create(ctx, "alice", convDM, "one")
	require.NoError(t, err)
	second, err := m.Create(ctx, "bob", convDM, "two")
	require.NoError(t, err)

	msgs, err := m.History(ctx, "bob", convDM)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, second.ID, msgs[1].ID)

	_, err = m.History(ctx, "carol", convDM)
	assert.ErrorIs(t, err, chat.ErrForbidden)

	assert.NoError(t, m.AuthorizeMember(ctx, "carol", convGroup))
	assert.ErrorIs(t, m.AuthorizeMember(ctx, "carol", convDM), chat.ErrForbidden)
	assert.ErrorIs(t, m.AuthorizeMember(ctx, "carol", ""), chat.ErrInvalidArgument)
	assert.ErrorIs(t, m.AuthorizeMember(ctx, "carol", "nope"), chat.ErrNotFound)
}
