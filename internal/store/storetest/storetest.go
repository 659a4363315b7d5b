// Package storetest holds the behaviour every chat.Store implementation
// must share. Each backend's tests call Run with a constructor.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatgate/internal/chat"
)

// Backend is what a store under test must implement.
type Backend interface {
	chat.Store
	chat.Seeder
}

// Run exercises a fresh backend from newStore in each subtest.
func Run(t *testing.T, newStore func(t *testing.T) Backend) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Backend)
	}{
		{"Conversations", testConversations},
		{"MessageLifecycle", testMessageLifecycle},
		{"ListMessagesInCreationOrder", testListOrder},
		{"MarkConversationRead", testMarkRead},
		{"ActorLastSeen", testLastSeen},
		{"NotFound", testNotFound},
		{"ConcurrentCreates", testConcurrentCreates},
		{"ConversationIDsWithSeparator", testSeparatorInConversationID},
		{"LastSeenNeverMovesBackwards", testLastSeenMonotonic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			seed(t, s)
			tt.fn(t, s)
		})
	}
}

func seed(t *testing.T, s Backend) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, s.PutActor(ctx, chat.Actor{ID: id, DisplayName: id, Username: id}))
	}
	require.NoError(t, s.PutConversation(ctx, chat.Conversation{
		ID: "dm", Kind: chat.KindDirect, Members: []string{"alice", "bob"},
	}))
	require.NoError(t, s.PutConversation(ctx, chat.Conversation{
		ID: "team", Kind: chat.KindGroup, Name: "Team",
		Members: []string{"alice", "bob", "carol"}, Admins: []string{"alice"},
	}))
}

func testConversations(t *testing.T, s Backend) {
	ctx := context.Background()

	c, err := s.GetConversation(ctx, "team")
	require.NoError(t, err)
	assert.Equal(t, chat.KindGroup, c.Kind)
	assert.Equal(t, []string{"alice"}, c.Admins)
	assert.False(t, c.CreatedAt.IsZero())

	ok, err := s.IsMember(ctx, "dm", "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.IsMember(ctx, "dm", "carol")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateConversation(ctx, "dm", chat.ConversationPatch{LastActivityAt: &at}))
	c, err = s.GetConversation(ctx, "dm")
	require.NoError(t, err)
	assert.True(t, c.LastActivityAt.Equal(at))

	err = s.PutConversation(ctx, chat.Conversation{ID: "bad", Kind: chat.KindDirect, Members: []string{"alice"}})
	assert.ErrorIs(t, err, chat.ErrInvalidArgument)
}

func testMessageLifecycle(t *testing.T, s Backend) {
	ctx := context.Background()

	m, err := s.CreateMessage(ctx, chat.NewMessage{
		ConversationID: "dm", SenderID: "alice", Text: "hi", ReadBy: []string{"alice"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())

	got, err := s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, []string{"alice"}, got.ReadBy)

	text := "edited"
	now := time.Now().UTC()
	updated, err := s.UpdateMessage(ctx, m.ID, chat.MessagePatch{Text: &text, EditedAt: &now})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Text)
	require.NotNil(t, updated.EditedAt)

	deleted := true
	placeholder := chat.DeletedPlaceholder
	_, err = s.UpdateMessage(ctx, m.ID, chat.MessagePatch{Text: &placeholder, IsDeleted: &deleted})
	require.NoError(t, err)

	got, err = s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, chat.DeletedPlaceholder, got.Text)
	assert.True(t, got.CreatedAt.Equal(m.CreatedAt))
}

func testListOrder(t *testing.T, s Backend) {
	ctx := context.Background()
	var want []string
	for i := 0; i < 5; i++ {
		m, err := s.CreateMessage(ctx, chat.NewMessage{ConversationID: "team", SenderID: "bob", Text: fmt.Sprint(i)})
		require.NoError(t, err)
		want = append(want, m.ID)
	}
	_, err := s.CreateMessage(ctx, chat.NewMessage{ConversationID: "dm", SenderID: "bob", Text: "elsewhere"})
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, "team")
	require.NoError(t, err)
	got := make([]string, len(msgs))
	for i, m := range msgs {
		got[i] = m.ID
	}
	assert.Equal(t, want, got)
}

func testMarkRead(t *testing.T, s Backend) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.CreateMessage(ctx, chat.NewMessage{
			ConversationID: "team", SenderID: "alice", Text: fmt.Sprint(i), ReadBy: []string{"alice"},
		})
		require.NoError(t, err)
	}

	n, err := s.MarkConversationRead(ctx, "team", "carol")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.MarkConversationRead(ctx, "team", "carol")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.MarkConversationRead(ctx, "team", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)

	msgs, err := s.ListMessages(ctx, "team")
	require.NoError(t, err)
	for _, m := range msgs {
		assert.Equal(t, []string{"alice", "carol"}, m.ReadBy)
	}
}

func testLastSeen(t *testing.T, s Backend) {
	ctx := context.Background()

	at, err := s.GetActorLastSeen(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, at, "never connected")

	when := time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, s.UpdateActorLastSeen(ctx, "alice", when))
	at, err = s.GetActorLastSeen(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.True(t, at.Equal(when))

	require.NoError(t, s.PutActor(ctx, chat.Actor{ID: "alice", DisplayName: "Alice Renamed"}))
	at, err = s.GetActorLastSeen(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, at, "reseeding keeps last-seen")

	a, err := s.GetActor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", a.DisplayName)
}

func testNotFound(t *testing.T, s Backend) {
	ctx := context.Background()

	_, err := s.GetConversation(ctx, "nope")
	assert.ErrorIs(t, err, chat.ErrNotFound)
	_, err = s.IsMember(ctx, "nope", "alice")
	assert.ErrorIs(t, err, chat.ErrNotFound)
	_, err = s.GetMessage(ctx, "nope")
	assert.ErrorIs(t, err, chat.ErrNotFound)
	_, err = s.UpdateMessage(ctx, "nope", chat.MessagePatch{})
	assert.ErrorIs(t, err, chat.ErrNotFound)
	_, err = s.CreateMessage(ctx, chat.NewMessage{ConversationID: "nope", SenderID: "alice", Text: "x"})
	assert.ErrorIs(t, err, chat.ErrNotFound)
	_, err = s.MarkConversationRead(ctx, "nope", "alice")
	assert.ErrorIs(t, err, chat.ErrNotFound)
	_, err = s.ListMessages(ctx, "nope")
	assert.ErrorIs(t, err, chat.ErrNotFound)
	_, err = s.GetActor(ctx, "nobody")
	assert.ErrorIs(t, err, chat.ErrNotFound)
	_, err = s.GetActorLastSeen(ctx, "nobody")
	assert.ErrorIs(t, err, chat.ErrNotFound)
	assert.ErrorIs(t, s.UpdateActorLastSeen(ctx, "nobody", time.Now()), chat.ErrNotFound)
	assert.ErrorIs(t, s.UpdateConversation(ctx, "nope", chat.ConversationPatch{}), chat.ErrNotFound)
}

func testConcurrentCreates(t *testing.T, s Backend) {
	ctx := context.Background()
	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateMessage(ctx, chat.NewMessage{ConversationID: "team", SenderID: "carol", Text: fmt.Sprint(i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := s.ListMessages(ctx, "team")
	require.NoError(t, err)
	assert.Len(t, msgs, n)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "position %d out of order", i)
	}
}

// testSeparatorInConversationID checks that a conversation's messages stay
// scoped to it when another conversation's id extends its id.
func testSeparatorInConversationID(t *testing.T, s Backend) {
	ctx := context.Background()
	require.NoError(t, s.PutConversation(ctx, chat.Conversation{
		ID: "team:secret", Kind: chat.KindDirect, Members: []string{"alice", "bob"},
	}))
	_, err := s.CreateMessage(ctx, chat.NewMessage{
		ConversationID: "team:secret", SenderID: "alice", Text: "private", ReadBy: []string{"alice"},
	})
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, "team")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	n, err := s.MarkConversationRead(ctx, "team", "carol")
	require.NoError(t, err)
	assert.Zero(t, n)

	msgs, err = s.ListMessages(ctx, "team:secret")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"alice"}, msgs[0].ReadBy)
}

// testLastSeenMonotonic checks that a late write carrying an older time
// does not overwrite a newer last-seen.
func testLastSeenMonotonic(t *testing.T, s Backend) {
	ctx := context.Background()
	older := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	newer := older.Add(time.Minute)

	require.NoError(t, s.UpdateActorLastSeen(ctx, "bob", newer))
	require.NoError(t, s.UpdateActorLastSeen(ctx, "bob", older))

	at, err := s.GetActorLastSeen(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.True(t, at.Equal(newer), "got %v", at)
}
