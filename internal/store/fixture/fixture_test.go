package fixture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatgate/internal/chat"
	"github.com/Tyrowin/chatgate/internal/store/memstore"
)

const valid = `
actors:
  - id: alice
    displayName: Alice
    username: alice
  - id: bob
    displayName: Bob
    username: bob
conversations:
  - id: alice-bob
    kind: direct
    members: [alice, bob]
  - id: general
    kind: group
    name: General
    members: [alice, bob]
    admins: [alice]
`

func TestDecodeAndApply(t *testing.T) {
	f, err := Decode(strings.NewReader(valid))
	require.NoError(t, err)
	require.Len(t, f.Actors, 2)
	require.Len(t, f.Conversations, 2)

	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, f.Apply(ctx, s))

	a, err := s.GetActor(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", a.DisplayName)

	c, err := s.GetConversation(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, chat.KindGroup, c.Kind)
	assert.Equal(t, "General", c.Name)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "actors:\n  - id: alice\n    nickname: al\n"},
		{"actor without id", "actors:\n  - displayName: Nobody\n"},
		{"member not listed", "actors:\n  - id: alice\nconversations:\n  - id: dm\n    kind: direct\n    members: [alice, zed]\n"},
		{"invalid conversation", "actors:\n  - id: alice\nconversations:\n  - id: g\n    kind: group\n    members: [alice]\n"},
		{"not yaml", "actors: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	f, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Actors)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(valid), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Conversations, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
