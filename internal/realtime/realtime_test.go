package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	frame, err := Encode(EventTypingStart, Typing{ConversationID: "c1", ActorID: "alice"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"typing:start","data":{"conversationId":"c1","actorId":"alice"}}`, string(frame))

	env, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, EventTypingStart, env.Event)

	var typing Typing
	require.NoError(t, json.Unmarshal(env.Data, &typing))
	assert.Equal(t, "alice", typing.ActorID)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `hello`},
		{"missing event", `{"data":{}}`},
		{"empty event", `{"event":""}`},
		{"wrong type", `{"event":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			assert.Error(t, err)
		})
	}
}

func TestDecodeWithoutData(t *testing.T) {
	env, err := Decode([]byte(`{"event":"presence:check"}`))
	require.NoError(t, err)
	assert.Empty(t, env.Data)
}

func TestPresenceOfflineEncodesNullLastSeen(t *testing.T) {
	frame, err := Encode(EventUserPresence, Presence{ActorID: "bob"})
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"lastSeen":null`)
}
