package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/messaging/internal/models"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := New(TypeNewMessage, "c1", NewMessage{
		Message: models.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Content: "hi"},
	})

	b, err := json.Marshal(env)
	require.NoError(t, err)

	var got Envelope
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, TypeNewMessage, got.Type)
	assert.Equal(t, "c1", got.ConversationID)

	payload, err := got.Decode()
	require.NoError(t, err)
	msg, ok := payload.(NewMessage)
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Message.Content)
}

func TestTypingAndStopShareAPayload(t *testing.T) {
	for _, typ := range []Type{TypeTyping, TypeTypingStop} {
		env := New(typ, "c1", Typing{UserID: "u2"})
		payload, err := env.Decode()
		require.NoError(t, err)
		assert.Equal(t, Typing{UserID: "u2"}, payload)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	env := Envelope{Type: "presence.blink", ConversationID: "c1", Payload: json.RawMessage(`{}`)}
	_, err := env.Decode()
	assert.Error(t, err)
}

func TestDecodeMalformedPayload(t *testing.T) {
	env := Envelope{Type: TypeUnreadSummary, ConversationID: "c1", Payload: json.RawMessage(`{"counts": 7}`)}
	_, err := env.Decode()
	assert.Error(t, err)

	env = Envelope{Type: TypeNewMessage, ConversationID: "c1"}
	_, err = env.Decode()
	assert.Error(t, err)
}
