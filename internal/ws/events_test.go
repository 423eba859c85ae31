package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundSendMessage(t *testing.T) {
	raw := []byte(`{"event":"send_message","data":{"conversation_id":"c1","content":"hi","reply_to":"m9"}}`)

	event, err := DecodeInbound(raw)
	require.NoError(t, err)

	send, ok := event.(*SendMessage)
	require.True(t, ok)
	assert.Equal(t, "c1", send.ConversationID)
	assert.Equal(t, "hi", send.Content)
	assert.Equal(t, "m9", send.ReplyTo)
}

func TestDecodeInboundAllKnownEvents(t *testing.T) {
	cases := map[string]Inbound{
		"join_conversation":  &JoinConversation{},
		"leave_conversation": &LeaveConversation{},
		"send_message":       &SendMessage{},
		"typing_start":       &TypingStart{},
		"typing_stop":        &TypingStop{},
		"mark_as_read":       &MarkAsRead{},
		"edit_message":       &EditMessage{},
		"ping_health":        &PingHealth{},
	}

	for name, want := range cases {
		raw := []byte(`{"event":"` + name + `","data":{}}`)
		event, err := DecodeInbound(raw)
		require.NoError(t, err, name)
		assert.IsType(t, want, event, name)
		assert.Equal(t, name, event.EventName())
	}
}

func TestDecodeInboundUnknownEvent(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"event":"self_destruct","data":{}}`))
	require.Error(t, err)
	assert.ErrorAs(t, err, &ErrUnknownEvent{})
}

func TestDecodeInboundMalformed(t *testing.T) {
	_, err := DecodeInbound([]byte(`not json`))
	require.Error(t, err)

	_, err = DecodeInbound([]byte(`{"event":"send_message","data":"nope"}`))
	require.Error(t, err)
}

func TestDecodeInboundEmptyPayload(t *testing.T) {
	event, err := DecodeInbound([]byte(`{"event":"ping_health"}`))
	require.NoError(t, err)
	assert.IsType(t, &PingHealth{}, event)
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	frame, err := EncodeFrame("message_sent", map[string]string{"message_id": "m1"})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "message_sent", env.Event)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "m1", payload["message_id"])
}
