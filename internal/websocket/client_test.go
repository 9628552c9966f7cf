package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	// 5 per second with burst of 10
	rl := NewRateLimiter(5, 10)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow(), "Request %d should be allowed", i+1)
	}

	assert.False(t, rl.Allow(), "Request 11 should be denied")

	time.Sleep(300 * time.Millisecond)
	assert.True(t, rl.Allow(), "Request after wait should be allowed")
}

func TestClientSendNeverBlocks(t *testing.T) {
	c := NewClient(nil, 2, DefaultRateLimitConfig())

	require.NoError(t, c.Send(NewMessage(MessageTypeLike, nil)))
	require.NoError(t, c.Send(NewMessage(MessageTypeLike, nil)))

	done := make(chan error, 1)
	go func() { done <- c.Send(NewMessage(MessageTypeLike, nil)) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSendBufferFull)
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full buffer")
	}
	assert.Equal(t, 2, c.Pending())
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c := NewClient(nil, 4, DefaultRateLimitConfig())
	assert.True(t, c.IsOpen())
	assert.NotEmpty(t, c.ID())

	c.Close()
	c.Close()

	assert.False(t, c.IsOpen())
	assert.ErrorIs(t, c.Send(NewMessage(MessageTypeLike, nil)), ErrConnectionClosed)
}

func TestClientIDsAreUnique(t *testing.T) {
	a := NewClient(nil, 1, DefaultRateLimitConfig())
	b := NewClient(nil, 1, DefaultRateLimitConfig())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestNewReply(t *testing.T) {
	original := &Message{Type: MessageTypePing, ID: "original-id"}
	reply := NewReply(original, MessageTypePong, nil)

	assert.Equal(t, MessageTypePong, reply.Type)
	assert.Equal(t, "original-id", reply.ReplyTo)
	assert.False(t, reply.Timestamp.IsZero())
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage("test_error", "Something went wrong")

	assert.Equal(t, MessageTypeError, msg.Type)

	payload, ok := msg.Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "test_error", payload.Code)
	assert.Equal(t, "Something went wrong", payload.Message)
}

func TestMessageParsePayload(t *testing.T) {
	msg := NewMessage(MessageTypeIdentify, map[string]interface{}{
		"user_id": "u-123",
	})

	var identify IdentifyPayload
	require.NoError(t, msg.ParsePayload(&identify))
	assert.Equal(t, "u-123", identify.UserID)
}

func TestFlexibleTimeAcceptsBothFormats(t *testing.T) {
	var fromMillis Message
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ping","timestamp":1700000000000}`), &fromMillis))
	assert.Equal(t, int64(1700000000000), fromMillis.Timestamp.UnixMilli())

	var fromString Message
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ping","timestamp":"2024-01-02T03:04:05Z"}`), &fromString))
	assert.Equal(t, 2024, fromString.Timestamp.Year())

	var bad Message
	assert.Error(t, json.Unmarshal([]byte(`{"type":"ping","timestamp":true}`), &bad))
}

func TestPresenceFrameShape(t *testing.T) {
	data, err := json.Marshal(NewMessage(MessageTypePresence, PresencePayload{OnlineUsers: 3}))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"presence"`)
	assert.Contains(t, string(data), `"online_users":3`)
}
