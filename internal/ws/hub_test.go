package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(userID string) *Client {
	return &Client{
		UserID:   userID,
		Username: userID,
		send:     make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func drainEvents(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var frames []Envelope
	for {
		select {
		case raw := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			frames = append(frames, env)
		default:
			return frames
		}
	}
}

func unmarshalData(env Envelope, out any) error {
	return json.Unmarshal(env.Data, out)
}

func eventNames(t *testing.T, c *Client) []string {
	t.Helper()
	var names []string
	for _, env := range drainEvents(t, c) {
		names = append(names, env.Event)
	}
	return names
}

func TestRegisterReportsFirstConnection(t *testing.T) {
	hub := NewHub()
	first := newTestClient("alice")
	second := newTestClient("alice")

	assert.True(t, hub.Register(first))
	assert.False(t, hub.Register(second))
	assert.True(t, hub.IsOnline("alice"))
	assert.Equal(t, 2, hub.ClientCount())
}

func TestDeregisterReportsLastConnection(t *testing.T) {
	hub := NewHub()
	first := newTestClient("alice")
	second := newTestClient("alice")
	hub.Register(first)
	hub.Register(second)

	assert.False(t, hub.Deregister(first))
	assert.True(t, hub.IsOnline("alice"))
	assert.True(t, hub.Deregister(second))
	assert.False(t, hub.IsOnline("alice"))
}

func TestDeregisterTwiceIsHarmless(t *testing.T) {
	hub := NewHub()
	c := newTestClient("alice")
	hub.Register(c)

	assert.True(t, hub.Deregister(c))
	assert.False(t, hub.Deregister(c))
}

func TestJoinIsIdempotentAndRoomsAreLazy(t *testing.T) {
	hub := NewHub()
	c := newTestClient("alice")
	hub.Register(c)

	assert.Equal(t, 0, hub.RoomCount())
	hub.Join(c, "c1")
	hub.Join(c, "c1")
	assert.Equal(t, 1, hub.RoomCount())
	assert.True(t, hub.InRoom(c, "c1"))

	hub.Leave(c, "c1")
	assert.Equal(t, 0, hub.RoomCount(), "empty room should be garbage collected")

	// Leaving a room we are not in is a no-op.
	hub.Leave(c, "c1")
	assert.Equal(t, 0, hub.RoomCount())
}

func TestDeregisterRemovesAllRoomMemberships(t *testing.T) {
	hub := NewHub()
	a := newTestClient("alice")
	b := newTestClient("bob")
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, "c1")
	hub.Join(a, "c2")
	hub.Join(b, "c1")

	hub.Deregister(a)

	assert.False(t, hub.InRoom(a, "c1"))
	assert.False(t, hub.InRoom(a, "c2"))
	assert.Equal(t, 1, hub.RoomCount(), "c2 should be gone, c1 kept for bob")
	assert.True(t, hub.InRoom(b, "c1"))
}

func TestBroadcastReachesExactlyRoomMembers(t *testing.T) {
	hub := NewHub()
	a := newTestClient("alice")
	aPhone := newTestClient("alice")
	b := newTestClient("bob")
	outsider := newTestClient("carol")
	hub.Register(a)
	hub.Register(aPhone)
	hub.Register(b)
	hub.Register(outsider)
	hub.Join(a, "c1")
	hub.Join(aPhone, "c1")
	hub.Join(b, "c1")
	hub.Join(outsider, "c2")

	hub.Broadcast("c1", "new_message", map[string]string{"content": "hi"}, nil)

	assert.Equal(t, []string{"new_message"}, eventNames(t, a))
	assert.Equal(t, []string{"new_message"}, eventNames(t, aPhone), "sender's other connection receives the broadcast")
	assert.Equal(t, []string{"new_message"}, eventNames(t, b))
	assert.Empty(t, eventNames(t, outsider), "other rooms must not receive the event")
}

func TestBroadcastExcludesOneConnection(t *testing.T) {
	hub := NewHub()
	a := newTestClient("alice")
	b := newTestClient("bob")
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, "c1")
	hub.Join(b, "c1")

	hub.Broadcast("c1", "user_typing", nil, a)

	assert.Empty(t, eventNames(t, a))
	assert.Equal(t, []string{"user_typing"}, eventNames(t, b))
}

func TestSendToUserReachesAllConnections(t *testing.T) {
	hub := NewHub()
	a := newTestClient("alice")
	aPhone := newTestClient("alice")
	hub.Register(a)
	hub.Register(aPhone)

	assert.True(t, hub.SendToUser("alice", "message_sent", nil))
	assert.Equal(t, []string{"message_sent"}, eventNames(t, a))
	assert.Equal(t, []string{"message_sent"}, eventNames(t, aPhone))

	assert.False(t, hub.SendToUser("nobody", "message_sent", nil), "offline delivery is skipped, not an error")
}

func TestBroadcastAllReachesEveryConnection(t *testing.T) {
	hub := NewHub()
	a := newTestClient("alice")
	b := newTestClient("bob")
	hub.Register(a)
	hub.Register(b)
	hub.Join(a, "c1")

	hub.BroadcastAll("user_status_changed", nil)

	assert.Equal(t, []string{"user_status_changed"}, eventNames(t, a))
	assert.Equal(t, []string{"user_status_changed"}, eventNames(t, b), "presence is app-wide, not room-scoped")
}

func TestBroadcastSurvivesSlowMember(t *testing.T) {
	hub := NewHub()
	slow := &Client{UserID: "slow", send: make(chan []byte), closed: make(chan struct{})}
	healthy := newTestClient("bob")
	hub.Register(slow)
	hub.Register(healthy)
	hub.Join(slow, "c1")
	hub.Join(healthy, "c1")

	// The slow member has no buffer capacity; delivery to it fails but the
	// remaining member must still receive the event.
	hub.Broadcast("c1", "new_message", nil, nil)

	assert.Equal(t, []string{"new_message"}, eventNames(t, healthy))
}
