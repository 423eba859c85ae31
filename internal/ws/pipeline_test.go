package ws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"realtime-chat-service/internal/mocks"
	"realtime-chat-service/internal/models"
	"realtime-chat-service/internal/repositories"
)

type pipelineFixture struct {
	hub      *Hub
	convRepo *mocks.ConversationRepositoryMock
	msgRepo  *mocks.MessageRepositoryMock
	userRepo *mocks.UserRepositoryMock
	handler  *SocketHandler
}

func newPipelineFixture() *pipelineFixture {
	hub := NewHub()
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	log := zap.NewNop()
	presence := NewPresencePublisher(hub, new(mocks.PresenceRepositoryMock), log)
	handler := NewSocketHandler(hub, new(mocks.ResolverMock), presence, convRepo, msgRepo, userRepo, new(mocks.PublisherMock), log)

	return &pipelineFixture{
		hub:      hub,
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
		handler:  handler,
	}
}

// joinedClient registers a connection and places it in the room directly,
// bypassing the join handler, so tests can focus on one handler at a time.
func (f *pipelineFixture) joinedClient(userID, conversationID string) *Client {
	c := newTestClient(userID)
	f.hub.Register(c)
	f.hub.Join(c, conversationID)
	return c
}

func privateConv(id string, participants ...string) models.Conversation {
	return models.Conversation{
		ID:           id,
		Type:         models.ConversationPrivate,
		Participants: participants,
	}
}

func TestSendMessageBroadcastsAndAcks(t *testing.T) {
	f := newPipelineFixture()
	alice := f.joinedClient("alice", "c1")
	bob := f.joinedClient("bob", "c1")

	f.convRepo.On("GetConversation", mock.Anything, "c1").Return(privateConv("c1", "alice", "bob"), nil).Once()
	f.msgRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ConversationID == "c1" && m.SenderID == "alice" && m.Content == "hi" && m.Type == models.MessageText
	})).Return(models.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "alice",
		Content:        "hi",
		Type:           models.MessageText,
		Status:         models.StatusSent,
		CreatedAt:      nowUTC(),
	}, nil).Once()
	f.userRepo.On("GetUser", mock.Anything, "alice").Return(models.User{ID: "alice", Username: "Alice"}, nil).Once()
	f.convRepo.On("TouchLastMessage", mock.Anything, "c1", "m1", mock.Anything).Return(nil).Once()

	f.handler.handleSendMessage(context.Background(), alice, &SendMessage{ConversationID: "c1", Content: "hi"})

	bobFrames := drainEvents(t, bob)
	require.Len(t, bobFrames, 1)
	assert.Equal(t, models.EventNewMessage, bobFrames[0].Event)

	var enriched models.EnrichedMessage
	require.NoError(t, unmarshalData(bobFrames[0], &enriched))
	assert.Equal(t, "m1", enriched.ID)
	assert.Equal(t, "hi", enriched.Content)
	assert.Equal(t, "Alice", enriched.SenderName)

	// The sender gets the room broadcast and then a direct ack.
	assert.Equal(t, []string{models.EventNewMessage, models.EventMessageSent}, eventNames(t, alice))

	f.convRepo.AssertExpectations(t)
	f.msgRepo.AssertExpectations(t)
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	f := newPipelineFixture()
	alice := f.joinedClient("alice", "c1")
	bob := f.joinedClient("bob", "c1")

	f.convRepo.On("GetConversation", mock.Anything, "c1").Return(privateConv("c1", "bob", "carol"), nil).Once()

	f.handler.handleSendMessage(context.Background(), alice, &SendMessage{ConversationID: "c1", Content: "hi"})

	frames := drainEvents(t, alice)
	require.Len(t, frames, 1)
	assert.Equal(t, models.EventMessageError, frames[0].Event)
	assert.Empty(t, eventNames(t, bob), "rejections go to the sender only")

	f.msgRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	f := newPipelineFixture()
	alice := f.joinedClient("alice", "c1")

	f.handler.handleSendMessage(context.Background(), alice, &SendMessage{ConversationID: "c1", Content: "   "})

	frames := drainEvents(t, alice)
	require.Len(t, frames, 1)
	assert.Equal(t, models.EventMessageError, frames[0].Event)

	f.convRepo.AssertNotCalled(t, "GetConversation", mock.Anything, mock.Anything)
	f.msgRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestSendMessageUnknownConversation(t *testing.T) {
	f := newPipelineFixture()
	alice := f.joinedClient("alice", "c1")

	f.convRepo.On("GetConversation", mock.Anything, "nope").Return(nil, repositories.ErrConversationNotFound).Once()

	f.handler.handleSendMessage(context.Background(), alice, &SendMessage{ConversationID: "nope", Content: "hi"})

	frames := drainEvents(t, alice)
	require.Len(t, frames, 1)
	assert.Equal(t, models.EventMessageError, frames[0].Event)

	var payload models.MessageErrorPayload
	require.NoError(t, unmarshalData(frames[0], &payload))
	assert.Equal(t, "conversation not found", payload.Reason)
}

func TestSendMessageInfersTypeFromAttachment(t *testing.T) {
	f := newPipelineFixture()
	alice := f.joinedClient("alice", "c1")

	attachment := &models.Attachment{URL: "https://cdn/x.png", MimeType: "image/png"}

	f.convRepo.On("GetConversation", mock.Anything, "c1").Return(privateConv("c1", "alice", "bob"), nil).Once()
	f.msgRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.Type == models.MessageImage && m.Attachment != nil
	})).Return(models.Message{ID: "m2", ConversationID: "c1", SenderID: "alice", Type: models.MessageImage, Status: models.StatusSent, Attachment: attachment, CreatedAt: nowUTC()}, nil).Once()
	f.userRepo.On("GetUser", mock.Anything, "alice").Return(models.User{ID: "alice", Username: "Alice"}, nil).Once()
	f.convRepo.On("TouchLastMessage", mock.Anything, "c1", "m2", mock.Anything).Return(nil).Once()

	f.handler.handleSendMessage(context.Background(), alice, &SendMessage{ConversationID: "c1", Attachment: attachment})

	f.msgRepo.AssertExpectations(t)
}

func TestJoinRejectsNonParticipant(t *testing.T) {
	f := newPipelineFixture()
	alice := newTestClient("alice")
	f.hub.Register(alice)

	f.convRepo.On("GetConversation", mock.Anything, "c1").Return(privateConv("c1", "bob", "carol"), nil).Once()

	f.handler.handleJoin(context.Background(), alice, &JoinConversation{ConversationID: "c1"})

	frames := drainEvents(t, alice)
	require.Len(t, frames, 1)
	assert.Equal(t, models.EventMessageError, frames[0].Event)
	assert.False(t, f.hub.InRoom(alice, "c1"))
}

func TestJoinBroadcastsToExistingMembers(t *testing.T) {
	f := newPipelineFixture()
	bob := f.joinedClient("bob", "c1")
	alice := newTestClient("alice")
	f.hub.Register(alice)

	f.convRepo.On("GetConversation", mock.Anything, "c1").Return(privateConv("c1", "alice", "bob"), nil).Once()

	f.handler.handleJoin(context.Background(), alice, &JoinConversation{ConversationID: "c1"})

	assert.True(t, f.hub.InRoom(alice, "c1"))
	assert.Equal(t, []string{models.EventUserJoined}, eventNames(t, bob))
	assert.Empty(t, eventNames(t, alice), "the joining connection is not echoed its own join")
}

func TestJoinAllowedWhenLookupDegrades(t *testing.T) {
	f := newPipelineFixture()
	alice := newTestClient("alice")
	f.hub.Register(alice)

	f.convRepo.On("GetConversation", mock.Anything, "c1").Return(nil, assert.AnError).Once()

	f.handler.handleJoin(context.Background(), alice, &JoinConversation{ConversationID: "c1"})

	assert.True(t, f.hub.InRoom(alice, "c1"), "a lookup outage must not lock users out of their rooms")
	assert.Empty(t, eventNames(t, alice))
}

func TestTypingExcludesSender(t *testing.T) {
	f := newPipelineFixture()
	alice := f.joinedClient("alice", "c1")
	bob := f.joinedClient("bob", "c1")

	f.handler.handleTyping(alice, "c1", "", true)
	f.handler.handleTyping(alice, "c1", "", false)

	assert.Empty(t, eventNames(t, alice))
	assert.Equal(t, []string{models.EventUserTyping, models.EventUserStoppedTyping}, eventNames(t, bob))
}

func TestTypingFallsBackToClientUsername(t *testing.T) {
	f := newPipelineFixture()
	alice := f.joinedClient("alice", "c1")
	bob := f.joinedClient("bob", "c1")

	f.handler.handleTyping(alice, "c1", "", true)

	frames := drainEvents(t, bob)
	require.Len(t, frames, 1)

	var payload models.TypingPayload
	require.NoError(t, unmarshalData(frames[0], &payload))
	assert.Equal(t, "alice", payload.UserID)
	assert.Equal(t, alice.Username, payload.UserName)
}

func TestMarkAsReadNudgesRoomWithoutPersistence(t *testing.T) {
	f := newPipelineFixture()
	alice := f.joinedClient("alice", "c1")
	bob := f.joinedClient("bob", "c1")

	f.handler.handleMarkAsRead(alice, &MarkAsRead{ConversationID: "c1", MessageID: "m1"})

	assert.Empty(t, eventNames(t, alice))
	frames := drainEvents(t, bob)
	require.Len(t, frames, 1)
	assert.Equal(t, models.EventMessageReadNudge, frames[0].Event)

	var payload models.ReadNudgePayload
	require.NoError(t, unmarshalData(frames[0], &payload))
	assert.Equal(t, "m1", payload.MessageID)
	assert.Equal(t, "alice", payload.UserID)

	f.msgRepo.AssertNotCalled(t, "AppendReadReceipt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.msgRepo.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageSenderOnly(t *testing.T) {
	f := newPipelineFixture()
	alice := f.joinedClient("alice", "c1")

	f.msgRepo.On("GetMessage", mock.Anything, "m1").Return(models.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "bob",
		Content:        "original",
	}, nil).Once()

	f.handler.handleEditMessage(context.Background(), alice, &EditMessage{MessageID: "m1", Content: "hijacked"})

	frames := drainEvents(t, alice)
	require.Len(t, frames, 1)
	assert.Equal(t, models.EventMessageError, frames[0].Event)

	f.msgRepo.AssertNotCalled(t, "EditMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageBroadcastsToRoom(t *testing.T) {
	f := newPipelineFixture()
	alice := f.joinedClient("alice", "c1")
	bob := f.joinedClient("bob", "c1")

	f.msgRepo.On("GetMessage", mock.Anything, "m1").Return(models.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "alice",
		Content:        "original",
	}, nil).Once()
	f.msgRepo.On("EditMessage", mock.Anything, "m1", "updated", mock.Anything).Return(nil).Once()

	f.handler.handleEditMessage(context.Background(), alice, &EditMessage{MessageID: "m1", Content: "updated"})

	// Edits reach every room member, the editor's connection included.
	for _, c := range []*Client{alice, bob} {
		frames := drainEvents(t, c)
		require.Len(t, frames, 1)
		assert.Equal(t, models.EventMessageEdited, frames[0].Event)

		var payload models.EditPayload
		require.NoError(t, unmarshalData(frames[0], &payload))
		assert.Equal(t, "updated", payload.Content)
		assert.False(t, payload.EditedAt.IsZero())
	}

	f.msgRepo.AssertExpectations(t)
}

func TestLeaveNotifiesRemainingMembers(t *testing.T) {
	f := newPipelineFixture()
	alice := f.joinedClient("alice", "c1")
	bob := f.joinedClient("bob", "c1")

	f.handler.handleLeave(alice, &LeaveConversation{ConversationID: "c1"})

	assert.False(t, f.hub.InRoom(alice, "c1"))
	assert.Equal(t, []string{models.EventUserLeft}, eventNames(t, bob))
	assert.Empty(t, eventNames(t, alice))
}
