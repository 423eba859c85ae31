package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"realtime-chat-service/internal/auth"
	"realtime-chat-service/internal/models"
	"realtime-chat-service/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	args := m.Called(ctx, userIDs)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateOrGetPrivate(ctx context.Context, userID, friendID string) (models.Conversation, error) {
	args := m.Called(ctx, userID, friendID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateGroup(ctx context.Context, adminID, name, description string, participants []string) (models.Conversation, error) {
	args := m.Called(ctx, adminID, name, description, participants)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	args := m.Called(ctx, conversationID, messageID, at)
	return args.Error(0)
}

func (m *ConversationRepositoryMock) RemoveParticipant(ctx context.Context, conversationID, userID string) (int, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Int(0), args.Error(1)
}

func (m *ConversationRepositoryMock) Delete(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var created models.Message
	if val := args.Get(0); val != nil {
		created = val.(models.Message)
	}
	return created, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListForUser(ctx context.Context, conversationID, userID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, userID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) AppendReadReceipt(ctx context.Context, messageID, userID string, at time.Time) (bool, error) {
	args := m.Called(ctx, messageID, userID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) SetStatus(ctx context.Context, messageID, status string) error {
	args := m.Called(ctx, messageID, status)
	return args.Error(0)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID, content string, at time.Time) error {
	args := m.Called(ctx, messageID, content, at)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteForEveryone(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteForUser(ctx context.Context, messageID, userID string) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetReaction(ctx context.Context, messageID string, reaction models.Reaction) error {
	args := m.Called(ctx, messageID, reaction)
	return args.Error(0)
}

func (m *MessageRepositoryMock) RemoveReaction(ctx context.Context, messageID, userID string) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) DeleteByConversation(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type PresenceRepositoryMock struct {
	mock.Mock
}

func (m *PresenceRepositoryMock) SetPresence(ctx context.Context, userID string, isOnline bool, lastSeen time.Time) error {
	args := m.Called(ctx, userID, isOnline, lastSeen)
	return args.Error(0)
}

func (m *PresenceRepositoryMock) GetPresence(ctx context.Context, userID string) (models.Presence, error) {
	args := m.Called(ctx, userID)
	var record models.Presence
	if val := args.Get(0); val != nil {
		record = val.(models.Presence)
	}
	return record, args.Error(1)
}

type ResolverMock struct {
	mock.Mock
}

func (m *ResolverMock) Resolve(ctx context.Context, token string) (models.User, error) {
	args := m.Called(ctx, token)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.PresenceRepository = (*PresenceRepositoryMock)(nil)
var _ auth.IdentityResolver = (*ResolverMock)(nil)
