package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-chat-service/internal/models"
	"realtime-chat-service/internal/repositories"
	"realtime-chat-service/internal/ws"
)

// ConversationHandler manages conversation endpoints. The hub is injected so
// REST mutations can notify live rooms without any ambient global state.
type ConversationHandler struct {
	convRepo repositories.ConversationRepository
	msgRepo  repositories.MessageRepository
	userRepo repositories.UserRepository
	hub      *ws.Hub
	log      *zap.Logger
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(
	convRepo repositories.ConversationRepository,
	msgRepo repositories.MessageRepository,
	userRepo repositories.UserRepository,
	hub *ws.Hub,
	log *zap.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
		hub:      hub,
		log:      log,
	}
}

// StartPrivate creates or returns the private conversation with another user.
func (h *ConversationHandler) StartPrivate(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req struct {
		FriendID string `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FriendID == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
		return
	}

	if _, err := h.userRepo.GetUser(c.Request.Context(), req.FriendID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	conv, err := h.convRepo.CreateOrGetPrivate(c.Request.Context(), user.ID, req.FriendID)
	if err != nil {
		h.log.Error("conversation create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	c.JSON(http.StatusOK, conv)
}

// CreateGroup creates a group conversation with the caller as admin.
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req struct {
		Name         string   `json:"name" binding:"required"`
		Description  string   `json:"description"`
		Participants []string `json:"participants" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participants := append([]string{user.ID}, req.Participants...)
	participants = dedupe(participants)
	if len(participants) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a group needs at least two participants"})
		return
	}

	conv, err := h.convRepo.CreateGroup(c.Request.Context(), user.ID, req.Name, req.Description, participants)
	if err != nil {
		h.log.Error("group create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	c.JSON(http.StatusCreated, conv)
}

// List returns the caller's conversations, most recent activity first.
func (h *ConversationHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	conversations, err := h.convRepo.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error("conversation list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// Leave removes the caller from a group conversation. When the last member
// leaves, the conversation and its messages are cascade-deleted.
func (h *ConversationHandler) Leave(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	conversationID := c.Param("conversation_id")

	conv, err := h.convRepo.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}
	if conv.Type != models.ConversationGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only group conversations can be left"})
		return
	}
	if !conv.HasParticipant(user.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	remaining, err := h.convRepo.RemoveParticipant(c.Request.Context(), conversationID, user.ID)
	if err != nil {
		h.log.Error("participant remove failed", zap.String("conversation_id", conversationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave conversation"})
		return
	}

	if remaining == 0 {
		if err := h.msgRepo.DeleteByConversation(c.Request.Context(), conversationID); err != nil {
			h.log.Error("message cascade delete failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
		if err := h.convRepo.Delete(c.Request.Context(), conversationID); err != nil {
			h.log.Error("conversation delete failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	} else {
		h.hub.Broadcast(conversationID, models.EventUserLeft, models.RoomMembershipPayload{
			ConversationID: conversationID,
			UserID:         user.ID,
		}, nil)
	}

	c.Status(http.StatusNoContent)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
