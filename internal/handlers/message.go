package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"realtime-chat-service/internal/models"
	"realtime-chat-service/internal/repositories"
	"realtime-chat-service/internal/ws"
)

// MessageHandler manages message endpoints: history, the authoritative
// status-update path, edit, the two delete flavors and reactions. Broadcasts
// go through the injected hub.
type MessageHandler struct {
	convRepo repositories.ConversationRepository
	msgRepo  repositories.MessageRepository
	userRepo repositories.UserRepository
	hub      *ws.Hub
	log      *zap.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(
	convRepo repositories.ConversationRepository,
	msgRepo repositories.MessageRepository,
	userRepo repositories.UserRepository,
	hub *ws.Hub,
	log *zap.Logger,
) *MessageHandler {
	return &MessageHandler{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
		hub:      hub,
		log:      log,
	}
}

// List returns a conversation's messages for the caller, excluding the ones
// deleted for them, with sender display names attached.
func (h *MessageHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	conversationID := c.Param("conversation_id")

	member, err := h.convRepo.IsParticipant(c.Request.Context(), conversationID, user.ID)
	if err != nil {
		h.log.Error("membership check failed", zap.String("conversation_id", conversationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	msgs, err := h.msgRepo.ListForUser(c.Request.Context(), conversationID, user.ID)
	if err != nil {
		h.log.Error("message list failed", zap.String("conversation_id", conversationID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	senderIDs := make([]string, 0, len(msgs))
	seen := map[string]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	usernameByID := map[string]string{}
	if users, err := h.userRepo.GetUsers(c.Request.Context(), senderIDs); err == nil {
		for _, u := range users {
			usernameByID[u.ID] = u.Username
		}
	}

	type messageResponse struct {
		models.Message
		SenderName string `json:"sender_name,omitempty"`
	}
	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{Message: m, SenderName: usernameByID[m.SenderID]})
	}

	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// UpdateStatus is the authoritative delivered/read transition. Read receipts
// are appended idempotently; the coarse status field is last-write-wins.
func (h *MessageHandler) UpdateStatus(c *gin.Context) {
	user, msg, ok := h.authorizeMessageAccess(c)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != models.StatusDelivered && req.Status != models.StatusRead {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be delivered or read"})
		return
	}

	var readBy []models.ReadReceipt
	if req.Status == models.StatusRead {
		if _, err := h.msgRepo.AppendReadReceipt(c.Request.Context(), msg.ID, user.ID, time.Now().UTC()); err != nil {
			h.log.Error("read receipt append failed", zap.String("message_id", msg.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update status"})
			return
		}
	}
	if err := h.msgRepo.SetStatus(c.Request.Context(), msg.ID, req.Status); err != nil {
		h.log.Error("status set failed", zap.String("message_id", msg.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update status"})
		return
	}

	if updated, err := h.msgRepo.GetMessage(c.Request.Context(), msg.ID); err == nil {
		readBy = updated.ReadBy
	}

	h.hub.Broadcast(msg.ConversationID, models.EventMessageStatusUpdated, models.StatusUpdatePayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Status:         req.Status,
		ReadBy:         readBy,
	}, nil)

	c.Status(http.StatusNoContent)
}

// Edit replaces a message's content; sender only.
func (h *MessageHandler) Edit(c *gin.Context) {
	user, msg, ok := h.authorizeMessageAccess(c)
	if !ok {
		return
	}
	if msg.SenderID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can edit a message"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	editedAt := time.Now().UTC()
	if err := h.msgRepo.EditMessage(c.Request.Context(), msg.ID, req.Content, editedAt); err != nil {
		h.log.Error("message edit failed", zap.String("message_id", msg.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not edit message"})
		return
	}

	h.hub.Broadcast(msg.ConversationID, models.EventMessageEdited, models.EditPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Content:        req.Content,
		EditedAt:       editedAt,
	}, nil)

	c.Status(http.StatusNoContent)
}

// DeleteForMe hides the message from the caller only; no broadcast.
func (h *MessageHandler) DeleteForMe(c *gin.Context) {
	user, msg, ok := h.authorizeMessageAccess(c)
	if !ok {
		return
	}

	if err := h.msgRepo.DeleteForUser(c.Request.Context(), msg.ID, user.ID); err != nil {
		h.log.Error("delete for me failed", zap.String("message_id", msg.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteForAll tombstones the message for everyone; sender only. The record
// is retained so replyTo references keep resolving.
func (h *MessageHandler) DeleteForAll(c *gin.Context) {
	user, msg, ok := h.authorizeMessageAccess(c)
	if !ok {
		return
	}
	if msg.SenderID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete for everyone"})
		return
	}

	if err := h.msgRepo.DeleteForEveryone(c.Request.Context(), msg.ID); err != nil {
		h.log.Error("delete for all failed", zap.String("message_id", msg.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		return
	}

	h.hub.Broadcast(msg.ConversationID, models.EventMessageDeleted, models.DeletePayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Content:        models.DeletedPlaceholder,
	}, nil)

	c.Status(http.StatusNoContent)
}

// AddReaction sets the caller's reaction, replacing any previous one, and
// broadcasts the full current reaction list.
func (h *MessageHandler) AddReaction(c *gin.Context) {
	user, msg, ok := h.authorizeMessageAccess(c)
	if !ok {
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reaction := models.Reaction{UserID: user.ID, Emoji: req.Emoji, CreatedAt: time.Now().UTC()}
	if err := h.msgRepo.SetReaction(c.Request.Context(), msg.ID, reaction); err != nil {
		h.log.Error("reaction set failed", zap.String("message_id", msg.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add reaction"})
		return
	}

	h.broadcastReactions(c, msg)
	c.Status(http.StatusNoContent)
}

// RemoveReaction drops the caller's reaction; broadcasts only when the set
// actually changed.
func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	user, msg, ok := h.authorizeMessageAccess(c)
	if !ok {
		return
	}

	changed, err := h.msgRepo.RemoveReaction(c.Request.Context(), msg.ID, user.ID)
	if err != nil {
		h.log.Error("reaction remove failed", zap.String("message_id", msg.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove reaction"})
		return
	}

	if changed {
		h.broadcastReactions(c, msg)
	}
	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) broadcastReactions(c *gin.Context, msg models.Message) {
	updated, err := h.msgRepo.GetMessage(c.Request.Context(), msg.ID)
	if err != nil {
		h.log.Warn("reaction reload failed", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	reactions := updated.Reactions
	if reactions == nil {
		reactions = []models.Reaction{}
	}
	h.hub.Broadcast(msg.ConversationID, models.EventMessageReactionUpdated, models.ReactionPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Reactions:      reactions,
	}, nil)
}

// authorizeMessageAccess loads the message named in the route and verifies
// the caller participates in its owning conversation, re-derived from the
// message's conversation id on every call.
func (h *MessageHandler) authorizeMessageAccess(c *gin.Context) (models.User, models.Message, bool) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return models.User{}, models.Message{}, false
	}

	messageID := c.Param("message_id")
	msg, err := h.msgRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrMessageNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "message not found"})
		return models.User{}, models.Message{}, false
	}

	if conversationID := c.Param("conversation_id"); conversationID != "" && msg.ConversationID != conversationID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message does not belong to conversation"})
		return models.User{}, models.Message{}, false
	}

	conv, err := h.convRepo.GetConversation(c.Request.Context(), msg.ConversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return models.User{}, models.Message{}, false
	}
	if !conv.HasParticipant(user.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return models.User{}, models.Message{}, false
	}

	return user, msg, true
}
