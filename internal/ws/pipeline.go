package ws

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"realtime-chat-service/internal/models"
	"realtime-chat-service/internal/repositories"
)

// handleJoin subscribes the connection to a conversation room. Membership in
// the persisted participant set is verified when the lookup succeeds; a
// lookup failure degrades to allowing the join, since the send path enforces
// authorization on every message anyway.
func (h *SocketHandler) handleJoin(ctx context.Context, client *Client, e *JoinConversation) {
	if e.ConversationID == "" {
		client.Send(models.EventMessageError, models.MessageErrorPayload{
			Event:  e.EventName(),
			Reason: "conversation_id is required",
		})
		return
	}

	conv, err := h.convRepo.GetConversation(ctx, e.ConversationID)
	if err == nil && !conv.HasParticipant(client.UserID) {
		client.Send(models.EventMessageError, models.MessageErrorPayload{
			Event:  e.EventName(),
			Reason: "not a participant of this conversation",
		})
		return
	}
	if err != nil && !errors.Is(err, repositories.ErrConversationNotFound) {
		h.log.Warn("join membership check degraded", zap.String("conversation_id", e.ConversationID), zap.Error(err))
	}

	h.hub.Join(client, e.ConversationID)
	h.hub.Broadcast(e.ConversationID, models.EventUserJoined, models.RoomMembershipPayload{
		ConversationID: e.ConversationID,
		UserID:         client.UserID,
	}, client)
}

func (h *SocketHandler) handleLeave(client *Client, e *LeaveConversation) {
	h.hub.Leave(client, e.ConversationID)
	h.hub.Broadcast(e.ConversationID, models.EventUserLeft, models.RoomMembershipPayload{
		ConversationID: e.ConversationID,
		UserID:         client.UserID,
	}, client)
}

// handleSendMessage runs the message pipeline:
// validate -> authorize -> persist -> enrich -> touch conversation ->
// broadcast -> acknowledge. Rejections and failures go to the sender only.
func (h *SocketHandler) handleSendMessage(ctx context.Context, client *Client, e *SendMessage) {
	reject := func(reason string) {
		client.Send(models.EventMessageError, models.MessageErrorPayload{
			Event:  e.EventName(),
			Reason: reason,
		})
	}

	if strings.TrimSpace(e.Content) == "" && e.Attachment == nil {
		reject("message content or attachment is required")
		return
	}

	conv, err := h.convRepo.GetConversation(ctx, e.ConversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			reject("conversation not found")
		} else {
			h.log.Error("conversation lookup failed", zap.String("conversation_id", e.ConversationID), zap.Error(err))
			reject("failed to send message")
		}
		return
	}
	if !conv.HasParticipant(client.UserID) {
		reject("not a participant of this conversation")
		return
	}

	msgType := e.Type
	if msgType == "" {
		msgType = models.MessageText
	}
	// Type inference from the attachment only fires for blank content; an
	// explicit type with content is never overridden.
	if strings.TrimSpace(e.Content) == "" && e.Attachment != nil {
		msgType = models.InferTypeFromMime(e.Attachment.MimeType)
	}

	msg, err := h.msgRepo.CreateMessage(ctx, models.Message{
		ConversationID: conv.ID,
		SenderID:       client.UserID,
		Content:        e.Content,
		Type:           msgType,
		Status:         models.StatusSent,
		ReplyTo:        e.ReplyTo,
		Attachment:     e.Attachment,
	})
	if err != nil {
		h.log.Error("message persist failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		reject("failed to send message")
		return
	}

	enriched := h.enrich(ctx, msg)

	// Last write wins on the pointer; ordering comes from message timestamps.
	if err := h.convRepo.TouchLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		h.log.Warn("conversation touch failed", zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	// The room includes the sender's own other connections; the direct ack
	// below is separate and only for the originating connection.
	h.hub.Broadcast(conv.ID, models.EventNewMessage, enriched, nil)
	client.Send(models.EventMessageSent, models.MessageAck{MessageID: msg.ID, Status: msg.Status})
}

// enrich attaches sender display fields and, for replies, a preview of the
// referenced message. Missing users or dangling replyTo references are
// omitted silently; enrichment never fails a send.
func (h *SocketHandler) enrich(ctx context.Context, msg models.Message) models.EnrichedMessage {
	enriched := models.EnrichedMessage{Message: msg}

	if sender, err := h.userRepo.GetUser(ctx, msg.SenderID); err == nil {
		enriched.SenderName = sender.Username
		enriched.SenderAvatar = sender.Avatar
	}

	if msg.ReplyTo != "" {
		if ref, err := h.msgRepo.GetMessage(ctx, msg.ReplyTo); err == nil {
			preview := &models.ReplyPreview{
				MessageID: ref.ID,
				Content:   ref.Content,
				SenderID:  ref.SenderID,
			}
			if refSender, err := h.userRepo.GetUser(ctx, ref.SenderID); err == nil {
				preview.SenderName = refSender.Username
			}
			enriched.ReplyPreview = preview
		}
	}
	return enriched
}

// handleTyping relays typing signals to the rest of the room. Stateless: no
// persistence, no deduplication; consumers expire indicators client-side.
func (h *SocketHandler) handleTyping(client *Client, conversationID, userName string, start bool) {
	if conversationID == "" {
		return
	}
	if userName == "" {
		userName = client.Username
	}

	event := models.EventUserStoppedTyping
	if start {
		event = models.EventUserTyping
	}
	h.hub.Broadcast(conversationID, event, models.TypingPayload{
		ConversationID: conversationID,
		UserID:         client.UserID,
		UserName:       userName,
	}, client)
}

// handleMarkAsRead forwards a low-latency read nudge to the room. The
// authoritative read state is written through the REST status-update path.
func (h *SocketHandler) handleMarkAsRead(client *Client, e *MarkAsRead) {
	if e.ConversationID == "" || e.MessageID == "" {
		return
	}
	h.hub.Broadcast(e.ConversationID, models.EventMessageReadNudge, models.ReadNudgePayload{
		ConversationID: e.ConversationID,
		MessageID:      e.MessageID,
		UserID:         client.UserID,
	}, client)
}

// handleEditMessage lets the original sender replace a message's content and
// re-broadcasts the updated view. No edit history is retained.
func (h *SocketHandler) handleEditMessage(ctx context.Context, client *Client, e *EditMessage) {
	reject := func(reason string) {
		client.Send(models.EventMessageError, models.MessageErrorPayload{
			Event:  e.EventName(),
			Reason: reason,
		})
	}

	if e.MessageID == "" || strings.TrimSpace(e.Content) == "" {
		reject("message_id and content are required")
		return
	}

	msg, err := h.msgRepo.GetMessage(ctx, e.MessageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			reject("message not found")
		} else {
			h.log.Error("message lookup failed", zap.String("message_id", e.MessageID), zap.Error(err))
			reject("failed to edit message")
		}
		return
	}
	if msg.SenderID != client.UserID {
		reject("only the sender can edit a message")
		return
	}

	editedAt := nowUTC()
	if err := h.msgRepo.EditMessage(ctx, msg.ID, e.Content, editedAt); err != nil {
		h.log.Error("message edit failed", zap.String("message_id", msg.ID), zap.Error(err))
		reject("failed to edit message")
		return
	}

	h.hub.Broadcast(msg.ConversationID, models.EventMessageEdited, models.EditPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Content:        e.Content,
		EditedAt:       editedAt,
	}, nil)
}
