package models

import "time"

// Server -> client event names.
const (
	EventNewMessage             = "new_message"
	EventMessageSent            = "message_sent"
	EventMessageError           = "message_error"
	EventMessageStatusUpdated   = "message_status_updated"
	EventMessageEdited          = "message_edited"
	EventMessageDeleted         = "message_deleted"
	EventMessageReactionUpdated = "message_reaction_updated"
	EventUserTyping             = "user_typing"
	EventUserStoppedTyping      = "user_stopped_typing"
	EventUserStatusChanged      = "user_status_changed"
	EventUserJoined             = "user_joined_conversation"
	EventUserLeft               = "user_left_conversation"
	EventMessageReadNudge       = "message_read_nudge"
	EventPongHealth             = "pong_health"
)

// EnrichedMessage is the broadcast view of a message: the persisted record
// plus sender display fields and an optional reply preview.
type EnrichedMessage struct {
	Message
	SenderName   string        `json:"sender_name,omitempty"`
	SenderAvatar string        `json:"sender_avatar,omitempty"`
	ReplyPreview *ReplyPreview `json:"reply_preview,omitempty"`
}

// ReplyPreview summarizes the message a reply points at. A dangling
// reference simply produces no preview.
type ReplyPreview struct {
	MessageID  string `json:"message_id"`
	Content    string `json:"content"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
}

// MessageAck confirms a send to the originating connection only.
type MessageAck struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// MessageErrorPayload reports a failed socket operation to the requester.
type MessageErrorPayload struct {
	Event  string `json:"event,omitempty"`
	Reason string `json:"reason"`
}

// StatusUpdatePayload notifies a room about a delivered/read transition.
type StatusUpdatePayload struct {
	MessageID      string        `json:"message_id"`
	ConversationID string        `json:"conversation_id"`
	Status         string        `json:"status"`
	ReadBy         []ReadReceipt `json:"read_by,omitempty"`
}

// EditPayload notifies a room about an edited message.
type EditPayload struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	EditedAt       time.Time `json:"edited_at"`
}

// DeletePayload notifies a room that a message became a tombstone.
type DeletePayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// ReactionPayload carries the full current reaction list of a message.
type ReactionPayload struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	Reactions      []Reaction `json:"reactions"`
}

// TypingPayload announces typing state to the rest of a room.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name,omitempty"`
}

// ReadNudgePayload is the ephemeral, persistence-free read signal.
type ReadNudgePayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	UserID         string `json:"user_id"`
}

// RoomMembershipPayload announces a join or leave to a room.
type RoomMembershipPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// PongPayload answers a ping_health probe.
type PongPayload struct {
	ServerTime time.Time `json:"server_time"`
}
