package models

import (
	"strings"
	"time"
)

// Message content types.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageFile  = "file"
	MessageAudio = "audio"
	MessageVideo = "video"
)

// Coarse message statuses. The field is last-write-wins across participants;
// per-user read truth lives in ReadBy.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// DeletedPlaceholder replaces the content of a message deleted for everyone.
const DeletedPlaceholder = "This message was deleted"

// Attachment is opaque file metadata carried by a message.
type Attachment struct {
	URL      string `bson:"url" json:"url"`
	FileName string `bson:"file_name,omitempty" json:"file_name,omitempty"`
	MimeType string `bson:"mime_type,omitempty" json:"mime_type,omitempty"`
	Size     int64  `bson:"size,omitempty" json:"size,omitempty"`
}

// ReadReceipt records that one user observed the message.
type ReadReceipt struct {
	UserID string    `bson:"user_id" json:"user_id"`
	ReadAt time.Time `bson:"read_at" json:"read_at"`
}

// Reaction is a per-user emoji; at most one entry per user per message.
type Reaction struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Emoji     string    `bson:"emoji" json:"emoji"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Message is one persisted chat message.
type Message struct {
	ID             string        `bson:"_id" json:"id"`
	ConversationID string        `bson:"conversation_id" json:"conversation_id"`
	SenderID       string        `bson:"sender_id" json:"sender_id"`
	Content        string        `bson:"content" json:"content"`
	Type           string        `bson:"type" json:"type"`
	Status         string        `bson:"status" json:"status"`
	ReadBy         []ReadReceipt `bson:"read_by,omitempty" json:"read_by,omitempty"`
	ReplyTo        string        `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	Attachment     *Attachment   `bson:"attachment,omitempty" json:"attachment,omitempty"`
	Reactions      []Reaction    `bson:"reactions,omitempty" json:"reactions,omitempty"`
	IsDeleted      bool          `bson:"is_deleted" json:"is_deleted"`
	DeletedFor     []string      `bson:"deleted_for,omitempty" json:"-"`
	IsEdited       bool          `bson:"is_edited" json:"is_edited"`
	EditedAt       *time.Time    `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
}

// InferTypeFromMime maps an attachment mime type to a message type. Only
// consulted when the message carries no content and no explicit type.
func InferTypeFromMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MessageImage
	case strings.HasPrefix(mimeType, "video/"):
		return MessageVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return MessageAudio
	default:
		return MessageFile
	}
}
