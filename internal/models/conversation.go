package models

import (
	"sort"
	"strings"
	"time"
)

// Conversation types.
const (
	ConversationPrivate = "private"
	ConversationGroup   = "group"
)

// Conversation is a private pair or a named group.
type Conversation struct {
	ID           string    `bson:"_id" json:"id"`
	Type         string    `bson:"type" json:"type"`
	Participants []string  `bson:"participants" json:"participants"`
	PairKey      string    `bson:"pair_key,omitempty" json:"-"`
	Name         string    `bson:"name,omitempty" json:"name,omitempty"`
	Description  string    `bson:"description,omitempty" json:"description,omitempty"`
	Avatar       string    `bson:"avatar,omitempty" json:"avatar,omitempty"`
	AdminID      string    `bson:"admin_id,omitempty" json:"admin_id,omitempty"`
	LastMessage  string    `bson:"last_message,omitempty" json:"last_message,omitempty"`
	LastActivity time.Time `bson:"last_activity" json:"last_activity"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// PairKeyFor builds the canonical key for a private conversation so that at
// most one private conversation exists per unordered user pair.
func PairKeyFor(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}
