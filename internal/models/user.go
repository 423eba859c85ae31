package models

import "time"

// User is a chat account. PasswordHash never leaves the repository layer;
// lookups project it away.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Username     string    `bson:"username" json:"username"`
	Email        string    `bson:"email" json:"email"`
	Avatar       string    `bson:"avatar,omitempty" json:"avatar,omitempty"`
	PasswordHash string    `bson:"password_hash,omitempty" json:"-"`
	IsOnline     bool      `bson:"is_online" json:"is_online"`
	LastSeen     time.Time `bson:"last_seen" json:"last_seen"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// Presence is the derived online/offline projection broadcast to clients.
type Presence struct {
	UserID   string    `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}
