package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"realtime-chat-service/internal/models"
	"realtime-chat-service/internal/repositories"
)

// PresencePublisher reacts to registry transitions: it persists the
// online/lastSeen projection and broadcasts the status change to every
// connected client. Persistence is fire-and-forget relative to the socket
// lifecycle; a storage failure is logged and never blocks connect or
// disconnect.
type PresencePublisher struct {
	hub          *Hub
	presenceRepo repositories.PresenceRepository
	log          *zap.Logger
}

// NewPresencePublisher constructs a PresencePublisher.
func NewPresencePublisher(hub *Hub, presenceRepo repositories.PresenceRepository, log *zap.Logger) *PresencePublisher {
	return &PresencePublisher{hub: hub, presenceRepo: presenceRepo, log: log}
}

// UserConnected handles the user's first-connection transition.
func (p *PresencePublisher) UserConnected(ctx context.Context, userID string) {
	now := time.Now().UTC()
	if err := p.presenceRepo.SetPresence(ctx, userID, true, now); err != nil {
		p.log.Error("presence persist failed", zap.String("user_id", userID), zap.Bool("is_online", true), zap.Error(err))
	}
	p.hub.BroadcastAll(models.EventUserStatusChanged, models.Presence{
		UserID:   userID,
		IsOnline: true,
		LastSeen: now,
	})
}

// UserDisconnected handles the user's last-connection transition.
func (p *PresencePublisher) UserDisconnected(ctx context.Context, userID string) {
	now := time.Now().UTC()
	if err := p.presenceRepo.SetPresence(ctx, userID, false, now); err != nil {
		p.log.Error("presence persist failed", zap.String("user_id", userID), zap.Bool("is_online", false), zap.Error(err))
	}
	p.hub.BroadcastAll(models.EventUserStatusChanged, models.Presence{
		UserID:   userID,
		IsOnline: false,
		LastSeen: now,
	})
}
