package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"realtime-chat-service/internal/models"
)

const presenceCacheTTL = 24 * time.Hour

// PresenceRepository persists online/lastSeen projections of registry state.
type PresenceRepository interface {
	SetPresence(ctx context.Context, userID string, isOnline bool, lastSeen time.Time) error
	GetPresence(ctx context.Context, userID string) (models.Presence, error)
}

// PresenceRepo writes presence to the users collection and keeps a
// write-through cache in Redis for cheap reads. The cache is best-effort;
// Mongo remains authoritative.
type PresenceRepo struct {
	col *mongo.Collection
	rdb *redis.Client
}

// NewPresenceRepo constructs a PresenceRepo. rdb may be nil to disable caching.
func NewPresenceRepo(db *mongo.Database, rdb *redis.Client) *PresenceRepo {
	return &PresenceRepo{col: db.Collection("users"), rdb: rdb}
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SetPresence updates the persisted projection for one connect/disconnect
// transition.
func (r *PresenceRepo) SetPresence(ctx context.Context, userID string, isOnline bool, lastSeen time.Time) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"is_online": isOnline, "last_seen": lastSeen}},
	)
	if err != nil {
		return err
	}

	if r.rdb != nil {
		record := models.Presence{UserID: userID, IsOnline: isOnline, LastSeen: lastSeen}
		if body, marshalErr := json.Marshal(record); marshalErr == nil {
			// Cache write failures are ignored; Mongo already holds the truth.
			r.rdb.Set(ctx, presenceKey(userID), body, presenceCacheTTL)
		}
	}
	return nil
}

// GetPresence reads the cached record, falling back to the users collection.
func (r *PresenceRepo) GetPresence(ctx context.Context, userID string) (models.Presence, error) {
	if r.rdb != nil {
		if body, err := r.rdb.Get(ctx, presenceKey(userID)).Bytes(); err == nil {
			var record models.Presence
			if json.Unmarshal(body, &record) == nil {
				return record, nil
			}
		}
	}

	var user models.User
	err := r.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Presence{}, ErrUserNotFound
	}
	if err != nil {
		return models.Presence{}, err
	}
	return models.Presence{UserID: user.ID, IsOnline: user.IsOnline, LastSeen: user.LastSeen}, nil
}
