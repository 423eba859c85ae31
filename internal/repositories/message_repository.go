package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"realtime-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages. Mutations are
// atomic single-document updates so concurrent status/receipt/reaction calls
// never lose writes to read-modify-write races.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	ListForUser(ctx context.Context, conversationID, userID string) ([]models.Message, error)
	AppendReadReceipt(ctx context.Context, messageID, userID string, at time.Time) (bool, error)
	SetStatus(ctx context.Context, messageID, status string) error
	EditMessage(ctx context.Context, messageID, content string, at time.Time) error
	DeleteForEveryone(ctx context.Context, messageID string) error
	DeleteForUser(ctx context.Context, messageID, userID string) error
	SetReaction(ctx context.Context, messageID string, reaction models.Reaction) error
	RemoveReaction(ctx context.Context, messageID, userID string) (bool, error)
	DeleteByConversation(ctx context.Context, conversationID string) error
}

// MessageRepo is a MongoDB implementation of MessageRepository.
type MessageRepo struct {
	col *mongo.Collection
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{col: db.Collection("messages")}
}

// CreateMessage assigns an id and creation timestamp and stores the message.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.ID = primitive.NewObjectID().Hex()
	msg.CreatedAt = time.Now().UTC()
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
	if _, err := r.col.InsertOne(ctx, msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage retrieves a single message. Tombstoned messages still resolve.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.col.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListForUser returns a conversation's messages in creation order, excluding
// those the user deleted for themselves.
func (r *MessageRepo) ListForUser(ctx context.Context, conversationID, userID string) ([]models.Message, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"deleted_for":     bson.M{"$ne": userID},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// AppendReadReceipt adds a (user, timestamp) receipt only when the user has
// none yet. Returns whether a receipt was added.
func (r *MessageRepo) AppendReadReceipt(ctx context.Context, messageID, userID string, at time.Time) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": messageID, "read_by.user_id": bson.M{"$ne": userID}},
		bson.M{"$push": bson.M{"read_by": models.ReadReceipt{UserID: userID, ReadAt: at}}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// SetStatus overwrites the coarse message status (last write wins).
func (r *MessageRepo) SetStatus(ctx context.Context, messageID, status string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// EditMessage replaces the content and flags the message edited.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID, content string, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"content": content, "is_edited": true, "edited_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteForEveryone tombstones the message; the record is retained so that
// replyTo references keep resolving.
func (r *MessageRepo) DeleteForEveryone(ctx context.Context, messageID string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"is_deleted": true, "content": models.DeletedPlaceholder}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteForUser hides the message from one user only.
func (r *MessageRepo) DeleteForUser(ctx context.Context, messageID, userID string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$addToSet": bson.M{"deleted_for": userID}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// SetReaction stores the user's reaction, replacing any previous one. Both
// steps are guarded: the positional $set only matches a document that already
// holds an entry for the user, the $push only matches one that holds none, so
// concurrent calls cannot leave two entries for the same user.
func (r *MessageRepo) SetReaction(ctx context.Context, messageID string, reaction models.Reaction) error {
	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.col.UpdateOne(ctx,
			bson.M{"_id": messageID, "reactions.user_id": reaction.UserID},
			bson.M{"$set": bson.M{
				"reactions.$.emoji":      reaction.Emoji,
				"reactions.$.created_at": reaction.CreatedAt,
			}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount > 0 {
			return nil
		}

		res, err = r.col.UpdateOne(ctx,
			bson.M{"_id": messageID, "reactions.user_id": bson.M{"$ne": reaction.UserID}},
			bson.M{"$push": bson.M{"reactions": reaction}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount > 0 {
			return nil
		}
		// Both guards missing can also mean another connection pushed the
		// user's entry between the two updates; the retry resolves that
		// through the positional $set.
	}
	return ErrMessageNotFound
}

// RemoveReaction drops the user's reaction entry. Returns whether the
// reaction set actually changed.
func (r *MessageRepo) RemoveReaction(ctx context.Context, messageID, userID string) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$pull": bson.M{"reactions": bson.M{"user_id": userID}}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, ErrMessageNotFound
	}
	return res.ModifiedCount > 0, nil
}

// DeleteByConversation removes every message of a conversation. Only used by
// the cascade when a group's last member leaves.
func (r *MessageRepo) DeleteByConversation(ctx context.Context, conversationID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	return err
}
