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

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	CreateOrGetPrivate(ctx context.Context, userID, friendID string) (models.Conversation, error)
	CreateGroup(ctx context.Context, adminID, name, description string, participants []string) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error
	RemoveParticipant(ctx context.Context, conversationID, userID string) (int, error)
	Delete(ctx context.Context, conversationID string) error
}

// ConversationRepo is a MongoDB implementation of ConversationRepository.
type ConversationRepo struct {
	col *mongo.Collection
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *mongo.Database) *ConversationRepo {
	return &ConversationRepo{col: db.Collection("conversations")}
}

// CreateOrGetPrivate creates the private conversation for an unordered user
// pair, or returns the existing one. The upsert on the canonical pair key
// plus the unique index make concurrent creation race-free.
func (r *ConversationRepo) CreateOrGetPrivate(ctx context.Context, userID, friendID string) (models.Conversation, error) {
	if userID == friendID {
		return models.Conversation{}, errors.New("cannot create conversation with self")
	}

	now := time.Now().UTC()
	pairKey := models.PairKeyFor(userID, friendID)

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var conv models.Conversation
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"type": models.ConversationPrivate, "pair_key": pairKey},
		bson.M{"$setOnInsert": bson.M{
			"_id":           primitive.NewObjectID().Hex(),
			"type":          models.ConversationPrivate,
			"pair_key":      pairKey,
			"participants":  []string{userID, friendID},
			"last_activity": now,
			"created_at":    now,
		}},
		opts,
	).Decode(&conv)
	if err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// CreateGroup creates a group conversation with the creator as admin.
func (r *ConversationRepo) CreateGroup(ctx context.Context, adminID, name, description string, participants []string) (models.Conversation, error) {
	now := time.Now().UTC()
	conv := models.Conversation{
		ID:           primitive.NewObjectID().Hex(),
		Type:         models.ConversationGroup,
		Participants: participants,
		Name:         name,
		Description:  description,
		AdminID:      adminID,
		LastActivity: now,
		CreatedAt:    now,
	}
	if _, err := r.col.InsertOne(ctx, conv); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.col.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks membership without loading the whole document.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	count, err := r.col.CountDocuments(ctx, bson.M{"_id": conversationID, "participants": userID})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListForUser returns the user's conversations, most recent activity first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var conversations []models.Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// TouchLastMessage moves the lastMessage pointer and activity timestamp.
// Last write wins; ordering is derived from message timestamps, not this.
func (r *ConversationRepo) TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"last_message": messageID, "last_activity": at}},
	)
	return err
}

// RemoveParticipant pulls the user out of the participant set and returns
// how many participants remain.
func (r *ConversationRepo) RemoveParticipant(ctx context.Context, conversationID, userID string) (int, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var conv models.Conversation
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$pull": bson.M{"participants": userID}},
		opts,
	).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrConversationNotFound
	}
	if err != nil {
		return 0, err
	}
	return len(conv.Participants), nil
}

// Delete removes the conversation document. Message cleanup is the caller's
// responsibility (cascade on last-member leave).
func (r *ConversationRepo) Delete(ctx context.Context, conversationID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": conversationID})
	return err
}
