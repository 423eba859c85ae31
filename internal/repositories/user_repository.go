package repositories

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"realtime-chat-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts user persistence.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetUsers(ctx context.Context, userIDs []string) ([]models.User, error)
}

// UserRepo is a MongoDB implementation of UserRepository.
type UserRepo struct {
	col *mongo.Collection
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{col: db.Collection("users")}
}

// secretProjection strips credential material from every lookup.
var secretProjection = options.FindOne().SetProjection(bson.M{"password_hash": 0})

// GetUser fetches a single user by id, excluding secret fields.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.col.FindOne(ctx, bson.M{"_id": userID}, secretProjection).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUsers fetches multiple users in one query.
func (r *UserRepo) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	if len(userIDs) == 0 {
		return []models.User{}, nil
	}

	opts := options.Find().SetProjection(bson.M{"password_hash": 0})
	cursor, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}
