package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo wraps the client and the service database handle.
type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// Connect dials MongoDB with a bounded retry loop and verifies the
// connection with a ping before handing out the database handle.
func Connect(ctx context.Context, uri, dbName string, retryCount int, retryWait time.Duration) (*Mongo, error) {
	clientOpts := options.Client().ApplyURI(uri)

	var lastErr error
	for i := 0; i <= retryCount; i++ {
		client, err := mongo.Connect(ctx, clientOpts)
		if err == nil {
			if pingErr := client.Ping(ctx, readpref.Primary()); pingErr == nil {
				m := &Mongo{Client: client, Database: client.Database(dbName)}
				if err := m.ensureIndexes(ctx); err != nil {
					_ = client.Disconnect(ctx)
					return nil, fmt.Errorf("ensure indexes: %w", err)
				}
				return m, nil
			} else {
				lastErr = pingErr
				_ = client.Disconnect(ctx)
			}
		} else {
			lastErr = err
		}

		if i < retryCount {
			time.Sleep(retryWait)
		}
	}

	return nil, fmt.Errorf("connect mongodb after %d attempts: %w", retryCount+1, lastErr)
}

// ensureIndexes creates the indexes the repositories rely on. The unique
// pair_key index is what makes private-conversation creation race-free.
func (m *Mongo) ensureIndexes(ctx context.Context) error {
	conversations := m.Database.Collection("conversations")
	_, err := conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"type": "private"}),
		},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_activity", Value: -1}}},
	})
	if err != nil {
		return err
	}

	messages := m.Database.Collection("messages")
	_, err = messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	return err
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
