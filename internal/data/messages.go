package data

import (
	"context"
	"time"

	"github.com/google/uuid"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessagesStore provides chat message database operations.
type MessagesStore struct {
	// coll is the "chat_messages" collection; documents are append-only
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// SaveMessage inserts a message and returns the saved record. ID and
// Timestamp are assigned server-side.
func (m *MessagesStore) SaveMessage(ctx context.Context, msg *ChatMessage) (*ChatMessage, error) {
	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now().UTC()

	if _, err := m.coll.InsertOne(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the conversation attached to a pickup, oldest first.
func (m *MessagesStore) ListMessages(ctx context.Context, pickupID string) ([]*ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := m.coll.Find(ctx, bson.M{"pickup_id": pickupID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := []*ChatMessage{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
