// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "bhangaar_waala"

// Client wraps mongo.Client and exposes collections.
type Client struct {
	// client is the underlying MongoDB connection (safe for concurrent use)
	client *mongo.Client

	// db holds the users, pickups and chat_messages collections
	db *mongo.Database
}

// New connects to MongoDB, pings the primary and returns a Client bound to
// the named database.
func New(ctx context.Context, mongoURI, database string) (*Client, error) {
	if database == "" {
		database = DefaultDatabase
	}

	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database(database),
	}, nil
}

// Mongo returns the underlying driver client, used to start sessions.
func (c *Client) Mongo() *mongo.Client {
	return c.client
}

// UsersCollection returns the users collection.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// PickupsCollection returns the pickups collection.
func (c *Client) PickupsCollection() *mongo.Collection {
	return c.db.Collection("pickups")
}

// MessagesCollection returns the chat_messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("chat_messages")
}

// Ping checks that the primary is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Drop removes every collection owned by the service. Used by integration tests.
func (c *Client) Drop(ctx context.Context) error {
	for _, coll := range []*mongo.Collection{c.UsersCollection(), c.PickupsCollection(), c.MessagesCollection()} {
		if err := coll.Drop(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CreateIndexes creates the indexes the stores rely on.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// unique email: duplicate registration surfaces as a duplicate key error
	usersIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "role", Value: 1}},
		},
	}
	if _, err := c.UsersCollection().Indexes().CreateMany(ctx, usersIndexes); err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}

	pickupIndexes := []mongo.IndexModel{
		{
			// household listing and stats
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			// collector listing, stats and ratings
			Keys: bson.D{{Key: "collector_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			// unclaimed work and platform-wide counts
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := c.PickupsCollection().Indexes().CreateMany(ctx, pickupIndexes); err != nil {
		return fmt.Errorf("failed to create pickup indexes: %w", err)
	}

	messageIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "pickup_id", Value: 1}, {Key: "timestamp", Value: 1}},
		},
	}
	if _, err := c.MessagesCollection().Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	return nil
}
