// Package db manages the MongoDB connection, collections and image bucket.
package db

import (
	"context" // For connection timeout/cancellation
	"fmt"     // Error formatting
	"time"    // Duration for timeouts

	"go.mongodb.org/mongo-driver/v2/bson"           // Index key documents
	"go.mongodb.org/mongo-driver/v2/mongo"          // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options"  // MongoDB options
	"go.mongodb.org/mongo-driver/v2/mongo/readpref" // MongoDB read preference
)

// Config describes how to reach the database.
type Config struct {
	URI      string
	Database string
	// Bucket is the GridFS bucket holding image assets.
	Bucket string
	// Credential overrides any credentials in URI when set.
	Credential *options.Credential
	// Transactions enables multi-document transactions in RunInTx.
	// Requires a replica set or sharded cluster.
	Transactions bool
}

// Client wraps mongo.Client and exposes collections.
type Client struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client

	// db is the application database; users, chats, chat_links and
	// messages are accessed via this reference
	db *mongo.Database

	// images is the GridFS bucket standing in for object storage
	images *mongo.GridFSBucket

	transactions bool
}

// New connects to MongoDB and returns a Client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Database == "" {
		cfg.Database = "houseye"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "images"
	}

	// SetConnectTimeout: fail fast if MongoDB is unreachable
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(10 * time.Second)
	if cfg.Credential != nil {
		opts.SetAuth(*cfg.Credential)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify the connection; Connect alone does not dial
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	// Lazy-loaded: actual DB not created until first write
	db := client.Database(cfg.Database)

	return &Client{
		client:       client,
		db:           db,
		images:       db.GridFSBucket(options.GridFSBucket().SetName(cfg.Bucket)),
		transactions: cfg.Transactions,
	}, nil
}

// UsersCollection returns the users collection.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// ChatsCollection returns the conversation headers collection.
func (c *Client) ChatsCollection() *mongo.Collection {
	return c.db.Collection("chats")
}

// ChatLinksCollection returns the per-user chat summaries.
func (c *Client) ChatLinksCollection() *mongo.Collection {
	return c.db.Collection("chat_links")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("messages")
}

// ImagesBucket returns the GridFS bucket used for image assets.
func (c *Client) ImagesBucket() *mongo.GridFSBucket {
	return c.images
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Transactional reports whether RunInTx opens a real transaction.
func (c *Client) Transactional() bool {
	return c.transactions
}

// RunInTx runs fn inside a multi-document transaction when transactions are
// enabled. Otherwise fn runs directly and each write stands on its own.
func (c *Client) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.transactions {
		return fn(ctx)
	}

	sess, err := c.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	// WithTransaction retries fn on transient transaction errors
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// CreateIndexes creates the indexes the stores rely on for uniqueness and
// ordering.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// ===== USERS =====
	// Unique username backs the existence check in AddUser: of two
	// concurrent inserts for the same name only one can succeed.
	// image is looked up by FindUserByImage.
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "image", Value: 1}},
		},
	}
	if _, err := c.UsersCollection().Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}

	// ===== CHATS =====
	// One conversation per unordered user pair.
	chatIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "pair_key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := c.ChatsCollection().Indexes().CreateOne(ctx, chatIndex); err != nil {
		return fmt.Errorf("failed to create chats index: %w", err)
	}

	// ===== CHAT LINKS =====
	// One summary per (owner, receiver); also serves the ListChats scan.
	linkIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "receiver", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := c.ChatLinksCollection().Indexes().CreateOne(ctx, linkIndex); err != nil {
		return fmt.Errorf("failed to create chat_links index: %w", err)
	}

	// ===== MESSAGES =====
	// LoadChat reads one conversation by its per-chat sequence number.
	// Unique so two writers can never share a position.
	messageIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := c.MessagesCollection().Indexes().CreateOne(ctx, messageIndex); err != nil {
		return fmt.Errorf("failed to create messages index: %w", err)
	}

	return nil
}

// Drop removes every collection and the image bucket. Used by tests and the
// reset command.
func (c *Client) Drop(ctx context.Context) error {
	for _, coll := range []*mongo.Collection{
		c.UsersCollection(),
		c.ChatsCollection(),
		c.ChatLinksCollection(),
		c.MessagesCollection(),
	} {
		if err := coll.Drop(ctx); err != nil {
			return fmt.Errorf("failed to drop %s: %w", coll.Name(), err)
		}
	}
	if err := c.images.Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop image bucket: %w", err)
	}
	return nil
}
