package store

import (
	"context"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/houseye/internal/config"
	"github.com/PaulBabatuyi/houseye/internal/data"
	"github.com/PaulBabatuyi/houseye/internal/db"
	"github.com/PaulBabatuyi/houseye/internal/ratelimit"

	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

var (
	_ Registry = (*data.UsersStore)(nil)
	_ Assets   = (*data.ImagesStore)(nil)
	_ Ledger   = (*data.ChatsStore)(nil)
)

// Open connects to the database described by cfg, makes sure the indexes
// exist and wires the sub-stores. The returned store owns the connection;
// call Close at shutdown.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*UserChatStore, error) {
	dbCfg := db.Config{
		URI:          cfg.MongoURI,
		Database:     cfg.Database,
		Bucket:       cfg.ImageBucket,
		Transactions: cfg.Transactions,
	}

	creds, err := cfg.LoadCredentials()
	if err != nil {
		return nil, err
	}
	if creds != nil {
		dbCfg.Credential = &options.Credential{
			Username:      creds.Username,
			Password:      creds.Password,
			AuthSource:    creds.AuthSource,
			AuthMechanism: creds.Mechanism,
		}
	}

	client, err := db.New(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	if err := client.CreateIndexes(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	users, images, chats := newStores(client)

	opts := []Option{WithLogger(log)}
	var limiter *ratelimit.Throttle
	if cfg.MessageRatePerMinute > 0 {
		limiter = ratelimit.New(cfg.MessageRatePerMinute, cfg.MessageBurst, time.Minute)
		opts = append(opts, WithSendLimiter(limiter))
	}

	s := New(users, images, chats, opts...)
	s.closers = append(s.closers, client.Close)
	if limiter != nil {
		s.closers = append(s.closers, func(context.Context) error {
			limiter.Stop()
			return nil
		})
	}

	s.log.Info("store ready",
		zap.String("database", dbCfg.Database),
		zap.String("bucket", dbCfg.Bucket),
		zap.Bool("transactions", dbCfg.Transactions))
	return s, nil
}

// newStores builds the sub-stores over client. Chats only get a transaction
// runner when the client really opens transactions; otherwise CreateChat
// cleans up its own partial writes.
func newStores(client *db.Client) (*data.UsersStore, *data.ImagesStore, *data.ChatsStore) {
	users := data.NewUsersStore(client.UsersCollection())
	images := data.NewImagesStore(client.ImagesBucket())

	var opts []data.ChatsOption
	if client.Transactional() {
		opts = append(opts, data.WithTx(client.RunInTx))
	}
	chats := data.NewChatsStore(
		client.ChatsCollection(),
		client.ChatLinksCollection(),
		client.MessagesCollection(),
		users,
		opts...,
	)
	return users, images, chats
}
