package data

import (
	"context"
	"strconv"
	"time"

	apperrors "github.com/PaulBabatuyi/houseye/internal/errors"
	"github.com/PaulBabatuyi/houseye/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// TxRunner runs fn as one unit of work; see db.Client.RunInTx.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// ChatsStore provides chat link, conversation and message operations.
type ChatsStore struct {
	chats    *mongo.Collection
	links    *mongo.Collection
	messages *mongo.Collection
	users    *UsersStore

	tx  TxRunner
	now func() time.Time
}

// ChatsOption configures a ChatsStore.
type ChatsOption func(*ChatsStore)

// WithTx runs CreateChat and SendMessage through run, which must provide
// real transactions. Without it CreateChat undoes partial writes itself.
func WithTx(run TxRunner) ChatsOption {
	return func(s *ChatsStore) { s.tx = run }
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) ChatsOption {
	return func(s *ChatsStore) { s.now = now }
}

// NewChatsStore returns a ChatsStore over the chats, chat_links and messages
// collections. users is consulted to check that both participants exist.
func NewChatsStore(chats, links, messages *mongo.Collection, users *UsersStore, opts ...ChatsOption) *ChatsStore {
	s := &ChatsStore{
		chats:    chats,
		links:    links,
		messages: messages,
		users:    users,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PairKey identifies the unordered pair {a, b}. The first name is length
// prefixed so no two pairs share a key, whatever bytes the names hold.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + ":" + b
}

func pairMeta(sender, receiver string) map[string]string {
	return map[string]string{"sender": sender, "receiver": receiver}
}

func (s *ChatsStore) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx(ctx, fn)
}

// CreateChat links sender and receiver: one conversation header plus a
// ChatLink under each participant, both with an empty last message.
// A pair can only be linked once.
func (s *ChatsStore) CreateChat(ctx context.Context, sender, receiver string) (*Chat, error) {
	sender, receiver = normalize.Username(sender), normalize.Username(receiver)
	if sender == "" || receiver == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "sender and receiver are required")
	}
	if sender == receiver {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "cannot chat with self", pairMeta(sender, receiver))
	}

	for _, name := range []string{sender, receiver} {
		ok, err := s.users.UserExists(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errUserNotFound(name)
		}
	}

	var chat *Chat
	err := s.runInTx(ctx, func(ctx context.Context) error {
		now := s.now()
		chat = &Chat{
			Contacts:  Contacts{User1: sender, User2: receiver},
			PairKey:   PairKey(sender, receiver),
			CreatedAt: now,
		}

		result, err := s.chats.InsertOne(ctx, chat)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return apperrors.WithMetadata(apperrors.CodeAlreadyExists, "chat already exists", pairMeta(sender, receiver))
			}
			return apperrors.External("insert chat", err)
		}
		chat.ID = result.InsertedID.(bson.ObjectID)

		stamp := FormatTimestamp(now)
		links := []any{
			&ChatLink{Owner: sender, ChatID: chat.ID, Receiver: receiver, CreatedTime: stamp, UpdatedTime: now},
			&ChatLink{Owner: receiver, ChatID: chat.ID, Receiver: sender, CreatedTime: stamp, UpdatedTime: now},
		}
		if _, err := s.links.InsertMany(ctx, links); err != nil {
			// Ordered InsertMany may have stored one link already. Outside a
			// transaction remove it and the header so the pair can be retried.
			if s.tx == nil {
				s.discardChat(ctx, chat.ID)
			}
			if mongo.IsDuplicateKeyError(err) {
				return apperrors.WithMetadata(apperrors.CodeAlreadyExists, "chat link already exists", pairMeta(sender, receiver))
			}
			return apperrors.External("insert chat links", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *ChatsStore) discardChat(ctx context.Context, id bson.ObjectID) {
	_, _ = s.links.DeleteMany(ctx, bson.M{"chat_id": id})
	_, _ = s.chats.DeleteOne(ctx, bson.M{"_id": id})
}

// findLink returns owner's ChatLink towards receiver.
func (s *ChatsStore) findLink(ctx context.Context, owner, receiver string) (*ChatLink, error) {
	var link ChatLink
	err := s.links.FindOne(ctx, bson.M{"owner": owner, "receiver": receiver}).Decode(&link)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperrors.WithMetadata(apperrors.CodeChatNotFound, "chat not found", pairMeta(owner, receiver))
		}
		return nil, apperrors.External("find chat link", err)
	}
	return &link, nil
}

// SendMessage appends a message to the pair's conversation and updates the
// last message on both participants' links. The chat must already exist.
func (s *ChatsStore) SendMessage(ctx context.Context, sender, receiver, text string) (*Message, error) {
	sender, receiver = normalize.Username(sender), normalize.Username(receiver)

	var msg *Message
	err := s.runInTx(ctx, func(ctx context.Context) error {
		link, err := s.findLink(ctx, sender, receiver)
		if err != nil {
			return err
		}

		seq, err := s.nextSeq(ctx, link.ChatID)
		if err != nil {
			return err
		}

		now := s.now()
		msg = &Message{
			ChatID:   link.ChatID,
			Sender:   sender,
			Receiver: receiver,
			Text:     text,
			Date:     FormatTimestamp(now),
			SentAt:   now,
			Seq:      seq,
		}
		result, err := s.messages.InsertOne(ctx, msg)
		if err != nil {
			return apperrors.External("insert message", err)
		}
		msg.ID = result.InsertedID.(bson.ObjectID)

		// $set keeps created_time; receiver on each side is unchanged
		update := bson.M{"$set": bson.M{"last_message": text, "updated_time": now}}
		if _, err := s.links.UpdateMany(ctx, bson.M{"chat_id": link.ChatID}, update); err != nil {
			return apperrors.External("update chat links", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// nextSeq reserves the next position in the conversation. The counter lives
// on the chat header and is incremented by the server, so ordering does not
// depend on the writers' clocks.
func (s *ChatsStore) nextSeq(ctx context.Context, chatID bson.ObjectID) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"message_count": 1})

	var chat Chat
	err := s.chats.FindOneAndUpdate(ctx, bson.M{"_id": chatID}, bson.M{"$inc": bson.M{"message_count": 1}}, opts).Decode(&chat)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, apperrors.WithMetadata(apperrors.CodeChatNotFound, "chat header missing",
				map[string]string{"chat_id": chatID.Hex()})
		}
		return 0, apperrors.External("reserve message sequence", err)
	}
	return chat.MessageCount, nil
}

// LoadChat returns every message between user1 and user2 in the order they
// were sent.
func (s *ChatsStore) LoadChat(ctx context.Context, user1, user2 string) ([]*Message, error) {
	link, err := s.findLink(ctx, normalize.Username(user1), normalize.Username(user2))
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"chat_id": link.ChatID}, opts)
	if err != nil {
		return nil, apperrors.External("find messages", err)
	}
	defer cursor.Close(ctx)

	messages := []*Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, apperrors.External("decode messages", err)
	}
	return messages, nil
}

// ListChats returns username's chat links, most recently active first.
func (s *ChatsStore) ListChats(ctx context.Context, username string) ([]*ChatLink, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_time", Value: -1}})
	cursor, err := s.links.Find(ctx, bson.M{"owner": normalize.Username(username)}, opts)
	if err != nil {
		return nil, apperrors.External("find chat links", err)
	}
	defer cursor.Close(ctx)

	links := []*ChatLink{}
	if err := cursor.All(ctx, &links); err != nil {
		return nil, apperrors.External("decode chat links", err)
	}
	return links, nil
}
