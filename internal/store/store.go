// Package store is the data-access layer the houseye server talks to. It
// ties the user registry, the image assets and the chat ledger together
// behind one Store and returns only coded errors (see internal/errors).
package store

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/PaulBabatuyi/houseye/internal/data"
	apperrors "github.com/PaulBabatuyi/houseye/internal/errors"
	"github.com/PaulBabatuyi/houseye/internal/normalize"
	"github.com/PaulBabatuyi/houseye/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mock/mock_store.go -package=mock github.com/PaulBabatuyi/houseye/internal/store Store

// Store is the full set of operations offered to callers.
type Store interface {
	AddUser(ctx context.Context, username, cellphone, imagePath string) (*data.User, error)
	DeleteUser(ctx context.Context, username, imagePath string) (*DeleteResult, error)
	GetUser(ctx context.Context, username string) (string, error)
	GetUserRecord(ctx context.Context, username string) (*data.User, error)
	FindUserByImage(ctx context.Context, imagePath string) (string, error)
	FindCellphone(ctx context.Context, username string) (string, error)
	ListUsers(ctx context.Context) ([]*data.User, error)
	ListCellphones(ctx context.Context) ([]string, error)
	UpdateUser(ctx context.Context, fields map[string]any) error
	PatchUser(ctx context.Context, username string, fields map[string]any) error
	SetStatus(ctx context.Context, username string, status data.Status) error

	AddImage(ctx context.Context, path string) (*data.Blob, error)
	DeleteImage(ctx context.Context, path string) error
	ListImages(ctx context.Context) iter.Seq2[*data.Blob, error]
	OpenImage(ctx context.Context, path string, w io.Writer) (int64, error)

	CreateChat(ctx context.Context, sender, receiver string) (*data.Chat, error)
	SendMessage(ctx context.Context, sender, receiver, message string) (*data.Message, error)
	LoadChat(ctx context.Context, user1, user2 string) ([]*data.Message, error)
	ListChats(ctx context.Context, username string) ([]*data.ChatLink, error)
}

// Registry is the user half of the store; *data.UsersStore implements it.
type Registry interface {
	AddUser(ctx context.Context, username, cellphone, imagePath string) (*data.User, error)
	DeleteUsers(ctx context.Context, username string) (int64, error)
	GetUser(ctx context.Context, username string) (string, error)
	GetUserRecord(ctx context.Context, username string) (*data.User, error)
	FindUserByImage(ctx context.Context, imagePath string) (string, error)
	FindCellphone(ctx context.Context, username string) (string, error)
	ListUsers(ctx context.Context) ([]*data.User, error)
	ListCellphones(ctx context.Context) ([]string, error)
	UpdateUser(ctx context.Context, fields map[string]any) error
	PatchUser(ctx context.Context, username string, fields map[string]any) error
	SetStatus(ctx context.Context, username string, status data.Status) error
}

// Assets is the object storage half; *data.ImagesStore implements it.
type Assets interface {
	AddImage(ctx context.Context, path string) (*data.Blob, error)
	DeleteImage(ctx context.Context, path string) error
	ListImages(ctx context.Context) iter.Seq2[*data.Blob, error]
	OpenImage(ctx context.Context, path string, w io.Writer) (int64, error)
}

// Ledger is the chat half; *data.ChatsStore implements it.
type Ledger interface {
	CreateChat(ctx context.Context, sender, receiver string) (*data.Chat, error)
	SendMessage(ctx context.Context, sender, receiver, text string) (*data.Message, error)
	LoadChat(ctx context.Context, user1, user2 string) ([]*data.Message, error)
	ListChats(ctx context.Context, username string) ([]*data.ChatLink, error)
}

// DeleteResult reports what DeleteUser managed to remove.
type DeleteResult struct {
	UsersDeleted int64
	ImageDeleted bool
}

// UserChatStore implements Store.
type UserChatStore struct {
	users  Registry
	images Assets
	chats  Ledger

	log     *zap.Logger
	tracer  trace.Tracer
	limiter *ratelimit.Throttle

	closers []func(context.Context) error
}

var _ Store = (*UserChatStore)(nil)

// Option configures a UserChatStore.
type Option func(*UserChatStore)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *UserChatStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTracer sets the tracer; the default is the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *UserChatStore) { s.tracer = t }
}

// WithSendLimiter throttles SendMessage per sender.
func WithSendLimiter(l *ratelimit.Throttle) Option {
	return func(s *UserChatStore) { s.limiter = l }
}

// New returns a UserChatStore over the three sub-stores.
func New(users Registry, images Assets, chats Ledger, opts ...Option) *UserChatStore {
	s := &UserChatStore{
		users:  users,
		images: images,
		chats:  chats,
		log:    zap.NewNop(),
		tracer: otel.Tracer("github.com/PaulBabatuyi/houseye/internal/store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases everything Open acquired, in reverse order.
func (s *UserChatStore) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *UserChatStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))
}

// fail records err on the current span, logs it and guarantees it carries
// a code. Backend failures log at error level; domain outcomes such as
// NOT_FOUND only at debug.
func (s *UserChatStore) fail(ctx context.Context, op string, err error, fields ...zap.Field) error {
	err = apperrors.External(op, err)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())

	code := apperrors.GetCode(err)
	fields = append(fields, zap.String("op", op), zap.String("code", string(code)), zap.Error(err))
	switch code {
	case apperrors.CodeExternalStoreFailure, apperrors.CodeUnknown:
		s.log.Error("store operation failed", fields...)
	default:
		s.log.Debug("store operation rejected", fields...)
	}
	return err
}

func userAttr(name string) attribute.KeyValue { return attribute.String("user", name) }
func pathAttr(path string) attribute.KeyValue { return attribute.String("path", path) }

// ===== User Registry =====

// AddUser registers username with its cellphone and face image path. The
// new user starts with status Out. ALREADY_EXISTS when the name is taken,
// including when a concurrent AddUser wins the race.
func (s *UserChatStore) AddUser(ctx context.Context, username, cellphone, imagePath string) (*data.User, error) {
	ctx, span := s.start(ctx, "AddUser", userAttr(username), pathAttr(imagePath))
	defer span.End()

	user, err := s.users.AddUser(ctx, username, cellphone, imagePath)
	if err != nil {
		return nil, s.fail(ctx, "add user", err, zap.String("user", username))
	}
	s.log.Info("user added", zap.String("user", user.Username), zap.String("image", user.Image))
	return user, nil
}

// DeleteUser removes every user named username and then the image at
// imagePath. The image delete is attempted even when the user delete
// fails; the result says which halves succeeded and the error joins both
// failures.
func (s *UserChatStore) DeleteUser(ctx context.Context, username, imagePath string) (*DeleteResult, error) {
	ctx, span := s.start(ctx, "DeleteUser", userAttr(username), pathAttr(imagePath))
	defer span.End()

	res := &DeleteResult{}
	n, userErr := s.users.DeleteUsers(ctx, username)
	res.UsersDeleted = n

	imgErr := s.images.DeleteImage(ctx, imagePath)
	res.ImageDeleted = imgErr == nil

	if err := errors.Join(userErr, imgErr); err != nil {
		return res, s.fail(ctx, "delete user", err,
			zap.String("user", username),
			zap.Int64("users_deleted", res.UsersDeleted),
			zap.Bool("image_deleted", res.ImageDeleted))
	}
	s.log.Info("user deleted", zap.String("user", username), zap.Int64("count", n))
	return res, nil
}

// GetUser returns the stored name of username, or NOT_FOUND.
func (s *UserChatStore) GetUser(ctx context.Context, username string) (string, error) {
	ctx, span := s.start(ctx, "GetUser", userAttr(username))
	defer span.End()

	name, err := s.users.GetUser(ctx, username)
	if err != nil {
		return "", s.fail(ctx, "get user", err, zap.String("user", username))
	}
	return name, nil
}

// GetUserRecord returns the whole user document, or NOT_FOUND.
func (s *UserChatStore) GetUserRecord(ctx context.Context, username string) (*data.User, error) {
	ctx, span := s.start(ctx, "GetUserRecord", userAttr(username))
	defer span.End()

	user, err := s.users.GetUserRecord(ctx, username)
	if err != nil {
		return nil, s.fail(ctx, "get user record", err, zap.String("user", username))
	}
	return user, nil
}

// FindUserByImage returns the user whose face image is stored at
// imagePath. Used by the camera to name a recognized face.
func (s *UserChatStore) FindUserByImage(ctx context.Context, imagePath string) (string, error) {
	ctx, span := s.start(ctx, "FindUserByImage", pathAttr(imagePath))
	defer span.End()

	name, err := s.users.FindUserByImage(ctx, imagePath)
	if err != nil {
		return "", s.fail(ctx, "find user by image", err, zap.String("path", imagePath))
	}
	return name, nil
}

// FindCellphone returns the user's cellphone. A user without one is
// reported as NOT_FOUND.
func (s *UserChatStore) FindCellphone(ctx context.Context, username string) (string, error) {
	ctx, span := s.start(ctx, "FindCellphone", userAttr(username))
	defer span.End()

	phone, err := s.users.FindCellphone(ctx, username)
	if err != nil {
		return "", s.fail(ctx, "find cellphone", err, zap.String("user", username))
	}
	return phone, nil
}

// ListUsers returns every user in insertion order.
func (s *UserChatStore) ListUsers(ctx context.Context) ([]*data.User, error) {
	ctx, span := s.start(ctx, "ListUsers")
	defer span.End()

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list users", err)
	}
	return users, nil
}

// ListCellphones returns the cellphone of every user that has one.
func (s *UserChatStore) ListCellphones(ctx context.Context) ([]string, error) {
	ctx, span := s.start(ctx, "ListCellphones")
	defer span.End()

	phones, err := s.users.ListCellphones(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list cellphones", err)
	}
	return phones, nil
}

// UpdateUser overwrites the whole user document with fields.
func (s *UserChatStore) UpdateUser(ctx context.Context, fields map[string]any) error {
	username, _ := fields["username"].(string)
	ctx, span := s.start(ctx, "UpdateUser", userAttr(username))
	defer span.End()

	if err := s.users.UpdateUser(ctx, fields); err != nil {
		return s.fail(ctx, "update user", err, zap.String("user", username))
	}
	s.log.Info("user replaced", zap.String("user", username), zap.Int("fields", len(fields)))
	return nil
}

// PatchUser merges fields into the user document. Unlike UpdateUser it
// leaves unnamed fields alone.
func (s *UserChatStore) PatchUser(ctx context.Context, username string, fields map[string]any) error {
	ctx, span := s.start(ctx, "PatchUser", userAttr(username))
	defer span.End()

	if err := s.users.PatchUser(ctx, username, fields); err != nil {
		return s.fail(ctx, "patch user", err, zap.String("user", username))
	}
	return nil
}

// SetStatus records whether the user is In or Out of the house.
func (s *UserChatStore) SetStatus(ctx context.Context, username string, status data.Status) error {
	ctx, span := s.start(ctx, "SetStatus", userAttr(username), attribute.String("status", string(status)))
	defer span.End()

	if err := s.users.SetStatus(ctx, username, status); err != nil {
		return s.fail(ctx, "set status", err, zap.String("user", username))
	}
	s.log.Info("status changed", zap.String("user", username), zap.String("status", string(status)))
	return nil
}

// ===== Asset Store =====

// AddImage uploads the local file at path, replacing any image stored
// under the same path.
func (s *UserChatStore) AddImage(ctx context.Context, path string) (*data.Blob, error) {
	ctx, span := s.start(ctx, "AddImage", pathAttr(path))
	defer span.End()

	blob, err := s.images.AddImage(ctx, path)
	if err != nil {
		return nil, s.fail(ctx, "add image", err, zap.String("path", path))
	}
	s.log.Info("image stored", zap.String("path", blob.Path), zap.Int64("size", blob.Size))
	return blob, nil
}

// DeleteImage removes the image at path. A missing image is not an error.
func (s *UserChatStore) DeleteImage(ctx context.Context, path string) error {
	ctx, span := s.start(ctx, "DeleteImage", pathAttr(path))
	defer span.End()

	if err := s.images.DeleteImage(ctx, path); err != nil {
		return s.fail(ctx, "delete image", err, zap.String("path", path))
	}
	return nil
}

// ListImages passes the lazy listing through, coding and logging a failure
// when the caller reaches it.
func (s *UserChatStore) ListImages(ctx context.Context) iter.Seq2[*data.Blob, error] {
	return func(yield func(*data.Blob, error) bool) {
		for b, err := range s.images.ListImages(ctx) {
			if err != nil {
				err = s.fail(ctx, "list images", err)
			}
			if !yield(b, err) {
				return
			}
		}
	}
}

// OpenImage copies the image at path into w.
func (s *UserChatStore) OpenImage(ctx context.Context, path string, w io.Writer) (int64, error) {
	ctx, span := s.start(ctx, "OpenImage", pathAttr(path))
	defer span.End()

	n, err := s.images.OpenImage(ctx, path, w)
	if err != nil {
		return n, s.fail(ctx, "open image", err, zap.String("path", path))
	}
	return n, nil
}

// ===== Chat Ledger =====

// CreateChat opens the conversation between sender and receiver. Both
// must be registered, and a pair can only be opened once.
func (s *UserChatStore) CreateChat(ctx context.Context, sender, receiver string) (*data.Chat, error) {
	ctx, span := s.start(ctx, "CreateChat", userAttr(sender), attribute.String("receiver", receiver))
	defer span.End()

	chat, err := s.chats.CreateChat(ctx, sender, receiver)
	if err != nil {
		return nil, s.fail(ctx, "create chat", err, zap.String("sender", sender), zap.String("receiver", receiver))
	}
	s.log.Info("chat created", zap.String("chat_id", chat.ID.Hex()), zap.String("sender", sender), zap.String("receiver", receiver))
	return chat, nil
}

// SendMessage appends message to the conversation between sender and
// receiver. With a send limiter configured, a sender over budget gets
// RATE_LIMITED without touching the database.
func (s *UserChatStore) SendMessage(ctx context.Context, sender, receiver, message string) (*data.Message, error) {
	ctx, span := s.start(ctx, "SendMessage", userAttr(sender), attribute.String("receiver", receiver))
	defer span.End()

	if s.limiter != nil && !s.limiter.Allow(normalize.Username(sender)) {
		err := apperrors.WithMetadata(apperrors.CodeRateLimited, "send rate exceeded", map[string]string{"sender": sender})
		return nil, s.fail(ctx, "send message", err, zap.String("sender", sender))
	}

	msg, err := s.chats.SendMessage(ctx, sender, receiver, message)
	if err != nil {
		return nil, s.fail(ctx, "send message", err, zap.String("sender", sender), zap.String("receiver", receiver))
	}
	s.log.Debug("message sent", zap.String("chat_id", msg.ChatID.Hex()), zap.String("sender", sender))
	return msg, nil
}

// LoadChat returns the conversation between user1 and user2 oldest first.
// Either participant may ask. CHAT_NOT_FOUND when the pair was never
// opened.
func (s *UserChatStore) LoadChat(ctx context.Context, user1, user2 string) ([]*data.Message, error) {
	ctx, span := s.start(ctx, "LoadChat", userAttr(user1), attribute.String("receiver", user2))
	defer span.End()

	msgs, err := s.chats.LoadChat(ctx, user1, user2)
	if err != nil {
		return nil, s.fail(ctx, "load chat", err, zap.String("user1", user1), zap.String("user2", user2))
	}
	span.SetAttributes(attribute.Int("messages", len(msgs)))
	return msgs, nil
}

// ListChats returns username's conversations, most recent activity first.
func (s *UserChatStore) ListChats(ctx context.Context, username string) ([]*data.ChatLink, error) {
	ctx, span := s.start(ctx, "ListChats", userAttr(username))
	defer span.End()

	links, err := s.chats.ListChats(ctx, username)
	if err != nil {
		return nil, s.fail(ctx, "list chats", err, zap.String("user", username))
	}
	return links, nil
}
