package store

import (
	"bytes"
	"context"
	"io"
	"iter"
	"sync"

	"github.com/PaulBabatuyi/houseye/internal/data"
	apperrors "github.com/PaulBabatuyi/houseye/internal/errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// fakeBackend is an in-memory Registry, Assets and Ledger. Setting one of
// the *Err fields makes the matching call fail with it.
type fakeBackend struct {
	mu       sync.Mutex
	users    map[string]*data.User
	images   map[string][]byte
	links    map[[2]string]bson.ObjectID
	messages map[bson.ObjectID][]*data.Message

	deleteUsersErr error
	deleteImageErr error
	listImagesErr  error
	sendCalls      int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:    map[string]*data.User{},
		images:   map[string][]byte{},
		links:    map[[2]string]bson.ObjectID{},
		messages: map[bson.ObjectID][]*data.Message{},
	}
}

func notFound(msg string) error { return apperrors.New(apperrors.CodeNotFound, msg) }

func (f *fakeBackend) AddUser(_ context.Context, username, cellphone, imagePath string) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return nil, apperrors.New(apperrors.CodeAlreadyExists, "user already exists")
	}
	u := &data.User{ID: bson.NewObjectID(), Username: username, Cellphone: cellphone, Image: imagePath, Status: data.StatusOut}
	f.users[username] = u
	return u, nil
}

func (f *fakeBackend) DeleteUsers(_ context.Context, username string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteUsersErr != nil {
		return 0, f.deleteUsersErr
	}
	if _, ok := f.users[username]; !ok {
		return 0, nil
	}
	delete(f.users, username)
	return 1, nil
}

func (f *fakeBackend) GetUserRecord(_ context.Context, username string) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil, notFound("user not found")
	}
	return u, nil
}

func (f *fakeBackend) GetUser(ctx context.Context, username string) (string, error) {
	u, err := f.GetUserRecord(ctx, username)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func (f *fakeBackend) FindUserByImage(_ context.Context, imagePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Image == imagePath {
			return u.Username, nil
		}
	}
	return "", notFound("no user for image")
}

func (f *fakeBackend) FindCellphone(ctx context.Context, username string) (string, error) {
	u, err := f.GetUserRecord(ctx, username)
	if err != nil {
		return "", err
	}
	return u.Cellphone, nil
}

func (f *fakeBackend) ListUsers(context.Context) ([]*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*data.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeBackend) ListCellphones(ctx context.Context) ([]string, error) {
	users, _ := f.ListUsers(ctx)
	var out []string
	for _, u := range users {
		out = append(out, u.Cellphone)
	}
	return out, nil
}

func (f *fakeBackend) UpdateUser(_ context.Context, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, _ := fields["username"].(string)
	if _, ok := f.users[name]; !ok {
		return notFound("user not found")
	}
	u := &data.User{Username: name}
	u.Cellphone, _ = fields["cellphone"].(string)
	u.Image, _ = fields["image"].(string)
	f.users[name] = u
	return nil
}

func (f *fakeBackend) PatchUser(_ context.Context, username string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return notFound("user not found")
	}
	if v, ok := fields["cellphone"].(string); ok {
		u.Cellphone = v
	}
	return nil
}

func (f *fakeBackend) SetStatus(_ context.Context, username string, status data.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return notFound("user not found")
	}
	u.Status = status
	return nil
}

func (f *fakeBackend) AddImage(_ context.Context, path string) (*data.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[path] = []byte(path)
	return &data.Blob{ID: bson.NewObjectID(), Path: path, Size: int64(len(path))}, nil
}

func (f *fakeBackend) DeleteImage(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteImageErr != nil {
		return f.deleteImageErr
	}
	delete(f.images, path)
	return nil
}

func (f *fakeBackend) ListImages(context.Context) iter.Seq2[*data.Blob, error] {
	return func(yield func(*data.Blob, error) bool) {
		f.mu.Lock()
		var blobs []*data.Blob
		for p := range f.images {
			blobs = append(blobs, &data.Blob{Path: p})
		}
		listErr := f.listImagesErr
		f.mu.Unlock()

		for _, b := range blobs {
			if !yield(b, nil) {
				return
			}
		}
		if listErr != nil {
			yield(nil, listErr)
		}
	}
}

func (f *fakeBackend) OpenImage(_ context.Context, path string, w io.Writer) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.images[path]
	if !ok {
		return 0, notFound("image not found")
	}
	return io.Copy(w, bytes.NewReader(b))
}

func (f *fakeBackend) CreateChat(_ context.Context, sender, receiver string) (*data.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[[2]string{sender, receiver}]; ok {
		return nil, apperrors.New(apperrors.CodeAlreadyExists, "chat already exists")
	}
	id := bson.NewObjectID()
	f.links[[2]string{sender, receiver}] = id
	f.links[[2]string{receiver, sender}] = id
	return &data.Chat{ID: id, Contacts: data.Contacts{User1: sender, User2: receiver}}, nil
}

func (f *fakeBackend) SendMessage(_ context.Context, sender, receiver, text string) (*data.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	id, ok := f.links[[2]string{sender, receiver}]
	if !ok {
		return nil, apperrors.New(apperrors.CodeChatNotFound, "chat not found")
	}
	m := &data.Message{ID: bson.NewObjectID(), ChatID: id, Sender: sender, Receiver: receiver, Text: text}
	f.messages[id] = append(f.messages[id], m)
	return m, nil
}

func (f *fakeBackend) LoadChat(_ context.Context, user1, user2 string) ([]*data.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.links[[2]string{user1, user2}]
	if !ok {
		return nil, apperrors.New(apperrors.CodeChatNotFound, "chat not found")
	}
	return append([]*data.Message{}, f.messages[id]...), nil
}

func (f *fakeBackend) ListChats(_ context.Context, username string) ([]*data.ChatLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*data.ChatLink
	for pair, id := range f.links {
		if pair[0] == username {
			out = append(out, &data.ChatLink{Owner: username, Receiver: pair[1], ChatID: id})
		}
	}
	return out, nil
}
