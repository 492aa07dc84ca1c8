package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/PaulBabatuyi/houseye/internal/config"
	"github.com/PaulBabatuyi/houseye/internal/db"
	apperrors "github.com/PaulBabatuyi/houseye/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap/zaptest"
)

// openIntegration needs a running MongoDB; set MONGODB_URI to enable.
func openIntegration(t *testing.T) *UserChatStore {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	cfg := &config.Config{
		MongoURI:    uri,
		Database:    "houseye_store_test",
		ImageBucket: "images",
	}
	ctx := context.Background()
	s, err := Open(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	// start from empty collections; indexes were just ensured by Open
	for _, u := range mustListUsers(t, s) {
		_, _ = s.DeleteUser(ctx, u, "")
	}
	for b, err := range s.ListImages(ctx) {
		require.NoError(t, err)
		require.NoError(t, s.DeleteImage(ctx, b.Path))
	}
	return s
}

func mustListUsers(t *testing.T, s *UserChatStore) []string {
	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	var names []string
	for _, u := range users {
		names = append(names, u.Username)
	}
	return names
}

func TestIntegrationUserLifecycle(t *testing.T) {
	s := openIntegration(t)
	ctx := context.Background()

	img := filepath.Join(t.TempDir(), "alice.jpg")
	require.NoError(t, os.WriteFile(img, []byte("face"), 0o600))

	_, err := s.AddImage(ctx, img)
	require.NoError(t, err)
	_, err = s.AddUser(ctx, "alice", "0501234567", img)
	require.NoError(t, err)

	name, err := s.FindUserByImage(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	res, err := s.DeleteUser(ctx, "alice", img)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.UsersDeleted)
	assert.True(t, res.ImageDeleted)

	_, err = s.GetUser(ctx, "alice")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	var buf bytes.Buffer
	_, err = s.OpenImage(ctx, img, &buf)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestIntegrationConcurrentAddUser(t *testing.T) {
	s := openIntegration(t)
	ctx := context.Background()

	const callers = 6
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddUser(ctx, "dup", "", "images/dup.jpg")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyExists), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)
}

func TestIntegrationChat(t *testing.T) {
	s := openIntegration(t)
	ctx := context.Background()

	// chats are not removed with their users; use fresh names per run
	a, b := "a-"+bson.NewObjectID().Hex(), "b-"+bson.NewObjectID().Hex()
	for _, u := range []string{a, b} {
		_, err := s.AddUser(ctx, u, "", "images/"+u+".jpg")
		require.NoError(t, err)
	}

	_, err := s.SendMessage(ctx, a, b, "hi")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeChatNotFound))

	_, err = s.CreateChat(ctx, a, b)
	require.NoError(t, err)

	msgs, err := s.LoadChat(ctx, a, b)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = s.SendMessage(ctx, a, b, "hi")
	require.NoError(t, err)

	for _, pair := range [][2]string{{a, b}, {b, a}} {
		msgs, err := s.LoadChat(ctx, pair[0], pair[1])
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, a, msgs[0].Sender)
		assert.Equal(t, b, msgs[0].Receiver)
		assert.Equal(t, "hi", msgs[0].Text)
	}
}

func TestIntegrationCreateChatRecoversFromPartialWrite(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}
	ctx := context.Background()

	client, err := db.New(ctx, db.Config{URI: uri, Database: "houseye_store_test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	require.NoError(t, client.CreateIndexes(ctx))

	users, images, chats := newStores(client)
	s := New(users, images, chats, WithLogger(zaptest.NewLogger(t)))

	a, b := "a-"+bson.NewObjectID().Hex(), "b-"+bson.NewObjectID().Hex()
	for _, u := range []string{a, b} {
		_, err := s.AddUser(ctx, u, "", "images/"+u+".jpg")
		require.NoError(t, err)
	}

	// b already owns a link towards a, so the second link insert collides
	stray := bson.M{"owner": b, "receiver": a, "chat_id": bson.NewObjectID()}
	_, err = client.ChatLinksCollection().InsertOne(ctx, stray)
	require.NoError(t, err)

	_, err = s.CreateChat(ctx, a, b)
	require.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyExists), "unexpected error: %v", err)

	_, err = client.ChatLinksCollection().DeleteOne(ctx, stray)
	require.NoError(t, err)

	_, err = s.CreateChat(ctx, a, b)
	require.NoError(t, err)

	_, err = s.SendMessage(ctx, b, a, "retry worked")
	require.NoError(t, err)
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		msgs, err := s.LoadChat(ctx, pair[0], pair[1])
		require.NoError(t, err)
		require.Len(t, msgs, 1)
	}
}
