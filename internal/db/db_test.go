package db

import (
	"context"
	"os"
	"testing"
)

// These tests are integration tests and require a running MongoDB instance.
// Set MONGODB_URI in the environment before running them.

func TestNewAndCreateIndexes(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	c, err := New(ctx, Config{URI: uri, Database: "houseye_test_db"})
	if err != nil {
		t.Fatalf("failed to connect to DB: %v", err)
	}
	defer func() {
		_ = c.Drop(context.Background())
		_ = c.Close(context.Background())
	}()

	// creating twice must be a no-op
	for i := 0; i < 2; i++ {
		if err := c.CreateIndexes(ctx); err != nil {
			t.Fatalf("CreateIndexes failed: %v", err)
		}
	}

	if c.ImagesBucket() == nil {
		t.Fatalf("expected image bucket to be initialized")
	}
}

func TestRunInTxWithoutTransactions(t *testing.T) {
	c := &Client{}

	called := false
	err := c.RunInTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTx returned %v", err)
	}
	if !called {
		t.Fatalf("expected fn to run directly")
	}
	if c.Transactional() {
		t.Fatalf("expected a client without transactions")
	}
}

func TestNewUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// a cancelled context makes the ping fail without waiting on the network
	if _, err := New(ctx, Config{URI: "mongodb://127.0.0.1:1"}); err == nil {
		t.Fatalf("expected error for unreachable server")
	}
}
