package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
)

// snapshotClient downloads still images from camera HTTP endpoints.
type snapshotClient struct {
	http *resty.Client
}

func newSnapshotClient() *snapshotClient {
	c := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &snapshotClient{http: c}
}

// Fetch writes the body of GET url to dest, creating parent directories.
func (c *snapshotClient) Fetch(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetOutput(dest).
		Get(url)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	if resp.IsError() {
		_ = os.Remove(dest)
		return fmt.Errorf("fetch snapshot: %s", resp.Status())
	}
	return nil
}
