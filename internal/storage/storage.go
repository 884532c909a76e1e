// Package storage is the durable key-value layer behind the dedup store and
// the panel registry. Keys live in named buckets.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("storage: key not found")

const (
	BucketDelivered   = "delivered"
	BucketPanels      = "panels"
	BucketSourceState = "source_state"
	BucketChats       = "chats"
)

var Buckets = []string{BucketDelivered, BucketPanels, BucketSourceState, BucketChats}

type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, value []byte) error
	Delete(ctx context.Context, bucket, key string) error
	// ForEach stops at the first error returned by fn.
	ForEach(ctx context.Context, bucket string, fn func(key string, value []byte) error) error
	Close() error
}

// Open returns the backend named by kind ("sqlite" or "bolt") at path.
func Open(kind, path string) (Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	switch kind {
	case "", "sqlite":
		return OpenSQLite(path)
	case "bolt", "bbolt":
		return OpenBolt(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}
