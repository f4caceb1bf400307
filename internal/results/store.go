package results

import (
	"context"
	"time"
)

// ObjectInfo describes one stored object as returned by a prefix listing.
type ObjectInfo struct {
	Key     string
	Size    int64
	Updated time.Time
}

// Store is the shared object store. All writes are whole-artifact publishes;
// published objects are immutable and nothing here deletes them.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// SignedURL returns a short-lived retrieval handle for key.
	SignedURL(key string, ttl time.Duration) (string, error)
}
