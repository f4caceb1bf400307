package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	pkgerrors "github.com/yungbote/birdscan-backend/internal/pkg/errors"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/results"
)

// BucketStore is the GCS-backed object store shared by every pipeline stage.
// It satisfies results.Store; writes are whole-object puts and nothing here
// ever deletes a published artifact.
type BucketStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func NewBucketStore(log *logger.Logger, bucket string) (*BucketStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket name required")
	}

	ctx := context.Background()
	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &BucketStore{
		log:    log.With("service", "BucketStore", "bucket", bucket),
		client: client,
		bucket: bucket,
	}, nil
}

func (bs *BucketStore) Close() error {
	return bs.client.Close()
}

func (bs *BucketStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.client.Bucket(bs.bucket).Object(key).NewWriter(ctx)
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer for %q: %w", key, err)
	}
	return nil
}

func (bs *BucketStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := bs.client.Bucket(bs.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %q: %w", key, pkgerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open reader for %q: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (bs *BucketStore) List(ctx context.Context, prefix string) ([]results.ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	it := bs.client.Bucket(bs.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []results.ObjectInfo{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		out = append(out, results.ObjectInfo{
			Key:     attrs.Name,
			Size:    attrs.Size,
			Updated: attrs.Updated,
		})
	}
	return out, nil
}

func (bs *BucketStore) SignedURL(key string, ttl time.Duration) (string, error) {
	url, err := bs.client.Bucket(bs.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign %q: %w", key, err)
	}
	return url, nil
}

// ContentTypeForKey guesses a content type from the key's extension.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".bmp"):
		return "image/bmp"
	case strings.HasSuffix(s, ".csv"):
		return "text/csv"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".log"), strings.HasSuffix(s, ".txt"):
		return "text/plain"
	default:
		return ""
	}
}
