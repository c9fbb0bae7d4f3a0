// Package blobstore stores content-addressed image blobs in Redis.
package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mbergstrom/chatrelay/internal/domain"
	"github.com/mbergstrom/chatrelay/internal/metrics"
)

const keyPrefix = "blob:"

// RedisStore is the blob store collaborator backed by Redis. Objects are
// keyed by content hash, so a repeated put of identical bytes is a no-op
// (SET NX) and always yields the same public URL.
type RedisStore struct {
	rdb     *redis.Client
	baseURL string
}

// NewRedisStore creates a store serving public URLs under
// <baseURL>/blobs/<hash>.<format>.
func NewRedisStore(rdb *redis.Client, baseURL string) *RedisStore {
	return &RedisStore{rdb: rdb, baseURL: strings.TrimSuffix(baseURL, "/")}
}

var _ domain.BlobStore = (*RedisStore)(nil)

// NewClient creates a Redis client from a URL (e.g. "redis://localhost:6379")
// and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// Put stores data under its content hash and returns the public URL. The
// second store of identical bytes does not duplicate storage.
func (s *RedisStore) Put(ctx context.Context, hash, format string, data []byte) (string, error) {
	name := ObjectName(hash, format)

	stored, err := s.rdb.SetNX(ctx, keyPrefix+name, data, 0).Result()
	if err != nil {
		metrics.BlobPutsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("store blob %s: %w", name, err)
	}

	if stored {
		metrics.BlobPutsTotal.WithLabelValues("stored").Inc()
		slog.Info("Blob stored", "name", name, "bytes", len(data))
	} else {
		metrics.BlobPutsTotal.WithLabelValues("duplicate").Inc()
		slog.Debug("Blob already stored", "name", name)
	}

	return s.URL(name), nil
}

// Get fetches a stored blob by object name, together with its content type.
func (s *RedisStore) Get(ctx context.Context, name string) ([]byte, string, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+name).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, "", fmt.Errorf("blob %s: not found", name)
		}
		return nil, "", fmt.Errorf("fetch blob %s: %w", name, err)
	}
	return data, ContentType(name), nil
}

// URL returns the public URL for an object name.
func (s *RedisStore) URL(name string) string {
	return fmt.Sprintf("%s/blobs/%s", s.baseURL, name)
}

// ObjectName builds the canonical object name for a content hash and format.
func ObjectName(hash, format string) string {
	return fmt.Sprintf("%s.%s", hash, format)
}

// ContentType maps an object name to its MIME type, defaulting to
// application/octet-stream.
func ContentType(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return "application/octet-stream"
	}
	if ct := mime.TypeByExtension(name[idx:]); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
