package redis

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/lrucache/blobstore"
)

// Store implements blobstore.Store on top of Redis strings.
type Store struct {
	db            redis.UniversalClient
	prefix        string
	scanBatchSize int64
}

// NewStore creates a store whose blob names are prefixed with prefix.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		db:            client,
		prefix:        prefix,
		scanBatchSize: 1000,
	}
}

// NewStoreWithConfig creates a store using cfg.KeyPrefix and cfg.ScanBatchSize.
func NewStoreWithConfig(client redis.UniversalClient, cfg Config) *Store {
	s := NewStore(client, cfg.KeyPrefix)
	if cfg.ScanBatchSize > 0 {
		s.scanBatchSize = cfg.ScanBatchSize
	}
	return s
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

// Open fetches the whole value. redis.Nil becomes blobstore.ErrNotFound.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	val, err := s.db.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, blobstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return blobstore.BytesBlob(val), nil
}

// Put stores data without expiration.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	return s.db.Set(ctx, s.key(name), data, 0).Err()
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.db.Del(ctx, s.key(name)).Err()
}

// List uses SCAN to avoid blocking Redis.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var (
		names  []string
		cursor uint64
	)
	match := escapeGlob(s.key(prefix)) + "*"

	for {
		batch, next, err := s.db.Scan(ctx, cursor, match, s.scanBatchSize).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range batch {
			names = append(names, strings.TrimPrefix(key, s.prefix))
		}
		if cursor = next; cursor == 0 {
			break
		}
	}

	// SCAN may return a key more than once.
	sort.Strings(names)
	return compact(names), nil
}

// Close terminates the Redis connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

func compact(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
