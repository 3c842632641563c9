package blobstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lrucache"
)

// countingStore records every ReadAt issued against its blobs.
type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	reads int
	bytes int
}

func (s *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBlob{Blob: b, store: s}, nil
}

func (s *countingStore) stats() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.bytes
}

type countingBlob struct {
	Blob
	store *countingStore
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := b.Blob.ReadAt(ctx, p, off)
	b.store.mu.Lock()
	b.store.reads++
	b.store.bytes += n
	b.store.mu.Unlock()
	return n, err
}

func newCountingStore(t *testing.T, name string, data []byte) *countingStore {
	t.Helper()
	s := &countingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, s.MemoryStore.Put(context.Background(), name, data))
	return s
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestCachingStore_ReadAt(t *testing.T) {
	ctx := context.Background()
	data := testData(1024)
	inner := newCountingStore(t, "test", data)

	store, err := NewCachingStore(inner, 64, 256)
	require.NoError(t, err)
	defer store.Close()

	blob, err := store.Open(ctx, "test")
	require.NoError(t, err)
	defer blob.Close()

	// Spans blocks 0..2.
	buf := make([]byte, 600)
	n, err := blob.ReadAt(ctx, buf, 100)
	require.NoError(t, err)
	assert.Equal(t, 600, n)
	assert.Equal(t, data[100:700], buf)

	reads, _ := inner.stats()
	assert.Equal(t, 1, reads, "contiguous missing blocks are fetched with one read")
	assert.Equal(t, 3, store.CachedBlocks())

	// Served from cache.
	n, err = blob.ReadAt(ctx, buf[:200], 300)
	require.NoError(t, err)
	assert.Equal(t, 200, n)
	assert.Equal(t, data[300:500], buf[:200])
	reads, _ = inner.stats()
	assert.Equal(t, 1, reads)
}

func TestCachingStore_ReadAtTail(t *testing.T) {
	ctx := context.Background()
	data := testData(1000)
	store, err := NewCachingStore(newCountingStore(t, "tail", data), 64, 256)
	require.NoError(t, err)
	defer store.Close()

	blob, err := store.Open(ctx, "tail")
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := blob.ReadAt(ctx, buf, 950)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 50, n)
	assert.Equal(t, data[950:], buf[:n])

	_, err = blob.ReadAt(ctx, buf, 1000)
	assert.ErrorIs(t, err, io.EOF)

	r, err := blob.ReadRange(ctx, 0, 1000)
	require.NoError(t, err)
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, all))
}

func TestCachingStore_PutInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := newCountingStore(t, "doc", []byte("old contents"))
	store, err := NewCachingStore(inner, 64, 4)
	require.NoError(t, err)
	defer store.Close()

	got, err := ReadAll(ctx, store, "doc")
	require.NoError(t, err)
	assert.Equal(t, "old contents", string(got))
	assert.Positive(t, store.CachedBlocks())

	require.NoError(t, store.Put(ctx, "doc", []byte("new contents")))
	assert.Zero(t, store.CachedBlocks())

	got, err = ReadAll(ctx, store, "doc")
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(got))

	require.NoError(t, store.Delete(ctx, "doc"))
	assert.Zero(t, store.CachedBlocks())
	_, err = store.Open(ctx, "doc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachingStore_EvictsBlocks(t *testing.T) {
	ctx := context.Background()
	data := testData(4096)
	metrics := &lrucache.BasicMetricsCollector{}
	store, err := NewCachingStore(newCountingStore(t, "big", data), 4, 256, lrucache.WithMetricsCollector(metrics))
	require.NoError(t, err)
	defer store.Close()

	got, err := ReadAll(ctx, store, "big")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, 4, store.CachedBlocks())
	assert.Positive(t, metrics.GetStats().Evictions)
}
