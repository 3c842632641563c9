package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobStore_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)

	ctx := context.Background()

	// 1. Put a blob
	blobName := "thumbs/data-001.bin"
	data := []byte("hello world, this is a test blob for lrucache")
	require.NoError(t, store.Put(ctx, blobName, data))

	// Verify file exists on disk
	_, err := os.Stat(filepath.Join(tmpDir, "thumbs", "data-001.bin"))
	require.NoError(t, err)

	// 2. Open and ReadAt
	blob, err := store.Open(ctx, blobName)
	require.NoError(t, err)
	defer blob.Close()

	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6) // "world"
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	// 3. ReadRange
	rangeReader, err := blob.ReadRange(ctx, 13, 4)
	require.NoError(t, err)
	defer rangeReader.Close()

	rangeContent, err := io.ReadAll(rangeReader)
	require.NoError(t, err)
	require.Equal(t, "this", string(rangeContent))

	// 4. List
	require.NoError(t, store.Put(ctx, "thumbs/data-002.bin", nil))
	require.NoError(t, store.Put(ctx, "other.bin", []byte("x")))

	names, err := store.List(ctx, "thumbs/")
	require.NoError(t, err)
	require.Equal(t, []string{"thumbs/data-001.bin", "thumbs/data-002.bin"}, names)

	// 5. Delete
	require.NoError(t, store.Delete(ctx, blobName))
	require.NoError(t, store.Delete(ctx, blobName), "deleting a missing blob is not an error")

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"other.bin", "thumbs/data-002.bin"}, names)

	_, err = store.Open(ctx, blobName)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBlobStore_PutReplaces(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", []byte("first")))
	require.NoError(t, store.Put(ctx, "a", []byte("second")))

	got, err := ReadAll(ctx, store, "a")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestLocalBlobStore_RejectsEscapingNames(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	assert.Error(t, store.Put(ctx, "../escape", []byte("x")))
	_, err := store.Open(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func TestLocalBlobStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalBlobStore_ReadRange_Boundaries(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	blobName := "boundary.bin"
	data := []byte("0123456789")
	require.NoError(t, store.Put(ctx, blobName, data))

	blob, err := store.Open(ctx, blobName)
	require.NoError(t, err)
	defer blob.Close()

	// Case 1: Read full range
	r, err := blob.ReadRange(ctx, 0, 10)
	require.NoError(t, err)
	content, _ := io.ReadAll(r)
	r.Close()
	require.Equal(t, data, content)

	// Case 2: Read past end
	r, err = blob.ReadRange(ctx, 8, 5)
	require.NoError(t, err)
	content, err = io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "89", string(content))
	r.Close()

	// Case 3: Offset past EOF
	_, err = blob.ReadRange(ctx, 20, 5)
	require.ErrorIs(t, err, io.EOF)

	// ReadAt at the tail reports EOF with the bytes it could read.
	buf := make([]byte, 4)
	n, err := blob.ReadAt(ctx, buf, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	src := []byte("abc")
	require.NoError(t, store.Put(ctx, "k/1", src))
	src[0] = 'x'

	got, err := ReadAll(ctx, store, "k/1")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got), "Put copies its input")

	require.NoError(t, store.Put(ctx, "k/2", nil))
	require.NoError(t, store.Put(ctx, "z", nil))
	names, err := store.List(ctx, "k/")
	require.NoError(t, err)
	assert.Equal(t, []string{"k/1", "k/2"}, names)

	require.NoError(t, store.Delete(ctx, "k/1"))
	_, err = store.Open(ctx, "k/1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, store.Opens())
}
