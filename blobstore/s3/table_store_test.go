package s3

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lrucache"
	"github.com/hupe1980/lrucache/blobstore"
	"github.com/hupe1980/lrucache/codec"
)

// mockDDBClient is an in-memory DynamoDB mock for testing.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func nameOf(item map[string]types.AttributeValue) string {
	return item["name"].(*types.AttributeValueMemberS).Value
}

func (m *mockDDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &dynamodb.GetItemOutput{Item: m.items[nameOf(params.Key)]}, nil
}

func (m *mockDDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[nameOf(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, nameOf(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDDBClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := params.ExpressionAttributeValues[":p"].(*types.AttributeValueMemberS).Value

	var items []map[string]types.AttributeValue
	for name, item := range m.items {
		if strings.HasPrefix(name, prefix) {
			items = append(items, map[string]types.AttributeValue{"name": item["name"]})
		}
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

var _ blobstore.Store = (*TableStore)(nil)

func TestTableStore(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	store := NewTableStore(client, "blobs", "thumbs/")

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Open(ctx, "missing")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("PutOpen", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "a", []byte("hello")))

		data, err := blobstore.ReadAll(ctx, store, "a")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))

		assert.Contains(t, client.items, "thumbs/a")
	})

	t.Run("TooLarge", func(t *testing.T) {
		err := store.Put(ctx, "big", make([]byte, MaxItemSize+1))
		assert.ErrorIs(t, err, ErrItemTooLarge)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "b/1", []byte("x")))
		require.NoError(t, store.Put(ctx, "b/0", []byte("x")))
		require.NoError(t, NewTableStore(client, "blobs", "other/").Put(ctx, "b/2", []byte("x")))

		names, err := store.List(ctx, "b/")
		require.NoError(t, err)
		assert.Equal(t, []string{"b/0", "b/1"}, names)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b/0", "b/1"}, all)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "a"))
		_, err := store.Open(ctx, "a")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})
}

func TestTableStore_Loader(t *testing.T) {
	ctx := context.Background()
	store := NewTableStore(newMockDDBClient(), "blobs", "")
	l := blobstore.NewLoader[[]string](store, blobstore.WithCompression(codec.CompressionZSTD))

	require.NoError(t, l.Save(ctx, "tags", []string{"go", "cache"}))

	c, err := lrucache.New(4, l.Load)
	require.NoError(t, err)
	defer c.Close()

	tags, err := c.Get(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "cache"}, tags)
}
