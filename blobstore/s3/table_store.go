package s3

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/lrucache/blobstore"
)

// MaxItemSize is the largest blob a TableStore accepts.
// DynamoDB items are limited to 400KB including attribute names.
const MaxItemSize = 390 * 1024

// ErrItemTooLarge is returned by TableStore.Put for blobs above MaxItemSize.
var ErrItemTooLarge = errors.New("blob exceeds dynamodb item size")

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// TableStore implements blobstore.Store on a DynamoDB table for small blobs
// such as encoded cache values.
//
// Table schema:
//   - Partition key: name (string)
//   - Attribute: data (binary)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name lrucache-blobs \
//	  --attribute-definitions AttributeName=name,AttributeType=S \
//	  --key-schema AttributeName=name,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type TableStore struct {
	client    DDBClient
	tableName string
	prefix    string
}

// NewTableStore creates a new DynamoDB blob store.
// rootPrefix is prepended to all item names.
func NewTableStore(client DDBClient, tableName, rootPrefix string) *TableStore {
	return &TableStore{
		client:    client,
		tableName: tableName,
		prefix:    rootPrefix,
	}
}

func (s *TableStore) itemKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"name": &types.AttributeValueMemberS{Value: s.prefix + name},
	}
}

// Open reads the item with a consistent read.
func (s *TableStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item %q: %w", name, err)
	}
	if len(resp.Item) == 0 {
		return nil, blobstore.ErrNotFound
	}

	data, ok := resp.Item["data"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("invalid data attribute for %q", name)
	}
	return blobstore.BytesBlob(data.Value), nil
}

func (s *TableStore) Put(ctx context.Context, name string, data []byte) error {
	if len(data) > MaxItemSize {
		return fmt.Errorf("%w: %q is %d bytes", ErrItemTooLarge, name, len(data))
	}
	item := s.itemKey(name)
	item["data"] = &types.AttributeValueMemberB{Value: data}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item %q: %w", name, err)
	}
	return nil
}

func (s *TableStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item %q: %w", name, err)
	}
	return nil
}

// List scans the table for names with the given prefix.
func (s *TableStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:            aws.String(s.tableName),
		ProjectionExpression: aws.String("#n"),
		FilterExpression:     aws.String("begins_with(#n, :p)"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: s.prefix + prefix},
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", s.tableName, err)
		}
		for _, item := range page.Items {
			attr, ok := item["name"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			names = append(names, strings.TrimPrefix(attr.Value, s.prefix))
		}
	}

	sort.Strings(names)
	return names, nil
}
