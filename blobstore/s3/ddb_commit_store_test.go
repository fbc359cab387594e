package s3

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/metastore/blobstore"
	"github.com/hupe1980/metastore/blobstore/blobstoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB mock for testing.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue // name:version -> item
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func itemKey(item map[string]types.AttributeValue) (string, uint64) {
	name := item[attrName].(*types.AttributeValueMemberS).Value
	version, _ := strconv.ParseUint(item[attrVersion].(*types.AttributeValueMemberN).Value, 10, 64)
	return name, version
}

func (m *mockDDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, version := itemKey(params.Item)
	key := name + ":" + strconv.FormatUint(version, 10)

	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name := params.ExpressionAttributeValues[":name"].(*types.AttributeValueMemberS).Value
	maxVersion := uint64(1<<64 - 1)
	if v, ok := params.ExpressionAttributeValues[":max"].(*types.AttributeValueMemberN); ok {
		maxVersion, _ = strconv.ParseUint(v.Value, 10, 64)
	}

	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		n, v := itemKey(item)
		if n == name && v <= maxVersion {
			items = append(items, item)
		}
	}

	slices.SortFunc(items, func(a, b map[string]types.AttributeValue) int {
		_, va := itemKey(a)
		_, vb := itemKey(b)
		if !aws.ToBool(params.ScanIndexForward) && params.ScanIndexForward != nil {
			va, vb = vb, va
		}
		switch {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	})

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}

	return &dynamodb.QueryOutput{Items: items}, nil
}

func (m *mockDDBClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := ""
	if v, ok := params.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS); ok {
		prefix = v.Value
	}

	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		name, _ := itemKey(item)
		if strings.HasPrefix(name, prefix) {
			items = append(items, item)
		}
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

func (m *mockDDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, version := itemKey(params.Key)
	delete(m.items, name+":"+strconv.FormatUint(version, 10))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDDBClient) versions(name string) []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []uint64
	for _, item := range m.items {
		n, v := itemKey(item)
		if n == name {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

func newTestDDBCommitStore() (*DDBCommitStore, *mockDDBClient, *blobstore.MemoryStore) {
	ddb := newMockDDBClient()
	content := blobstore.NewMemoryStore()
	return NewDDBCommitStore(content, ddb, "metastore-commits"), ddb, content
}

func TestDDBCommitStore_Suite(t *testing.T) {
	store, _, _ := newTestDDBCommitStore()
	blobstoretest.RunSuite(t, store, blobstoretest.Options{})
}

func TestDDBCommitStore_FirstCommit(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestDDBCommitStore()

	fp, err := store.PutIf(ctx, "logs/metastore.json", []byte("v1"), blobstore.NoFingerprint)
	require.NoError(t, err)
	assert.Equal(t, blobstore.Fingerprint("1"), fp)

	data, got, err := store.Get(ctx, "logs/metastore.json")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
	assert.Equal(t, fp, got)
}

func TestDDBCommitStore_PrunesOldRevisions(t *testing.T) {
	ctx := context.Background()
	store, ddb, content := newTestDDBCommitStore()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Put(ctx, "idx", []byte{byte(i)}))
	}

	assert.Equal(t, []uint64{4, 5}, ddb.versions("idx"))
	assert.Equal(t, 2, content.Len())

	data, fp, err := store.Get(ctx, "idx")
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, data)
	assert.Equal(t, blobstore.Fingerprint("5"), fp)
}

func TestDDBCommitStore_DeleteThenRecreate(t *testing.T) {
	ctx := context.Background()
	store, _, content := newTestDDBCommitStore()

	fp, err := store.PutIf(ctx, "idx", []byte("a"), blobstore.NoFingerprint)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "idx"))
	assert.Equal(t, 0, content.Len())

	_, _, err = store.Get(ctx, "idx")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	// The old fingerprint no longer matches.
	_, err = store.PutIf(ctx, "idx", []byte("b"), fp)
	assert.ErrorIs(t, err, blobstore.ErrPreconditionFailed)

	_, err = store.PutIf(ctx, "idx", []byte("b"), blobstore.NoFingerprint)
	require.NoError(t, err)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"idx"}, names)
}

func TestDDBCommitStore_DeleteUncommittedContent(t *testing.T) {
	ctx := context.Background()
	store, _, content := newTestDDBCommitStore()

	require.NoError(t, content.Put(ctx, "logs/s1.split", []byte("split-data")))
	require.NoError(t, store.Delete(ctx, "logs/s1.split"))

	_, _, err := content.Get(ctx, "logs/s1.split")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "logs/s1.split"), blobstore.ErrNotFound)
}

func TestDDBCommitStore_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestDDBCommitStore()

	_, err := store.PutIf(ctx, "idx", []byte("base"), blobstore.NoFingerprint)
	require.NoError(t, err)
	_, fp, err := store.Get(ctx, "idx")
	require.NoError(t, err)

	const writers = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.PutIf(ctx, "idx", []byte{byte(i)}, fp); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
