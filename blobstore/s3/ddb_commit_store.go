package s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/hupe1980/metastore/blobstore"
)

// DDBCommitStore implements blobstore.ObjectStore on top of a content store
// (typically S3 without conditional writes, or an S3-compatible gateway) with
// DynamoDB as the commit log that provides compare-and-swap.
//
// Every write stores the content under a fresh key and then appends a version
// item to DynamoDB with a conditional PutItem. The fingerprint of a blob is its
// latest committed version number. A delete commits a tombstone version.
//
// Table schema:
//   - Partition key: blob_name (string)
//   - Sort key: version (number) - monotonically increasing per blob
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name metastore-commits \
//	  --attribute-definitions AttributeName=blob_name,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=blob_name,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	content   blobstore.ObjectStore
	ddbClient DDBClient
	tableName string
	// retain is the number of committed revisions kept per blob.
	retain int
}

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

var _ DDBClient = (*dynamodb.Client)(nil)

const (
	attrName       = "blob_name"
	attrVersion    = "version"
	attrContentKey = "content_key"
	attrDeleted    = "deleted"

	defaultRetain = 2
	// maxGetAttempts bounds re-reads when a revision is pruned between the
	// DynamoDB query and the content fetch.
	maxGetAttempts = 3
	// maxPutAttempts bounds unconditional Put retries.
	maxPutAttempts = 10
)

// NewDDBCommitStore creates a new content store + DynamoDB commit store.
func NewDDBCommitStore(content blobstore.ObjectStore, ddbClient DDBClient, tableName string) *DDBCommitStore {
	return &DDBCommitStore{
		content:   content,
		ddbClient: ddbClient,
		tableName: tableName,
		retain:    defaultRetain,
	}
}

type commitItem struct {
	version    uint64
	contentKey string
	deleted    bool
}

func (c commitItem) fingerprint() blobstore.Fingerprint {
	if c.version == 0 || c.deleted {
		return blobstore.NoFingerprint
	}
	return blobstore.Fingerprint(strconv.FormatUint(c.version, 10))
}

// Get returns the latest committed revision of a blob.
func (s *DDBCommitStore) Get(ctx context.Context, name string) ([]byte, blobstore.Fingerprint, error) {
	for attempt := 0; ; attempt++ {
		latest, err := s.latest(ctx, name)
		if err != nil {
			return nil, blobstore.NoFingerprint, err
		}
		if latest.fingerprint() == blobstore.NoFingerprint {
			return nil, blobstore.NoFingerprint, blobstore.ErrNotFound
		}
		data, _, err := s.content.Get(ctx, latest.contentKey)
		if errors.Is(err, blobstore.ErrNotFound) && attempt+1 < maxGetAttempts {
			continue
		}
		if err != nil {
			return nil, blobstore.NoFingerprint, err
		}
		return data, latest.fingerprint(), nil
	}
}

// Put writes a blob, retrying the commit until it lands.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		latest, err := s.latest(ctx, name)
		if err != nil {
			return err
		}
		_, err = s.commit(ctx, name, data, latest)
		if !errors.Is(err, blobstore.ErrPreconditionFailed) {
			return err
		}
	}
	return fmt.Errorf("ddb commit %s: %w", name, blobstore.ErrPreconditionFailed)
}

// PutIf writes a blob if its latest committed version equals expected.
func (s *DDBCommitStore) PutIf(ctx context.Context, name string, data []byte, expected blobstore.Fingerprint) (blobstore.Fingerprint, error) {
	latest, err := s.latest(ctx, name)
	if err != nil {
		return blobstore.NoFingerprint, err
	}
	if latest.fingerprint() != expected {
		return blobstore.NoFingerprint, blobstore.ErrPreconditionFailed
	}
	return s.commit(ctx, name, data, latest)
}

// Delete commits a tombstone and removes the blob's content revisions.
// Names without a live commit, such as split files uploaded directly to the
// content store, are deleted from the content store.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	latest, err := s.latest(ctx, name)
	if err != nil {
		return err
	}
	if latest.fingerprint() == blobstore.NoFingerprint {
		return s.content.Delete(ctx, name)
	}
	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			attrName:    &types.AttributeValueMemberS{Value: name},
			attrVersion: &types.AttributeValueMemberN{Value: strconv.FormatUint(latest.version+1, 10)},
			attrDeleted: &types.AttributeValueMemberBOOL{Value: true},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		return translateDDBError(err)
	}
	s.prune(ctx, name, latest.version+1, 0)
	return nil
}

// List returns the live blob names with the given prefix.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	}
	if prefix != "" {
		input.FilterExpression = aws.String("begins_with(blob_name, :prefix)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		}
	}

	latest := make(map[string]commitItem)
	paginator := dynamodb.NewScanPaginator(s.ddbClient, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan DynamoDB: %w", err)
		}
		for _, raw := range page.Items {
			name, item, err := decodeItem(raw)
			if err != nil {
				return nil, err
			}
			if cur, ok := latest[name]; !ok || item.version > cur.version {
				latest[name] = item
			}
		}
	}

	var names []string
	for name, item := range latest {
		if !item.deleted && strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// latest queries DynamoDB for the latest committed version of name.
func (s *DDBCommitStore) latest(ctx context.Context, name string) (commitItem, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("blob_name = :name"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name": &types.AttributeValueMemberS{Value: name},
		},
		ScanIndexForward: aws.Bool(false), // Descending order
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return commitItem{}, fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return commitItem{}, nil
	}
	_, item, err := decodeItem(resp.Items[0])
	return item, err
}

// commit writes the content revision and atomically appends version latest+1.
func (s *DDBCommitStore) commit(ctx context.Context, name string, data []byte, latest commitItem) (blobstore.Fingerprint, error) {
	newVersion := latest.version + 1
	contentKey := path.Join("_revisions", fmt.Sprintf("%s.%020d-%s", name, newVersion, uuid.NewString()))
	if err := s.content.Put(ctx, contentKey, data); err != nil {
		return blobstore.NoFingerprint, err
	}

	// Conditional put: only succeed if this version doesn't exist yet
	_, err := s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			attrName:       &types.AttributeValueMemberS{Value: name},
			attrVersion:    &types.AttributeValueMemberN{Value: strconv.FormatUint(newVersion, 10)},
			attrContentKey: &types.AttributeValueMemberS{Value: contentKey},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		_ = s.content.Delete(ctx, contentKey)
		return blobstore.NoFingerprint, translateDDBError(err)
	}

	s.prune(ctx, name, newVersion, s.retain)
	return blobstore.Fingerprint(strconv.FormatUint(newVersion, 10)), nil
}

// prune removes revisions older than the newest keep ones. Best effort: a
// failure leaves garbage behind but never affects the committed state.
func (s *DDBCommitStore) prune(ctx context.Context, name string, newest uint64, keep int) {
	if newest <= uint64(keep) {
		return
	}
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("blob_name = :name AND version <= :max"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name": &types.AttributeValueMemberS{Value: name},
			":max":  &types.AttributeValueMemberN{Value: strconv.FormatUint(newest-uint64(keep), 10)},
		},
	})
	if err != nil {
		return
	}
	for _, raw := range resp.Items {
		_, item, err := decodeItem(raw)
		if err != nil || (item.version == newest && item.deleted) {
			continue
		}
		if item.contentKey != "" {
			if err := s.content.Delete(ctx, item.contentKey); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
				continue
			}
		}
		_, _ = s.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				attrName:    &types.AttributeValueMemberS{Value: name},
				attrVersion: &types.AttributeValueMemberN{Value: strconv.FormatUint(item.version, 10)},
			},
		})
	}
}

func decodeItem(item map[string]types.AttributeValue) (string, commitItem, error) {
	nameAttr, ok := item[attrName].(*types.AttributeValueMemberS)
	if !ok {
		return "", commitItem{}, errors.New("invalid blob_name attribute in DynamoDB")
	}
	versionAttr, ok := item[attrVersion].(*types.AttributeValueMemberN)
	if !ok {
		return "", commitItem{}, errors.New("invalid version attribute in DynamoDB")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return "", commitItem{}, fmt.Errorf("failed to parse version: %w", err)
	}

	out := commitItem{version: version}
	if keyAttr, ok := item[attrContentKey].(*types.AttributeValueMemberS); ok {
		out.contentKey = keyAttr.Value
	}
	if delAttr, ok := item[attrDeleted].(*types.AttributeValueMemberBOOL); ok {
		out.deleted = delAttr.Value
	}
	return nameAttr.Value, out, nil
}

func translateDDBError(err error) error {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return blobstore.ErrPreconditionFailed
	}
	return fmt.Errorf("failed to commit version to DynamoDB: %w", err)
}
