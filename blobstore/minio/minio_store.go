package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/hupe1980/metastore/blobstore"
	"github.com/minio/minio-go/v7"
)

// Store implements blobstore.ObjectStore for MinIO and S3-compatible storage.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a new MinIO blob store.
// bucket is the MinIO bucket name.
// rootPrefix is prepended to all keys (e.g. "metastore/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Get downloads a blob. The fingerprint is the object's ETag.
func (s *Store) Get(ctx context.Context, name string) ([]byte, blobstore.Fingerprint, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, blobstore.NoFingerprint, translateError(err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		return nil, blobstore.NoFingerprint, translateError(err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, blobstore.NoFingerprint, translateError(err)
	}
	return data, blobstore.Fingerprint(info.ETag), nil
}

// Put writes a blob unconditionally.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return translateError(err)
}

// PutIf writes a blob if its ETag matches expected, or if it does not exist
// when expected is blobstore.NoFingerprint.
func (s *Store) PutIf(ctx context.Context, name string, data []byte, expected blobstore.Fingerprint) (blobstore.Fingerprint, error) {
	opts := minio.PutObjectOptions{}
	if expected == blobstore.NoFingerprint {
		opts.SetMatchETagExcept("*")
	} else {
		opts.SetMatchETag(string(expected))
	}

	info, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		err = translateError(err)
		if err == blobstore.ErrNotFound {
			return blobstore.NoFingerprint, blobstore.ErrPreconditionFailed
		}
		return blobstore.NoFingerprint, err
	}
	return blobstore.Fingerprint(info.ETag), nil
}

// Delete removes a blob. Deleting a missing blob succeeds.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err = translateError(err); err == blobstore.ErrNotFound {
		return nil // Already gone
	}
	return err
}

// List returns all blob names with the given prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.key(prefix)
	if fullPrefix == "." {
		fullPrefix = ""
	}
	if fullPrefix != "" && (prefix == "" || strings.HasSuffix(prefix, "/")) {
		fullPrefix += "/"
	}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, translateError(obj.Err)
		}
		// Strip our root prefix
		name := strings.TrimPrefix(obj.Key, s.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	errResp := minio.ToErrorResponse(err)
	switch {
	case errResp.Code == "NoSuchKey" || errResp.Code == "NotFound":
		return blobstore.ErrNotFound
	case errResp.Code == "PreconditionFailed" || errResp.StatusCode == http.StatusPreconditionFailed:
		return blobstore.ErrPreconditionFailed
	}
	return err
}
