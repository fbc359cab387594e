package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/hupe1980/metastore/blobstore"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Store implements blobstore.ObjectStore for Google Cloud Storage.
//
// Fingerprints are object generation numbers. PutIf uses generation
// preconditions: GenerationMatch for swaps and DoesNotExist for creates.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// New creates a Store. An empty credentialsFile uses Application Default
// Credentials.
func New(ctx context.Context, bucket, rootPrefix, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return NewStore(client, bucket, rootPrefix), nil
}

// NewStore creates a Store from an existing client.
func NewStore(client *storage.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: rootPrefix,
	}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Get downloads a blob together with its generation.
func (s *Store) Get(ctx context.Context, name string) ([]byte, blobstore.Fingerprint, error) {
	r, err := s.bucket.Object(s.key(name)).NewReader(ctx)
	if err != nil {
		return nil, blobstore.NoFingerprint, translateError(err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, blobstore.NoFingerprint, translateError(err)
	}
	return data, generationFingerprint(r.Attrs.Generation), nil
}

// Put writes a blob unconditionally.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.write(ctx, s.bucket.Object(s.key(name)), data)
	return err
}

// PutIf writes a blob if its generation matches expected.
func (s *Store) PutIf(ctx context.Context, name string, data []byte, expected blobstore.Fingerprint) (blobstore.Fingerprint, error) {
	obj := s.bucket.Object(s.key(name))
	if expected == blobstore.NoFingerprint {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	} else {
		gen, err := strconv.ParseInt(string(expected), 10, 64)
		if err != nil {
			// Not a generation we handed out; it cannot match.
			return blobstore.NoFingerprint, blobstore.ErrPreconditionFailed
		}
		obj = obj.If(storage.Conditions{GenerationMatch: gen})
	}

	fp, err := s.write(ctx, obj, data)
	if errors.Is(err, blobstore.ErrNotFound) {
		return blobstore.NoFingerprint, blobstore.ErrPreconditionFailed
	}
	return fp, err
}

func (s *Store) write(ctx context.Context, obj *storage.ObjectHandle, data []byte) (blobstore.Fingerprint, error) {
	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return blobstore.NoFingerprint, translateError(err)
	}
	if err := w.Close(); err != nil {
		return blobstore.NoFingerprint, translateError(err)
	}
	return generationFingerprint(w.Attrs().Generation), nil
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	return translateError(s.bucket.Object(s.key(name)).Delete(ctx))
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
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: fullPrefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, translateError(err)
		}
		name := strings.TrimPrefix(attrs.Name, s.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

func generationFingerprint(gen int64) blobstore.Fingerprint {
	return blobstore.Fingerprint(strconv.FormatInt(gen, 10))
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return blobstore.ErrNotFound
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusPreconditionFailed:
			return blobstore.ErrPreconditionFailed
		case http.StatusNotFound:
			return blobstore.ErrNotFound
		}
	}
	return err
}
