package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/hupe1980/metastore/blobstore"
	"github.com/hupe1980/metastore/blobstore/blobstoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

// TestGCSStore_Integration runs against a real bucket named by
// METASTORE_TEST_GCS_BUCKET. Skip if not set.
func TestGCSStore_Integration(t *testing.T) {
	bucket := os.Getenv("METASTORE_TEST_GCS_BUCKET")
	if bucket == "" {
		t.Skip("METASTORE_TEST_GCS_BUCKET not set")
	}

	ctx := context.Background()
	store, err := New(ctx, bucket, fmt.Sprintf("test-%d", time.Now().UnixNano()), os.Getenv("METASTORE_TEST_GCS_CREDENTIALS"))
	require.NoError(t, err)
	defer store.Close()

	blobstoretest.RunSuite(t, store, blobstoretest.Options{})

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	for _, name := range names {
		require.NoError(t, store.Delete(ctx, name))
	}
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil))
	assert.Equal(t, blobstore.ErrNotFound, translateError(storage.ErrObjectNotExist))
	assert.Equal(t, blobstore.ErrNotFound, translateError(fmt.Errorf("read: %w", storage.ErrObjectNotExist)))
	assert.Equal(t, blobstore.ErrPreconditionFailed, translateError(&googleapi.Error{Code: http.StatusPreconditionFailed}))
	assert.Equal(t, blobstore.ErrNotFound, translateError(&googleapi.Error{Code: http.StatusNotFound}))

	other := errors.New("boom")
	assert.Equal(t, other, translateError(other))
}

func TestGenerationFingerprint(t *testing.T) {
	assert.Equal(t, blobstore.Fingerprint("1712345678901234"), generationFingerprint(1712345678901234))
}
