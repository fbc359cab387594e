package blobstore_test

import (
	"context"
	"testing"

	"github.com/hupe1980/metastore/blobstore"
	"github.com/hupe1980/metastore/blobstore/blobstoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	blobstoretest.RunSuite(t, blobstore.NewMemoryStore(), blobstoretest.Options{})
}

func TestMemoryStore_IdenticalContentChangesFingerprint(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	fp1, err := store.PutIf(ctx, "m", []byte("same"), blobstore.NoFingerprint)
	require.NoError(t, err)
	fp2, err := store.PutIf(ctx, "m", []byte("same"), fp1)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := blobstore.NewMemoryStore()
	_, _, err := store.Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Put(ctx, "x", nil), context.Canceled)
}
