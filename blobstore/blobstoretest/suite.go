// Package blobstoretest provides a conformance suite for blobstore.ObjectStore
// implementations.
package blobstoretest

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/metastore/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Options tunes the suite for backends with weaker guarantees.
type Options struct {
	// DeleteMissingIsNoop is set for stores that cannot report a missing key on delete (S3).
	DeleteMissingIsNoop bool
	// SkipConcurrency skips the racing writers test (mocks without real atomicity).
	SkipConcurrency bool
}

// RunSuite runs the conformance tests against store.
func RunSuite(t *testing.T, store blobstore.ObjectStore, opts Options) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, fp, err := store.Get(ctx, "suite/missing")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
		assert.Equal(t, blobstore.NoFingerprint, fp)
	})

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "suite/put", []byte("abcdef")))
		data, fp, err := store.Get(ctx, "suite/put")
		require.NoError(t, err)
		assert.Equal(t, []byte("abcdef"), data)
		assert.NotEqual(t, blobstore.NoFingerprint, fp)
	})

	t.Run("PutIfCreate", func(t *testing.T) {
		fp, err := store.PutIf(ctx, "suite/cas", []byte("v1"), blobstore.NoFingerprint)
		require.NoError(t, err)
		assert.NotEqual(t, blobstore.NoFingerprint, fp)

		_, err = store.PutIf(ctx, "suite/cas", []byte("v1-again"), blobstore.NoFingerprint)
		assert.ErrorIs(t, err, blobstore.ErrPreconditionFailed)
	})

	t.Run("PutIfSwap", func(t *testing.T) {
		_, fp, err := store.Get(ctx, "suite/cas")
		require.NoError(t, err)

		fp2, err := store.PutIf(ctx, "suite/cas", []byte("v2"), fp)
		require.NoError(t, err)
		assert.NotEqual(t, fp, fp2)

		// Stale fingerprint loses.
		_, err = store.PutIf(ctx, "suite/cas", []byte("v3"), fp)
		assert.ErrorIs(t, err, blobstore.ErrPreconditionFailed)

		data, got, err := store.Get(ctx, "suite/cas")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), data)
		assert.Equal(t, fp2, got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "suite/del", []byte("x")))
		require.NoError(t, store.Delete(ctx, "suite/del"))
		_, _, err := store.Get(ctx, "suite/del")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)

		err = store.Delete(ctx, "suite/del")
		if opts.DeleteMissingIsNoop {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, blobstore.ErrNotFound)
		}
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "list/b/two", []byte("2")))
		require.NoError(t, store.Put(ctx, "list/a/one", []byte("1")))
		require.NoError(t, store.Put(ctx, "other/three", []byte("3")))

		names, err := store.List(ctx, "list/")
		require.NoError(t, err)
		assert.Equal(t, []string{"list/a/one", "list/b/two"}, names)
	})

	if opts.SkipConcurrency {
		return
	}

	t.Run("RacingWriters", func(t *testing.T) {
		_, err := store.PutIf(ctx, "suite/race", []byte("base"), blobstore.NoFingerprint)
		require.NoError(t, err)
		_, fp, err := store.Get(ctx, "suite/race")
		require.NoError(t, err)

		const writers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.PutIf(ctx, "suite/race", []byte{byte('a' + i)}, fp)
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}
