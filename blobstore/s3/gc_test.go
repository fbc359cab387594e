package s3

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/metastore"
	"github.com/hupe1980/metastore/backend/objstore"
	"github.com/hupe1980/metastore/blobstore"
	"github.com/hupe1980/metastore/gc"
	"github.com/hupe1980/metastore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDDBCommitStore_GarbageCollectsSplitFiles(t *testing.T) {
	ctx := context.Background()
	store, _, content := newTestDDBCommitStore()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	b, err := objstore.New(store)
	require.NoError(t, err)
	ms := metastore.New(b, metastore.WithClock(func() time.Time { return now }))
	t.Cleanup(func() { _ = ms.Close() })

	_, err = ms.CreateIndex(ctx, model.IndexMetadata{IndexID: "logs"})
	require.NoError(t, err)

	// Split files are uploaded by indexers straight to the bucket.
	require.NoError(t, content.Put(ctx, "logs/s1.split", []byte("split-data")))
	require.NoError(t, ms.StageSplits(ctx, "logs", []model.SplitMetadata{
		{SplitID: "s1", Location: "logs/s1.split", SizeBytes: 10},
	}))
	require.NoError(t, ms.PublishSplits(ctx, "logs", []string{"s1"}, nil))
	require.NoError(t, ms.MarkSplitsForDeletion(ctx, "logs", []string{"s1"}))

	now = now.Add(2 * time.Hour)
	collector := gc.New(ms, store, func(o *gc.Options) { o.GracePeriod = time.Hour })
	stats, err := collector.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, stats.Deleted, 1)
	assert.Empty(t, stats.Failed)

	_, _, err = content.Get(ctx, "logs/s1.split")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	splits, err := ms.ListAllSplits(ctx, "logs")
	require.NoError(t, err)
	assert.Empty(t, splits)
}
