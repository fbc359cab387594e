// Package backendtest provides a conformance suite for backend.Backend
// implementations.
package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/metastore/backend"
	"github.com/hupe1980/metastore/internal/manifest"
	"github.com/hupe1980/metastore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// NewManifest returns a manifest at version 1 with a few splits in every state.
func NewManifest(t *testing.T, indexID string) *manifest.Manifest {
	t.Helper()
	m := manifest.New(model.IndexMetadata{
		IndexID:   indexID,
		IndexURI:  "s3://bucket/" + indexID,
		Config:    json.RawMessage(`{"doc_mapping":{"mode":"dynamic"}}`),
		CreatedAt: t0,
	})
	require.NoError(t, m.StageSplits([]model.SplitMetadata{
		{SplitID: "s1", NumDocs: 1000, SizeBytes: 10, Location: indexID + "/s1.split", TimeRange: &model.TimeRange{Start: 1, End: 5}, Tags: []string{"a"}},
		{SplitID: "s2", NumDocs: 2000, SizeBytes: 20, Location: indexID + "/s2.split"},
		{SplitID: "s3", NumDocs: 3000, SizeBytes: 30, Location: indexID + "/s3.split", FooterOffsets: &model.ByteRange{Start: 7, End: 9}},
	}, t0))
	_, err := m.PublishSplits([]string{"s1", "s2"}, nil, t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = m.MarkSplitsForDeletion([]string{"s2"}, t0.Add(2*time.Minute))
	require.NoError(t, err)
	m.Bump(t0.Add(3 * time.Minute))
	return m
}

func next(t *testing.T, m *manifest.Manifest, splitID string) *manifest.Manifest {
	t.Helper()
	n := m.Clone()
	require.NoError(t, n.StageSplits([]model.SplitMetadata{{SplitID: splitID}}, t0))
	n.Bump(t0.Add(time.Hour))
	return n
}

// assertSameManifest compares the logical content of two manifests.
func assertSameManifest(t *testing.T, expected, actual *manifest.Manifest) {
	t.Helper()
	e, err := json.Marshal(expected)
	require.NoError(t, err)
	a, err := json.Marshal(actual)
	require.NoError(t, err)
	assert.JSONEq(t, string(e), string(a))
}

// RunSuite runs the conformance tests. newBackend must return an empty backend.
func RunSuite(t *testing.T, newBackend func(t *testing.T) backend.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("ReadMissing", func(t *testing.T) {
		b := newBackend(t)
		_, _, err := b.ReadManifest(ctx, "missing")
		assert.ErrorIs(t, err, backend.ErrNotFound)
	})

	t.Run("CreateAndRead", func(t *testing.T) {
		b := newBackend(t)
		m := NewManifest(t, "logs")

		token, err := b.WriteManifest(ctx, "logs", m, backend.NoToken)
		require.NoError(t, err)
		assert.NotEqual(t, backend.NoToken, token)

		got, readToken, err := b.ReadManifest(ctx, "logs")
		require.NoError(t, err)
		assert.Equal(t, token, readToken)
		assertSameManifest(t, m, got)
	})

	t.Run("CreateTwiceConflicts", func(t *testing.T) {
		b := newBackend(t)
		m := NewManifest(t, "logs")
		_, err := b.WriteManifest(ctx, "logs", m, backend.NoToken)
		require.NoError(t, err)

		_, err = b.WriteManifest(ctx, "logs", m, backend.NoToken)
		assert.ErrorIs(t, err, backend.ErrVersionConflict)
	})

	t.Run("ConditionalWrite", func(t *testing.T) {
		b := newBackend(t)
		m1 := NewManifest(t, "logs")
		tok1, err := b.WriteManifest(ctx, "logs", m1, backend.NoToken)
		require.NoError(t, err)

		m2 := next(t, m1, "s4")
		tok2, err := b.WriteManifest(ctx, "logs", m2, tok1)
		require.NoError(t, err)
		assert.NotEqual(t, tok1, tok2)

		// Stale token loses.
		_, err = b.WriteManifest(ctx, "logs", next(t, m1, "s5"), tok1)
		assert.ErrorIs(t, err, backend.ErrVersionConflict)

		got, tok, err := b.ReadManifest(ctx, "logs")
		require.NoError(t, err)
		assert.Equal(t, tok2, tok)
		assertSameManifest(t, m2, got)
	})

	t.Run("WriteMissingConflicts", func(t *testing.T) {
		b := newBackend(t)
		m1 := NewManifest(t, "logs")
		tok1, err := b.WriteManifest(ctx, "logs", m1, backend.NoToken)
		require.NoError(t, err)

		_, err = b.WriteManifest(ctx, "other", next(t, m1, "s4"), tok1)
		assert.ErrorIs(t, err, backend.ErrVersionConflict)
	})

	t.Run("Delete", func(t *testing.T) {
		b := newBackend(t)
		m1 := NewManifest(t, "logs")
		tok1, err := b.WriteManifest(ctx, "logs", m1, backend.NoToken)
		require.NoError(t, err)
		tok2, err := b.WriteManifest(ctx, "logs", next(t, m1, "s4"), tok1)
		require.NoError(t, err)

		assert.ErrorIs(t, b.DeleteManifest(ctx, "logs", tok1), backend.ErrVersionConflict)
		require.NoError(t, b.DeleteManifest(ctx, "logs", tok2))

		_, _, err = b.ReadManifest(ctx, "logs")
		assert.ErrorIs(t, err, backend.ErrNotFound)
		assert.ErrorIs(t, b.DeleteManifest(ctx, "logs", backend.NoToken), backend.ErrNotFound)

		// The id can be created again.
		_, err = b.WriteManifest(ctx, "logs", NewManifest(t, "logs"), backend.NoToken)
		require.NoError(t, err)
	})

	t.Run("UnconditionalDelete", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.WriteManifest(ctx, "logs", NewManifest(t, "logs"), backend.NoToken)
		require.NoError(t, err)
		require.NoError(t, b.DeleteManifest(ctx, "logs", backend.NoToken))

		_, _, err = b.ReadManifest(ctx, "logs")
		assert.ErrorIs(t, err, backend.ErrNotFound)
	})

	t.Run("ListIndexes", func(t *testing.T) {
		b := newBackend(t)
		ids, err := b.ListIndexes(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)

		for _, id := range []string{"metrics", "logs-2024", "traces"} {
			_, err := b.WriteManifest(ctx, id, NewManifest(t, id), backend.NoToken)
			require.NoError(t, err)
		}
		require.NoError(t, b.DeleteManifest(ctx, "traces", backend.NoToken))

		ids, err = b.ListIndexes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"logs-2024", "metrics"}, ids)
	})

	t.Run("IndexesAreIsolated", func(t *testing.T) {
		b := newBackend(t)
		ma := NewManifest(t, "alpha")
		mb := NewManifest(t, "beta")
		tokA, err := b.WriteManifest(ctx, "alpha", ma, backend.NoToken)
		require.NoError(t, err)
		_, err = b.WriteManifest(ctx, "beta", mb, backend.NoToken)
		require.NoError(t, err)

		_, err = b.WriteManifest(ctx, "alpha", next(t, ma, "only-alpha"), tokA)
		require.NoError(t, err)

		got, _, err := b.ReadManifest(ctx, "beta")
		require.NoError(t, err)
		assertSameManifest(t, mb, got)
		assert.Nil(t, got.Split("only-alpha"))
	})

	t.Run("RacingWriters", func(t *testing.T) {
		b := newBackend(t)
		base := NewManifest(t, "race")
		tok, err := b.WriteManifest(ctx, "race", base, backend.NoToken)
		require.NoError(t, err)

		const writers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins []string
		)
		candidates := make([]*manifest.Manifest, writers)
		for i := range candidates {
			candidates[i] = next(t, base, fmt.Sprintf("w%d", i))
		}
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := b.WriteManifest(ctx, "race", candidates[i], tok); err == nil {
					mu.Lock()
					wins = append(wins, fmt.Sprintf("w%d", i))
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		require.Len(t, wins, 1)
		got, _, err := b.ReadManifest(ctx, "race")
		require.NoError(t, err)
		assert.NotNil(t, got.Split(wins[0]))
	})
}
