package manifest

import (
	"testing"
	"time"

	"github.com/hupe1980/metastore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestManifest(t *testing.T, ids ...string) *Manifest {
	t.Helper()
	m := New(model.IndexMetadata{IndexID: "logs-2024", CreatedAt: t0})
	splits := make([]model.SplitMetadata, len(ids))
	for i, id := range ids {
		splits[i] = model.SplitMetadata{SplitID: id, NumDocs: uint64(1000 * (i + 1))}
	}
	require.NoError(t, m.StageSplits(splits, t0))
	return m
}

func states(m *Manifest) map[string]model.SplitState {
	out := make(map[string]model.SplitState, len(m.Splits))
	for _, s := range m.Splits {
		out[s.SplitID] = s.State
	}
	return out
}

func TestStageSplits(t *testing.T) {
	m := newTestManifest(t, "s1", "s2")

	require.Len(t, m.Splits, 2)
	assert.Equal(t, "s1", m.Splits[0].SplitID)
	assert.Equal(t, model.SplitStateStaged, m.Splits[0].State)
	assert.Equal(t, t0, m.Splits[0].CreatedAt)
	assert.Nil(t, m.Splits[0].PublishedAt)

	t.Run("DuplicateInCatalog", func(t *testing.T) {
		err := m.StageSplits([]model.SplitMetadata{{SplitID: "s3"}, {SplitID: "s1"}}, t0)
		assert.ErrorIs(t, err, ErrDuplicateSplit)
		assert.Len(t, m.Splits, 2, "a rejected batch stages nothing")
	})

	t.Run("DuplicateInBatch", func(t *testing.T) {
		err := m.StageSplits([]model.SplitMetadata{{SplitID: "s4"}, {SplitID: "s4"}}, t0)
		assert.ErrorIs(t, err, ErrDuplicateSplit)
	})

	t.Run("CallerStateIgnored", func(t *testing.T) {
		now := t0.Add(time.Hour)
		err := m.StageSplits([]model.SplitMetadata{{SplitID: "s5", State: model.SplitStatePublished, PublishedAt: &now}}, now)
		require.NoError(t, err)
		s := m.Split("s5")
		assert.Equal(t, model.SplitStateStaged, s.State)
		assert.Nil(t, s.PublishedAt)
	})
}

func TestPublishSplits(t *testing.T) {
	m := newTestManifest(t, "s1", "s2", "s3")
	t1 := t0.Add(time.Minute)

	changed, err := m.PublishSplits([]string{"s1", "s2"}, nil, t1)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.SplitStatePublished, m.Split("s1").State)
	assert.Equal(t, t1, *m.Split("s1").PublishedAt)

	t2 := t1.Add(time.Minute)
	changed, err = m.PublishSplits([]string{"s3"}, []string{"s1"}, t2)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, map[string]model.SplitState{
		"s1": model.SplitStateMarkedForDeletion,
		"s2": model.SplitStatePublished,
		"s3": model.SplitStatePublished,
	}, states(m))
	assert.Equal(t, t2, *m.Split("s1").MarkedForDeletionAt)
	assert.Equal(t, []string{"s1"}, m.Split("s3").ReplacedSplitIDs)
}

func TestPublishSplits_Errors(t *testing.T) {
	tests := []struct {
		name     string
		stage    []string
		replace  []string
		expected error
	}{
		{"MissingStage", []string{"nope"}, nil, ErrSplitNotFound},
		{"MissingReplaced", []string{"s1"}, []string{"nope"}, ErrSplitNotFound},
		{"AlreadyPublished", []string{"p1"}, nil, ErrInvalidStateTransition},
		{"ReplaceStaged", []string{"s1"}, []string{"s2"}, ErrInvalidStateTransition},
		{"ReplaceMarked", nil, []string{"d1"}, ErrInvalidStateTransition},
		{"SameSplitBothSides", []string{"p1"}, []string{"p1"}, ErrInvalidStateTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManifest(t, "s1", "s2", "p1", "d1")
			_, err := m.PublishSplits([]string{"p1", "d1"}, nil, t0)
			require.NoError(t, err)
			_, err = m.MarkSplitsForDeletion([]string{"d1"}, t0)
			require.NoError(t, err)

			before := m.Clone()
			changed, err := m.PublishSplits(tt.stage, tt.replace, t0.Add(time.Hour))
			assert.ErrorIs(t, err, tt.expected)
			assert.False(t, changed)
			assert.Equal(t, before, m, "a failed publish must not modify the manifest")
		})
	}
}

func TestPublishSplits_EmptyIsNoop(t *testing.T) {
	m := newTestManifest(t, "s1")
	changed, err := m.PublishSplits(nil, nil, t0)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMarkSplitsForDeletion(t *testing.T) {
	m := newTestManifest(t, "s1", "s2")
	_, err := m.PublishSplits([]string{"s2"}, nil, t0)
	require.NoError(t, err)

	t1 := t0.Add(time.Minute)
	changed, err := m.MarkSplitsForDeletion([]string{"s1", "s2"}, t1)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.SplitStateMarkedForDeletion, m.Split("s1").State)
	assert.Equal(t, model.SplitStateMarkedForDeletion, m.Split("s2").State)

	once := m.Clone()
	changed, err = m.MarkSplitsForDeletion([]string{"s1", "s2"}, t1.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, once, m, "marking twice equals marking once")

	_, err = m.MarkSplitsForDeletion([]string{"s1", "missing"}, t1)
	assert.ErrorIs(t, err, ErrSplitNotFound)
}

func TestDeleteSplits(t *testing.T) {
	m := newTestManifest(t, "s1", "s2", "s3")
	_, err := m.MarkSplitsForDeletion([]string{"s1", "s3"}, t0)
	require.NoError(t, err)

	_, err = m.DeleteSplits([]string{"s2"})
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	changed, err := m.DeleteSplits([]string{"s1", "s3", "gone"})
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, m.Splits, 1)
	assert.Equal(t, "s2", m.Splits[0].SplitID)

	changed, err = m.DeleteSplits([]string{"s1"})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestCloneIsDeep(t *testing.T) {
	m := newTestManifest(t, "s1")
	m.Split("s1").Tags = []string{"a"}
	m.Index.Config = []byte(`{"k":1}`)

	c := m.Clone()
	c.Split("s1").Tags[0] = "b"
	c.Split("s1").State = model.SplitStatePublished
	c.Index.Config[0] = '['

	assert.Equal(t, "a", m.Split("s1").Tags[0])
	assert.Equal(t, model.SplitStateStaged, m.Split("s1").State)
	assert.Equal(t, byte('{'), m.Index.Config[0])
}

func TestBump(t *testing.T) {
	m := New(model.IndexMetadata{IndexID: "idx", Version: 42})
	assert.Equal(t, uint64(0), m.Version())

	m.Bump(t0)
	m.Bump(t0.Add(time.Second))
	assert.Equal(t, uint64(2), m.Version())
	assert.Equal(t, t0.Add(time.Second), m.Index.UpdatedAt)
}
