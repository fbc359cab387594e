package manifest

import (
	"testing"

	"github.com/hupe1980/metastore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitIDs(splits []model.SplitMetadata) []string {
	ids := make([]string, len(splits))
	for i, s := range splits {
		ids[i] = s.SplitID
	}
	return ids
}

func TestListSplits(t *testing.T) {
	m := New(model.IndexMetadata{IndexID: "logs"})
	require.NoError(t, m.StageSplits([]model.SplitMetadata{
		{SplitID: "a", TimeRange: &model.TimeRange{Start: 0, End: 9}, Tags: []string{"tenant:1"}},
		{SplitID: "b", TimeRange: &model.TimeRange{Start: 10, End: 19}, Tags: []string{"tenant:1", "hot"}},
		{SplitID: "c"},
		{SplitID: "d", TimeRange: &model.TimeRange{Start: 20, End: 29}, Tags: []string{"tenant:2"}},
	}, t0))
	_, err := m.PublishSplits([]string{"a", "b", "c"}, nil, t0)
	require.NoError(t, err)

	tests := []struct {
		name     string
		query    model.ListSplitsQuery
		expected []string
	}{
		{"All", model.ListSplitsQuery{}, []string{"a", "b", "c", "d"}},
		{"Published", model.WithStates(model.SplitStatePublished), []string{"a", "b", "c"}},
		{"Staged", model.WithStates(model.SplitStateStaged), []string{"d"}},
		{"Marked", model.WithStates(model.SplitStateMarkedForDeletion), []string{}},
		{"MultipleStates", model.WithStates(model.SplitStateStaged, model.SplitStatePublished), []string{"a", "b", "c", "d"}},
		{"TimeRange", model.ListSplitsQuery{TimeRange: &model.TimeRange{Start: 15, End: 22}}, []string{"b", "c", "d"}},
		{"TimeRangeBoundary", model.ListSplitsQuery{TimeRange: &model.TimeRange{Start: 9, End: 9}}, []string{"a", "c"}},
		{"Tag", model.ListSplitsQuery{Tags: []string{"tenant:1"}}, []string{"a", "b"}},
		{"AllTags", model.ListSplitsQuery{Tags: []string{"tenant:1", "hot"}}, []string{"b"}},
		{"UnknownTag", model.ListSplitsQuery{Tags: []string{"cold"}}, []string{}},
		{"Combined", model.ListSplitsQuery{
			States:    []model.SplitState{model.SplitStatePublished},
			TimeRange: &model.TimeRange{Start: 0, End: 5},
			Tags:      []string{"tenant:1"},
		}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitIDs(m.ListSplits(tt.query)))
		})
	}
}

func TestListSplits_ReturnsCopies(t *testing.T) {
	m := New(model.IndexMetadata{IndexID: "logs"})
	require.NoError(t, m.StageSplits([]model.SplitMetadata{{SplitID: "a", Tags: []string{"x"}}}, t0))

	out := m.ListSplits(model.ListSplitsQuery{})
	out[0].Tags[0] = "y"
	out[0].State = model.SplitStatePublished

	assert.Equal(t, "x", m.Splits[0].Tags[0])
	assert.Equal(t, model.SplitStateStaged, m.Splits[0].State)
}
