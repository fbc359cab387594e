package metastore

import (
	"context"
	"fmt"

	"github.com/hupe1980/metastore/internal/manifest"
	"github.com/hupe1980/metastore/model"
)

// StageSplits registers splits in the Staged state. Staged splits are not
// returned to searchers until published. Every id must be new to the index.
func (ms *Metastore) StageSplits(ctx context.Context, indexID string, splits []model.SplitMetadata) error {
	for i := range splits {
		if err := model.Validate(splits[i]); err != nil {
			return fmt.Errorf("%w: split %d: %w", ErrInvalidArgument, i, err)
		}
	}
	if len(splits) == 0 {
		_, err := ms.read(ctx, "stage_splits", indexID)
		return err
	}

	_, err := ms.mutate(ctx, "stage_splits", indexID, func(m *manifest.Manifest) (bool, error) {
		if err := m.StageSplits(splits, ms.clock()); err != nil {
			return false, err
		}
		return true, nil
	})
	return err
}

// PublishSplits makes stageIDs searchable and marks replacedIDs for deletion
// in a single mutation. Either every transition is applied or none.
// Publishing with both lists empty is a no-op.
func (ms *Metastore) PublishSplits(ctx context.Context, indexID string, stageIDs, replacedIDs []string) error {
	_, err := ms.mutate(ctx, "publish_splits", indexID, func(m *manifest.Manifest) (bool, error) {
		return m.PublishSplits(stageIDs, replacedIDs, ms.clock())
	})
	return err
}

// MarkSplitsForDeletion marks splits for the garbage collector. Splits already
// marked are left unchanged; if nothing changes no version is written.
func (ms *Metastore) MarkSplitsForDeletion(ctx context.Context, indexID string, splitIDs []string) error {
	if len(splitIDs) == 0 {
		_, err := ms.read(ctx, "mark_splits_for_deletion", indexID)
		return err
	}
	_, err := ms.mutate(ctx, "mark_splits_for_deletion", indexID, func(m *manifest.Manifest) (bool, error) {
		return m.MarkSplitsForDeletion(splitIDs, ms.clock())
	})
	return err
}

// DeleteSplits removes MarkedForDeletion splits from the catalog once their
// files are gone. Ids no longer in the catalog are ignored.
//
// It is reserved for the garbage collector.
func (ms *Metastore) DeleteSplits(ctx context.Context, indexID string, splitIDs []string) error {
	if len(splitIDs) == 0 {
		_, err := ms.read(ctx, "delete_splits", indexID)
		return err
	}
	_, err := ms.mutate(ctx, "delete_splits", indexID, func(m *manifest.Manifest) (bool, error) {
		return m.DeleteSplits(splitIDs)
	})
	return err
}

// ListSplits returns the splits of indexID matching q, in staging order. The
// result is taken from a single manifest version.
func (ms *Metastore) ListSplits(ctx context.Context, indexID string, q model.ListSplitsQuery) ([]model.SplitMetadata, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	m, err := ms.read(ctx, "list_splits", indexID)
	if err != nil {
		return nil, err
	}
	return m.ListSplits(q), nil
}

// ListAllSplits returns every split of indexID.
func (ms *Metastore) ListAllSplits(ctx context.Context, indexID string) ([]model.SplitMetadata, error) {
	return ms.ListSplits(ctx, indexID, model.ListSplitsQuery{})
}

func validateQuery(q model.ListSplitsQuery) error {
	for _, st := range q.States {
		if !st.Valid() {
			return fmt.Errorf("%w: unknown split state %q", ErrInvalidArgument, st)
		}
	}
	if q.TimeRange != nil && q.TimeRange.Start > q.TimeRange.End {
		return fmt.Errorf("%w: time range %s is empty", ErrInvalidArgument, q.TimeRange)
	}
	return nil
}
