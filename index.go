package metastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/metastore/backend"
	"github.com/hupe1980/metastore/internal/manifest"
	"github.com/hupe1980/metastore/model"
)

// CreateIndex registers a new index with an empty split catalog and returns
// its metadata at version 1.
func (ms *Metastore) CreateIndex(ctx context.Context, index model.IndexMetadata) (*model.IndexMetadata, error) {
	start := time.Now()
	if err := model.Validate(index); err != nil {
		return nil, translateError(err)
	}

	now := ms.clock()
	index.CreatedAt = now
	index.UpdatedAt = now

	m, err := ms.ctl.Create(ctx, manifest.New(index))
	if errors.Is(err, backend.ErrVersionConflict) {
		err = fmt.Errorf("%w: index %s", ErrAlreadyExists, index.IndexID)
	} else {
		err = translateError(err)
	}

	var version uint64
	if m != nil {
		version = m.Version()
	}
	ms.metrics.RecordMutation("create_index", 1, time.Since(start), err)
	ms.logger.LogMutation(ctx, "create_index", index.IndexID, version, 1, err == nil, err)
	if err != nil {
		return nil, err
	}
	return indexMetadata(m), nil
}

// GetIndex returns the metadata of indexID.
func (ms *Metastore) GetIndex(ctx context.Context, indexID string) (*model.IndexMetadata, error) {
	m, err := ms.read(ctx, "get_index", indexID)
	if err != nil {
		return nil, err
	}
	return indexMetadata(m), nil
}

// DeleteIndex removes indexID. The catalog must be empty; use the garbage
// collector to purge an index that still has splits.
func (ms *Metastore) DeleteIndex(ctx context.Context, indexID string) error {
	start := time.Now()
	err := ms.ctl.Delete(ctx, indexID, func(m *manifest.Manifest) error {
		if !m.IsEmpty() {
			return fmt.Errorf("%w: index %s has %d splits", ErrIndexNotEmpty, indexID, len(m.Splits))
		}
		return nil
	})
	err = translateError(err)
	ms.metrics.RecordMutation("delete_index", 1, time.Since(start), err)
	ms.logger.LogMutation(ctx, "delete_index", indexID, 0, 1, err == nil, err)
	return err
}

// ListIndexes returns the metadata of every index, sorted by id. Each entry
// reflects its own read; indexes deleted while listing are skipped.
func (ms *Metastore) ListIndexes(ctx context.Context) ([]*model.IndexMetadata, error) {
	start := time.Now()
	ids, err := ms.ctl.List(ctx)
	if err != nil {
		err = translateError(err)
		ms.metrics.RecordRead("list_indexes", time.Since(start), err)
		return nil, err
	}

	out := make([]*model.IndexMetadata, 0, len(ids))
	for _, id := range ids {
		m, _, err := ms.ctl.Read(ctx, id)
		if errors.Is(err, backend.ErrNotFound) {
			ms.logger.LogIndexSkipped(ctx, id, err)
			continue
		}
		if err != nil {
			err = translateError(err)
			ms.metrics.RecordRead("list_indexes", time.Since(start), err)
			return nil, err
		}
		out = append(out, indexMetadata(m))
	}
	ms.metrics.RecordRead("list_indexes", time.Since(start), nil)
	return out, nil
}

// ResetIndex removes every split from the catalog of indexID, whatever its
// state, and keeps the index. It does not touch split files; gc.Collector's
// ResetIndex deletes them first.
func (ms *Metastore) ResetIndex(ctx context.Context, indexID string) error {
	_, err := ms.mutate(ctx, "reset_index", indexID, func(m *manifest.Manifest) (bool, error) {
		return m.Reset(), nil
	})
	return err
}

func indexMetadata(m *manifest.Manifest) *model.IndexMetadata {
	return m.Index.Clone()
}
