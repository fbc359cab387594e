package gc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/metastore"
	"github.com/hupe1980/metastore/blobstore"
	"github.com/hupe1980/metastore/internal/resource"
	"github.com/hupe1980/metastore/model"
	"golang.org/x/sync/errgroup"
)

// Stats summarizes a collection.
type Stats struct {
	// Indexes is the number of indexes visited.
	Indexes int `json:"indexes"`
	// Dangling is the number of stale Staged splits marked for deletion.
	Dangling int `json:"dangling"`
	// Candidates are the files eligible for deletion. In dry-run mode nothing
	// else is filled.
	Candidates []model.FileEntry `json:"candidates"`
	// Deleted are the files confirmed gone and removed from the catalog.
	Deleted []model.FileEntry `json:"deleted"`
	// Failed are the files whose deletion failed; they are retried next cycle.
	Failed []model.FileEntry `json:"failed"`
}

func (s *Stats) merge(o *Stats) {
	s.Dangling += o.Dangling
	s.Candidates = append(s.Candidates, o.Candidates...)
	s.Deleted = append(s.Deleted, o.Deleted...)
	s.Failed = append(s.Failed, o.Failed...)
}

// Collector physically deletes retired split files and then removes their
// records from the catalog. Every step is idempotent, so a cycle interrupted
// at any point is completed by the next one.
type Collector struct {
	ms       *metastore.Metastore
	store    blobstore.ObjectStore
	opts     Options
	throttle *resource.Controller
	logger   *metastore.Logger
	metrics  metastore.MetricsCollector
}

// New creates a Collector that deletes split files from store.
func New(ms *metastore.Metastore, store blobstore.ObjectStore, optFns ...func(o *Options)) *Collector {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions.Interval
	}
	if opts.Logger == nil {
		opts.Logger = ms.Logger()
	}
	if opts.Metrics == nil {
		opts.Metrics = ms.Metrics()
	}

	return &Collector{
		ms:    ms,
		store: store,
		opts:  opts,
		throttle: resource.NewController(resource.Config{
			MaxInFlight:  int64(opts.Concurrency),
			OpsPerSecond: opts.DeletesPerSecond,
		}),
		logger:  opts.Logger.WithComponent("gc"),
		metrics: opts.Metrics,
	}
}

// Run collects every Interval until ctx is done. Cycle failures are logged
// and do not stop the loop.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		_, _ = c.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs one cycle over all indexes. A failing index is logged and
// skipped; the returned error only reports a failure to list indexes or
// cancellation.
func (c *Collector) RunOnce(ctx context.Context) (*Stats, error) {
	start := time.Now()
	total := &Stats{}

	indexes, err := c.ms.ListIndexes(ctx)
	if err != nil {
		c.finish(ctx, total, start, err)
		return total, err
	}

	for _, idx := range indexes {
		if err := ctx.Err(); err != nil {
			c.finish(ctx, total, start, err)
			return total, err
		}
		st, err := c.CollectIndex(ctx, idx.IndexID)
		total.Indexes++
		total.merge(st)
		if err != nil && !errors.Is(err, metastore.ErrNotFound) {
			c.logger.WarnContext(ctx, "gc of index failed", "index_id", idx.IndexID, "error", err)
		}
	}

	err = ctx.Err()
	c.finish(ctx, total, start, err)
	return total, err
}

func (c *Collector) finish(ctx context.Context, st *Stats, start time.Time, err error) {
	d := time.Since(start)
	c.metrics.RecordGCCycle(len(st.Deleted), len(st.Failed), d)
	c.logger.LogGCCycle(ctx, st.Indexes, len(st.Candidates), len(st.Deleted), len(st.Failed), d, err)
}

// CollectIndex runs one cycle over a single index: stale Staged splits are
// marked for deletion, then files of splits marked for longer than the grace
// period are deleted and their records removed.
func (c *Collector) CollectIndex(ctx context.Context, indexID string) (*Stats, error) {
	st := &Stats{}
	now := c.ms.Now()

	splits, err := c.ms.ListAllSplits(ctx, indexID)
	if err != nil {
		return st, err
	}

	var dangling []string
	for _, s := range splits {
		if s.State == model.SplitStateStaged && s.UpdatedAt.Before(now.Add(-c.opts.StagedGracePeriod)) {
			dangling = append(dangling, s.SplitID)
			if c.opts.DryRun {
				st.Candidates = append(st.Candidates, fileEntry(s))
			}
		}
	}
	if len(dangling) > 0 && !c.opts.DryRun {
		if err := c.ms.MarkSplitsForDeletion(ctx, indexID, dangling); err != nil {
			return st, err
		}
		st.Dangling = len(dangling)
	}

	var expired []model.SplitMetadata
	for _, s := range splits {
		if s.State != model.SplitStateMarkedForDeletion {
			continue
		}
		markedAt := s.UpdatedAt
		if s.MarkedForDeletionAt != nil {
			markedAt = *s.MarkedForDeletionAt
		}
		if markedAt.Before(now.Add(-c.opts.GracePeriod)) {
			expired = append(expired, s)
			st.Candidates = append(st.Candidates, fileEntry(s))
		}
	}
	if c.opts.DryRun || len(expired) == 0 {
		return st, nil
	}

	deleted, failed := c.deleteFiles(ctx, indexID, expired)
	st.Failed = failed
	if err := c.removeFromCatalog(ctx, indexID, deleted); err != nil {
		return st, err
	}
	st.Deleted = deleted
	return st, ctx.Err()
}

// DeleteIndex purges indexID regardless of grace periods: every split is
// marked, every file deleted, and the index removed once its catalog is
// empty. With dryRun it only returns the files that would be deleted.
func (c *Collector) DeleteIndex(ctx context.Context, indexID string, dryRun bool) ([]model.FileEntry, error) {
	deleted, err := c.purge(ctx, indexID, dryRun)
	if err != nil || dryRun {
		return deleted, err
	}
	return deleted, c.ms.DeleteIndex(ctx, indexID)
}

// ResetIndex deletes every split file of indexID and empties its catalog,
// keeping the index itself.
func (c *Collector) ResetIndex(ctx context.Context, indexID string) ([]model.FileEntry, error) {
	deleted, err := c.purge(ctx, indexID, false)
	if err != nil {
		return deleted, err
	}
	return deleted, c.ms.ResetIndex(ctx, indexID)
}

func (c *Collector) purge(ctx context.Context, indexID string, dryRun bool) ([]model.FileEntry, error) {
	splits, err := c.ms.ListAllSplits(ctx, indexID)
	if err != nil {
		return nil, err
	}
	if dryRun {
		entries := make([]model.FileEntry, len(splits))
		for i, s := range splits {
			entries[i] = fileEntry(s)
		}
		return entries, nil
	}

	var live []string
	for _, s := range splits {
		if s.State != model.SplitStateMarkedForDeletion {
			live = append(live, s.SplitID)
		}
	}
	if err := c.ms.MarkSplitsForDeletion(ctx, indexID, live); err != nil {
		return nil, err
	}

	deleted, failed := c.deleteFiles(ctx, indexID, splits)
	if err := c.removeFromCatalog(ctx, indexID, deleted); err != nil {
		return deleted, err
	}
	if len(failed) > 0 {
		return deleted, fmt.Errorf("gc: index %s: %d split files could not be deleted", indexID, len(failed))
	}
	return deleted, ctx.Err()
}

// deleteFiles deletes the files of splits. Cancellation is observed before
// each split; a deletion that has started runs to completion.
func (c *Collector) deleteFiles(ctx context.Context, indexID string, splits []model.SplitMetadata) (deleted, failed []model.FileEntry) {
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.opts.Concurrency)

	for _, s := range splits {
		if ctx.Err() != nil {
			break
		}
		if err := c.throttle.Acquire(ctx); err != nil {
			break
		}
		entry := fileEntry(s)
		g.Go(func() error {
			defer c.throttle.Release()
			err := c.store.Delete(context.WithoutCancel(ctx), entry.FileName)

			mu.Lock()
			defer mu.Unlock()
			if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
				c.logger.LogSplitDeleteFailed(ctx, indexID, entry.SplitID, entry.FileName, err)
				failed = append(failed, entry)
				return nil
			}
			deleted = append(deleted, entry)
			return nil
		})
	}
	_ = g.Wait()
	return deleted, failed
}

// removeFromCatalog records confirmed deletions. It runs even if ctx was
// cancelled during the deletions so that finished work is not lost.
func (c *Collector) removeFromCatalog(ctx context.Context, indexID string, deleted []model.FileEntry) error {
	if len(deleted) == 0 {
		return nil
	}
	ids := make([]string, len(deleted))
	for i, e := range deleted {
		ids[i] = e.SplitID
	}
	return c.ms.DeleteSplits(context.WithoutCancel(ctx), indexID, ids)
}

// fileEntry returns the file of a split. Splits registered without a
// location are stored as "<split id>.split".
func fileEntry(s model.SplitMetadata) model.FileEntry {
	name := s.Location
	if name == "" {
		name = s.SplitID + ".split"
	}
	return model.FileEntry{
		SplitID:   s.SplitID,
		FileName:  name,
		SizeBytes: s.SizeBytes,
	}
}
