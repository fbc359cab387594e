// Package metastore is the source of truth for index definitions and the
// catalog of immutable data partitions ("splits") that make up each index.
//
// Indexers stage and publish splits, searchers list the published ones and a
// garbage collector retires splits marked for deletion. Every mutation is a
// read-modify-write of the index's manifest guarded by a conditional write,
// so any number of processes can share one backend without a lock service.
//
// # Quick Start
//
// Object store backend:
//
//	ctx := context.Background()
//	b, _ := objstore.New(blobstore.NewLocalStore("./meta"))
//	ms := metastore.New(b)
//	defer ms.Close()
//
// Relational backend:
//
//	b, _ := sqlstore.Open(ctx, "./metastore.db")
//	ms := metastore.New(b, metastore.WithLogLevel(slog.LevelDebug))
//
// # Split Lifecycle
//
//	Staged ──publish──▶ Published ──mark──▶ MarkedForDeletion ──gc──▶ (removed)
//	   └──────────────────mark──────────────────────▲
//
// A typical indexer round:
//
//	_, _ = ms.CreateIndex(ctx, model.IndexMetadata{IndexID: "logs-2024"})
//	_ = ms.StageSplits(ctx, "logs-2024", []model.SplitMetadata{{SplitID: "s1"}})
//	_ = ms.PublishSplits(ctx, "logs-2024", []string{"s1"}, nil)
//
// A merge publishes the merged split and retires its inputs atomically:
//
//	_ = ms.PublishSplits(ctx, "logs-2024", []string{"merged"}, []string{"s1", "s2"})
//
// # Errors
//
// Operations return sentinel errors matched with errors.Is: ErrNotFound,
// ErrAlreadyExists, ErrSplitNotFound, ErrDuplicateSplit,
// ErrInvalidStateTransition, ErrIndexNotEmpty, ErrConcurrentModification,
// ErrBackendUnavailable and ErrInvalidArgument.
package metastore
