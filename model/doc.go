// Package model defines the metadata types shared by the metastore, its backends
// and the garbage collector.
//
// # Index Types
//
//   - IndexMetadata: index definition (id, storage root, opaque document mapping
//     config, creation time, manifest version)
//
// # Split Types
//
//   - SplitMetadata: one immutable data partition registered by an indexer
//   - SplitState: lifecycle state (Staged, Published, MarkedForDeletion)
//   - TimeRange: inclusive [Start, End] timestamp range covered by a split
//
// # Queries
//
// ListSplitsQuery selects splits by state, overlapping time range and tags:
//
//	q := model.ListSplitsQuery{
//	    States:    []model.SplitState{model.SplitStatePublished},
//	    TimeRange: &model.TimeRange{Start: from, End: to},
//	}
package model
