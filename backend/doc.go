// Package backend defines the persistence contract of the metastore.
//
// A Backend stores one manifest per index and offers a conditional write keyed
// by an opaque Token. Two implementations exist:
//
//   - objstore: the manifest is a single blob written with the object store's
//     conditional put.
//   - sqlstore: indexes and splits are rows; the write is one transaction
//     guarded by WHERE version = ?.
//
// The conformance suite in backendtest runs against both.
package backend
