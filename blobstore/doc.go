// Package blobstore provides the object storage abstraction used by the metastore.
//
// ObjectStore is the interface for reading, writing and deleting opaque blobs:
// manifests written by the object-store backend, and split files removed by the
// garbage collector. Implementations must be safe for concurrent use.
//
// # Conditional Writes
//
// PutIf is the compare-and-swap primitive the optimistic concurrency protocol is
// built on. Every Get returns a Fingerprint; a later PutIf with that fingerprint
// succeeds only if nobody wrote the blob in between:
//
//	data, fp, err := store.Get(ctx, "logs/metastore.json")
//	// ... compute next content ...
//	_, err = store.PutIf(ctx, "logs/metastore.json", next, fp)
//	if errors.Is(err, blobstore.ErrPreconditionFailed) {
//	    // somebody else won, re-read and retry
//	}
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, generation counter fingerprints (tests, single process)
//   - LocalStore: local filesystem, file locks for cross-process CAS
//   - s3.Store: Amazon S3 conditional writes (If-Match / If-None-Match)
//   - s3.DDBCommitStore: S3 content plus a DynamoDB commit table for CAS
//   - minio.Store: MinIO and S3-compatible stores
//   - gcs.Store: Google Cloud Storage generation preconditions
package blobstore
