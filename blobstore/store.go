package blobstore

import (
	"context"
	"errors"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrPreconditionFailed is returned by PutIf when the stored blob does not match
// the expected fingerprint.
var ErrPreconditionFailed = errors.New("blobstore: precondition failed")

// Fingerprint identifies one stored revision of a blob (ETag, object generation,
// content hash). It is opaque to callers and only compared for equality.
//
// NoFingerprint stands for "the blob does not exist".
type Fingerprint string

// NoFingerprint is the fingerprint of an absent blob.
const NoFingerprint Fingerprint = ""

// ObjectStore is the storage client consumed by the metastore.
//
// Implementations must be safe for concurrent use. PutIf must be atomic with
// respect to other writers of the same name, including writers in other processes.
type ObjectStore interface {
	// Get returns the content of a blob and its current fingerprint.
	Get(ctx context.Context, name string) ([]byte, Fingerprint, error)

	// Put writes a blob unconditionally.
	Put(ctx context.Context, name string, data []byte) error

	// PutIf writes a blob only if its current fingerprint equals expected.
	// With NoFingerprint the write only succeeds if the blob does not exist.
	// Returns ErrPreconditionFailed on mismatch.
	PutIf(ctx context.Context, name string, data []byte, expected Fingerprint) (Fingerprint, error)

	// Delete removes a blob. Returns ErrNotFound if it does not exist, unless the
	// backend cannot tell (S3 reports success for missing keys).
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
