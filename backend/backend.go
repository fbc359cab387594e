package backend

import (
	"context"
	"errors"

	"github.com/hupe1980/metastore/internal/manifest"
)

var (
	// ErrNotFound is returned when no manifest exists for the index.
	ErrNotFound = errors.New("manifest not found")

	// ErrVersionConflict is returned when a conditional write or delete lost
	// against a concurrent writer.
	ErrVersionConflict = errors.New("manifest version conflict")

	// ErrUnavailable is returned when the underlying store cannot be reached.
	ErrUnavailable = errors.New("backend unavailable")
)

// Token identifies the persisted revision of a manifest. It is opaque to
// callers and only compared by the backend that issued it.
type Token string

// NoToken is the expected token of a manifest that does not exist yet.
const NoToken Token = ""

// Backend persists one manifest per index with compare-and-swap semantics.
//
// Implementations must be safe for concurrent use. They never interpret the
// manifest beyond what is required to store it.
type Backend interface {
	// ReadManifest returns the current manifest and its token.
	ReadManifest(ctx context.Context, indexID string) (*manifest.Manifest, Token, error)

	// WriteManifest persists m if the current token equals expected. NoToken
	// means the manifest must not exist yet.
	WriteManifest(ctx context.Context, indexID string, m *manifest.Manifest, expected Token) (Token, error)

	// DeleteManifest removes the manifest if the current token equals expected.
	// NoToken deletes unconditionally.
	DeleteManifest(ctx context.Context, indexID string, expected Token) error

	// ListIndexes returns the ids of all stored manifests in lexical order.
	ListIndexes(ctx context.Context) ([]string, error)

	// Close releases the resources held by the backend.
	Close() error
}
