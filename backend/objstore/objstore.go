package objstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hupe1980/metastore/backend"
	"github.com/hupe1980/metastore/blobstore"
	"github.com/hupe1980/metastore/internal/manifest"
)

// ManifestFileName is the name of the manifest blob inside an index directory.
const ManifestFileName = "metastore.json"

const defaultCacheSize = 128

type cacheKey struct {
	indexID     string
	fingerprint blobstore.Fingerprint
}

// Backend stores each manifest as a single blob at
// <prefix>/<indexID>/metastore.json. Tokens are the store's fingerprints.
type Backend struct {
	store       blobstore.ObjectStore
	prefix      string
	compression manifest.Compression
	cache       *lru.Cache[cacheKey, *manifest.Manifest]
}

// Option configures a Backend.
type Option func(*options)

type options struct {
	prefix      string
	compression manifest.Compression
	cacheSize   int
}

// WithPrefix sets the directory holding the index directories.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = strings.Trim(prefix, "/") }
}

// WithCompression sets the payload compression of written manifests.
// Manifests written with any compression are always readable.
func WithCompression(c manifest.Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithCacheSize sets the number of decoded manifests kept in memory.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// New creates a Backend on top of store.
func New(store blobstore.ObjectStore, optFns ...Option) (*Backend, error) {
	opts := options{cacheSize: defaultCacheSize}
	for _, fn := range optFns {
		fn(&opts)
	}

	cache, err := lru.New[cacheKey, *manifest.Manifest](opts.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("objstore: %w", err)
	}
	return &Backend{
		store:       store,
		prefix:      opts.prefix,
		compression: opts.compression,
		cache:       cache,
	}, nil
}

func (b *Backend) manifestPath(indexID string) string {
	return path.Join(b.prefix, indexID, ManifestFileName)
}

// ReadManifest implements backend.Backend.
func (b *Backend) ReadManifest(ctx context.Context, indexID string) (*manifest.Manifest, backend.Token, error) {
	m, fp, err := b.get(ctx, indexID)
	if err != nil {
		return nil, backend.NoToken, err
	}
	if m.Tombstone {
		return nil, backend.NoToken, backend.ErrNotFound
	}
	return m.Clone(), backend.Token(fp), nil
}

// get returns the cached or decoded manifest, tombstones included. The result
// must not be modified.
func (b *Backend) get(ctx context.Context, indexID string) (*manifest.Manifest, blobstore.Fingerprint, error) {
	data, fp, err := b.store.Get(ctx, b.manifestPath(indexID))
	if err != nil {
		return nil, blobstore.NoFingerprint, translateError(err)
	}

	key := cacheKey{indexID: indexID, fingerprint: fp}
	if m, ok := b.cache.Get(key); ok {
		return m, fp, nil
	}
	m, err := manifest.Decode(data)
	if err != nil {
		return nil, blobstore.NoFingerprint, fmt.Errorf("index %s: %w", indexID, err)
	}
	b.cache.Add(key, m)
	return m, fp, nil
}

// WriteManifest implements backend.Backend.
func (b *Backend) WriteManifest(ctx context.Context, indexID string, m *manifest.Manifest, expected backend.Token) (backend.Token, error) {
	data, err := manifest.Encode(m, b.compression)
	if err != nil {
		return backend.NoToken, err
	}

	name := b.manifestPath(indexID)
	fp, err := b.store.PutIf(ctx, name, data, blobstore.Fingerprint(expected))
	if errors.Is(err, blobstore.ErrPreconditionFailed) && expected == backend.NoToken {
		// A leftover tombstone from an interrupted delete does not count as
		// an existing index.
		current, currentFP, getErr := b.get(ctx, indexID)
		if getErr == nil && current.Tombstone {
			fp, err = b.store.PutIf(ctx, name, data, currentFP)
		}
	}
	if err != nil {
		return backend.NoToken, translateError(err)
	}

	b.cache.Add(cacheKey{indexID: indexID, fingerprint: fp}, m.Clone())
	return backend.Token(fp), nil
}

// DeleteManifest implements backend.Backend. The manifest is first replaced
// by a tombstone with a conditional write, so writers holding the previous
// token lose, and then removed.
func (b *Backend) DeleteManifest(ctx context.Context, indexID string, expected backend.Token) error {
	current, fp, err := b.get(ctx, indexID)
	if err != nil {
		return err
	}
	name := b.manifestPath(indexID)
	if current.Tombstone {
		_ = b.removeBlob(ctx, name)
		return backend.ErrNotFound
	}
	if expected == backend.NoToken {
		expected = backend.Token(fp)
	}

	tombstone := &manifest.Manifest{Index: current.Index, Tombstone: true}
	data, err := manifest.Encode(tombstone, manifest.CompressionNone)
	if err != nil {
		return err
	}
	if _, err := b.store.PutIf(ctx, name, data, blobstore.Fingerprint(expected)); err != nil {
		return translateError(err)
	}
	return b.removeBlob(ctx, name)
}

func (b *Backend) removeBlob(ctx context.Context, name string) error {
	if err := b.store.Delete(ctx, name); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return translateError(err)
	}
	return nil
}

// ListIndexes implements backend.Backend.
func (b *Backend) ListIndexes(ctx context.Context) ([]string, error) {
	prefix := ""
	if b.prefix != "" {
		prefix = b.prefix + "/"
	}
	names, err := b.store.List(ctx, prefix)
	if err != nil {
		return nil, translateError(err)
	}

	suffix := "/" + ManifestFileName
	var ids []string
	for _, name := range names {
		rel := strings.TrimPrefix(name, prefix)
		id, ok := strings.CutSuffix(rel, suffix)
		if !ok || id == "" || strings.Contains(id, "/") {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.cache.Purge()
	return nil
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, blobstore.ErrNotFound):
		return backend.ErrNotFound
	case errors.Is(err, blobstore.ErrPreconditionFailed):
		return backend.ErrVersionConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
}
