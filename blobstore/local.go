package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/hupe1980/metastore/internal/fs"
)

const lockRetryDelay = 5 * time.Millisecond

// LocalStore implements ObjectStore on the local file system.
//
// Writes go to a temporary file that is renamed into place. Put, PutIf and
// Delete hold an advisory file lock (".<name>.lock" next to the blob) so that
// the compare-and-swap is atomic across processes sharing the directory.
// Delete removes the lock file along with the blob.
// Fingerprints are SHA-256 content hashes.
type LocalStore struct {
	root string
	fs   fs.FileSystem
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return NewLocalStoreFS(root, fs.Default)
}

// NewLocalStoreFS creates a LocalStore on top of a custom file system.
func NewLocalStoreFS(root string, fsys fs.FileSystem) *LocalStore {
	if fsys == nil {
		fsys = fs.Default
	}
	return &LocalStore{root: root, fs: fsys}
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

func (s *LocalStore) lockPath(name string) string {
	p := s.path(name)
	return filepath.Join(filepath.Dir(p), "."+filepath.Base(p)+".lock")
}

// Get reads a blob and returns its content hash as fingerprint.
func (s *LocalStore) Get(ctx context.Context, name string) ([]byte, Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, NoFingerprint, err
	}
	data, err := s.read(name)
	if err != nil {
		return nil, NoFingerprint, err
	}
	return data, contentFingerprint(data), nil
}

func (s *LocalStore) read(name string) ([]byte, error) {
	f, err := s.fs.OpenFile(s.path(name), os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Put writes a blob atomically (write to temp file, then rename). It holds
// the blob's lock because the temporary file name is shared with PutIf.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) error {
	unlock, err := s.lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()
	return s.writeAtomic(name, data)
}

// PutIf writes a blob if its current content hash equals expected.
func (s *LocalStore) PutIf(ctx context.Context, name string, data []byte, expected Fingerprint) (Fingerprint, error) {
	unlock, err := s.lock(ctx, name)
	if err != nil {
		return NoFingerprint, err
	}
	defer unlock()

	current := NoFingerprint
	old, err := s.read(name)
	switch {
	case err == nil:
		current = contentFingerprint(old)
	case !errors.Is(err, ErrNotFound):
		return NoFingerprint, err
	}
	if current != expected {
		return NoFingerprint, ErrPreconditionFailed
	}
	if err := s.writeAtomic(name, data); err != nil {
		return NoFingerprint, err
	}
	return contentFingerprint(data), nil
}

func (s *LocalStore) writeAtomic(name string, data []byte) error {
	p := s.path(name)
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(p), "."+filepath.Base(p)+".tmp")
	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return s.fs.Rename(tmp, p)
}

// Delete removes a blob and its lock file.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	unlock, err := s.lock(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.fs.Remove(s.path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	// Waiters on the removed lock file notice the swap in lock and retry.
	if rmErr := s.fs.Remove(s.lockPath(name)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return rmErr
	}
	if err != nil {
		return ErrNotFound
	}
	return nil
}

// List returns all blob names under the root matching prefix.
// Lock and temporary files are skipped.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var names []string
	if err := s.walk("", func(name string) {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}); err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

func (s *LocalStore) walk(dir string, fn func(name string)) error {
	entries, err := s.fs.ReadDir(s.path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := path.Join(dir, e.Name())
		if e.IsDir() {
			if err := s.walk(name, fn); err != nil {
				return err
			}
			continue
		}
		fn(name)
	}
	return nil
}

// lock takes the blob's advisory lock. Delete removes the lock file while
// holding it, so a lock taken on a file that is no longer at lockPath is
// released and taken again on the current one.
func (s *LocalStore) lock(ctx context.Context, name string) (func(), error) {
	lp := s.lockPath(name)
	for {
		if err := s.fs.MkdirAll(filepath.Dir(lp), 0o755); err != nil {
			return nil, err
		}
		fl := flock.New(lp)
		ok, err := fl.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ctx.Err()
		}

		held, err := fl.Stat()
		if err != nil {
			_ = fl.Unlock()
			return nil, err
		}
		current, err := os.Stat(lp)
		if err == nil && os.SameFile(held, current) {
			return func() { _ = fl.Unlock() }, nil
		}
		_ = fl.Unlock()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
}

func contentFingerprint(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}
