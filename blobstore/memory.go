package blobstore

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// MemoryStore is an in-memory ObjectStore implementation for testing.
// Fingerprints are per-blob generation numbers, so rewriting identical content
// still changes the fingerprint.
// Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu         sync.RWMutex
	blobs      map[string]memoryBlob
	generation uint64
}

type memoryBlob struct {
	data []byte
	fp   Fingerprint
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]memoryBlob),
	}
}

// Get returns a copy of the blob and its fingerprint.
func (m *MemoryStore) Get(ctx context.Context, name string) ([]byte, Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, NoFingerprint, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blobs[name]
	if !ok {
		return nil, NoFingerprint, ErrNotFound
	}
	// Return a copy to prevent external mutation
	return slices.Clone(b.data), b.fp, nil
}

// Put writes a blob unconditionally.
func (m *MemoryStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.storeLocked(name, data)
	return nil
}

// PutIf writes a blob if its fingerprint matches expected.
func (m *MemoryStore) PutIf(ctx context.Context, name string, data []byte, expected Fingerprint) (Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return NoFingerprint, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current := NoFingerprint
	if b, ok := m.blobs[name]; ok {
		current = b.fp
	}
	if current != expected {
		return NoFingerprint, ErrPreconditionFailed
	}
	return m.storeLocked(name, data), nil
}

func (m *MemoryStore) storeLocked(name string, data []byte) Fingerprint {
	m.generation++
	fp := Fingerprint(strconv.FormatUint(m.generation, 10))
	m.blobs[name] = memoryBlob{data: slices.Clone(data), fp: fp}
	return fp
}

// Delete removes a blob.
func (m *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[name]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, name)
	return nil
}

// List returns all blobs matching the prefix.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
