package occ

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/metastore/backend"
	"github.com/hupe1980/metastore/internal/manifest"
	"github.com/hupe1980/metastore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend keeps encoded manifests in memory. Tokens are write counters.
type fakeBackend struct {
	mu     sync.Mutex
	docs   map[string][]byte
	tokens map[string]int

	writes atomic.Int64
	// beforeWrite runs outside the lock before every conditional write.
	beforeWrite func(indexID string)
	failWith    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{docs: map[string][]byte{}, tokens: map[string]int{}}
}

func (f *fakeBackend) ReadManifest(ctx context.Context, indexID string) (*manifest.Manifest, backend.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, backend.NoToken, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[indexID]
	if !ok {
		return nil, backend.NoToken, backend.ErrNotFound
	}
	m, err := manifest.Decode(doc)
	if err != nil {
		return nil, backend.NoToken, err
	}
	return m, backend.Token(strconv.Itoa(f.tokens[indexID])), nil
}

func (f *fakeBackend) WriteManifest(ctx context.Context, indexID string, m *manifest.Manifest, expected backend.Token) (backend.Token, error) {
	if f.beforeWrite != nil {
		f.beforeWrite(indexID)
	}
	if f.failWith != nil {
		return backend.NoToken, f.failWith
	}
	if err := ctx.Err(); err != nil {
		return backend.NoToken, err
	}
	doc, err := manifest.Encode(m, manifest.CompressionNone)
	if err != nil {
		return backend.NoToken, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	_, exists := f.docs[indexID]
	current := backend.NoToken
	if exists {
		current = backend.Token(strconv.Itoa(f.tokens[indexID]))
	}
	if current != expected {
		return backend.NoToken, backend.ErrVersionConflict
	}
	f.docs[indexID] = doc
	f.tokens[indexID]++
	f.writes.Add(1)
	return backend.Token(strconv.Itoa(f.tokens[indexID])), nil
}

func (f *fakeBackend) DeleteManifest(ctx context.Context, indexID string, expected backend.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.docs[indexID]; !ok {
		return backend.ErrNotFound
	}
	if expected != backend.NoToken && backend.Token(strconv.Itoa(f.tokens[indexID])) != expected {
		return backend.ErrVersionConflict
	}
	delete(f.docs, indexID)
	return nil
}

func (f *fakeBackend) ListIndexes(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeBackend) Close() error { return nil }

// bumpBehindTheBack commits an unrelated mutation, as a concurrent writer would.
func (f *fakeBackend) bumpBehindTheBack(t *testing.T, indexID string) {
	m, token, err := f.ReadManifest(context.Background(), indexID)
	require.NoError(t, err)
	m.Bump(time.Now())
	saved := f.beforeWrite
	f.beforeWrite = nil
	_, err = f.WriteManifest(context.Background(), indexID, m, token)
	f.beforeWrite = saved
	require.NoError(t, err)
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2, Jitter: true}
}

func setup(t *testing.T, opts ...Option) (*Controller, *fakeBackend) {
	t.Helper()
	b := newFakeBackend()
	c := New(b, append([]Option{WithRetryPolicy(fastPolicy(5))}, opts...)...)
	_, err := c.Create(context.Background(), manifest.New(model.IndexMetadata{IndexID: "idx"}))
	require.NoError(t, err)
	return c, b
}

func stage(ids ...string) Mutation {
	return func(m *manifest.Manifest) (bool, error) {
		splits := make([]model.SplitMetadata, len(ids))
		for i, id := range ids {
			splits[i] = model.SplitMetadata{SplitID: id}
		}
		return true, m.StageSplits(splits, time.Now())
	}
}

func TestCreate(t *testing.T) {
	c, _ := setup(t)

	m, _, err := c.Read(context.Background(), "idx")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Version())

	_, err = c.Create(context.Background(), manifest.New(model.IndexMetadata{IndexID: "idx"}))
	assert.ErrorIs(t, err, backend.ErrVersionConflict)
}

func TestUpdate(t *testing.T) {
	c, b := setup(t)
	ctx := context.Background()

	res, err := c.Update(ctx, "idx", stage("s1"))
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, uint64(2), res.Manifest.Version())

	t.Run("NoChangeSkipsWrite", func(t *testing.T) {
		before := b.writes.Load()
		res, err := c.Update(ctx, "idx", func(m *manifest.Manifest) (bool, error) { return false, nil })
		require.NoError(t, err)
		assert.False(t, res.Written)
		assert.Equal(t, uint64(2), res.Manifest.Version())
		assert.Equal(t, before, b.writes.Load())
	})

	t.Run("MutationErrorNotRetried", func(t *testing.T) {
		calls := 0
		_, err := c.Update(ctx, "idx", func(m *manifest.Manifest) (bool, error) {
			calls++
			err := m.StageSplits([]model.SplitMetadata{{SplitID: "s1"}}, time.Now())
			return err == nil, err
		})
		assert.ErrorIs(t, err, manifest.ErrDuplicateSplit)
		assert.Equal(t, 1, calls)
	})

	t.Run("FailedMutationLeavesStoredManifestUntouched", func(t *testing.T) {
		_, err := c.Update(ctx, "idx", func(m *manifest.Manifest) (bool, error) {
			m.Splits = nil
			return true, errors.New("abort")
		})
		require.Error(t, err)
		m, _, err := c.Read(ctx, "idx")
		require.NoError(t, err)
		assert.Len(t, m.Splits, 1)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := c.Update(ctx, "missing", stage("x"))
		assert.ErrorIs(t, err, backend.ErrNotFound)
	})
}

func TestUpdate_RetriesOnConflict(t *testing.T) {
	var conflicts []int
	c, b := setup(t, WithConflictHook(func(_ context.Context, _ string, attempt int) { conflicts = append(conflicts, attempt) }))

	interfere := 2
	b.beforeWrite = func(id string) {
		if interfere > 0 {
			interfere--
			b.bumpBehindTheBack(t, id)
		}
	}

	res, err := c.Update(context.Background(), "idx", stage("s1"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []int{1, 2}, conflicts)
	// Create, two foreign writes, ours.
	assert.Equal(t, uint64(4), res.Manifest.Version())
}

func TestUpdate_ExhaustedRetries(t *testing.T) {
	c, b := setup(t)
	c.policy = fastPolicy(3)
	b.beforeWrite = func(id string) { b.bumpBehindTheBack(t, id) }

	_, err := c.Update(context.Background(), "idx", stage("s1"))
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.ErrorIs(t, err, backend.ErrVersionConflict)
}

func TestUpdate_BackendUnavailable(t *testing.T) {
	c, b := setup(t)
	b.failWith = backend.ErrUnavailable

	_, err := c.Update(context.Background(), "idx", stage("s1"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestUpdate_Timeout(t *testing.T) {
	c, b := setup(t, WithTimeout(20*time.Millisecond))
	b.beforeWrite = func(string) { time.Sleep(50 * time.Millisecond) }

	_, err := c.Update(context.Background(), "idx", stage("s1"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUpdate_CallerCancellation(t *testing.T) {
	c, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Update(ctx, "idx", stage("s1"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
}

func TestUpdate_ConcurrentWritersAreLinearized(t *testing.T) {
	b := newFakeBackend()
	c := New(b, WithRetryPolicy(RetryPolicy{MaxAttempts: 100, InitialBackoff: 100 * time.Microsecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2, Jitter: true}))
	ctx := context.Background()
	_, err := c.Create(ctx, manifest.New(model.IndexMetadata{IndexID: "idx"}))
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	var applied atomic.Int64
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := c.Update(ctx, "idx", stage("s"+strconv.Itoa(i))); err == nil {
				applied.Add(1)
			}
		}(i)
	}
	wg.Wait()

	m, _, err := c.Read(ctx, "idx")
	require.NoError(t, err)
	assert.Equal(t, uint64(1+applied.Load()), m.Version())
	assert.Len(t, m.Splits, int(applied.Load()))
}

func TestDelete(t *testing.T) {
	c, b := setup(t)
	ctx := context.Background()

	_, err := c.Update(ctx, "idx", stage("s1"))
	require.NoError(t, err)

	notEmpty := errors.New("not empty")
	check := func(m *manifest.Manifest) error {
		if !m.IsEmpty() {
			return notEmpty
		}
		return nil
	}
	assert.ErrorIs(t, c.Delete(ctx, "idx", check), notEmpty)

	_, err = c.Update(ctx, "idx", func(m *manifest.Manifest) (bool, error) { return m.Reset(), nil })
	require.NoError(t, err)

	// A writer sneaking in between check and delete forces a re-check.
	interfered := false
	b.beforeWrite = nil
	checks := 0
	err = c.Delete(ctx, "idx", func(m *manifest.Manifest) error {
		checks++
		if !interfered {
			interfered = true
			b.bumpBehindTheBack(t, "idx")
		}
		return check(m)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, checks)

	_, _, err = c.Read(ctx, "idx")
	assert.ErrorIs(t, err, backend.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, "idx", nil), backend.ErrNotFound)
}
