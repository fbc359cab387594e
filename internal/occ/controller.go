package occ

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/metastore/backend"
	"github.com/hupe1980/metastore/internal/manifest"
)

// Mutation modifies m in place and reports whether anything changed.
// It may be invoked several times for one Update and must not have side
// effects outside m.
type Mutation func(m *manifest.Manifest) (changed bool, err error)

// Result describes a completed Update.
type Result struct {
	// Manifest is the committed manifest, or the current one if nothing changed.
	Manifest *manifest.Manifest
	// Written reports whether a new version was persisted.
	Written bool
	// Attempts is the number of read-modify-write rounds performed.
	Attempts int
}

// Controller serializes manifest mutations with conditional writes.
type Controller struct {
	backend    backend.Backend
	policy     RetryPolicy
	timeout    time.Duration
	now        func() time.Time
	onConflict func(ctx context.Context, indexID string, attempt int)
}

// Option configures a Controller.
type Option func(*Controller)

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithTimeout bounds every backend call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithClock sets the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithConflictHook registers fn to be called after every lost write.
func WithConflictHook(fn func(ctx context.Context, indexID string, attempt int)) Option {
	return func(c *Controller) { c.onConflict = fn }
}

// New creates a Controller over b.
func New(b backend.Backend, opts ...Option) *Controller {
	c := &Controller{
		backend: b,
		policy:  DefaultRetryPolicy(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the controller's current time.
func (c *Controller) Now() time.Time {
	return c.now()
}

// Read returns the current manifest of indexID.
func (c *Controller) Read(ctx context.Context, indexID string) (*manifest.Manifest, backend.Token, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	m, token, err := c.backend.ReadManifest(callCtx, indexID)
	if err != nil {
		return nil, backend.NoToken, c.classify(ctx, err)
	}
	return m, token, nil
}

// List returns the ids of all stored manifests.
func (c *Controller) List(ctx context.Context) ([]string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	ids, err := c.backend.ListIndexes(callCtx)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	return ids, nil
}

// Create persists m as the first version of a new manifest. It fails with
// backend.ErrVersionConflict if the manifest already exists.
func (c *Controller) Create(ctx context.Context, m *manifest.Manifest) (*manifest.Manifest, error) {
	next := m.Clone()
	next.Bump(c.now())

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if _, err := c.backend.WriteManifest(callCtx, next.Index.IndexID, next, backend.NoToken); err != nil {
		return nil, c.classify(ctx, err)
	}
	return next, nil
}

// Update applies fn to the current manifest of indexID and persists the
// result, retrying on conflicts according to the retry policy.
func (c *Controller) Update(ctx context.Context, indexID string, fn Mutation) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= c.policy.attempts(); attempt++ {
		current, token, err := c.Read(ctx, indexID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		changed, err := fn(next)
		if err != nil {
			return nil, err
		}
		if !changed {
			return &Result{Manifest: current, Attempts: attempt}, nil
		}
		next.Bump(c.now())

		err = c.write(ctx, indexID, next, token)
		if err == nil {
			return &Result{Manifest: next, Written: true, Attempts: attempt}, nil
		}
		if !errors.Is(err, backend.ErrVersionConflict) {
			return nil, err
		}

		lastErr = err
		if c.onConflict != nil {
			c.onConflict(ctx, indexID, attempt)
		}
		if attempt < c.policy.attempts() {
			if err := sleep(ctx, c.policy.Backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: index %s after %d attempts: %w", ErrConcurrentModification, indexID, c.policy.attempts(), lastErr)
}

// Delete removes the manifest of indexID once check accepts its current
// content. The check and the delete are bound by the manifest token, so a
// concurrent writer causes a retry rather than a lost update.
func (c *Controller) Delete(ctx context.Context, indexID string, check func(*manifest.Manifest) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.policy.attempts(); attempt++ {
		current, token, err := c.Read(ctx, indexID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}

		callCtx, cancel := c.callContext(ctx)
		err = c.backend.DeleteManifest(callCtx, indexID, token)
		cancel()
		if err == nil {
			return nil
		}
		err = c.classify(ctx, err)
		if !errors.Is(err, backend.ErrVersionConflict) {
			return err
		}

		lastErr = err
		if c.onConflict != nil {
			c.onConflict(ctx, indexID, attempt)
		}
		if attempt < c.policy.attempts() {
			if err := sleep(ctx, c.policy.Backoff(attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: index %s after %d attempts: %w", ErrConcurrentModification, indexID, c.policy.attempts(), lastErr)
}

func (c *Controller) write(ctx context.Context, indexID string, m *manifest.Manifest, token backend.Token) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	_, err := c.backend.WriteManifest(callCtx, indexID, m, token)
	return c.classify(ctx, err)
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// classify maps per-call timeouts and store outages to ErrBackendUnavailable.
// Cancellation of the caller's context is returned as is.
func (c *Controller) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, backend.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return err
}
