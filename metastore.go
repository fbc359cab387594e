package metastore

import (
	"context"
	"time"

	"github.com/hupe1980/metastore/backend"
	"github.com/hupe1980/metastore/internal/manifest"
	"github.com/hupe1980/metastore/internal/occ"
)

// Metastore is the catalog of indexes and their splits. It is safe for
// concurrent use, and several Metastore values in different processes may
// share one backend: every mutation is a conditional write of the index's
// manifest.
type Metastore struct {
	backend backend.Backend
	ctl     *occ.Controller
	clock   func() time.Time
	metrics MetricsCollector
	logger  *Logger
}

// New creates a Metastore over b. The Metastore owns b; Close closes it.
func New(b backend.Backend, optFns ...Option) *Metastore {
	opts := applyOptions(optFns)

	ms := &Metastore{
		backend: b,
		clock:   opts.clock,
		metrics: opts.metricsCollector,
		logger:  opts.logger,
	}
	ms.ctl = occ.New(b,
		occ.WithRetryPolicy(opts.retryPolicy),
		occ.WithTimeout(opts.operationTimeout),
		occ.WithClock(opts.clock),
		occ.WithConflictHook(ms.onConflict),
	)
	return ms
}

// Logger returns the logger the Metastore was configured with.
func (ms *Metastore) Logger() *Logger {
	return ms.logger
}

// Metrics returns the metrics collector the Metastore was configured with.
func (ms *Metastore) Metrics() MetricsCollector {
	return ms.metrics
}

// Now returns the Metastore's current time.
func (ms *Metastore) Now() time.Time {
	return ms.clock()
}

// Close releases the backend.
func (ms *Metastore) Close() error {
	return ms.backend.Close()
}

func (ms *Metastore) onConflict(ctx context.Context, indexID string, attempt int) {
	ms.metrics.RecordConflict(indexID)
	ms.logger.LogConflict(ctx, indexID, attempt)
}

// mutate runs fn through the concurrency controller and records the outcome.
func (ms *Metastore) mutate(ctx context.Context, op, indexID string, fn occ.Mutation) (*occ.Result, error) {
	start := time.Now()
	res, err := ms.ctl.Update(ctx, indexID, fn)
	err = translateError(err)

	var (
		attempts int
		version  uint64
		written  bool
	)
	if res != nil {
		attempts, version, written = res.Attempts, res.Manifest.Version(), res.Written
	}
	ms.metrics.RecordMutation(op, attempts, time.Since(start), err)
	ms.logger.LogMutation(ctx, op, indexID, version, attempts, written, err)
	return res, err
}

// read returns the current manifest of indexID and records the outcome.
func (ms *Metastore) read(ctx context.Context, op, indexID string) (*manifest.Manifest, error) {
	start := time.Now()
	m, _, err := ms.ctl.Read(ctx, indexID)
	err = translateError(err)
	ms.metrics.RecordRead(op, time.Since(start), err)
	return m, err
}
