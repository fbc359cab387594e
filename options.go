package metastore

import (
	"log/slog"
	"time"

	"github.com/hupe1980/metastore/internal/occ"
)

// RetryPolicy controls how mutations retry after losing a conditional write.
type RetryPolicy = occ.RetryPolicy

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return occ.DefaultRetryPolicy()
}

type options struct {
	retryPolicy      occ.RetryPolicy
	operationTimeout time.Duration
	clock            func() time.Time
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Metastore.
type Option func(*options)

// WithRetryPolicy configures how mutations retry after losing a conditional
// write to a concurrent writer.
//
// Example:
//
//	ms := metastore.New(b, metastore.WithRetryPolicy(metastore.RetryPolicy{
//	    MaxAttempts:    16,
//	    InitialBackoff: 5 * time.Millisecond,
//	    MaxBackoff:     500 * time.Millisecond,
//	    Multiplier:     2,
//	    Jitter:         true,
//	}))
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) {
		o.retryPolicy = p
	}
}

// WithOperationTimeout bounds every individual backend call. A call that
// exceeds it fails with ErrBackendUnavailable. Zero disables the bound.
func WithOperationTimeout(d time.Duration) Option {
	return func(o *options) {
		o.operationTimeout = d
	}
}

// WithClock sets the time source for split and index timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &metastore.BasicMetricsCollector{}
//	ms := metastore.New(b, metastore.WithMetricsCollector(metrics))
//	// ... use ms ...
//	stats := metrics.GetStats()
//	fmt.Printf("Mutations: %d, Conflicts: %d\n", stats.MutationCount, stats.ConflictCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := metastore.NewJSONLogger(slog.LevelInfo)
//	ms := metastore.New(b, metastore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		retryPolicy:      occ.DefaultRetryPolicy(),
		clock:            time.Now,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
