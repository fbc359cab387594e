package metastore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; package
// metrics/prom provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordMutation is called after each catalog or index mutation.
	// op names the operation (e.g. "publish_splits"), attempts is the number
	// of read-modify-write rounds, err is nil if successful.
	RecordMutation(op string, attempts int, duration time.Duration, err error)

	// RecordRead is called after each read-only operation.
	RecordRead(op string, duration time.Duration, err error)

	// RecordConflict is called every time a conditional write loses.
	RecordConflict(indexID string)

	// RecordGCCycle is called after each garbage collection cycle.
	RecordGCCycle(deleted, failed int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordMutation(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRead(string, time.Duration, error)          {}
func (NoopMetricsCollector) RecordConflict(string)                            {}
func (NoopMetricsCollector) RecordGCCycle(int, int, time.Duration)            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	MutationCount      atomic.Int64
	MutationErrors     atomic.Int64
	MutationAttempts   atomic.Int64
	MutationTotalNanos atomic.Int64
	ReadCount          atomic.Int64
	ReadErrors         atomic.Int64
	ReadTotalNanos     atomic.Int64
	ConflictCount      atomic.Int64
	GCCycles           atomic.Int64
	GCDeleted          atomic.Int64
	GCFailed           atomic.Int64
}

// RecordMutation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMutation(_ string, attempts int, duration time.Duration, err error) {
	b.MutationCount.Add(1)
	b.MutationAttempts.Add(int64(attempts))
	b.MutationTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MutationErrors.Add(1)
	}
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(_ string, duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordConflict implements MetricsCollector.
func (b *BasicMetricsCollector) RecordConflict(string) {
	b.ConflictCount.Add(1)
}

// RecordGCCycle implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGCCycle(deleted, failed int, _ time.Duration) {
	b.GCCycles.Add(1)
	b.GCDeleted.Add(int64(deleted))
	b.GCFailed.Add(int64(failed))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		MutationCount:    b.MutationCount.Load(),
		MutationErrors:   b.MutationErrors.Load(),
		MutationAttempts: b.MutationAttempts.Load(),
		MutationAvgNanos: avg(b.MutationTotalNanos.Load(), b.MutationCount.Load()),
		ReadCount:        b.ReadCount.Load(),
		ReadErrors:       b.ReadErrors.Load(),
		ReadAvgNanos:     avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		ConflictCount:    b.ConflictCount.Load(),
		GCCycles:         b.GCCycles.Load(),
		GCDeleted:        b.GCDeleted.Load(),
		GCFailed:         b.GCFailed.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	MutationCount    int64
	MutationErrors   int64
	MutationAttempts int64
	MutationAvgNanos int64
	ReadCount        int64
	ReadErrors       int64
	ReadAvgNanos     int64
	ConflictCount    int64
	GCCycles         int64
	GCDeleted        int64
	GCFailed         int64
}
