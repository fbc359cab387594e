package gc

import (
	"time"

	"github.com/hupe1980/metastore"
)

// Options configures a Collector.
type Options struct {
	// Interval is the pause between two cycles of Run.
	Interval time.Duration

	// GracePeriod is how long a split stays MarkedForDeletion before its file
	// is deleted, so searchers still reading it can finish.
	GracePeriod time.Duration

	// StagedGracePeriod is how long a split may stay Staged before it is
	// considered abandoned by its indexer and marked for deletion.
	StagedGracePeriod time.Duration

	// Concurrency bounds the file deletions of one index running at once.
	Concurrency int

	// DeletesPerSecond paces file deletions. Zero means unlimited.
	DeletesPerSecond float64

	// DryRun reports candidates without marking or deleting anything.
	DryRun bool

	// Logger receives cycle and failure logs.
	Logger *metastore.Logger

	// Metrics receives one record per cycle.
	Metrics metastore.MetricsCollector
}

// DefaultOptions are the defaults used by New.
var DefaultOptions = Options{
	Interval:          time.Minute,
	GracePeriod:       time.Hour,
	StagedGracePeriod: 24 * time.Hour,
	Concurrency:       8,
}
