// Package prom exports metastore metrics to Prometheus.
package prom

import (
	"time"

	"github.com/hupe1980/metastore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ metastore.MetricsCollector = (*Collector)(nil)

// Collector implements metastore.MetricsCollector with Prometheus metrics.
type Collector struct {
	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	mutationAttempts *prometheus.HistogramVec
	reads            *prometheus.CounterVec
	readDuration     *prometheus.HistogramVec
	conflicts        *prometheus.CounterVec
	gcCycles         prometheus.Counter
	gcFiles          *prometheus.CounterVec
	gcDuration       prometheus.Histogram
}

// New registers the metastore metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metastore_mutations_total",
			Help: "Total metastore mutations by operation and result",
		}, []string{"operation", "result"}),
		mutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metastore_mutation_duration_seconds",
			Help:    "Mutation duration in seconds, retries included",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"operation"}),
		mutationAttempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metastore_mutation_attempts",
			Help:    "Read-modify-write rounds per mutation",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		}, []string{"operation"}),
		reads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metastore_reads_total",
			Help: "Total metastore reads by operation and result",
		}, []string{"operation", "result"}),
		readDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metastore_read_duration_seconds",
			Help:    "Read duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"operation"}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metastore_version_conflicts_total",
			Help: "Conditional writes lost to a concurrent writer",
		}, []string{"index_id"}),
		gcCycles: f.NewCounter(prometheus.CounterOpts{
			Name: "metastore_gc_cycles_total",
			Help: "Completed garbage collection cycles",
		}),
		gcFiles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metastore_gc_files_total",
			Help: "Split files handled by the garbage collector by result",
		}, []string{"result"}),
		gcDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "metastore_gc_cycle_duration_seconds",
			Help:    "Garbage collection cycle duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
}

// RecordMutation implements metastore.MetricsCollector.
func (c *Collector) RecordMutation(op string, attempts int, duration time.Duration, err error) {
	c.mutations.WithLabelValues(op, result(err)).Inc()
	c.mutationDuration.WithLabelValues(op).Observe(duration.Seconds())
	if attempts > 0 {
		c.mutationAttempts.WithLabelValues(op).Observe(float64(attempts))
	}
}

// RecordRead implements metastore.MetricsCollector.
func (c *Collector) RecordRead(op string, duration time.Duration, err error) {
	c.reads.WithLabelValues(op, result(err)).Inc()
	c.readDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordConflict implements metastore.MetricsCollector.
func (c *Collector) RecordConflict(indexID string) {
	c.conflicts.WithLabelValues(indexID).Inc()
}

// RecordGCCycle implements metastore.MetricsCollector.
func (c *Collector) RecordGCCycle(deleted, failed int, duration time.Duration) {
	c.gcCycles.Inc()
	c.gcFiles.WithLabelValues("deleted").Add(float64(deleted))
	c.gcFiles.WithLabelValues("failed").Add(float64(failed))
	c.gcDuration.Observe(duration.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
