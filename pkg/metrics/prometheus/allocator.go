// Package prometheus implements pkg/metrics's collector interfaces on top
// of github.com/prometheus/client_golang, grounded on the teacher's own
// pkg/metrics/prometheus collectors (promauto.With(reg) gated behind
// metrics.IsEnabled()).
package prometheus

import (
	"strconv"
	"time"

	"github.com/dittopm/pmstore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterAllocatorMetricsConstructor(newAllocatorMetrics)
}

type allocatorMetrics struct {
	commitEntries *prometheus.HistogramVec
	commitLatency *prometheus.HistogramVec
	bucketFree    *prometheus.GaugeVec
	zoneFreeBytes *prometheus.GaugeVec
	outOfMemory   prometheus.Counter
}

func newAllocatorMetrics() metrics.AllocatorMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &allocatorMetrics{
		commitEntries: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pmstore_redo_commit_entries",
				Help:    "Number of redo log entries per committed operation.",
				Buckets: prometheus.LinearBuckets(1, 2, 10),
			},
			[]string{"op"},
		),
		commitLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pmstore_redo_commit_seconds",
				Help:    "Redo log commit latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		bucketFree: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pmstore_bucket_free_units",
				Help: "Free run units currently queued per allocation class.",
			},
			[]string{"class"},
		),
		zoneFreeBytes: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pmstore_zone_free_bytes",
				Help: "Free bytes currently held by the HUGE bucket per zone.",
			},
			[]string{"zone"},
		),
		outOfMemory: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "pmstore_out_of_memory_total",
				Help: "Allocation requests that found no satisfying bucket.",
			},
		),
	}
}

func (m *allocatorMetrics) ObserveCommit(entries int, d time.Duration) {
	m.commitEntries.WithLabelValues("commit").Observe(float64(entries))
	m.commitLatency.WithLabelValues("commit").Observe(d.Seconds())
}

func (m *allocatorMetrics) SetBucketFree(classIdx uint32, free int) {
	m.bucketFree.WithLabelValues(classLabel(classIdx)).Set(float64(free))
}

func (m *allocatorMetrics) SetZoneOccupancy(zoneID uint32, freeBytes uint64) {
	m.zoneFreeBytes.WithLabelValues(zoneLabel(zoneID)).Set(float64(freeBytes))
}

func (m *allocatorMetrics) IncOutOfMemory() {
	m.outOfMemory.Inc()
}

func classLabel(classIdx uint32) string {
	return strconv.FormatUint(uint64(classIdx), 10)
}

func zoneLabel(zoneID uint32) string {
	return strconv.FormatUint(uint64(zoneID), 10)
}
