package metrics

import "time"

// AllocatorMetrics is the collector interface pkg/palloc reports through.
// A nil AllocatorMetrics is safe to pass to the package-level helpers
// below, which treat it as a no-op; calling a method directly on a nil
// value is not safe.
type AllocatorMetrics interface {
	// ObserveCommit records a redo log commit's entry count and duration.
	ObserveCommit(entries int, d time.Duration)

	// SetBucketFree records a RUN class's current free-unit count.
	SetBucketFree(classIdx uint32, free int)

	// SetZoneOccupancy records a zone's free-byte count.
	SetZoneOccupancy(zoneID uint32, freeBytes uint64)

	// IncOutOfMemory counts an allocation request that found no fit.
	IncOutOfMemory()
}

// NewAllocatorMetrics is implemented in pkg/metrics/prometheus; it is
// wired up via RegisterAllocatorMetricsConstructor at that package's
// init() so pkg/metrics never imports the prometheus client package
// directly, avoiding a dependency cycle between the interface package
// and its implementation.
var newAllocatorMetrics func() AllocatorMetrics

// RegisterAllocatorMetricsConstructor is called by
// pkg/metrics/prometheus's init() to supply the concrete collector.
func RegisterAllocatorMetricsConstructor(ctor func() AllocatorMetrics) {
	newAllocatorMetrics = ctor
}

// NewAllocatorMetrics returns a live collector if metrics are enabled and
// an implementation has been registered, or nil otherwise.
func NewAllocatorMetrics() AllocatorMetrics {
	if !IsEnabled() || newAllocatorMetrics == nil {
		return nil
	}
	return newAllocatorMetrics()
}

// ObserveCommit is the nil-safe free-function form of AllocatorMetrics.ObserveCommit.
func ObserveCommit(m AllocatorMetrics, entries int, d time.Duration) {
	if m != nil {
		m.ObserveCommit(entries, d)
	}
}

// SetBucketFree is the nil-safe free-function form of AllocatorMetrics.SetBucketFree.
func SetBucketFree(m AllocatorMetrics, classIdx uint32, free int) {
	if m != nil {
		m.SetBucketFree(classIdx, free)
	}
}

// SetZoneOccupancy is the nil-safe free-function form of AllocatorMetrics.SetZoneOccupancy.
func SetZoneOccupancy(m AllocatorMetrics, zoneID uint32, freeBytes uint64) {
	if m != nil {
		m.SetZoneOccupancy(zoneID, freeBytes)
	}
}

// IncOutOfMemory is the nil-safe free-function form of AllocatorMetrics.IncOutOfMemory.
func IncOutOfMemory(m AllocatorMetrics) {
	if m != nil {
		m.IncOutOfMemory()
	}
}
