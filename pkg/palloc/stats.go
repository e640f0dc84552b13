package palloc

import (
	"sync/atomic"

	"github.com/dittopm/pmstore/pkg/heap"
)

// Stats is a read-only snapshot of heap occupancy, consumed by
// pkg/metrics and cmd/pmstore's stats subcommand. This is an addition
// beyond spec.md, supplementing it with the per-zone/per-class occupancy
// accessors the reference allocator exposes to its own CLI tooling (see
// SPEC_FULL.md §6).
type Stats struct {
	TotalBytes      uint64
	FreeBytes       uint64
	ClassFreeCounts []int
	RedoCapacity    int
	RedoHighWater   int // largest entry count any single commit has used so far
}

// Stats computes a point-in-time occupancy snapshot.
func (h *Heap) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := uint64(h.layout.NumChunks) * heap.ChunkUnitSize

	var free uint64
	for _, e := range h.buckets.Huge().Extents() {
		free += uint64(e.NumChunks) * heap.ChunkUnitSize
	}

	counts := make([]int, h.classes.NumClasses())
	for i := range counts {
		counts[i] = h.buckets.RunFreeCount(uint32(i))
	}

	return Stats{
		TotalBytes:      total,
		FreeBytes:       free,
		ClassFreeCounts: counts,
		RedoCapacity:    h.capacity,
		RedoHighWater:   int(atomic.LoadInt64(&h.redoPeak)),
	}
}
