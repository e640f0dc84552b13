// Package bucket implements the transient free-space containers that sit
// in front of the persistent heap: the process-wide HUGE bucket of
// coalescing whole-chunk extents, and one RUN bucket per allocation class
// caching individually free run units. See SPEC_FULL.md §4.3.
package bucket

import "sort"

// ClassTable is the heap's allocation-class size table: an ascending list
// of unit sizes backed by RUN buckets. It implements memblock.ClassTable.
type ClassTable struct {
	sizes []uint64
}

// NewClassTable builds a ClassTable from an arbitrary set of unit sizes,
// sorting them ascending.
func NewClassTable(sizes []uint64) ClassTable {
	cp := make([]uint64, len(sizes))
	copy(cp, sizes)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	return ClassTable{sizes: cp}
}

// DefaultClassTable returns a geometric progression of allocation classes
// similar in spirit to a conventional PM allocator's built-in class table.
func DefaultClassTable() ClassTable {
	return NewClassTable([]uint64{
		64, 128, 192, 256, 384, 512, 768, 1024, 1536, 2048,
		3072, 4096, 8192, 16384, 32768, 65536, 131072, 262144,
	})
}

// NumClasses reports how many allocation classes the table carries.
func (t ClassTable) NumClasses() int { return len(t.sizes) }

// UnitSize implements memblock.ClassTable.
func (t ClassTable) UnitSize(sizeIdx uint32) uint64 {
	if int(sizeIdx) >= len(t.sizes) {
		return 0
	}
	return t.sizes[sizeIdx]
}

// ClassFor resolves the smallest allocation class whose unit size is large
// enough to hold bytes (a monotone selection over the ascending table), or
// ok=false if bytes exceeds every class and must fall back to the HUGE
// bucket.
func (t ClassTable) ClassFor(bytes uint64) (sizeIdx uint32, ok bool) {
	i := sort.Search(len(t.sizes), func(i int) bool { return t.sizes[i] >= bytes })
	if i == len(t.sizes) {
		return 0, false
	}
	return uint32(i), true
}
