// Package pmem provides the non-temporal store primitives the allocator
// uses to publish bytes to the backing medium with the correct flush/fence
// ordering.
//
// Go has no way to emit a literal non-temporal (MOVNT-class) store
// instruction — there is no compiler intrinsic and no portable assembly
// entry point across the architectures `go build` targets. MemcpyPersist
// and MemmovePersist therefore simulate the non-temporal path at the
// architectural level rather than the instruction level (MemsetPersist
// fills with a plain loop at every size): at or above MovntThreshold, for
// non-overlapping ranges, the copy streams through the destination in cache-line
// strides without re-reading bytes it has already written (the same
// write-only access pattern a real non-temporal store has, and the reason
// such stores avoid polluting the cache with destination lines), and
// durability is provided by exactly one Drain call at the end of the public
// call, never per-stride. Below the threshold, an ordinary copy is used
// followed by an explicit Flush. Both paths preserve the spec's "one fence
// per call" contract and its small-vs-large performance shape; no caller
// can observe which path ran.
package pmem
