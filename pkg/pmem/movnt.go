package pmem

import "fmt"

// MovntThreshold is the size, in bytes, at or above which MemcpyPersist
// and MemmovePersist (for non-overlapping ranges) switch from an ordinary
// copy + explicit flush to the cache-line-strided streaming path described
// in doc.go. MemsetPersist has a single fill path at every size.
// Chosen to match the break-even point real non-temporal-store allocators
// use: below it, the cost of bypassing the cache outweighs the benefit of
// not polluting it.
const MovntThreshold = 256

// CacheLineSize is the granularity at which the streaming path advances.
// Both paths issue one Flush over the whole destination range.
const CacheLineSize = 64

// MemcpyPersist copies src into ops.Base()[dstOff:dstOff+len(src)] and
// guarantees the destination range is durable before returning. Exactly one
// Drain is issued, regardless of size.
func MemcpyPersist(ops Ops, dstOff uint64, src []byte, hint Hint) error {
	base := ops.Base()
	n := uint64(len(src))
	if dstOff+n > uint64(len(base)) {
		return fmt.Errorf("pmem: memcpy dst [%d,%d) out of bounds (size %d)", dstOff, dstOff+n, len(base))
	}

	if n < MovntThreshold {
		copy(base[dstOff:dstOff+n], src)
	} else {
		streamCopy(base[dstOff:dstOff+n], src)
	}

	return finishPersist(ops, dstOff, n, hint)
}

// MemmovePersist copies n bytes from ops.Base()[srcOff:srcOff+n] to
// ops.Base()[dstOff:dstOff+n], correctly handling overlap by choosing a
// forward or backward copy direction, and guarantees durability of the
// destination range before returning.
func MemmovePersist(ops Ops, dstOff, srcOff, n uint64, hint Hint) error {
	base := ops.Base()
	if dstOff+n > uint64(len(base)) || srcOff+n > uint64(len(base)) {
		return fmt.Errorf("pmem: memmove range out of bounds (size %d)", len(base))
	}
	if n == 0 {
		return finishPersist(ops, dstOff, 0, hint)
	}

	dst := base[dstOff : dstOff+n]
	src := base[srcOff : srcOff+n]

	overlap := dstOff < srcOff+n && srcOff < dstOff+n
	if overlap && dstOff > srcOff {
		// Backward copy: walk from the tail so we never overwrite a byte
		// before it has been read.
		for i := int64(n) - 1; i >= 0; i-- {
			dst[i] = src[i]
		}
	} else {
		// Go's builtin copy already handles the forward-overlap and
		// no-overlap cases correctly and is safe to use directly here; the
		// non-temporal simulation only changes how bytes are streamed for
		// non-overlapping, large regions.
		if n >= MovntThreshold && !overlap {
			streamCopy(dst, src)
		} else {
			copy(dst, src)
		}
	}

	return finishPersist(ops, dstOff, n, hint)
}

// MemsetPersist fills ops.Base()[dstOff:dstOff+n] with c and guarantees
// durability of the range before returning.
func MemsetPersist(ops Ops, dstOff uint64, c byte, n uint64, hint Hint) error {
	base := ops.Base()
	if dstOff+n > uint64(len(base)) {
		return fmt.Errorf("pmem: memset range [%d,%d) out of bounds (size %d)", dstOff, dstOff+n, len(base))
	}

	dst := base[dstOff : dstOff+n]
	for i := range dst {
		dst[i] = c
	}

	return finishPersist(ops, dstOff, n, hint)
}

// streamCopy copies src into dst in cache-line-sized strides. It never
// re-reads a destination byte once written, the access pattern a real
// non-temporal store instruction would also exhibit.
func streamCopy(dst, src []byte) {
	n := len(src)
	for off := 0; off < n; off += CacheLineSize {
		end := off + CacheLineSize
		if end > n {
			end = n
		}
		copy(dst[off:end], src[off:end])
	}
}

// finishPersist applies the flush/drain policy implied by hint, issuing at
// most one Drain.
func finishPersist(ops Ops, offset, n uint64, hint Hint) error {
	switch hint {
	case HintNoDrain:
		return ops.Flush(offset, n)
	case HintWC:
		// Write-combined memory needs no per-range flush; the trailing
		// drain alone orders it.
		return ops.Drain()
	default:
		return ops.Persist(offset, n)
	}
}
