package pmem

// Hint selects a write-combining or fence-elision strategy for a single
// Memcpy/Memset call. Most callers use HintDefault.
type Hint int

const (
	// HintDefault flushes and drains normally.
	HintDefault Hint = iota
	// HintWC indicates the destination is write-combined memory; callers
	// may skip the per-store flush and rely on the trailing drain alone.
	HintWC
	// HintNoDrain flushes the affected range but leaves the store fence to
	// a later, batched Drain call made by the caller.
	HintNoDrain
)

// Ops is the collaborator interface the allocator core consumes for medium
// access. It is intentionally small: everything the core needs to durably
// publish bytes reduces to addressing the base region, flushing a range to
// the point of persistence, and draining (a store fence) to order those
// flushes against subsequent stores.
type Ops interface {
	// Base returns the backing byte region. Offsets used elsewhere in this
	// package and in pkg/heap, pkg/redo, and pkg/palloc are indices into
	// this slice.
	Base() []byte

	// Flush pushes the byte range [offset, offset+n) to the point of
	// persistence (e.g. a cache-line writeback) without ordering it
	// against other flushes.
	Flush(offset, n uint64) error

	// Drain issues a store fence: every Flush that happened-before this
	// call is guaranteed durable once Drain returns.
	Drain() error

	// Persist is Flush followed by Drain, for the common case of a single
	// range that must be durable before the call returns.
	Persist(offset, n uint64) error

	// Close releases any OS resources (file descriptors, mappings) held by
	// the implementation.
	Close() error
}
