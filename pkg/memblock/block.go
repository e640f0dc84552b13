// Package memblock implements the memory-block polymorphism over {Huge,
// Run} chunk content: a small capability set shared by both variants, with
// static dispatch recovered from the on-media chunk header's type tag.
package memblock

import (
	"fmt"
	"sync"

	"github.com/dittopm/pmstore/pkg/heap"
	"github.com/dittopm/pmstore/pkg/pmem"
)

// State is the logical occupancy of a memory block.
type State int

const (
	StateFree State = iota
	StateAllocated
)

// RedoEntry is a single (offset, value) pair a Block wants appended to the
// in-flight operation's redo context. Packages above memblock (pkg/bucket,
// pkg/palloc) own the actual commit; PrepareHeader only decides what must
// be written.
type RedoEntry struct {
	Offset uint64
	Value  uint64
}

// Block is the capability set shared by the Huge and Run variants: locate
// data, report size/offset, expose a per-run lock (nil for Huge), read
// persistent state, and produce the redo entries that flip that state.
type Block interface {
	// Data returns the start offset (into the heap) of the block's usable
	// region — the chunk's first byte for Huge, the run slot's first byte
	// for Run.
	Data(layout heap.Layout) uint64

	// Size returns the block's capacity in bytes: chunk size for Huge,
	// allocation-class unit size for Run.
	Size(classes ClassTable) uint64

	// BlockOffset returns the slot index within the run (always 0 for
	// Huge).
	BlockOffset() uint32

	// Lock returns the per-run mutex guarding this block's bitmap word, or
	// nil for Huge blocks (whose chunk-header flip is guarded by the HUGE
	// bucket mutex instead).
	Lock() *sync.Mutex

	// State reads the persistent header/bitmap bit for this block.
	State(ops pmem.Ops, layout heap.Layout) (State, error)

	// PrepareHeader returns the redo entries needed to transition this
	// block to newState.
	PrepareHeader(ops pmem.Ops, layout heap.Layout, newState State) ([]RedoEntry, error)

	// ChunkID is the chunk this block lives in.
	ChunkID() uint32
}

// ClassTable maps an allocation-class size index to its unit size in bytes,
// used by Run blocks to compute Size().
type ClassTable interface {
	UnitSize(sizeIdx uint32) uint64
}

// Autodetect inspects the persistent chunk header's type tag and returns a
// Block of the matching variant. Run blocks require blockOffset (the slot
// index) and classes (to resolve the owning allocation class's unit size);
// both are ignored for Huge chunks.
func Autodetect(ops pmem.Ops, layout heap.Layout, chunkID uint32, blockOffset uint32, classes ClassTable, lock *sync.Mutex) (Block, error) {
	h, err := heap.ReadChunkHeader(ops, layout, chunkID)
	if err != nil {
		return nil, err
	}

	switch h.Type {
	case heap.ChunkTypeFree, heap.ChunkTypeUsed:
		return &Huge{chunkID: chunkID, sizeIdx: h.SizeIdx}, nil
	case heap.ChunkTypeRun:
		var unitSize uint64
		if classes != nil {
			unitSize = classes.UnitSize(h.SizeIdx)
		}
		return NewRun(chunkID, h.SizeIdx, blockOffset, unitSize, lock), nil
	default:
		return nil, fmt.Errorf("memblock: chunk %d has unrecognized type tag %d", chunkID, h.Type)
	}
}
