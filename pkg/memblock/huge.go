package memblock

import (
	"sync"

	"github.com/dittopm/pmstore/pkg/heap"
	"github.com/dittopm/pmstore/pkg/pmem"
)

// Huge is the Block variant for a whole-chunk (possibly multi-chunk)
// allocation. Its persistent state lives entirely in the chunk header's
// type tag: FREE or USED.
type Huge struct {
	chunkID uint32
	sizeIdx uint32 // number of chunks spanned, for multi-chunk allocations
}

// NewHuge constructs a Huge block spanning numChunks chunks starting at
// chunkID. numChunks is stored as the block's sizeIdx, per spec: for HUGE
// blocks sizeIdx is overloaded to mean "chunks spanned" rather than an
// allocation-class index.
func NewHuge(chunkID, numChunks uint32) *Huge {
	return &Huge{chunkID: chunkID, sizeIdx: numChunks}
}

func (b *Huge) ChunkID() uint32 { return b.chunkID }

// NumChunks returns how many whole chunks this block spans.
func (b *Huge) NumChunks() uint32 {
	if b.sizeIdx == 0 {
		return 1
	}
	return b.sizeIdx
}

func (b *Huge) Data(layout heap.Layout) uint64 {
	return layout.ChunkDataOffset(b.chunkID)
}

func (b *Huge) Size(_ ClassTable) uint64 {
	n := b.sizeIdx
	if n == 0 {
		n = 1
	}
	return uint64(n) * heap.ChunkUnitSize
}

func (b *Huge) BlockOffset() uint32 {
	return 0
}

func (b *Huge) Lock() *sync.Mutex {
	// Huge blocks are serialized by the HUGE bucket's own mutex; they have
	// no independent per-run lock.
	return nil
}

func (b *Huge) State(ops pmem.Ops, layout heap.Layout) (State, error) {
	h, err := heap.ReadChunkHeader(ops, layout, b.chunkID)
	if err != nil {
		return 0, err
	}
	if h.Type == heap.ChunkTypeFree {
		return StateFree, nil
	}
	return StateAllocated, nil
}

// PrepareHeader tags the block's head chunk USED/FREE and every
// continuation chunk (for a multi-chunk block) FOOTER/FREE to match. A
// continuation chunk left tagged FREE would be indistinguishable from a
// genuinely free chunk, and Populate would hand it back out from under a
// live allocation on the next boot — the FOOTER tag is what stops that.
// Each continuation's SizeIdx carries the head chunk's id, a back-pointer
// with no functional use today beyond making the layout self-describing
// for diagnostics.
func (b *Huge) PrepareHeader(ops pmem.Ops, layout heap.Layout, newState State) ([]RedoEntry, error) {
	headType, contType := heap.ChunkTypeFree, heap.ChunkTypeFree
	if newState == StateAllocated {
		headType, contType = heap.ChunkTypeUsed, heap.ChunkTypeFooter
	}

	n := b.NumChunks()
	entries := make([]RedoEntry, 0, n)

	head := heap.ChunkHeader{Type: headType, SizeIdx: b.sizeIdx}
	entries = append(entries, RedoEntry{Offset: layout.ChunkHeaderOffset(b.chunkID), Value: head.EncodeValue()})

	for i := uint32(1); i < n; i++ {
		foot := heap.ChunkHeader{Type: contType, SizeIdx: b.chunkID}
		entries = append(entries, RedoEntry{Offset: layout.ChunkHeaderOffset(b.chunkID + i), Value: foot.EncodeValue()})
	}

	return entries, nil
}
