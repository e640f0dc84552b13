package palloc

import (
	"github.com/dittopm/pmstore/pkg/bucket"
	"github.com/dittopm/pmstore/pkg/heap"
	"github.com/dittopm/pmstore/pkg/memblock"
)

// iterSentinel marks "return the first live allocation", mirroring
// spec.md §4.6's UINT64_MAX sentinel.
const iterSentinel = ^uint64(0)

// First returns the first live allocation's user offset, in (zone_id,
// chunk_id, block_off) order.
func (h *Heap) First() (uint64, bool) {
	return h.advance(iterSentinel)
}

// Next returns the first live allocation strictly after off, in the same
// order. Both calls are stateless: each restarts the walk from the
// persistent layout.
func (h *Heap) Next(off uint64) (uint64, bool) {
	return h.advance(off)
}

func (h *Heap) advance(after uint64) (uint64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	hasAfter := after != iterSentinel
	var afterChunk, afterSlot uint32

	if hasAfter {
		hdr, err := readHeader(h.ops, after)
		if err != nil {
			return 0, false
		}
		afterChunk = uint32(hdr.ChunkID)

		chdr, err := heap.ReadChunkHeader(h.ops, h.layout, afterChunk)
		if err != nil {
			return 0, false
		}
		if chdr.Type == heap.ChunkTypeRun {
			unitSize := h.classes.UnitSize(chdr.SizeIdx)
			if unitSize > 0 {
				dataBase := h.layout.ChunkDataOffset(afterChunk) + memblock.RunBitmapBytes
				afterSlot = uint32((after - HeaderSize - dataBase) / unitSize)
			}
		}
	}

	for chunkID := afterChunk; chunkID < h.layout.NumChunks; chunkID++ {
		chdr, err := heap.ReadChunkHeader(h.ops, h.layout, chunkID)
		if err != nil {
			return 0, false
		}

		switch chdr.Type {
		case heap.ChunkTypeUsed:
			if !hasAfter || chunkID > afterChunk {
				return h.layout.ChunkDataOffset(chunkID) + HeaderSize, true
			}

		case heap.ChunkTypeRun:
			unitSize := h.classes.UnitSize(chdr.SizeIdx)
			if unitSize == 0 {
				continue
			}
			n := bucket.UnitsPerChunk(unitSize)

			start := uint32(0)
			if hasAfter && chunkID == afterChunk {
				start = afterSlot + 1
			}

			dataBase := h.layout.ChunkDataOffset(chunkID) + memblock.RunBitmapBytes
			for slot := start; slot < n; slot++ {
				run := memblock.NewRun(chunkID, chdr.SizeIdx, slot, unitSize, nil)
				state, err := run.State(h.ops, h.layout)
				if err != nil {
					return 0, false
				}
				if state == memblock.StateAllocated {
					return dataBase + uint64(slot)*unitSize + HeaderSize, true
				}
			}
		}
	}
	return 0, false
}
