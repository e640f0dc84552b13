package memblock

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dittopm/pmstore/pkg/heap"
	"github.com/dittopm/pmstore/pkg/pmem"
)

// bitmapWords is the number of 64-bit words in a run's persistent
// occupancy bitmap. A run holds at most bitmapWords*64 units; units per
// run is derived from the allocation class's unit size.
const bitmapWords = 8

// bitmapOffsetInChunk is where the occupancy bitmap begins within a RUN
// chunk's data region; the allocation units themselves start immediately
// after it.
const bitmapOffsetInChunk = 0
const bitmapSize = bitmapWords * 8

// RunBitmapBytes is the number of bytes a run's persistent occupancy
// bitmap occupies at the start of the chunk's data region; allocation
// units begin immediately after it.
const RunBitmapBytes = bitmapSize

// RunMaxUnits is the largest number of units a single run's bitmap can
// track (bitmapWords 64-bit words).
const RunMaxUnits = bitmapWords * 64

// Run is the Block variant for one unit within a chunk repurposed as a
// slab of equal-sized units ("run"). Persistent occupancy is tracked by a
// bitmap of 64-bit words at the start of the chunk's data region.
type Run struct {
	chunkID  uint32
	classIdx uint32
	slot     uint32
	unit     uint64 // allocation-class unit size in bytes
	lock     *sync.Mutex
}

// NewRun constructs a Run block for slot within chunkID, owned by
// allocation class classIdx (whose unit size is unitSize bytes) and
// guarded by lock (the run's own mutex).
func NewRun(chunkID, classIdx, slot uint32, unitSize uint64, lock *sync.Mutex) *Run {
	return &Run{chunkID: chunkID, classIdx: classIdx, slot: slot, unit: unitSize, lock: lock}
}

func (b *Run) ChunkID() uint32 { return b.chunkID }

// ClassIdx returns the allocation class this unit belongs to.
func (b *Run) ClassIdx() uint32 { return b.classIdx }

func (b *Run) Data(layout heap.Layout) uint64 {
	return layout.ChunkDataOffset(b.chunkID) + bitmapSize + uint64(b.slot)*b.unit
}

func (b *Run) Size(classes ClassTable) uint64 {
	if classes != nil {
		return classes.UnitSize(b.classIdx)
	}
	return b.unit
}

func (b *Run) BlockOffset() uint32 {
	return b.slot
}

func (b *Run) Lock() *sync.Mutex {
	return b.lock
}

// bitWord/bitIndex returns which 64-bit bitmap word and bit within it
// correspond to this block's slot.
func (b *Run) bitWord() uint32 {
	return b.slot / 64
}

func (b *Run) bitIndex() uint {
	return uint(b.slot % 64)
}

func (b *Run) bitmapBase(layout heap.Layout) uint64 {
	return layout.ChunkDataOffset(b.chunkID) + bitmapOffsetInChunk
}

func (b *Run) State(ops pmem.Ops, layout heap.Layout) (State, error) {
	if b.bitWord() >= bitmapWords {
		return 0, fmt.Errorf("memblock: slot %d exceeds run capacity", b.slot)
	}
	base := ops.Base()
	wordOff := b.bitmapBase(layout) + uint64(b.bitWord())*8
	if wordOff+8 > uint64(len(base)) {
		return 0, fmt.Errorf("memblock: bitmap word out of bounds at %d", wordOff)
	}
	word := binary.LittleEndian.Uint64(base[wordOff : wordOff+8])
	if word&(1<<b.bitIndex()) != 0 {
		return StateAllocated, nil
	}
	return StateFree, nil
}

func (b *Run) PrepareHeader(ops pmem.Ops, layout heap.Layout, newState State) ([]RedoEntry, error) {
	if b.bitWord() >= bitmapWords {
		return nil, fmt.Errorf("memblock: slot %d exceeds run capacity", b.slot)
	}
	base := ops.Base()
	wordOff := b.bitmapBase(layout) + uint64(b.bitWord())*8
	if wordOff+8 > uint64(len(base)) {
		return nil, fmt.Errorf("memblock: bitmap word out of bounds at %d", wordOff)
	}
	word := binary.LittleEndian.Uint64(base[wordOff : wordOff+8])

	mask := uint64(1) << b.bitIndex()
	var newWord uint64
	if newState == StateAllocated {
		newWord = word | mask
	} else {
		newWord = word &^ mask
	}

	return []RedoEntry{{Offset: wordOff, Value: newWord}}, nil
}
