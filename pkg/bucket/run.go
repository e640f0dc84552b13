package bucket

import (
	"fmt"
	"sync"

	"github.com/dittopm/pmstore/pkg/heap"
	"github.com/dittopm/pmstore/pkg/memblock"
)

type runSlot struct {
	chunkID uint32
	slot    uint32
}

// RunBucket is the free-unit container for one allocation class: a FIFO
// queue of individually free run slots, plus the per-chunk locks shared by
// every Run block carved from this class's chunks.
type RunBucket struct {
	mu       sync.Mutex
	classIdx uint32
	unitSize uint64
	free     []runSlot
	runLocks map[uint32]*sync.Mutex
}

func newRunBucket(classIdx uint32, unitSize uint64) *RunBucket {
	return &RunBucket{classIdx: classIdx, unitSize: unitSize, runLocks: make(map[uint32]*sync.Mutex)}
}

// Mutex returns the bucket's lock, for callers implementing the
// bucket-then-run lock-crossing order themselves.
func (b *RunBucket) Mutex() *sync.Mutex { return &b.mu }

// ClassIdx returns the allocation class this bucket serves.
func (b *RunBucket) ClassIdx() uint32 { return b.classIdx }

// CalcUnits always returns 1: a RUN bucket only ever hands out single
// units of its fixed size, since the class table already pre-sizes the
// unit to fit the request.
func (b *RunBucket) CalcUnits(bytes uint64) uint32 { return 1 }

// UnitsPerChunk reports how many units of unitSize a single chunk can
// carry, bounded by both the chunk's byte capacity and the run bitmap's
// maximum trackable unit count.
func UnitsPerChunk(unitSize uint64) uint32 {
	return unitsPerChunk(unitSize)
}

func unitsPerChunk(unitSize uint64) uint32 {
	if unitSize == 0 {
		return 0
	}
	usable := uint64(heap.ChunkUnitSize) - memblock.RunBitmapBytes
	n := usable / unitSize
	if n > memblock.RunMaxUnits {
		n = memblock.RunMaxUnits
	}
	return uint32(n)
}

// claimChunkLocked pulls one whole chunk from huge, reformats it as a RUN
// chunk of this bucket's class, and enqueues its units as free. The
// chunk-header flip to RUN is returned as a redo entry the caller must
// append to the same commit that consumes the first claimed unit — until
// that commit lands, the chunk is still logically FREE on media, which is
// why the claim only ever removes the extent from the HUGE bucket's
// transient list rather than writing anything itself.
func (b *RunBucket) claimChunkLocked(layout heap.Layout, huge *HugeBucket) (memblock.RedoEntry, error) {
	n := unitsPerChunk(b.unitSize)
	if n == 0 {
		return memblock.RedoEntry{}, fmt.Errorf("bucket: unit size %d does not fit a chunk", b.unitSize)
	}

	ext, ok := huge.BestFit(1)
	if !ok {
		return memblock.RedoEntry{}, ErrNoMem
	}

	hdr := heap.ChunkHeader{Type: heap.ChunkTypeRun, SizeIdx: b.classIdx}
	entry := memblock.RedoEntry{Offset: layout.ChunkHeaderOffset(ext.ChunkID), Value: hdr.EncodeValue()}

	b.runLocks[ext.ChunkID] = &sync.Mutex{}
	for slot := uint32(0); slot < n; slot++ {
		b.free = append(b.free, runSlot{chunkID: ext.ChunkID, slot: slot})
	}
	return entry, nil
}

// BestFitLocked pops the first free unit (FIFO), claiming a fresh chunk
// from huge first if the bucket is empty. The returned Run's lock is NOT
// held; the caller is responsible for acquiring it before releasing the
// bucket's own mutex, per the fixed bucket-then-run lock-crossing order.
// The caller must hold b's mutex across the call.
func (b *RunBucket) BestFitLocked(layout heap.Layout, huge *HugeBucket) (*memblock.Run, []memblock.RedoEntry, error) {
	var extra []memblock.RedoEntry
	if len(b.free) == 0 {
		entry, err := b.claimChunkLocked(layout, huge)
		if err != nil {
			return nil, nil, err
		}
		extra = append(extra, entry)
	}
	if len(b.free) == 0 {
		return nil, nil, ErrNoMem
	}

	s := b.free[0]
	b.free = b.free[1:]

	lock := b.runLocks[s.chunkID]
	run := memblock.NewRun(s.chunkID, b.classIdx, s.slot, b.unitSize, lock)
	return run, extra, nil
}

// Release returns a freed unit back to the FIFO queue.
func (b *RunBucket) Release(chunkID, slot uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.free = append(b.free, runSlot{chunkID: chunkID, slot: slot})
}

// FreeCount reports the number of free units currently queued.
func (b *RunBucket) FreeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.free)
}
