package palloc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dittopm/pmstore/pkg/bufpool"
	"github.com/dittopm/pmstore/pkg/heap"
	"github.com/dittopm/pmstore/pkg/memblock"
	"github.com/dittopm/pmstore/pkg/metrics"
	"github.com/dittopm/pmstore/pkg/pmem"
	"github.com/dittopm/pmstore/pkg/redo"
)

// Constructor initializes a freshly reserved allocation's user region. It
// receives the heap's pmem.Ops and the offset of the user data (not the
// header); a non-nil error aborts the allocation and rolls the
// reservation back into its owning bucket.
type Constructor func(ops pmem.Ops, userOff uint64, arg any) error

// Operation is the single entry point unifying malloc/free/realloc, per
// spec.md §4.5's behavior matrix:
//
//	oldOff  newSize  action
//	0       0        no-op
//	0       >0       allocate, write destOff = new user offset via redo
//	!=0     0        free, write destOff = 0 via redo
//	!=0     >0 same  no-op (early return)
//	!=0     >0       allocate new, copy min(old,new), free old, update destOff
//
// destOff is a heap offset (0 meaning none supplied) rather than a
// volatile Go pointer — see SPEC_FULL.md §6.
func (h *Heap) Operation(ctx context.Context, oldOff uint64, destOff uint64, newSize uint64, ctor Constructor, ctorArg any, rctx *redo.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if oldOff == 0 && newSize == 0 {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var oldBlk memblock.Block
	if oldOff != 0 {
		blk, err := h.resolveBlock(oldOff)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		oldBlk = blk

		if newSize > 0 {
			oldSize, err := h.UsableSize(oldOff)
			if err != nil {
				return err
			}
			if newSize == oldSize {
				return nil
			}
		}
	}

	var entries []memblock.RedoEntry
	var newBlk memblock.Block
	var userOff uint64
	var revertNew func()

	// Steps 1-4: reserve, prepare, lock-cross, record allocation.
	if newSize > 0 {
		blk, extra, revert, err := h.buckets.BestFitBlock(h.layout, newSize+HeaderSize)
		if err != nil {
			metrics.IncOutOfMemory(h.metrics)
			return ErrNoMemory
		}
		newBlk = blk
		revertNew = revert
		entries = append(entries, extra...)

		if lock := blk.Lock(); lock != nil {
			defer lock.Unlock()
		}

		blockStart := blk.Data(h.layout)
		userOff = blockStart + HeaderSize

		if err := writeHeader(h.ops, blockStart, allocHeader{ChunkID: uint64(blk.ChunkID()), Size: newSize, ZoneID: h.layout.ZoneID}); err != nil {
			revert()
			return fmt.Errorf("palloc: write header: %w", err)
		}

		if ctor != nil {
			if err := ctor(h.ops, userOff, ctorArg); err != nil {
				revert()
				return ErrCanceled
			}
		}

		allocEntries, err := blk.PrepareHeader(h.ops, h.layout, memblock.StateAllocated)
		if err != nil {
			revert()
			return err
		}
		entries = append(entries, allocEntries...)
	}

	// Step 5 (+6): resolve and lock the freed block, copy payload for realloc.
	if oldBlk != nil {
		oldLock := oldBlk.Lock()
		var newLock *sync.Mutex
		if newBlk != nil {
			newLock = newBlk.Lock()
		}
		if oldLock != nil && oldLock != newLock {
			oldLock.Lock()
			defer oldLock.Unlock()
		}

		oldState, err := oldBlk.State(h.ops, h.layout)
		if err != nil {
			return err
		}
		if oldState != memblock.StateAllocated {
			if revertNew != nil {
				revertNew()
			}
			return heap.AssertConsistent(fmt.Sprintf("double free or realloc of non-allocated block at offset %d", oldOff))
		}

		if newBlk != nil {
			copyLen := newSize
			if oldSize, err := h.UsableSize(oldOff); err == nil && oldSize < copyLen {
				copyLen = oldSize
			}
			if copyLen > 0 {
				// A staging copy is unavoidable: MemcpyPersist's
				// non-temporal path must not read from the same cache
				// lines it's streaming into if old and new regions ever
				// alias. bufpool keeps that staging buffer off the
				// allocator's own heap.
				staging := bufpool.Get(int(copyLen))
				copy(staging, h.ops.Base()[oldOff:oldOff+copyLen])
				err := pmem.MemcpyPersist(h.ops, userOff, staging, pmem.HintDefault)
				bufpool.Put(staging)
				if err != nil {
					return err
				}
			}
		}

		freeEntries, err := oldBlk.PrepareHeader(h.ops, h.layout, memblock.StateFree)
		if err != nil {
			return err
		}
		entries = append(entries, freeEntries...)
	}

	// Step 7: destination-pointer update.
	if destOff != 0 {
		entries = append(entries, memblock.RedoEntry{Offset: destOff, Value: userOff})
	}

	if len(entries) == 0 {
		return nil
	}

	// Step 8: commit.
	if err := h.commit(entries); err != nil {
		return err
	}

	// Step 9: re-insert the freed block's transient reservation after commit.
	if oldBlk != nil {
		switch b := oldBlk.(type) {
		case *memblock.Huge:
			h.buckets.Huge().Insert(b.ChunkID(), b.NumChunks())
		case *memblock.Run:
			h.buckets.ReleaseRun(b.ClassIdx(), b.ChunkID(), b.BlockOffset())
		}
	}

	// Step 10: per-run locks drop via the defers registered above.
	return nil
}

// resolveBlock reconstructs the memory block owning an existing
// allocation from its header and chunk type tag.
func (h *Heap) resolveBlock(userOff uint64) (memblock.Block, error) {
	hdr, err := readHeader(h.ops, userOff)
	if err != nil {
		return nil, err
	}
	chunkID := uint32(hdr.ChunkID)

	chdr, err := heap.ReadChunkHeader(h.ops, h.layout, chunkID)
	if err != nil {
		return nil, err
	}

	switch chdr.Type {
	case heap.ChunkTypeUsed:
		return memblock.NewHuge(chunkID, chdr.SizeIdx), nil
	case heap.ChunkTypeRun:
		unitSize := h.classes.UnitSize(chdr.SizeIdx)
		if unitSize == 0 {
			return nil, fmt.Errorf("chunk %d has unknown run class %d", chunkID, chdr.SizeIdx)
		}
		dataBase := h.layout.ChunkDataOffset(chunkID) + memblock.RunBitmapBytes
		hdrOff := userOff - HeaderSize
		if hdrOff < dataBase {
			return nil, fmt.Errorf("offset %d does not resolve to a run unit in chunk %d", userOff, chunkID)
		}
		slot := uint32((hdrOff - dataBase) / unitSize)
		lock := h.buckets.RunLock(chdr.SizeIdx, chunkID)
		return memblock.NewRun(chunkID, chdr.SizeIdx, slot, unitSize, lock), nil
	default:
		return nil, fmt.Errorf("chunk %d is not a live allocation (type %s)", chunkID, chdr.Type)
	}
}

// commit stores every entry but the last with Store, the last with
// StoreLast, then processes the whole batch.
func (h *Heap) commit(entries []memblock.RedoEntry) error {
	if len(entries) > h.capacity {
		return fmt.Errorf("palloc: operation needs %d redo entries, capacity is %d", len(entries), h.capacity)
	}
	start := time.Now()
	for i := 0; i < len(entries)-1; i++ {
		if err := h.log.Store(i, entries[i].Offset, entries[i].Value); err != nil {
			return err
		}
	}
	last := entries[len(entries)-1]
	if err := h.log.StoreLast(len(entries)-1, last.Offset, last.Value); err != nil {
		return err
	}
	if err := h.log.Process(len(entries)); err != nil {
		return err
	}
	h.recordRedoHighWater(len(entries))
	metrics.ObserveCommit(h.metrics, len(entries), time.Since(start))
	return nil
}

// recordRedoHighWater updates the observed peak entry count across every
// commit this heap has processed, for Stats' RedoHighWater field.
func (h *Heap) recordRedoHighWater(n int) {
	for {
		cur := atomic.LoadInt64(&h.redoPeak)
		if int64(n) <= cur {
			return
		}
		if atomic.CompareAndSwapInt64(&h.redoPeak, cur, int64(n)) {
			return
		}
	}
}
