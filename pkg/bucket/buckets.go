package bucket

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dittopm/pmstore/pkg/heap"
	"github.com/dittopm/pmstore/pkg/memblock"
	"github.com/dittopm/pmstore/pkg/pmem"
)

// Kind distinguishes which bucket shape a request resolves to.
type Kind int

const (
	KindHuge Kind = iota
	KindRun
)

// Buckets aggregates the one process-wide HUGE bucket and the per-class
// RUN buckets into the single front-end spec.md §4.3 describes:
// heap_get_best_bucket + heap_get_bestfit_block.
type Buckets struct {
	classes ClassTable
	huge    *HugeBucket
	runs    []*RunBucket
}

// New constructs an empty Buckets front-end for the given class table.
func New(classes ClassTable) *Buckets {
	runs := make([]*RunBucket, classes.NumClasses())
	for i := range runs {
		runs[i] = newRunBucket(uint32(i), classes.UnitSize(uint32(i)))
	}
	return &Buckets{classes: classes, huge: NewHugeBucket(), runs: runs}
}

// Huge returns the process-wide HUGE bucket.
func (bs *Buckets) Huge() *HugeBucket { return bs.huge }

// Classes returns the allocation-class table backing the RUN buckets.
func (bs *Buckets) Classes() ClassTable { return bs.classes }

// GetBestBucket resolves the bucket that should serve a bytes-sized
// request: the class table's smallest satisfying RUN class, or the HUGE
// bucket if bytes exceeds every class.
func (bs *Buckets) GetBestBucket(bytes uint64) (kind Kind, classIdx uint32) {
	if idx, ok := bs.classes.ClassFor(bytes); ok {
		return KindRun, idx
	}
	return KindHuge, 0
}

// BestFitBlock implements heap_get_bestfit_block: it resolves, reserves,
// and (for RUN) lock-crosses a block satisfying bytes. It returns the
// block (unlocked for HUGE, already lock-held for RUN — see memblock.Block
// .Lock()), any extra redo entries a fresh RUN-chunk claim requires, a
// revert closure that undoes the reservation (and, if one occurred, the
// chunk claim) if the caller aborts before committing, and ErrNoMem on
// exhaustion.
func (bs *Buckets) BestFitBlock(layout heap.Layout, bytes uint64) (memblock.Block, []memblock.RedoEntry, func(), error) {
	kind, classIdx := bs.GetBestBucket(bytes)

	switch kind {
	case KindHuge:
		numChunks := bs.huge.CalcUnits(bytes, heap.ChunkUnitSize)
		bs.huge.mu.Lock()
		ext, ok := bs.huge.BestFitLocked(numChunks)
		bs.huge.mu.Unlock()
		if !ok {
			return nil, nil, nil, ErrNoMem
		}
		revert := func() { bs.huge.Insert(ext.ChunkID, ext.NumChunks) }
		return memblock.NewHuge(ext.ChunkID, ext.NumChunks), nil, revert, nil

	case KindRun:
		rb := bs.runs[classIdx]
		rb.mu.Lock()
		run, extra, err := rb.BestFitLocked(layout, bs.huge)
		if err != nil {
			rb.mu.Unlock()
			return nil, nil, nil, err
		}
		claimed := len(extra) > 0
		// Acquire the new block's own lock before releasing the bucket
		// lock: the fixed order is bucket -> run, and the bucket lock must
		// stay held until the run lock is in hand, or heap_get_bestfit_block
		// could race another caller into reclaiming the same slot.
		if lock := run.Lock(); lock != nil {
			lock.Lock()
		}
		rb.mu.Unlock()

		revert := func() {
			rb.mu.Lock()
			defer rb.mu.Unlock()
			if claimed {
				// The chunk-claim redo entry never committed, so the chunk
				// is still logically FREE on media: undo the claim
				// entirely rather than just the one popped unit.
				kept := rb.free[:0]
				for _, s := range rb.free {
					if s.chunkID != run.ChunkID() {
						kept = append(kept, s)
					}
				}
				rb.free = kept
				delete(rb.runLocks, run.ChunkID())
				bs.huge.Insert(run.ChunkID(), 1)
			} else {
				rb.free = append(rb.free, runSlot{chunkID: run.ChunkID(), slot: run.BlockOffset()})
			}
		}
		return run, extra, revert, nil

	default:
		return nil, nil, nil, fmt.Errorf("bucket: unknown kind %d", kind)
	}
}

// ReleaseRun returns a freed RUN unit to its class's free queue. Callers
// must have already committed the FREE state transition.
func (bs *Buckets) ReleaseRun(classIdx, chunkID, slot uint32) {
	if int(classIdx) >= len(bs.runs) {
		return
	}
	bs.runs[classIdx].Release(chunkID, slot)
}

// RunFreeCount reports how many free units a class's RUN bucket is
// currently holding.
func (bs *Buckets) RunFreeCount(classIdx uint32) int {
	if int(classIdx) >= len(bs.runs) {
		return 0
	}
	return bs.runs[classIdx].FreeCount()
}

// RunLock returns the shared per-chunk lock for a given class/chunk pair,
// creating it if necessary. Used to resolve the lock for an existing
// allocation (e.g. on free/realloc) where the chunk may have been
// populated at boot rather than claimed by this process.
func (bs *Buckets) RunLock(classIdx, chunkID uint32) *sync.Mutex {
	if int(classIdx) >= len(bs.runs) {
		return nil
	}
	rb := bs.runs[classIdx]
	rb.mu.Lock()
	defer rb.mu.Unlock()
	lock, ok := rb.runLocks[chunkID]
	if !ok {
		lock = &sync.Mutex{}
		rb.runLocks[chunkID] = lock
	}
	return lock
}

// Populate scans every chunk in layout and seeds the transient buckets
// from the persistent header state: FREE chunks are inserted (and
// coalesced) into the HUGE bucket; RUN chunks have their occupancy bitmap
// read back so unoccupied units are requeued and their chunk lock
// registered. USED and FOOTER chunks need no transient bookkeeping — a
// FOOTER chunk is a continuation of the preceding USED chunk's multi-chunk
// span, and both are reachable only through palloc's iteration, never
// through a bucket.
func (bs *Buckets) Populate(ops pmem.Ops, layout heap.Layout) error {
	var runStart uint32
	inFreeRun := false

	flushFreeRun := func(end uint32) {
		if inFreeRun {
			bs.huge.Insert(runStart, end-runStart)
			inFreeRun = false
		}
	}

	for idx := uint32(0); idx < layout.NumChunks; idx++ {
		h, err := heap.ReadChunkHeader(ops, layout, idx)
		if err != nil {
			return err
		}

		switch h.Type {
		case heap.ChunkTypeFree:
			if !inFreeRun {
				runStart = idx
				inFreeRun = true
			}
			continue
		case heap.ChunkTypeRun:
			flushFreeRun(idx)
			if err := bs.populateRunChunk(ops, layout, idx, h.SizeIdx); err != nil {
				return err
			}
		default:
			flushFreeRun(idx)
		}
	}
	flushFreeRun(layout.NumChunks)
	return nil
}

func (bs *Buckets) populateRunChunk(ops pmem.Ops, layout heap.Layout, chunkID, classIdx uint32) error {
	if int(classIdx) >= len(bs.runs) {
		return fmt.Errorf("bucket: chunk %d has unknown class %d", chunkID, classIdx)
	}
	rb := bs.runs[classIdx]

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if _, ok := rb.runLocks[chunkID]; !ok {
		rb.runLocks[chunkID] = &sync.Mutex{}
	}

	n := unitsPerChunk(rb.unitSize)
	base := ops.Base()
	bitmapBase := layout.ChunkDataOffset(chunkID)

	for slot := uint32(0); slot < n; slot++ {
		word := slot / 64
		bit := slot % 64
		wordOff := bitmapBase + uint64(word)*8
		if wordOff+8 > uint64(len(base)) {
			return fmt.Errorf("bucket: run bitmap out of bounds at %d", wordOff)
		}
		v := binary.LittleEndian.Uint64(base[wordOff : wordOff+8])
		if v&(1<<bit) == 0 {
			rb.free = append(rb.free, runSlot{chunkID: chunkID, slot: slot})
		}
	}
	return nil
}
