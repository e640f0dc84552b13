package palloc

import (
	"context"
	"testing"
	"time"

	"github.com/dittopm/pmstore/pkg/heap"
	"github.com/dittopm/pmstore/pkg/pmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMetrics records calls instead of exporting them, so tests can assert
// on wiring without pulling in the Prometheus-backed implementation.
type fakeMetrics struct {
	commits       int
	commitEntries []int
	bucketFree    map[uint32]int
	zoneFree      map[uint32]uint64
	outOfMemory   int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{bucketFree: map[uint32]int{}, zoneFree: map[uint32]uint64{}}
}

func (f *fakeMetrics) ObserveCommit(entries int, d time.Duration) {
	f.commits++
	f.commitEntries = append(f.commitEntries, entries)
}

func (f *fakeMetrics) SetBucketFree(classIdx uint32, free int) {
	f.bucketFree[classIdx] = free
}

func (f *fakeMetrics) SetZoneOccupancy(zoneID uint32, freeBytes uint64) {
	f.zoneFree[zoneID] = freeBytes
}

func (f *fakeMetrics) IncOutOfMemory() {
	f.outOfMemory++
}

const testHeapSize = 16 * (4 << 20) // 16 chunks

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	ops := pmem.NewNullOps(testHeapSize)
	h, err := Init("test.pm", testHeapSize, ops)
	require.NoError(t, err)
	return h
}

func writeCtor(payload []byte) Constructor {
	return func(ops pmem.Ops, userOff uint64, arg any) error {
		return pmem.MemcpyPersist(ops, userOff, payload, pmem.HintDefault)
	}
}

func TestOperation_NoOpWhenBothZero(t *testing.T) {
	h := newTestHeap(t)
	err := h.Operation(context.Background(), 0, 0, 0, nil, nil, nil)
	assert.NoError(t, err)
}

func TestOperation_AllocateWritesDestOff(t *testing.T) {
	h := newTestHeap(t)

	destOff := h.layout.ChunkDataOffset(h.layout.NumChunks - 1) // scratch slot to receive the object id
	payload := []byte("hello, pm")

	err := h.Operation(context.Background(), 0, destOff, uint64(len(payload)), writeCtor(payload), nil, nil)
	require.NoError(t, err)

	base := h.ops.Base()
	userOff := readTargetU64(base, destOff)
	assert.NotZero(t, userOff)
	assert.Equal(t, payload, base[userOff:userOff+uint64(len(payload))])

	sz, err := h.UsableSize(userOff)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), sz)
}

func TestOperation_FreeZeroesDestOff(t *testing.T) {
	h := newTestHeap(t)

	destOff := h.layout.ChunkDataOffset(h.layout.NumChunks - 1)
	payload := []byte("to be freed")
	require.NoError(t, h.Operation(context.Background(), 0, destOff, uint64(len(payload)), writeCtor(payload), nil, nil))

	userOff := readTargetU64(h.ops.Base(), destOff)
	require.NotZero(t, userOff)

	require.NoError(t, h.Operation(context.Background(), userOff, destOff, 0, nil, nil, nil))
	assert.Equal(t, uint64(0), readTargetU64(h.ops.Base(), destOff))
}

func TestOperation_SameSizeIsNoOp(t *testing.T) {
	h := newTestHeap(t)

	destOff := h.layout.ChunkDataOffset(h.layout.NumChunks - 1)
	payload := []byte("0123456789")
	require.NoError(t, h.Operation(context.Background(), 0, destOff, uint64(len(payload)), writeCtor(payload), nil, nil))
	userOff := readTargetU64(h.ops.Base(), destOff)

	err := h.Operation(context.Background(), userOff, destOff, uint64(len(payload)), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, userOff, readTargetU64(h.ops.Base(), destOff), "destOff must be untouched by the no-op path")
}

func TestOperation_ReallocCopiesPayloadAndFreesOld(t *testing.T) {
	h := newTestHeap(t)

	destOff := h.layout.ChunkDataOffset(h.layout.NumChunks - 1)
	payload := []byte("grow me")
	require.NoError(t, h.Operation(context.Background(), 0, destOff, uint64(len(payload)), writeCtor(payload), nil, nil))
	oldOff := readTargetU64(h.ops.Base(), destOff)

	err := h.Operation(context.Background(), oldOff, destOff, 4096, nil, nil, nil)
	require.NoError(t, err)

	newOff := readTargetU64(h.ops.Base(), destOff)
	assert.NotEqual(t, oldOff, newOff)
	assert.Equal(t, payload, h.ops.Base()[newOff:newOff+uint64(len(payload))])

	sz, err := h.UsableSize(newOff)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), sz)
}

func TestOperation_ConstructorFailureRollsBack(t *testing.T) {
	h := newTestHeap(t)

	failCtor := func(ops pmem.Ops, userOff uint64, arg any) error {
		return assert.AnError
	}

	before := h.buckets.RunFreeCount(0)
	err := h.Operation(context.Background(), 0, 0, 32, failCtor, nil, nil)
	assert.ErrorIs(t, err, ErrCanceled)

	after := h.buckets.RunFreeCount(0)
	assert.Equal(t, before, after, "the reservation must be returned to the bucket on constructor failure")
}

func TestOperation_OutOfMemoryWhenRequestExceedsHeap(t *testing.T) {
	h := newTestHeap(t)
	err := h.Operation(context.Background(), 0, 0, 1<<40, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoMemory)
}

func TestHeap_IterationVisitsLiveAllocationsInOrder(t *testing.T) {
	h := newTestHeap(t)

	var offs []uint64
	for i := 0; i < 3; i++ {
		var dest uint64
		err := h.Operation(context.Background(), 0, 0, uint64(100+i), nil, nil, nil)
		_ = dest
		require.NoError(t, err)
	}

	off, ok := h.First()
	require.True(t, ok)
	offs = append(offs, off)
	for {
		next, ok := h.Next(off)
		if !ok {
			break
		}
		offs = append(offs, next)
		off = next
	}
	assert.Len(t, offs, 3)
	for i := 1; i < len(offs); i++ {
		assert.Less(t, offs[i-1], offs[i])
	}
}

func TestHeap_BootRecoversAfterInit(t *testing.T) {
	ops := pmem.NewNullOps(testHeapSize)
	h, err := Init("test.pm", testHeapSize, ops)
	require.NoError(t, err)

	destOff := h.layout.ChunkDataOffset(h.layout.NumChunks - 1)
	payload := []byte("persisted")
	require.NoError(t, h.Operation(context.Background(), 0, destOff, uint64(len(payload)), writeCtor(payload), nil, nil))
	userOff := readTargetU64(ops.Base(), destOff)

	rebooted, err := Boot("test.pm", ops)
	require.NoError(t, err)

	sz, err := rebooted.UsableSize(userOff)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), sz)

	require.NoError(t, rebooted.Check(context.Background()))
}

func TestOperation_ReportsCommitMetrics(t *testing.T) {
	h := newTestHeap(t)
	fm := newFakeMetrics()
	h.SetMetrics(fm)

	destOff := h.layout.ChunkDataOffset(h.layout.NumChunks - 1)
	payload := []byte("metrics")
	require.NoError(t, h.Operation(context.Background(), 0, destOff, uint64(len(payload)), writeCtor(payload), nil, nil))

	assert.Equal(t, 1, fm.commits)
	require.Len(t, fm.commitEntries, 1)
	assert.Positive(t, fm.commitEntries[0])
}

func TestOperation_IncrementsOutOfMemoryOnFailedReserve(t *testing.T) {
	h := newTestHeap(t)
	fm := newFakeMetrics()
	h.SetMetrics(fm)

	err := h.Operation(context.Background(), 0, 0, testHeapSize*2, writeCtor([]byte("x")), nil, nil)
	require.ErrorIs(t, err, ErrNoMemory)
	assert.Equal(t, 1, fm.outOfMemory)
}

func TestHeap_ReportMetricsPublishesOccupancy(t *testing.T) {
	h := newTestHeap(t)
	fm := newFakeMetrics()
	h.SetMetrics(fm)

	h.ReportMetrics()

	assert.Contains(t, fm.zoneFree, h.layout.ZoneID)
	assert.NotEmpty(t, fm.bucketFree)
}

func TestHeap_ReportMetricsNilCollectorIsNoOp(t *testing.T) {
	h := newTestHeap(t)
	h.ReportMetrics() // must not panic with no collector attached
}

func TestHeap_BootDoesNotReclaimMultiChunkAllocationTail(t *testing.T) {
	ops := pmem.NewNullOps(testHeapSize)
	h, err := Init("test.pm", testHeapSize, ops)
	require.NoError(t, err)

	destOff := h.layout.ChunkDataOffset(h.layout.NumChunks - 1)
	payloadSize := 3*uint64(heap.ChunkUnitSize) - 100 // spans 3 chunks, starting at chunk 0
	payload := make([]byte, payloadSize)
	for i := range payload {
		payload[i] = 0xAB
	}
	require.NoError(t, h.Operation(context.Background(), 0, destOff, payloadSize, writeCtor(payload), nil, nil))
	userOff := readTargetU64(ops.Base(), destOff)

	rebooted, err := Boot("test.pm", ops)
	require.NoError(t, err)
	require.NoError(t, rebooted.Check(context.Background()))

	sz, err := rebooted.UsableSize(userOff)
	require.NoError(t, err)
	assert.Equal(t, payloadSize, sz)

	free := map[uint32]bool{}
	for _, ext := range rebooted.buckets.Huge().Extents() {
		for c := ext.ChunkID; c < ext.End(); c++ {
			free[c] = true
		}
	}
	assert.False(t, free[0], "head chunk of the live allocation reclaimed as free")
	assert.False(t, free[1], "continuation chunk reclaimed as free after reboot")
	assert.False(t, free[2], "continuation chunk reclaimed as free after reboot")
}

func TestOperation_DoubleFreeIsRejected(t *testing.T) {
	h := newTestHeap(t)

	// A small payload resolves to a RUN class, whose chunk header stays
	// tagged ChunkTypeRun across free/alloc — unlike a HUGE block, where
	// resolveBlock itself already rejects a freed chunk's header tag. This
	// is the case that genuinely depends on the State() check below.
	payload := []byte("double free me")
	destOff := h.layout.ChunkDataOffset(h.layout.NumChunks - 1)
	require.NoError(t, h.Operation(context.Background(), 0, destOff, uint64(len(payload)), writeCtor(payload), nil, nil))
	userOff := readTargetU64(h.ops.Base(), destOff)

	require.NoError(t, h.Operation(context.Background(), userOff, 0, 0, nil, nil, nil))

	err := h.Operation(context.Background(), userOff, 0, 0, nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, heap.ErrCorrupted)
}

func TestHeap_StatsTracksRedoHighWaterMark(t *testing.T) {
	h := newTestHeap(t)
	assert.Zero(t, h.Stats().RedoHighWater)

	small := []byte("x")
	destSmall := h.layout.ChunkDataOffset(h.layout.NumChunks - 1)
	require.NoError(t, h.Operation(context.Background(), 0, destSmall, uint64(len(small)), writeCtor(small), nil, nil))
	firstPeak := h.Stats().RedoHighWater
	require.Positive(t, firstPeak)

	big := 3*uint64(heap.ChunkUnitSize) - 100
	destBig := h.layout.ChunkDataOffset(h.layout.NumChunks - 2)
	payload := make([]byte, big)
	require.NoError(t, h.Operation(context.Background(), 0, destBig, big, writeCtor(payload), nil, nil))

	secondPeak := h.Stats().RedoHighWater
	assert.Greater(t, secondPeak, firstPeak, "a multi-chunk allocation's footer writes should raise the high-water mark")

	// A later, smaller commit must not lower the recorded peak.
	require.NoError(t, h.Operation(context.Background(), 0, destSmall, uint64(len(small)), writeCtor(small), nil, nil))
	assert.Equal(t, secondPeak, h.Stats().RedoHighWater)
}

func readTargetU64(base []byte, off uint64) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(base[off+uint64(i)]) << (8 * i)
	}
	return v
}
