package memblock

import (
	"sync"
	"testing"

	"github.com/dittopm/pmstore/pkg/heap"
	"github.com/dittopm/pmstore/pkg/pmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClassTable struct{ size uint64 }

func (f fixedClassTable) UnitSize(uint32) uint64 { return f.size }

func newTestLayout(t *testing.T) (pmem.Ops, heap.Layout) {
	t.Helper()
	ops := pmem.NewNullOps(8 * heap.ChunkUnitSize)
	layout, err := heap.Init(ops, 0, 0, uint64(len(ops.Base())))
	require.NoError(t, err)
	return ops, layout
}

func TestHuge_StateTransitionsViaPrepareHeader(t *testing.T) {
	ops, layout := newTestLayout(t)
	h := &Huge{chunkID: 2}

	state, err := h.State(ops, layout)
	require.NoError(t, err)
	assert.Equal(t, StateFree, state)

	entries, err := h.PrepareHeader(ops, layout, StateAllocated)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	applyEntry(t, ops, entries[0])

	state, err = h.State(ops, layout)
	require.NoError(t, err)
	assert.Equal(t, StateAllocated, state)
}

func TestHuge_PrepareHeaderTagsContinuationChunksAsFooter(t *testing.T) {
	ops, layout := newTestLayout(t)
	h := NewHuge(2, 3) // spans chunks 2, 3, 4

	entries, err := h.PrepareHeader(ops, layout, StateAllocated)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		applyEntry(t, ops, e)
	}

	head, err := heap.ReadChunkHeader(ops, layout, 2)
	require.NoError(t, err)
	assert.Equal(t, heap.ChunkTypeUsed, head.Type)
	assert.Equal(t, uint32(3), head.SizeIdx)

	for _, chunkID := range []uint32{3, 4} {
		foot, err := heap.ReadChunkHeader(ops, layout, chunkID)
		require.NoError(t, err)
		assert.Equal(t, heap.ChunkTypeFooter, foot.Type, "continuation chunk %d must be tagged FOOTER, not left FREE", chunkID)
		assert.Equal(t, uint32(2), foot.SizeIdx, "continuation chunk should back-point to the head chunk")
	}

	// Freeing must revert every chunk in the span back to FREE.
	freeEntries, err := h.PrepareHeader(ops, layout, StateFree)
	require.NoError(t, err)
	require.Len(t, freeEntries, 3)
	for _, e := range freeEntries {
		applyEntry(t, ops, e)
	}
	for _, chunkID := range []uint32{2, 3, 4} {
		hdr, err := heap.ReadChunkHeader(ops, layout, chunkID)
		require.NoError(t, err)
		assert.Equal(t, heap.ChunkTypeFree, hdr.Type)
	}
}

func TestRun_BitmapFlip(t *testing.T) {
	ops, layout := newTestLayout(t)
	require.NoError(t, heap.WriteChunkHeader(ops, layout, 3, heap.ChunkHeader{Type: heap.ChunkTypeRun, SizeIdx: 1}))

	lock := &sync.Mutex{}
	r := NewRun(3, 1, 5, 64, lock)

	state, err := r.State(ops, layout)
	require.NoError(t, err)
	assert.Equal(t, StateFree, state)

	entries, err := r.PrepareHeader(ops, layout, StateAllocated)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	applyEntry(t, ops, entries[0])

	state, err = r.State(ops, layout)
	require.NoError(t, err)
	assert.Equal(t, StateAllocated, state)

	// A neighboring slot in the same word must be unaffected.
	neighbor := NewRun(3, 1, 6, 64, lock)
	state, err = neighbor.State(ops, layout)
	require.NoError(t, err)
	assert.Equal(t, StateFree, state)
}

func TestRun_Size(t *testing.T) {
	r := NewRun(0, 2, 0, 128, nil)
	assert.Equal(t, uint64(128), r.Size(nil))
	assert.Equal(t, uint64(256), r.Size(fixedClassTable{size: 256}))
}

func TestAutodetect_DispatchesByChunkType(t *testing.T) {
	ops, layout := newTestLayout(t)

	blk, err := Autodetect(ops, layout, 0, 0, nil, nil)
	require.NoError(t, err)
	_, isHuge := blk.(*Huge)
	assert.True(t, isHuge)

	require.NoError(t, heap.WriteChunkHeader(ops, layout, 1, heap.ChunkHeader{Type: heap.ChunkTypeRun, SizeIdx: 4}))
	blk, err = Autodetect(ops, layout, 1, 2, fixedClassTable{size: 32}, &sync.Mutex{})
	require.NoError(t, err)
	run, isRun := blk.(*Run)
	require.True(t, isRun)
	assert.Equal(t, uint32(2), run.BlockOffset())
	assert.Equal(t, uint64(32), run.Size(fixedClassTable{size: 32}))
}

// applyEntry performs the raw 64-bit store a redo entry describes,
// simulating what pkg/redo's Process step would do on commit.
func applyEntry(t *testing.T, ops pmem.Ops, e RedoEntry) {
	t.Helper()
	require.NoError(t, pmem.MemsetPersist(ops, e.Offset, 0, 8, pmem.HintDefault))
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(e.Value >> (8 * i))
	}
	require.NoError(t, pmem.MemcpyPersist(ops, e.Offset, buf[:], pmem.HintDefault))
}
