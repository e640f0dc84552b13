package palloc

import (
	"encoding/binary"
	"fmt"

	"github.com/dittopm/pmstore/pkg/pmem"
)

// HeaderSize is the allocation header's on-media footprint: { uint64
// chunk_id; uint64 size; uint32 zone_id; uint32 pad; }, bit-exact to
// spec.md §3/§6. A header is written at the start of its block (a chunk's
// data region, a run unit), so its alignment is that of the block. The
// chunk data region begins directly after the chunk header table and is
// not rounded up to a CacheLineSize boundary: a header and its payload are
// cache-line aligned only when the zone's ChunksOffset is a multiple of
// CacheLineSize.
const HeaderSize = 24

// allocHeader is the persistent record placed immediately before every
// live allocation's user region.
type allocHeader struct {
	ChunkID uint64
	Size    uint64
	ZoneID  uint32
}

func marshalHeader(h allocHeader) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], h.ChunkID)
	binary.LittleEndian.PutUint64(buf[8:16], h.Size)
	binary.LittleEndian.PutUint32(buf[16:20], h.ZoneID)
	return buf
}

func unmarshalHeader(buf []byte) allocHeader {
	return allocHeader{
		ChunkID: binary.LittleEndian.Uint64(buf[0:8]),
		Size:    binary.LittleEndian.Uint64(buf[8:16]),
		ZoneID:  binary.LittleEndian.Uint32(buf[16:20]),
	}
}

// writeHeader durably writes an allocation header at off, ahead of the
// redo commit that makes the allocation reachable — this is the
// "transient-visible" write spec.md §4.5 step 2 describes: present in PM,
// but not yet linked in by any chunk-header or bitmap flip.
func writeHeader(ops pmem.Ops, off uint64, h allocHeader) error {
	buf := marshalHeader(h)
	return pmem.MemcpyPersist(ops, off, buf[:], pmem.HintNoDrain)
}

// readHeader reads the allocation header immediately preceding userOff.
func readHeader(ops pmem.Ops, userOff uint64) (allocHeader, error) {
	if userOff < HeaderSize {
		return allocHeader{}, fmt.Errorf("palloc: offset %d has no room for a header", userOff)
	}
	hoff := userOff - HeaderSize
	base := ops.Base()
	if hoff+HeaderSize > uint64(len(base)) {
		return allocHeader{}, fmt.Errorf("palloc: header out of bounds at %d", hoff)
	}
	return unmarshalHeader(base[hoff : hoff+HeaderSize]), nil
}
