// Package heap implements the on-media zone/chunk layout of the persistent
// heap: zone headers, chunk headers, their type tags, and the init/boot
// entry points that write or rebuild that layout over a raw pmem.Ops
// region.
package heap

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dittopm/pmstore/pkg/pmem"
)

// ChunkType is the type tag carried by every chunk header.
type ChunkType uint16

const (
	ChunkTypeFree ChunkType = iota
	ChunkTypeUsed
	ChunkTypeRun
	ChunkTypeFooter
)

func (t ChunkType) String() string {
	switch t {
	case ChunkTypeFree:
		return "free"
	case ChunkTypeUsed:
		return "used"
	case ChunkTypeRun:
		return "run"
	case ChunkTypeFooter:
		return "footer"
	default:
		return "unknown"
	}
}

const (
	// CacheLineSize is the allocator's alignment and flush granularity.
	CacheLineSize = 64

	// ChunkUnitSize is the fixed size of one chunk, chosen to align with
	// the external block store's object granularity (see SPEC_FULL.md §3).
	ChunkUnitSize = 4 << 20

	// ZoneMaxSize bounds how many chunks a single zone may address.
	ZoneMaxSize = 2 << 30

	zoneMagic       = uint64(0x5a4f4e455f504d53) // "ZONE_PMS"
	zoneHeaderSize  = 64
	chunkHeaderSize = 8
)

// ErrCorrupted is returned when a zone header fails magic or checksum
// validation during Boot, and (wrapped) when a chunk header or block state
// is found inconsistent.
var ErrCorrupted = errors.New("heap: corrupted on-media layout")

// ChunkHeader is the persistent 8-byte record describing one chunk slot:
// its type tag, and for USED/RUN chunks, the size index (chunk run-length
// for USED, allocation-class index for RUN). It is exactly one redo-slot
// value wide (EncodeValue/DecodeChunkHeader) so a header flip is always a
// single redo entry — no separate checksum is carried per chunk header;
// corruption of the chunk table is instead caught by pkg/bucket's bitmap
// and run-count invariants and by the redo log's own checksum protecting
// every header mutation in transit.
type ChunkHeader struct {
	Type    ChunkType
	Flags   uint16
	SizeIdx uint32
}

// EncodeValue packs h into the 64-bit value a redo slot carries.
func (h ChunkHeader) EncodeValue() uint64 {
	return uint64(h.Type) | uint64(h.Flags)<<16 | uint64(h.SizeIdx)<<32
}

// DecodeChunkHeader unpacks a redo-slot value back into a ChunkHeader.
func DecodeChunkHeader(value uint64) ChunkHeader {
	return ChunkHeader{
		Type:    ChunkType(value & 0xffff),
		Flags:   uint16((value >> 16) & 0xffff),
		SizeIdx: uint32(value >> 32),
	}
}

func (h ChunkHeader) marshal() [chunkHeaderSize]byte {
	var buf [chunkHeaderSize]byte
	binary.LittleEndian.PutUint64(buf[:], h.EncodeValue())
	return buf
}

func unmarshalChunkHeader(buf []byte) (ChunkHeader, error) {
	if len(buf) < chunkHeaderSize {
		return ChunkHeader{}, fmt.Errorf("heap: chunk header short read (%d bytes)", len(buf))
	}
	return DecodeChunkHeader(binary.LittleEndian.Uint64(buf[:chunkHeaderSize])), nil
}

// ZoneHeader is the persistent header at the start of every zone.
type ZoneHeader struct {
	ZoneID    uint32
	NumChunks uint32
}

// Layout describes one zone's on-media geometry: where its header, chunk
// header table, and chunk data region begin, relative to the heap base.
type Layout struct {
	ZoneOffset       uint64
	ZoneID           uint32
	NumChunks        uint32
	ChunkTableOffset uint64
	ChunksOffset     uint64
}

// ChunkHeaderOffset returns the absolute offset of chunk idx's header.
func (l Layout) ChunkHeaderOffset(idx uint32) uint64 {
	return l.ChunkTableOffset + uint64(idx)*chunkHeaderSize
}

// ChunkDataOffset returns the absolute offset of chunk idx's data region.
func (l Layout) ChunkDataOffset(idx uint32) uint64 {
	return l.ChunksOffset + uint64(idx)*ChunkUnitSize
}

// ZoneSize returns the total byte span of the zone, header through last
// chunk.
func (l Layout) ZoneSize() uint64 {
	return l.ChunksOffset - l.ZoneOffset + uint64(l.NumChunks)*ChunkUnitSize
}

func writeZoneHeader(ops pmem.Ops, zoneOffset uint64, h ZoneHeader) error {
	var buf [zoneHeaderSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], zoneMagic)
	binary.LittleEndian.PutUint32(buf[8:12], h.ZoneID)
	binary.LittleEndian.PutUint32(buf[12:16], h.NumChunks)
	sum := xxhash.Sum64(buf[0:16])
	if sum == 0 {
		sum = 1
	}
	binary.LittleEndian.PutUint64(buf[16:24], sum)
	return pmem.MemcpyPersist(ops, zoneOffset, buf[:], pmem.HintDefault)
}

func readZoneHeader(ops pmem.Ops, zoneOffset uint64) (ZoneHeader, error) {
	base := ops.Base()
	if zoneOffset+zoneHeaderSize > uint64(len(base)) {
		return ZoneHeader{}, fmt.Errorf("heap: zone header out of bounds at %d", zoneOffset)
	}
	buf := base[zoneOffset : zoneOffset+zoneHeaderSize]

	magic := binary.LittleEndian.Uint64(buf[0:8])
	if magic != zoneMagic {
		return ZoneHeader{}, ErrCorrupted
	}
	h := ZoneHeader{
		ZoneID:    binary.LittleEndian.Uint32(buf[8:12]),
		NumChunks: binary.LittleEndian.Uint32(buf[12:16]),
	}
	sum := binary.LittleEndian.Uint64(buf[16:24])
	want := xxhash.Sum64(buf[0:16])
	if want == 0 {
		want = 1
	}
	if sum != want {
		return ZoneHeader{}, ErrCorrupted
	}
	return h, nil
}

// Init writes a fresh zone header and NumChunks FREE chunk headers at
// zoneOffset, computing the largest chunk count that fits within
// available bytes (capped by ZoneMaxSize). It returns the resulting
// Layout.
func Init(ops pmem.Ops, zoneOffset uint64, zoneID uint32, available uint64) (Layout, error) {
	if available > ZoneMaxSize {
		available = ZoneMaxSize
	}

	chunkTableOffset := zoneOffset + zoneHeaderSize
	// Solve numChunks*chunkHeaderSize + numChunks*ChunkUnitSize <= available - zoneHeaderSize
	usable := available - zoneHeaderSize
	numChunks := uint32(usable / (chunkHeaderSize + ChunkUnitSize))
	if numChunks == 0 {
		return Layout{}, fmt.Errorf("heap: zone region too small for a single chunk (%d bytes available)", available)
	}

	chunksOffset := chunkTableOffset + uint64(numChunks)*chunkHeaderSize

	if err := writeZoneHeader(ops, zoneOffset, ZoneHeader{ZoneID: zoneID, NumChunks: numChunks}); err != nil {
		return Layout{}, err
	}

	free := ChunkHeader{Type: ChunkTypeFree}
	buf := free.marshal()
	for i := uint32(0); i < numChunks; i++ {
		off := chunkTableOffset + uint64(i)*chunkHeaderSize
		if err := pmem.MemcpyPersist(ops, off, buf[:], pmem.HintNoDrain); err != nil {
			return Layout{}, err
		}
	}
	if err := ops.Drain(); err != nil {
		return Layout{}, err
	}

	return Layout{
		ZoneOffset:       zoneOffset,
		ZoneID:           zoneID,
		NumChunks:        numChunks,
		ChunkTableOffset: chunkTableOffset,
		ChunksOffset:     chunksOffset,
	}, nil
}

// Boot rebuilds a Layout by reading the existing persistent zone header at
// zoneOffset. It performs no writes.
func Boot(ops pmem.Ops, zoneOffset uint64) (Layout, error) {
	zh, err := readZoneHeader(ops, zoneOffset)
	if err != nil {
		return Layout{}, err
	}

	chunkTableOffset := zoneOffset + zoneHeaderSize
	chunksOffset := chunkTableOffset + uint64(zh.NumChunks)*chunkHeaderSize

	return Layout{
		ZoneOffset:       zoneOffset,
		ZoneID:           zh.ZoneID,
		NumChunks:        zh.NumChunks,
		ChunkTableOffset: chunkTableOffset,
		ChunksOffset:     chunksOffset,
	}, nil
}

// ReadChunkHeader reads and validates chunk idx's header.
func ReadChunkHeader(ops pmem.Ops, layout Layout, idx uint32) (ChunkHeader, error) {
	off := layout.ChunkHeaderOffset(idx)
	base := ops.Base()
	if off+chunkHeaderSize > uint64(len(base)) {
		return ChunkHeader{}, fmt.Errorf("heap: chunk header out of bounds at %d", off)
	}
	return unmarshalChunkHeader(base[off : off+chunkHeaderSize])
}

// WriteChunkHeader durably writes a chunk header directly, outside the redo
// path. Init writes its FREE headers itself, and the allocator's header
// flips go through pkg/redo so that they are crash-atomic.
func WriteChunkHeader(ops pmem.Ops, layout Layout, idx uint32, h ChunkHeader) error {
	off := layout.ChunkHeaderOffset(idx)
	buf := h.marshal()
	return pmem.MemcpyPersist(ops, off, buf[:], pmem.HintDefault)
}
