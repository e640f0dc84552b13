// Package redo implements the bounded, checksummed redo log that commits
// allocator metadata changes atomically: a fixed-size slot array with a
// checksummed slot 0, a finish-flagged final entry, and the
// store/persist/process/verify/check/recover state machine described in
// SPEC_FULL.md §4.4.
package redo

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dittopm/pmstore/pkg/pmem"
)

// ErrTorn marks a log whose committed region failed its checksum — a
// partial non-temporal write interrupted by a crash. No function in this
// package returns it: Verify reports a torn log as VerifyInvalid, and
// Recover erases a torn log silently.
var ErrTorn = errors.New("redo: log is torn")

// SlotSize is the on-media size of one redo slot: {uint64 offset; uint64
// value;}.
const SlotSize = 16

// FinishFlag is ORed into an entry's offset field to mark it the final
// entry of a committed log. Store asserts every real offset has this bit
// clear, so it can never collide with live data.
const FinishFlag uint64 = 1

// SyncState tracks which mirror — the volatile scratch or the persistent
// slots — holds the newer data.
type SyncState int

const (
	Synchronized SyncState = iota
	VmemNewer
	PmemNewer
)

// Context is the redo-log consumer interface (`redo_ctx`): a bounds check
// for target offsets and the log's configured entry capacity.
type Context struct {
	CheckOffset func(off uint64) bool
	NumEntries  int
}

// Log is a redo log instance: a persistent slot array at a fixed offset in
// ops, mirrored by an equally-sized volatile scratch buffer used to
// assemble entries before they are committed.
type Log struct {
	ops      pmem.Ops
	base     uint64 // offset of slot 0 in ops.Base()
	capacity int     // usable entries, i.e. slots 1..capacity
	vmem     []byte  // (capacity+1)*SlotSize bytes
	state    SyncState
}

// NewLog constructs a Log over the persistent region [base, base+(capacity+1)*SlotSize).
func NewLog(ops pmem.Ops, base uint64, capacity int) *Log {
	return &Log{
		ops:      ops,
		base:     base,
		capacity: capacity,
		vmem:     make([]byte, (capacity+1)*SlotSize),
		state:    Synchronized,
	}
}

// Capacity returns the configured number of usable entries.
func (l *Log) Capacity() int { return l.capacity }

// State returns which mirror currently holds the authoritative contents.
func (l *Log) State() SyncState { return l.state }

func (l *Log) vmemSlot(i int) []byte {
	off := i * SlotSize
	return l.vmem[off : off+SlotSize]
}

func (l *Log) pmemSlotOffset(i int) uint64 {
	return l.base + uint64(i)*SlotSize
}

func writeSlot(buf []byte, offset, value uint64) {
	binary.LittleEndian.PutUint64(buf[0:8], offset)
	binary.LittleEndian.PutUint64(buf[8:16], value)
}

func readSlot(buf []byte) (offset, value uint64) {
	return binary.LittleEndian.Uint64(buf[0:8]), binary.LittleEndian.Uint64(buf[8:16])
}

// Store writes slot i+1 in the volatile mirror. offset must have its low
// bit clear (reserved for FinishFlag).
func (l *Log) Store(i int, offset, value uint64) error {
	if offset&FinishFlag != 0 {
		return fmt.Errorf("redo: offset %d has low bit set", offset)
	}
	if i < 0 || i >= l.capacity {
		return fmt.Errorf("redo: entry index %d out of range [0,%d)", i, l.capacity)
	}
	writeSlot(l.vmemSlot(i+1), offset, value)
	l.state = VmemNewer
	return nil
}

// StoreLast writes slot i+1 as Store does, ORs FinishFlag into its offset,
// and persists the log.
func (l *Log) StoreLast(i int, offset, value uint64) error {
	if offset&FinishFlag != 0 {
		return fmt.Errorf("redo: offset %d has low bit set", offset)
	}
	if i < 0 || i >= l.capacity {
		return fmt.Errorf("redo: entry index %d out of range [0,%d)", i, l.capacity)
	}
	writeSlot(l.vmemSlot(i+1), offset|FinishFlag, value)
	l.state = VmemNewer
	return l.Persist(i + 1)
}

// SetLast ORs FinishFlag into the offset of an already-Store'd entry at
// slot i+1, then persists the log.
func (l *Log) SetLast(i int) error {
	if i < 0 || i >= l.capacity {
		return fmt.Errorf("redo: entry index %d out of range [0,%d)", i, l.capacity)
	}
	slot := l.vmemSlot(i + 1)
	offset, value := readSlot(slot)
	writeSlot(slot, offset|FinishFlag, value)
	l.state = VmemNewer
	return l.Persist(i + 1)
}

// Persist computes the checksum over slots 1..size, writes it into slot 0,
// rounds the write span to a 64-byte multiple (padding any tail with
// 0xFF), and issues a single non-temporal memcpy from the volatile mirror
// into the persistent slots.
func (l *Log) Persist(size int) error {
	if size < 0 || size > l.capacity {
		return fmt.Errorf("redo: persist size %d out of range [0,%d]", size, l.capacity)
	}

	sum := checksum(l.vmem[SlotSize : SlotSize+size*SlotSize])
	writeSlot(l.vmemSlot(0), sum, sum)

	span := (size + 1) * SlotSize
	rounded := roundUp64(span)
	for i := span; i < rounded && i < len(l.vmem); i++ {
		l.vmem[i] = 0xff
	}
	if rounded > len(l.vmem) {
		rounded = len(l.vmem)
	}

	if err := pmem.MemcpyPersist(l.ops, l.base, l.vmem[:rounded], pmem.HintDefault); err != nil {
		return err
	}
	l.state = Synchronized
	return nil
}

func roundUp64(n int) int {
	if rem := n % 64; rem != 0 {
		return n + (64 - rem)
	}
	return n
}

// checksum is the redo log's 64-bit checksum function; a raw result of 0
// is forced to 1, since 0 is reserved to mean "empty log".
func checksum(data []byte) uint64 {
	sum := xxhash.Sum64(data)
	if sum == 0 {
		sum = 1
	}
	return sum
}
