package redo

import "github.com/dittopm/pmstore/pkg/pmem"

// Verify result codes, matching the spec's tri-state return.
const (
	VerifyEmpty    = 0
	VerifyInvalid  = -1
	VerifyValid    = 1
)

func (l *Log) readPmemSlot(i int) (offset, value uint64, err error) {
	base := l.ops.Base()
	off := l.pmemSlotOffset(i)
	if off+SlotSize > uint64(len(base)) {
		return 0, 0, errOutOfBounds(off)
	}
	offset, value = readSlot(base[off : off+SlotSize])
	return offset, value, nil
}

func errOutOfBounds(off uint64) error {
	return &boundsError{off: off}
}

type boundsError struct{ off uint64 }

func (e *boundsError) Error() string {
	return "redo: slot access out of bounds"
}

// findFinish scans persistent slots 1..nentries for the finish-flagged
// entry and returns its 1-based index, or 0 if none is present.
func (l *Log) findFinish(nentries int) (int, error) {
	for i := 1; i <= nentries && i <= l.capacity; i++ {
		offset, _, err := l.readPmemSlot(i)
		if err != nil {
			return 0, err
		}
		if offset&FinishFlag != 0 {
			return i, nil
		}
	}
	return 0, nil
}

// Verify checks the persistent log's internal consistency: 0 if empty
// (slot 0 is the zero checksum), 0 if no finish flag is found within
// nentries, -1 on checksum mismatch, 1 if the log is valid.
func (l *Log) Verify(nentries int) (int, error) {
	csumOff, csumVal, err := l.readPmemSlot(0)
	if err != nil {
		return VerifyInvalid, err
	}
	if csumOff == 0 && csumVal == 0 {
		return VerifyEmpty, nil
	}

	finishIdx, err := l.findFinish(nentries)
	if err != nil {
		return VerifyInvalid, err
	}
	if finishIdx == 0 {
		return VerifyEmpty, nil
	}

	base := l.ops.Base()
	start := l.pmemSlotOffset(1)
	end := l.pmemSlotOffset(finishIdx + 1)
	if end > uint64(len(base)) {
		return VerifyInvalid, errOutOfBounds(end)
	}
	sum := checksum(base[start:end])

	if sum != csumOff || sum != csumVal {
		return VerifyInvalid, nil
	}
	return VerifyValid, nil
}

// Check runs Verify, then validates every target offset referenced by the
// log's entries against ctx.CheckOffset. Any failure returns -1.
func (l *Log) Check(nentries int, checkOffset func(uint64) bool) (int, error) {
	v, err := l.Verify(nentries)
	if err != nil || v != VerifyValid {
		return v, err
	}

	finishIdx, err := l.findFinish(nentries)
	if err != nil {
		return VerifyInvalid, err
	}

	for i := 1; i <= finishIdx; i++ {
		offset, _, err := l.readPmemSlot(i)
		if err != nil {
			return VerifyInvalid, err
		}
		realOffset := offset &^ FinishFlag
		if checkOffset != nil && !checkOffset(realOffset) {
			return VerifyInvalid, nil
		}
	}
	return VerifyValid, nil
}

// Process applies every entry in slots 1..nentries to the heap: each
// non-final entry is written with a flush; the final (finish-flagged)
// entry is written with a full persist (flush+fence). The persistent log
// is then retired by zeroing its first cache line via a non-temporal
// memset.
func (l *Log) Process(nentries int) error {
	finishIdx, err := l.findFinish(nentries)
	if err != nil {
		return err
	}
	if finishIdx == 0 {
		return nil
	}

	base := l.ops.Base()
	for i := 1; i <= finishIdx; i++ {
		offset, value, err := l.readPmemSlot(i)
		if err != nil {
			return err
		}
		realOffset := offset &^ FinishFlag
		if realOffset+8 > uint64(len(base)) {
			return errOutOfBounds(realOffset)
		}

		var buf [8]byte
		for b := 0; b < 8; b++ {
			buf[b] = byte(value >> (8 * b))
		}

		hint := pmem.HintNoDrain
		if i == finishIdx {
			hint = pmem.HintDefault
		}
		if err := pmem.MemcpyPersist(l.ops, realOffset, buf[:], hint); err != nil {
			return err
		}
	}

	// Retire the log: zero its first cache line so a subsequent Verify
	// sees an empty log.
	if err := pmem.MemsetPersist(l.ops, l.base, 0, pmem.CacheLineSize, pmem.HintDefault); err != nil {
		return err
	}
	l.state = Synchronized
	return nil
}

// Recover replays the log on boot: Verify first; an empty log is a no-op,
// an invalid (torn) log is erased, and a valid log is processed.
func (l *Log) Recover(nentries int) error {
	v, err := l.Verify(nentries)
	if err != nil {
		return err
	}
	switch v {
	case VerifyEmpty:
		return nil
	case VerifyInvalid:
		return pmem.MemsetPersist(l.ops, l.base, 0, pmem.CacheLineSize, pmem.HintDefault)
	default:
		return l.Process(nentries)
	}
}
