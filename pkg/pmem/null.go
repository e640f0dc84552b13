package pmem

import "fmt"

// NullOps is an in-memory Ops backed by a plain byte slice. Flush and Drain
// are no-ops: there is nothing behind the slice to synchronize with. It
// exists for unit tests and for heaps that intentionally run without crash
// consistency (mirrors the teacher's NullPersister no-op used when WAL
// persistence is disabled).
type NullOps struct {
	data []byte
}

// NewNullOps allocates a zeroed in-memory region of size bytes.
func NewNullOps(size uint64) *NullOps {
	return &NullOps{data: make([]byte, size)}
}

func (n *NullOps) Base() []byte {
	return n.data
}

func (n *NullOps) Flush(offset, size uint64) error {
	if offset+size > uint64(len(n.data)) {
		return fmt.Errorf("pmem: flush range [%d,%d) out of bounds (size %d)", offset, offset+size, len(n.data))
	}
	return nil
}

func (n *NullOps) Drain() error {
	return nil
}

func (n *NullOps) Persist(offset, size uint64) error {
	return n.Flush(offset, size)
}

func (n *NullOps) Close() error {
	return nil
}

var _ Ops = (*NullOps)(nil)
