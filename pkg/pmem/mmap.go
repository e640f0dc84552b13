package pmem

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrTooSmall is returned when an existing backing file is smaller than the
// requested heap size.
var ErrTooSmall = errors.New("pmem: backing file smaller than requested size")

// MmapOps is the default Ops implementation: an os.File truncated to size
// and mapped MAP_SHARED, synced with unix.Msync. This mirrors the mmap
// persistence mechanics of a WAL-backed cache — truncate, map, msync,
// munmap — applied here to a heap-sized region instead of an append-only
// log.
type MmapOps struct {
	mu   sync.Mutex
	file *os.File
	data []byte
	size uint64
}

// OpenMmap maps path as a persistent-memory region of exactly size bytes,
// creating and truncating the file if it does not already exist.
func OpenMmap(path string, size uint64) (*MmapOps, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	flags := os.O_RDWR | os.O_CREATE
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("pmem: open %s: %w", path, err)
	}

	if existed {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("pmem: stat %s: %w", path, err)
		}
		if uint64(info.Size()) < size {
			f.Close()
			return nil, ErrTooSmall
		}
	} else {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("pmem: truncate %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pmem: mmap %s: %w", path, err)
	}

	return &MmapOps{file: f, data: data, size: size}, nil
}

func (m *MmapOps) Base() []byte {
	return m.data
}

func (m *MmapOps) Flush(offset, n uint64) error {
	if n == 0 {
		return nil
	}
	if offset+n > m.size {
		return fmt.Errorf("pmem: flush range [%d,%d) out of bounds (size %d)", offset, offset+n, m.size)
	}
	// Page-align the msync range; MS_ASYNC lets the kernel schedule the
	// writeback while keeping mmap-visible bytes crash-safe.
	pageSize := uint64(os.Getpagesize())
	start := (offset / pageSize) * pageSize
	end := offset + n
	return unix.Msync(m.data[start:end], unix.MS_ASYNC)
}

func (m *MmapOps) Drain() error {
	// A single synchronous msync over the whole region is our store fence:
	// it blocks until every prior async writeback for this mapping is
	// ordered with respect to subsequent stores.
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *MmapOps) Persist(offset, n uint64) error {
	if err := m.Flush(offset, n); err != nil {
		return err
	}
	return m.Drain()
}

func (m *MmapOps) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		return nil
	}

	_ = unix.Msync(m.data, unix.MS_SYNC)
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("pmem: munmap: %w", err)
	}
	m.data = nil

	if err := m.file.Close(); err != nil {
		return fmt.Errorf("pmem: close: %w", err)
	}
	return nil
}

var _ Ops = (*MmapOps)(nil)
