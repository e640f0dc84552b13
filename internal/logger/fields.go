package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Heap Layout
	// ========================================================================
	KeyZoneID  = "zone_id"  // Zone index within the heap
	KeyChunkID = "chunk_id" // Chunk index within a zone
	KeyOffset  = "offset"   // Heap-relative byte offset
	KeySize    = "size"     // Size in bytes
	KeySizeIdx = "size_idx" // Allocation-class size index

	// ========================================================================
	// Allocator Operations
	// ========================================================================
	KeyOperation  = "operation"   // alloc, free, realloc
	KeyOldOffset  = "old_offset"  // Previous offset for realloc/free
	KeyNewOffset  = "new_offset"  // Resulting offset for alloc/realloc
	KeyDestOffset = "dest_offset" // Address receiving the committed offset

	// ========================================================================
	// Buckets
	// ========================================================================
	KeyBucketClass = "bucket_class" // Allocation class served by a bucket
	KeyBucketKind  = "bucket_kind"  // huge or run
	KeyFreeCount   = "free_count"   // Free blocks currently held by a bucket

	// ========================================================================
	// Redo Log
	// ========================================================================
	KeyRedoEntries = "redo_entries" // Number of entries appended in a commit
	KeyRedoState   = "redo_state"   // synchronized, vmem_newer, pmem_newer
	KeyChecksum    = "checksum"     // Computed redo-log checksum

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code
	KeySource     = "source"      // Subsystem emitting the log line

	// ========================================================================
	// Storage Backend
	// ========================================================================
	KeyStoreName = "store_name" // Named block store identifier
	KeyStoreType = "store_type" // Store type: memory, filesystem, s3
	KeyBlockKey  = "block_key"  // Object key in the external block store
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Heap Layout
// ----------------------------------------------------------------------------

// ZoneID returns a slog.Attr for a zone index.
func ZoneID(id uint32) slog.Attr {
	return slog.Uint64(KeyZoneID, uint64(id))
}

// ChunkID returns a slog.Attr for a chunk index.
func ChunkID(id uint32) slog.Attr {
	return slog.Uint64(KeyChunkID, uint64(id))
}

// Offset returns a slog.Attr for a heap-relative byte offset.
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Size returns a slog.Attr for a size in bytes.
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// SizeIdx returns a slog.Attr for an allocation-class size index.
func SizeIdx(idx uint32) slog.Attr {
	return slog.Uint64(KeySizeIdx, uint64(idx))
}

// ----------------------------------------------------------------------------
// Allocator Operations
// ----------------------------------------------------------------------------

// Operation returns a slog.Attr naming the allocator operation (alloc, free, realloc).
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// OldOffset returns a slog.Attr for the previous offset in free/realloc.
func OldOffset(off uint64) slog.Attr {
	return slog.Uint64(KeyOldOffset, off)
}

// NewOffset returns a slog.Attr for the resulting offset of alloc/realloc.
func NewOffset(off uint64) slog.Attr {
	return slog.Uint64(KeyNewOffset, off)
}

// ----------------------------------------------------------------------------
// Buckets
// ----------------------------------------------------------------------------

// BucketClass returns a slog.Attr for the allocation class served by a bucket.
func BucketClass(idx uint32) slog.Attr {
	return slog.Uint64(KeyBucketClass, uint64(idx))
}

// BucketKind returns a slog.Attr for the bucket shape (huge or run).
func BucketKind(kind string) slog.Attr {
	return slog.String(KeyBucketKind, kind)
}

// FreeCount returns a slog.Attr for the number of free blocks in a bucket.
func FreeCount(n int) slog.Attr {
	return slog.Int(KeyFreeCount, n)
}

// ----------------------------------------------------------------------------
// Redo Log
// ----------------------------------------------------------------------------

// RedoEntries returns a slog.Attr for the number of entries in a commit.
func RedoEntries(n int) slog.Attr {
	return slog.Int(KeyRedoEntries, n)
}

// RedoState returns a slog.Attr for the redo log's synchronization state.
func RedoState(state string) slog.Attr {
	return slog.String(KeyRedoState, state)
}

// Checksum returns a slog.Attr for a computed checksum.
func Checksum(sum uint64) slog.Attr {
	return slog.Uint64(KeyChecksum, sum)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Source returns a slog.Attr for the subsystem emitting the log line.
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// ----------------------------------------------------------------------------
// Storage Backend
// ----------------------------------------------------------------------------

// StoreName returns a slog.Attr for named store identifier
func StoreName(name string) slog.Attr {
	return slog.String(KeyStoreName, name)
}

// StoreType returns a slog.Attr for store type
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// BlockKey returns a slog.Attr for the object key in the external block store.
func BlockKey(key string) slog.Attr {
	return slog.String(KeyBlockKey, key)
}
