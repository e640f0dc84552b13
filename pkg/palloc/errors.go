package palloc

import "errors"

// ErrNoMemory is returned when no bucket can satisfy a requested size.
var ErrNoMemory = errors.New("palloc: out of memory")

// ErrCanceled is returned when the caller-supplied Constructor fails; the
// reservation is rolled back before this is returned.
var ErrCanceled = errors.New("palloc: constructor canceled allocation")

// ErrInvalidInput is returned for malformed Operation arguments (e.g. a
// nonzero oldOff that doesn't resolve to an allocated block).
var ErrInvalidInput = errors.New("palloc: invalid input")
