//go:build !debug

package heap

import "fmt"

// AssertConsistent returns ErrCorrupted (wrapped with detail) in release
// builds. Built with -tags debug, the same call site panics instead — see
// assert_debug.go.
func AssertConsistent(detail string) error {
	return fmt.Errorf("%w: %s", ErrCorrupted, detail)
}
