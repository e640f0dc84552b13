//go:build debug

package heap

import "fmt"

// AssertConsistent panics on an invariant violation in -tags debug builds,
// so a corrupted on-media state traps at the call site instead of
// propagating an error a caller might ignore. Release builds return
// ErrCorrupted instead — see assert_release.go.
func AssertConsistent(detail string) error {
	panic(fmt.Sprintf("%v: %s", ErrCorrupted, detail))
}
