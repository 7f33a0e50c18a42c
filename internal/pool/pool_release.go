//go:build !tkdebug

package pool

import "unsafe"

// checkDeallocPointer is a no-op in release builds: an out-of-range or
// misaligned pointer is undefined behavior, matching spec.md §7's
// InvalidPointer classification.
func checkDeallocPointer(p *Pool, ptr unsafe.Pointer) error {
	return nil
}
