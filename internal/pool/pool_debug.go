//go:build tkdebug

package pool

import (
	"unsafe"

	"github.com/ashlar-systems/tradekernel/internal/kernelerr"
)

// checkDeallocPointer rejects pointers outside the pool's arena range or
// misaligned to a block boundary, per spec.md §4.3 deallocate steps 1-2.
// Compiled in only under the tkdebug build tag; release builds skip this
// entirely (see pool_release.go) and treat a bad pointer as undefined
// behavior.
func checkDeallocPointer(p *Pool, ptr unsafe.Pointer) error {
	if !p.Contains(ptr) {
		return kernelerr.ErrInvalidPointer
	}
	return nil
}
