//go:build linux

package numa

import "golang.org/x/sys/unix"

// lockPhysical pins buf's backing pages in physical memory so the
// simulation's "pinned" pools are never paged out, per spec.md §4.3's
// lock_physical configuration flag.
func lockPhysical(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	return unix.Mlock(buf)
}

// unlockPhysical reverses lockPhysical.
func unlockPhysical(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	return unix.Munlock(buf)
}
