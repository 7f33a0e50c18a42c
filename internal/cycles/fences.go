package cycles

import "sync/atomic"

// Go's memory model orders memory accesses through atomic and channel
// operations rather than standalone CPU fences, so each fence below is
// expressed as an atomic op on a dummy cell. That op carries the ordering
// the spec asks for even though no single instruction underlies it.
var fenceCell int64

// CompilerFence prevents the compiler from reordering memory accesses
// across this call; it implies no CPU-level ordering.
func CompilerFence() {
	atomic.LoadInt64(&fenceCell)
}

// AcquireFence ensures subsequent reads observe writes made before a
// matching ReleaseFence on another CPU.
func AcquireFence() {
	atomic.LoadInt64(&fenceCell)
}

// ReleaseFence ensures prior writes are visible to a CPU that later
// executes a matching AcquireFence.
func ReleaseFence() {
	atomic.AddInt64(&fenceCell, 0)
}

// FullFence orders all prior memory accesses before all subsequent ones.
func FullFence() {
	atomic.AddInt64(&fenceCell, 0)
}
