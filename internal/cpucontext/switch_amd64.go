//go:build amd64

package cpucontext

import "unsafe"

//go:noescape
func saveFP(area unsafe.Pointer)

//go:noescape
func restoreFP(area unsafe.Pointer)

// Switch saves the FPU/SIMD state into from's FXSAVE area and loads to's,
// via a real FXSAVE/FXRSTOR pair. General-purpose register fields are not
// touched here: in this simulation they are plain struct fields owned and
// mutated by the task and core layers (internal/task, internal/core),
// which is where the actual suspend/resume rendezvous between simulated
// tasks happens over a channel handoff, not through raw SP/BP manipulation
// that would corrupt the host goroutine's own stack bookkeeping.
//
// Grounded on the teacher's //go:noescape assembly-stub idiom in
// kernel/hardware_real.go.
func Switch(from, to *Context) {
	saveFP(from.FPArea)
	restoreFP(to.FPArea)
}
