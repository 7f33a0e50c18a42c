//go:build !amd64

package cpucontext

// Switch is a no-op outside amd64: there is no portable FXSAVE/FXRSTOR
// equivalent in this module's dependency set, so the FPU/SIMD area is
// carried as inert bytes. Task suspension and resumption still happen at
// the internal/core layer via goroutine parking, independent of this call.
func Switch(from, to *Context) {}
