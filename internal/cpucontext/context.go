// Package cpucontext defines the CPU register snapshot a task suspends
// into and resumes from, and the Switch primitive that saves one context
// and restores another.
//
// Context's field layout is grounded on internal/runtime/kernel/
// interrupt.go's InterruptContext (RAX..R15, segment selectors, RIP,
// RFLAGS), extended with RBP (spec.md requires a base pointer) and a
// 512-byte, 16-byte-aligned FXSAVE/FXRSTOR area. The offset tests in
// context_test.go pin the register-field layout against accidental
// reordering; Switch's assembly (switch_amd64.s) does not index into the
// struct, it is handed the FPArea pointer alone.
package cpucontext

import "unsafe"

// fpAreaSize is the FXSAVE/FXRSTOR operand size on x86_64.
const fpAreaSize = 512

// Context is a fixed-layout register snapshot sufficient to resume a
// suspended task on amd64. Field order must not change without updating
// the offset assertions in context_test.go in lockstep.
//
// FPArea is a pointer rather than an inline array: Go gives no struct-field
// alignment guarantee beyond the field's own type, so the 16-byte alignment
// FXSAVE requires is obtained by over-allocating a backing buffer in
// newFPArea and storing a pointer into its aligned interior instead.
type Context struct {
	// General purpose registers.
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP, RSP uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64

	// Instruction pointer and flags.
	RIP, RFLAGS uint64

	// Segment selectors.
	CS, DS, ES, FS, GS, SS uint16

	// FPArea points at a 512-byte, 16-byte-aligned FXSAVE/FXRSTOR region.
	// The Go compiler inserts the padding needed to 8-align this pointer
	// field after the uint16 run above; switch_amd64.s receives the
	// pointer's value as an argument, so it does not depend on this offset.
	FPArea unsafe.Pointer

	fpBacking []byte // keeps the backing buffer reachable for the GC
}

// New constructs a Context with zeroed register fields and a freshly
// allocated, aligned FXSAVE area holding the FPU/SIMD reset state.
// task.New calls this and then seeds the stack pointer, instruction
// pointer, and flags per spec.md §4.6's construction procedure.
func New() *Context {
	c := &Context{}
	c.fpBacking = make([]byte, fpAreaSize+16)
	base := unsafe.Pointer(&c.fpBacking[0])
	offset := (16 - uintptr(base)%16) % 16
	c.FPArea = unsafe.Add(base, offset)
	// Seed the FXSAVE image with the x87/SSE reset control words (FCW
	// 0x037F at byte 0, MXCSR 0x1F80 at byte 24), which mask every
	// floating-point exception, so the first FXRSTOR of a fresh context
	// loads the reset state rather than an all-unmasked one.
	*(*uint16)(c.FPArea) = 0x037F
	*(*uint32)(unsafe.Add(c.FPArea, 24)) = 0x1F80
	return c
}

// FPAreaAligned reports whether c's FXSAVE region is 16-byte aligned, the
// precondition FXSAVE/FXRSTOR impose on their operand.
func (c *Context) FPAreaAligned() bool {
	return uintptr(c.FPArea)%16 == 0
}
