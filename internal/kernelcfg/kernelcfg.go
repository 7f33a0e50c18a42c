// Package kernelcfg holds the typed boot-time configuration the platform
// entry point threads through memory, scheduling, and logging setup.
//
// Grounded on internal/runtime/kernel/kernel.go's KernelConfig/
// DefaultKernelConfig, narrowed to the fields this kernel's memory and
// scheduling subsystems actually consume; the original's filesystem,
// network, and security fields describe peripherals out of scope here.
package kernelcfg

// Config is the kernel's boot-time configuration.
type Config struct {
	// Memory configuration.
	Alignment    uintptr
	LockPhysical bool

	// Scheduling configuration.
	NumCores      int
	DefaultNode   int
	TaskTableSize int

	// Debug configuration.
	DebugEnabled bool
	Verbose      bool
}

// Default returns the kernel's conservative defaults: one core, node 0,
// a 4096-task table, 8-byte alignment, no physical pinning, quiet logging.
//
// Grounded on DefaultKernelConfig's pattern of a single constructor
// supplying every subsystem's defaults in one place.
func Default() Config {
	return Config{
		Alignment:     8,
		LockPhysical:  false,
		NumCores:      1,
		DefaultNode:   0,
		TaskTableSize: 4096,
		DebugEnabled:  false,
		Verbose:       false,
	}
}
