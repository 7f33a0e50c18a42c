// Package task implements the Task aggregate: its priority and state
// machine, its exclusively-owned stack, and the construction procedure
// that seeds a fresh CpuContext so the task's first resumption lands in
// the entry trampoline.
//
// Grounded on internal/runtime/kernel/scheduler.go's AdvancedProcess
// (fields renamed and re-scoped onto spec.md's Task aggregate: Priority,
// CPUAffinity, TotalRunTime → runtime_cycles) and hardware.go's Process
// (StackBase/StackSize, Context *InterruptContext → cpucontext.Context).
package task

import (
	"sync"

	"github.com/ashlar-systems/tradekernel/internal/cpucontext"
	"github.com/ashlar-systems/tradekernel/internal/cycles"
	"github.com/ashlar-systems/tradekernel/internal/kernelerr"
)

// Priority is a total order over five urgency tiers; lower ordinal means
// more urgent. There are no ties within a task.
type Priority uint8

const (
	Critical Priority = iota
	High
	Normal
	Low
	Idle

	NumPriorities = int(Idle) + 1
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "Critical"
	case High:
		return "High"
	case Normal:
		return "Normal"
	case Low:
		return "Low"
	case Idle:
		return "Idle"
	default:
		return "Unknown"
	}
}

// State is a task's position in spec.md §4.6's state machine.
type State uint8

const (
	Ready State = iota
	Running
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// DefaultStackSize is the stack size new tasks receive when New is passed
// a stackSize of 0. New does not enforce it as a minimum.
const DefaultStackSize = 8 * 1024

// EntryFunc is a task's body: it receives the argument supplied at
// construction and runs to completion (or blocks/yields cooperatively via
// the scheduler) before terminating.
type EntryFunc func(arg any)

// Task is the kernel's schedulable unit: a priority, a state, an
// exclusively-owned stack, a CpuContext, and bookkeeping timestamps.
//
// This simulation represents the "exclusively-owned stack" and the
// trampoline-driven entry as a dedicated goroutine parked on a rendezvous
// channel rather than a raw memory stack executed via jmp, since Go gives
// no safe way to redirect a goroutine's own stack pointer; see
// internal/core for the park/resume discipline built on top of this.
type Task struct {
	ID       uint64
	Priority Priority

	mu    sync.Mutex
	state State

	Context     *cpucontext.Context
	StackBase   uintptr
	StackSize   uintptr
	CPUAffinity uint64

	CreatedAt      cycles.Stamp
	LastResumedAt  cycles.Stamp
	RuntimeCycles  uint64
	DeadlineCycles uint64
	HasDeadline    bool

	entry EntryFunc
	arg   any

	// resume/yield are the rendezvous channels the owning core uses to
	// hand control to this task's goroutine and get it back.
	resume  chan struct{}
	yield   chan struct{}
	done    chan struct{}
	started sync.Once

	// links: intrusive doubly-linked-list pointers, used by at most one
	// queue at a time, per spec.md §3. Represented as plain fields since
	// only the owning queue touches them and access is synchronized by
	// that queue's own lock.
	prev, next *Task
}

// StackAllocator is the narrow interface internal/numa satisfies: it hands
// out a stack-sized region for a new task, or fails.
type StackAllocator interface {
	Allocate(size uintptr, node int) (uintptr, error)
}

// New runs spec.md §4.6's ten-step construction procedure. On stack
// allocation failure the task is born Terminated per step 1, and the
// caller is informed via the returned error.
func New(id uint64, priority Priority, entry EntryFunc, arg any, stackSize uintptr, affinity uint64, alloc StackAllocator, node int) (*Task, error) {
	if stackSize == 0 {
		stackSize = DefaultStackSize
	}

	t := &Task{
		ID:          id,
		Priority:    priority,
		CPUAffinity: affinity,
		entry:       entry,
		arg:         arg,
		StackSize:   stackSize,
		resume:      make(chan struct{}),
		yield:       make(chan struct{}),
		done:        make(chan struct{}),
	}

	stackBase, err := alloc.Allocate(stackSize, node)
	if err != nil {
		t.state = Terminated
		return t, err
	}
	t.StackBase = stackBase

	t.Context = cpucontext.New()
	// Steps 3-4: stack pointer at the top of the stack, minus one machine
	// word, base pointer equal to it at entry.
	top := (stackBase + stackSize - 8) &^ 0xF
	t.Context.RSP = uint64(top)
	t.Context.RBP = uint64(top)
	// Step 5: the instruction pointer is recorded as a sentinel marking
	// "runs the trampoline"; the real entry dispatch happens when the
	// owning core's goroutine wrapper invokes runEntry below.
	t.Context.RIP = trampolineSentinel
	// Step 6 is represented by storing arg/entry on the Task rather than
	// in an ABI register slot, since the trampoline here is a Go closure.
	// Step 7: enable interrupts in the flags snapshot.
	t.Context.RFLAGS = flagsInterruptEnable
	// Step 8: cpucontext.New() seeded the FXSAVE area with the FPU/SIMD
	// reset control words.

	t.CreatedAt = cycles.ReadCycle()
	t.state = Ready

	return t, nil
}

const (
	trampolineSentinel   = 0xDEAD000000000001
	flagsInterruptEnable = 1 << 9 // IF bit
)

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// transitions enumerates the allowed edges from spec.md §4.6's table.
var transitions = map[State]map[State]bool{
	Ready:      {Running: true, Terminated: true},
	Running:    {Ready: true, Blocked: true, Terminated: true},
	Blocked:    {Ready: true},
	Terminated: {},
}

// SetState validates and applies a state transition. Invalid transitions
// return kernelerr.ErrInvalidTransition; callers in debug builds should
// treat this as a fatal assertion per spec.md §7.
func (t *Task) SetState(next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !transitions[t.state][next] {
		return kernelerr.ErrInvalidTransition
	}
	t.state = next
	return nil
}

// Start launches the task's body on a dedicated goroutine. The goroutine
// blocks immediately on the resume rendezvous, so the task does not
// actually execute user code until the owning core calls Resume for the
// first time. This stands in for the trampoline jump a real switch_context
// would perform, per spec.md §4.5: the goroutine itself is the "stack"
// spec.md's Task owns exclusively.
func (t *Task) Start() {
	go func() {
		<-t.resume
		if t.entry != nil {
			t.entry(t.arg)
		}
		close(t.done)
	}()
}

// EnsureStarted calls Start exactly once, regardless of how many times it
// is called; the owning core uses this to lazily launch a task's
// goroutine the first time it is scheduled in.
func (t *Task) EnsureStarted() {
	t.started.Do(t.Start)
}

// SetEntry assigns the task's entry function and argument after
// construction. This exists for bootstrap cases (such as a core's idle
// task) whose body needs a reference to the Task itself, which is not
// available until after New returns.
func (t *Task) SetEntry(entry EntryFunc, arg any) {
	t.entry = entry
	t.arg = arg
}

// Resume hands control to the task's goroutine and blocks until it either
// yields back or runs to completion. It reports which happened.
func (t *Task) Resume() (yielded bool) {
	t.LastResumedAt = cycles.ReadCycle()
	t.resume <- struct{}{}
	select {
	case <-t.yield:
		return true
	case <-t.done:
		return false
	}
}

// Yield is called from within the task's own entry function to
// cooperatively return control to the owning core; it blocks until the
// core resumes this task again. This is the task-self-action edge in
// spec.md §4.6's Running → Ready transition.
func (t *Task) Yield() {
	t.yield <- struct{}{}
	<-t.resume
}

// RecordRuntime accumulates elapsed cycles onto the task's running total,
// covering P9's accounting invariant.
func (t *Task) RecordRuntime(elapsed uint64) {
	t.mu.Lock()
	t.RuntimeCycles += elapsed
	t.mu.Unlock()
}

// Prev returns the task's intrusive predecessor link. Only the owning
// ReadyQueue implementation should call this.
func (t *Task) Prev() *Task { return t.prev }

// Next returns the task's intrusive successor link.
func (t *Task) Next() *Task { return t.next }

// SetPrev sets the task's intrusive predecessor link.
func (t *Task) SetPrev(p *Task) { t.prev = p }

// SetNext sets the task's intrusive successor link.
func (t *Task) SetNext(n *Task) { t.next = n }
