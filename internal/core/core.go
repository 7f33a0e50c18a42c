// Package core implements the per-CPU core scheduler: the part of the
// kernel that owns exactly one ready queue, one current task, and the
// scheduling epoch loop that switches between them.
//
// Grounded on internal/runtime/kernel/scheduler.go's
// AdvancedScheduler.ScheduleAdvanced/contextSwitch shape, re-targeted from
// timestamp-only bookkeeping onto the real cpucontext.Switch primitive and
// task goroutine rendezvous built in internal/task.
package core

import (
	"sync"

	"github.com/ashlar-systems/tradekernel/internal/cpucontext"
	"github.com/ashlar-systems/tradekernel/internal/cycles"
	"github.com/ashlar-systems/tradekernel/internal/queue"
	"github.com/ashlar-systems/tradekernel/internal/task"
)

// IdleStackSize is the minimum stack size spec.md §4.8 requires for a
// core's idle task.
const IdleStackSize = 4 * 1024

// StackReclaimer releases a terminated task's stack region back to its
// owning NUMA node pool.
type StackReclaimer func(stackBase uintptr) error

// Stats are the per-core counters spec.md §4.8 requires.
type Stats struct {
	SwitchCount       uint64
	TotalSwitchCycles uint64
	MaxSwitchCycles   uint64
	TaskCount         int
	LoadScore         uint64
}

// Core is a single logical CPU: its own ready queue, current task, idle
// task, and scheduling statistics. Only the owning core ever mutates its
// current task pointer, per spec.md §3.
type Core struct {
	ID int

	mu      sync.Mutex
	current *task.Task
	idle    *task.Task
	ready   *queue.ReadyQueue
	stats   Stats
	reclaim StackReclaimer

	// incoming is the one-slot migration handoff a donor core's
	// BalanceLoad pushes into; this core drains it at its own next
	// Schedule call, resolving Open Question O1 without any core ever
	// mutating another core's ready queue directly.
	incoming chan *task.Task
}

// weight maps a priority to the scheduling weight spec.md §4.8's
// load_score computation multiplies task_count by; Critical is heaviest.
func weight(p task.Priority) uint64 {
	return uint64(task.NumPriorities - int(p))
}

// Initialize constructs a Core's idle task (Priority Idle, a halt-and-wait
// loop body) and sets current = idle, per spec.md §4.8.
func Initialize(id int, alloc task.StackAllocator, node int, reclaim StackReclaimer) (*Core, error) {
	idle, err := task.New(idleTaskID(id), task.Idle, nil, nil, IdleStackSize, ^uint64(0), alloc, node)
	if err != nil {
		return nil, err
	}
	idle.SetEntry(func(arg any) {
		self := arg.(*task.Task)
		for {
			cycles.Pause()
			self.Yield()
		}
	}, idle)
	idle.EnsureStarted()

	c := &Core{
		ID:       id,
		current:  idle,
		idle:     idle,
		ready:    queue.New(),
		reclaim:  reclaim,
		incoming: make(chan *task.Task, 1),
	}
	return c, nil
}

func idleTaskID(coreID int) uint64 {
	return ^uint64(0) - uint64(coreID)
}

// Current returns the core's current task.
func (c *Core) Current() *task.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// IdleTask returns the core's perpetual idle task.
func (c *Core) IdleTask() *task.Task {
	return c.idle
}

// Stats returns a snapshot of the core's scheduling statistics.
func (c *Core) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// AddTask enqueues t and recomputes load_score, per spec.md §4.8.
func (c *Core) AddTask(t *task.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready.Enqueue(t)
	c.stats.TaskCount++
	c.stats.LoadScore += weight(t.Priority)
}

// RemoveTask unlinks t from the ready queue if present and recomputes
// load_score. Reports whether t was found.
func (c *Core) RemoveTask(t *task.Task) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready.Remove(t) {
		return false
	}
	c.stats.TaskCount--
	c.stats.LoadScore -= weight(t.Priority)
	return true
}

// drainIncoming pulls a migrated task off this core's single handoff slot
// and onto its ready queue, if one is waiting.
func (c *Core) drainIncoming() {
	select {
	case t := <-c.incoming:
		c.AddTask(t)
	default:
	}
}

// AcceptMigration offers a task to this core's single migration slot.
// Reports false if the slot is already occupied (the donor should retry
// at the next balance interval rather than block).
func (c *Core) AcceptMigration(t *task.Task) bool {
	select {
	case c.incoming <- t:
		return true
	default:
		return false
	}
}

// LowestPriorityTask returns the least-urgent ready task whose affinity
// mask includes recipientBit, without removing it, or nil if none
// qualifies. Used by the global scheduler's load balancer to pick a
// migration victim that will not starve this core of urgent work.
func (c *Core) LowestPriorityTask(recipientBit uint64) *task.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready.FindLowestPriority(func(t *task.Task) bool {
		return t.CPUAffinity&recipientBit != 0
	})
}

// Schedule implements spec.md §4.8's nine-step scheduling procedure.
func (c *Core) Schedule() {
	c.drainIncoming()

	t0 := cycles.ReadCycle()

	c.mu.Lock()
	next := c.ready.Dequeue()
	if next == nil {
		next = c.idle
	}
	if next == c.current {
		c.stats.SwitchCount++
		c.mu.Unlock()
		return
	}

	prev := c.current
	switch {
	case prev.State() == task.Terminated:
		c.stats.TaskCount--
		c.mu.Unlock()
		c.reclaimStack(prev)
		c.mu.Lock()
	case prev != c.idle && prev.State() == task.Running:
		prev.SetState(task.Ready)
		c.ready.Enqueue(prev)
	}

	c.current = next
	c.mu.Unlock()

	next.SetState(task.Running)
	if prev != c.idle {
		elapsed := t0.Elapsed(prev.LastResumedAt)
		prev.RecordRuntime(elapsed)
	}
	next.LastResumedAt = t0

	cpucontext.Switch(prev.Context, next.Context)

	next.EnsureStarted()
	yielded := next.Resume()

	t1 := cycles.ReadCycle()
	c.recordSwitch(t1.Elapsed(t0))

	if !yielded {
		next.SetState(task.Terminated)
	}
}

func (c *Core) recordSwitch(cyclesSpent uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.SwitchCount++
	c.stats.TotalSwitchCycles += cyclesSpent
	if cyclesSpent > c.stats.MaxSwitchCycles {
		c.stats.MaxSwitchCycles = cyclesSpent
	}
}

func (c *Core) reclaimStack(t *task.Task) {
	if c.reclaim == nil {
		return
	}
	_ = c.reclaim(t.StackBase)
}

// OnTimerInterrupt simulates a timer-interrupt tick: it simply reschedules.
func (c *Core) OnTimerInterrupt() {
	c.Schedule()
}

// HandleTaskExit marks the current task Terminated and reschedules. In a
// real trampoline tail this call never returns to its caller; here it
// returns normally once the next task has been switched in, since the
// "caller" is this simulation's own core-runner goroutine rather than the
// exiting task's own stack.
func (c *Core) HandleTaskExit() {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur != nil {
		_ = cur.SetState(task.Terminated)
	}
	c.Schedule()
}
