// Package queue implements the priority ready-queue: five FIFO buckets,
// one per task.Priority, plus a 5-bit occupancy bitmap for O(1) dequeue.
//
// Grounded on the bitmap-bucket structuring implicit in
// internal/runtime/kernel/scheduler.go's RunQueue (there a slice-plus-
// red-black-tree CFS run queue), simplified here to this spec's
// fixed-priority model; the O(1) bit-scan itself is grounded on
// Maemo32-SupraX_Legacy/SupraX.go's use of math/bits for hardware-style
// bit manipulation.
package queue

import (
	"math/bits"
	"sync"

	"github.com/ashlar-systems/tradekernel/internal/task"
)

// bucket is an intrusive doubly-linked FIFO list over *task.Task nodes,
// using each task's own Prev/Next links (spec.md §3: a task's links are
// used by at most one queue at a time).
type bucket struct {
	head, tail *task.Task
}

func (b *bucket) empty() bool { return b.head == nil }

func (b *bucket) pushBack(t *task.Task) {
	t.SetPrev(b.tail)
	t.SetNext(nil)
	if b.tail != nil {
		b.tail.SetNext(t)
	} else {
		b.head = t
	}
	b.tail = t
}

func (b *bucket) popFront() *task.Task {
	t := b.head
	if t == nil {
		return nil
	}
	b.head = t.Next()
	if b.head != nil {
		b.head.SetPrev(nil)
	} else {
		b.tail = nil
	}
	t.SetPrev(nil)
	t.SetNext(nil)
	return t
}

// remove splices t out of the bucket from anywhere in the list. Reports
// false if t is not currently linked into this bucket.
func (b *bucket) remove(t *task.Task) bool {
	if b.head != t && t.Prev() == nil && t.Next() == nil {
		return false
	}

	prev, next := t.Prev(), t.Next()
	if prev != nil {
		prev.SetNext(next)
	} else if b.head == t {
		b.head = next
	} else {
		return false
	}
	if next != nil {
		next.SetPrev(prev)
	} else {
		b.tail = prev
	}
	t.SetPrev(nil)
	t.SetNext(nil)
	return true
}

// ReadyQueue holds exactly one bucket per task.Priority and a bitmap whose
// bit k is set iff bucket k is non-empty.
type ReadyQueue struct {
	mu      sync.Mutex
	buckets [task.NumPriorities]bucket
	bitmap  uint8
}

// New constructs an empty ReadyQueue.
func New() *ReadyQueue {
	return &ReadyQueue{}
}

// Enqueue appends t to the back of its priority's bucket.
func (q *ReadyQueue) Enqueue(t *task.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := int(t.Priority)
	q.buckets[idx].pushBack(t)
	q.bitmap |= 1 << uint(idx)
}

// Dequeue removes and returns the head of the lowest-ordinal (most urgent)
// non-empty bucket, or nil if the queue is empty. O(1) via a bit scan.
func (q *ReadyQueue) Dequeue() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.bitmap == 0 {
		return nil
	}
	idx := bits.TrailingZeros8(q.bitmap)
	t := q.buckets[idx].popFront()
	if q.buckets[idx].empty() {
		q.bitmap &^= 1 << uint(idx)
	}
	return t
}

// Peek returns the head of the lowest-ordinal non-empty bucket without
// removing it, or nil if the queue is empty.
func (q *ReadyQueue) Peek() *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.bitmap == 0 {
		return nil
	}
	idx := bits.TrailingZeros8(q.bitmap)
	return q.buckets[idx].head
}

// Remove splices t out of whichever bucket it currently occupies,
// regardless of its position, and reports whether it was found.
func (q *ReadyQueue) Remove(t *task.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := int(t.Priority)
	if !q.buckets[idx].remove(t) {
		return false
	}
	if q.buckets[idx].empty() {
		q.bitmap &^= 1 << uint(idx)
	}
	return true
}

// Empty reports whether every bucket is empty.
func (q *ReadyQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bitmap == 0
}

// BitmapSnapshot returns the current occupancy bitmap, for tests covering
// P4's consistency invariant.
func (q *ReadyQueue) BitmapSnapshot() uint8 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bitmap
}

// FindLowestPriority scans buckets from least to most urgent (Idle's
// ordinal down to Critical's) and returns the first task for which pred
// reports true, without removing it. Used by the load balancer to pick a
// migration victim that does not disturb more urgent work.
func (q *ReadyQueue) FindLowestPriority(pred func(*task.Task) bool) *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for idx := task.NumPriorities - 1; idx >= 0; idx-- {
		for n := q.buckets[idx].head; n != nil; n = n.Next() {
			if pred(n) {
				return n
			}
		}
	}
	return nil
}
