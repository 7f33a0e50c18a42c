package queue

import (
	"testing"

	"github.com/ashlar-systems/tradekernel/internal/task"
)

type fakeAllocator struct{ next uintptr }

func (f *fakeAllocator) Allocate(size uintptr, node int) (uintptr, error) {
	f.next += size + 64
	return f.next, nil
}

func newTask(t *testing.T, id uint64, p task.Priority) *task.Task {
	t.Helper()
	tk, err := task.New(id, p, func(any) {}, nil, 0, 0x1, &fakeAllocator{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	return tk
}

// TestBitmapConsistency covers P4.
func TestBitmapConsistency(t *testing.T) {
	q := New()
	a := newTask(t, 1, task.High)
	b := newTask(t, 2, task.Low)

	q.Enqueue(a)
	if q.BitmapSnapshot() != 1<<task.High {
		t.Fatalf("bitmap = %08b, want bit %d set", q.BitmapSnapshot(), task.High)
	}
	q.Enqueue(b)
	want := uint8(1<<task.High | 1<<task.Low)
	if q.BitmapSnapshot() != want {
		t.Fatalf("bitmap = %08b, want %08b", q.BitmapSnapshot(), want)
	}

	q.Dequeue()
	if q.BitmapSnapshot() != 1<<task.Low {
		t.Fatalf("bitmap after dequeue = %08b, want bit %d set", q.BitmapSnapshot(), task.Low)
	}
	q.Dequeue()
	if q.BitmapSnapshot() != 0 {
		t.Fatalf("bitmap after draining = %08b, want 0", q.BitmapSnapshot())
	}
}

// TestPriorityDominance covers P5/S2: Critical dequeues before Low.
func TestPriorityDominance(t *testing.T) {
	q := New()
	critical := newTask(t, 1, task.Critical)
	low := newTask(t, 2, task.Low)

	q.Enqueue(low)
	q.Enqueue(critical)

	got := q.Dequeue()
	if got != critical {
		t.Fatalf("dequeue = task %d, want the Critical task", got.ID)
	}
}

// TestFIFOWithinPriority covers P6/S3.
func TestFIFOWithinPriority(t *testing.T) {
	q := New()
	a := newTask(t, 1, task.Normal)
	b := newTask(t, 2, task.Normal)
	c := newTask(t, 3, task.Normal)

	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	var order []uint64
	for {
		tk := q.Dequeue()
		if tk == nil {
			break
		}
		order = append(order, tk.ID)
	}
	want := []uint64{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRemoveFromMiddle(t *testing.T) {
	q := New()
	a := newTask(t, 1, task.Normal)
	b := newTask(t, 2, task.Normal)
	c := newTask(t, 3, task.Normal)
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	if !q.Remove(b) {
		t.Fatal("expected Remove to find b")
	}
	if q.Remove(b) {
		t.Fatal("expected second Remove of b to fail")
	}

	first := q.Dequeue()
	second := q.Dequeue()
	if first != a || second != c {
		t.Fatalf("got %d, %d; want a then c", first.ID, second.ID)
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New()
	a := newTask(t, 1, task.Normal)
	q.Enqueue(a)
	if q.Peek() != a {
		t.Fatal("Peek returned wrong task")
	}
	if q.Empty() {
		t.Fatal("Peek should not have removed the task")
	}
}
