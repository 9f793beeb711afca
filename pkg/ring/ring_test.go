package ring

import (
	"sync"
	"testing"
)

func TestPushPopRoundTrip(t *testing.T) {
	t.Parallel()

	r := New(4)

	if !r.Push(42) {
		t.Fatalf("Push() = false, want true")
	}

	got, ok := r.Pop()
	if !ok || got != 42 {
		t.Fatalf("Pop() = (%d, %v), want (42, true)", got, ok)
	}

	if _, ok := r.Pop(); ok {
		t.Fatalf("Pop() on empty ring returned ok=true")
	}
}

func TestFIFOOrder(t *testing.T) {
	t.Parallel()

	r := New(4)

	for _, v := range []uint32{1, 2, 3} {
		if !r.Push(v) {
			t.Fatalf("Push(%d) = false", v)
		}
	}

	for _, want := range []uint32{1, 2, 3} {
		got, ok := r.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
}

func TestCapacityIsNMinusOne(t *testing.T) {
	t.Parallel()

	r := New(4)
	if got := r.Capacity(); got != 3 {
		t.Fatalf("Capacity() = %d, want 3", got)
	}

	for i := 0; i < 3; i++ {
		if !r.Push(uint32(i)) { //nolint:gosec
			t.Fatalf("Push(%d) = false, want true", i)
		}
	}

	if r.Push(99) {
		t.Fatalf("Push() on a full ring returned true")
	}

	if !r.IsFull() {
		t.Fatalf("IsFull() = false, want true")
	}
}

func TestWraparoundStaysFIFO(t *testing.T) {
	t.Parallel()

	r := New(4)
	next := uint32(0)

	for round := 0; round < 3; round++ {
		for i := 0; i < 3; i++ {
			if !r.Push(next) {
				t.Fatalf("round %d: Push(%d) = false", round, next)
			}

			next++
		}

		want := next - 3
		for i := 0; i < 3; i++ {
			got, ok := r.Pop()
			if !ok || got != want {
				t.Fatalf("round %d: Pop() = (%d, %v), want (%d, true)", round, got, ok, want)
			}

			want++
		}
	}
}

func TestLenAndEmpty(t *testing.T) {
	t.Parallel()

	r := New(4)
	if !r.IsEmpty() {
		t.Fatalf("IsEmpty() = false on new ring")
	}

	r.Push(1)
	r.Push(2)

	if got := r.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
}

func TestClearResetsIndices(t *testing.T) {
	t.Parallel()

	r := New(4)
	r.Push(1)
	r.Push(2)
	r.Clear()

	if !r.IsEmpty() {
		t.Fatalf("IsEmpty() = false after Clear()")
	}

	if got := r.Len(); got != 0 {
		t.Fatalf("Len() = %d after Clear(), want 0", got)
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()

	r := New(64)
	const count = 10_000

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()

		for i := uint32(0); i < count; i++ {
			for !r.Push(i) {
			}
		}
	}()

	received := make([]uint32, 0, count)

	go func() {
		defer wg.Done()

		for uint32(len(received)) < count { //nolint:gosec
			v, ok := r.Pop()
			if !ok {
				continue
			}

			received = append(received, v)
		}
	}()

	wg.Wait()

	for i, v := range received {
		if v != uint32(i) { //nolint:gosec
			t.Fatalf("received[%d] = %d, want %d", i, v, i)
		}
	}
}
