package relay

import (
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(1024)
	for _, s := range []string{"a", "b", "c"} {
		if !q.Enqueue([]byte(s)) {
			t.Fatalf("enqueue %q failed", s)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Dequeue()
		if !ok || string(got) != want {
			t.Fatalf("dequeue = %q, %v; want %q", got, ok, want)
		}
	}
}

func TestQueue_ByteBudget(t *testing.T) {
	q := NewQueue(10)
	if !q.Enqueue(make([]byte, 6)) {
		t.Fatal("first frame should fit")
	}
	if q.Enqueue(make([]byte, 6)) {
		t.Fatal("second frame should exceed the budget")
	}
	if q.DropCount() != 1 {
		t.Fatalf("drop count = %d, want 1", q.DropCount())
	}

	// Draining frees budget again.
	if _, ok := q.Dequeue(); !ok {
		t.Fatal("dequeue failed")
	}
	if !q.Enqueue(make([]byte, 6)) {
		t.Fatal("frame should fit after drain")
	}
}

func TestQueue_OversizedFrame(t *testing.T) {
	q := NewQueue(4)
	if q.Enqueue(make([]byte, 5)) {
		t.Fatal("oversized frame accepted")
	}
}

func TestQueue_CloseUnblocksDequeue(t *testing.T) {
	q := NewQueue(1024)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := q.Dequeue(); ok {
			t.Error("dequeue on closed empty queue reported ok")
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not unblock on close")
	}

	if q.Enqueue([]byte("x")) {
		t.Fatal("enqueue after close accepted")
	}
}
