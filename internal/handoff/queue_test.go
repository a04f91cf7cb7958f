package handoff

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/smartpixl/smartpixl/internal/hit"
)

func mkHit(id int) *hit.Hit {
	return &hit.Hit{PixelID: strconv.Itoa(id)}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue("test", 4)
	for i := 0; i < 3; i++ {
		q.Enqueue(mkHit(i))
	}
	for i := 0; i < 3; i++ {
		h, ok := q.TryDequeue()
		if !ok || h.PixelID != strconv.Itoa(i) {
			t.Fatalf("dequeue %d = (%v, %v)", i, h, ok)
		}
	}
	if _, ok := q.TryDequeue(); ok {
		t.Error("empty queue should not dequeue")
	}
}

func TestQueue_DropOldestAtCapacity(t *testing.T) {
	q := NewQueue("test", 3)
	for i := 0; i < 5; i++ {
		if !q.Enqueue(mkHit(i)) {
			t.Fatalf("enqueue %d returned false on open queue", i)
		}
	}

	if q.Drops() != 2 {
		t.Errorf("drops = %d, want 2", q.Drops())
	}
	if q.Len() != 3 {
		t.Errorf("len = %d, want 3", q.Len())
	}

	// Survivors are the newest three, still in order.
	for _, want := range []string{"2", "3", "4"} {
		h, ok := q.TryDequeue()
		if !ok || h.PixelID != want {
			t.Fatalf("expected %s, got (%v, %v)", want, h, ok)
		}
	}
}

func TestQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue("test", 4)
	got := make(chan *hit.Hit, 1)

	go func() {
		h, _ := q.Dequeue(context.Background())
		got <- h
	}()

	time.Sleep(20 * time.Millisecond)
	q.Enqueue(mkHit(7))

	select {
	case h := <-got:
		if h.PixelID != "7" {
			t.Errorf("got %q", h.PixelID)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake")
	}
}

func TestQueue_DequeueCancelled(t *testing.T) {
	q := NewQueue("test", 4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(ctx)
		done <- ok
	}()

	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Error("cancelled dequeue should report no element")
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not observe cancellation")
	}
}

func TestQueue_CloseDrainsRemaining(t *testing.T) {
	q := NewQueue("test", 4)
	q.Enqueue(mkHit(1))
	q.Enqueue(mkHit(2))
	q.Close()

	if q.Enqueue(mkHit(3)) {
		t.Error("enqueue after close must return false")
	}

	ctx := context.Background()
	for _, want := range []string{"1", "2"} {
		h, ok := q.Dequeue(ctx)
		if !ok || h.PixelID != want {
			t.Fatalf("expected %s after close, got (%v, %v)", want, h, ok)
		}
	}
	if _, ok := q.Dequeue(ctx); ok {
		t.Error("closed drained queue must report no more elements")
	}
}

func TestQueue_WrapAround(t *testing.T) {
	q := NewQueue("test", 3)
	for round := 0; round < 10; round++ {
		q.Enqueue(mkHit(round))
		h, ok := q.TryDequeue()
		if !ok || h.PixelID != strconv.Itoa(round) {
			t.Fatalf("round %d: (%v, %v)", round, h, ok)
		}
	}
	if q.Drops() != 0 {
		t.Errorf("no drops expected, got %d", q.Drops())
	}
}
