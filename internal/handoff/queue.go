// Package handoff is the durable edge→forge transfer: newline-delimited
// JSON over a local stream socket, with append-only disk spill when the
// stream is down. Loss is permitted only under the drop-oldest overflow
// policy; the HTTP request path never blocks on any of it.
package handoff

import (
	"context"
	"sync"

	"github.com/smartpixl/smartpixl/internal/hit"
	"github.com/smartpixl/smartpixl/internal/metrics"
)

// Queue is a bounded multi-producer single-consumer ring. Enqueue never
// blocks: at capacity the oldest element is dropped and counted. The single
// consumer waits on a notify channel instead of spinning.
type Queue struct {
	mu     sync.Mutex
	buf    []*hit.Hit
	head   int
	count  int
	closed bool
	drops  uint64
	notify chan struct{}
	name   string
}

func NewQueue(name string, capacity int) *Queue {
	return &Queue{
		buf:    make([]*hit.Hit, capacity),
		notify: make(chan struct{}, 1),
		name:   name,
	}
}

// Enqueue adds h, dropping the oldest element when full. Returns false only
// after Close.
func (q *Queue) Enqueue(h *hit.Hit) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.count == len(q.buf) {
		// Drop oldest.
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.drops++
		metrics.QueueDropsTotal.WithLabelValues(q.name).Inc()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = h
	q.count++
	depth := q.count
	q.mu.Unlock()

	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(depth))
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Dequeue blocks until an element is available, the queue is closed and
// drained, or ctx ends. The second return is false when no more elements
// will arrive.
func (q *Queue) Dequeue(ctx context.Context) (*hit.Hit, bool) {
	for {
		if h, ok := q.TryDequeue(); ok {
			return h, true
		}
		q.mu.Lock()
		closed := q.closed && q.count == 0
		q.mu.Unlock()
		if closed {
			return nil, false
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-q.notify:
		}
	}
}

// TryDequeue pops the oldest element without blocking.
func (q *Queue) TryDequeue() (*hit.Hit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil, false
	}
	h := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(q.count))
	return h, true
}

// Close stops further enqueues. Queued elements remain dequeueable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Drops reports how many elements were discarded by the overflow policy.
func (q *Queue) Drops() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drops
}
