// Package handoff moves decoded events from the stream reader to the
// collector.
//
// Queue is an unbounded FIFO: the reader never blocks on a slow consumer,
// since the upstream connection cannot be throttled. Signal carries the
// single terminal stop token from the monitor to the collector.
package handoff

import (
	"sync"

	"github.com/alfredjeanlab/harvest/internal/model"
)

// Queue is an unbounded, goroutine-safe FIFO of raw events.
type Queue struct {
	mu    sync.Mutex
	items []model.RawEvent
	head  int

	// ready holds at most one pending wake-up for a parked consumer.
	ready chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends ev. It never blocks on the consumer.
func (q *Queue) Push(ev model.RawEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the oldest event without blocking.
func (q *Queue) TryPop() (model.RawEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return nil, false
	}
	ev := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return ev, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Ready returns a channel that receives after a Push. A receive does not
// guarantee an item is still there; callers must TryPop again.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
