// Package pqueue holds normalized records until they are written, handing
// them back in ascending model.Less order.
package pqueue

import (
	"github.com/emirpasic/gods/queues/priorityqueue"

	"github.com/alfredjeanlab/harvest/internal/model"
)

// Buffer is an unbounded min-priority queue of records. It is not safe for
// concurrent use: exactly one goroutine owns it at a time.
type Buffer struct {
	q *priorityqueue.Queue
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{q: priorityqueue.NewWith(compareRecords)}
}

func compareRecords(a, b interface{}) int {
	return model.Compare(a.(model.Record), b.(model.Record))
}

// Push inserts r.
func (b *Buffer) Push(r model.Record) {
	b.q.Enqueue(r)
}

// Pop removes and returns the smallest record.
func (b *Buffer) Pop() (model.Record, bool) {
	v, ok := b.q.Dequeue()
	if !ok {
		return model.Record{}, false
	}
	return v.(model.Record), true
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	return b.q.Size()
}

// Drain pops every record in order and passes it to fn. It stops at the
// first error; records already popped are gone.
func (b *Buffer) Drain(fn func(model.Record) error) error {
	for {
		r, ok := b.Pop()
		if !ok {
			return nil
		}
		if err := fn(r); err != nil {
			return err
		}
	}
}
