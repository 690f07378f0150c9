package handoff

import "github.com/alfredjeanlab/harvest/internal/model"

// Sink accepts events admitted by the stream reader. A returned error is
// fatal to the reader.
type Sink interface {
	Put(ev model.RawEvent) error
}

// QueueSink hands events over through a Queue, to be drained by a consumer
// on another goroutine.
type QueueSink struct {
	Queue *Queue
}

// Put pushes ev onto the queue. It never fails.
func (s QueueSink) Put(ev model.RawEvent) error {
	s.Queue.Push(ev)
	return nil
}

// FuncSink hands events directly to a consumer function on the reader's
// goroutine.
type FuncSink func(ev model.RawEvent) error

// Put calls f(ev).
func (f FuncSink) Put(ev model.RawEvent) error {
	return f(ev)
}

var (
	_ Sink = QueueSink{}
	_ Sink = FuncSink(nil)
)
