package handoff

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/harvest/internal/model"
)

func event(n int) model.RawEvent {
	return model.RawEvent{"n": n}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for i := range 5 {
		q.Push(event(i))
	}
	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}
	for i := range 5 {
		ev, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop %d: queue empty", i)
		}
		if ev["n"] != i {
			t.Fatalf("TryPop %d: got n=%v", i, ev["n"])
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop on empty queue returned an item")
	}
}

func TestQueue_CompactsAfterLongRun(t *testing.T) {
	q := NewQueue()
	// Interleave pushes and pops past the compaction threshold.
	next := 0
	for i := range 5000 {
		q.Push(event(i))
		if i%3 != 0 {
			ev, ok := q.TryPop()
			if !ok || ev["n"] != next {
				t.Fatalf("pop %d: got %v ok=%v", next, ev["n"], ok)
			}
			next++
		}
	}
	for {
		ev, ok := q.TryPop()
		if !ok {
			break
		}
		if ev["n"] != next {
			t.Fatalf("pop %d: got %v", next, ev["n"])
		}
		next++
	}
	if next != 5000 {
		t.Fatalf("popped %d events, want 5000", next)
	}
}

func TestQueue_ReadyWakesConsumer(t *testing.T) {
	q := NewQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(event(1))
	}()

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ready")
	}
	if _, ok := q.TryPop(); !ok {
		t.Fatal("expected an item after ready")
	}
}

func TestQueue_ConcurrentProducerConsumer(t *testing.T) {
	q := NewQueue()
	const n = 10000

	go func() {
		for i := range n {
			q.Push(event(i))
		}
	}()

	got := 0
	deadline := time.After(5 * time.Second)
	for got < n {
		ev, ok := q.TryPop()
		if !ok {
			select {
			case <-q.Ready():
			case <-deadline:
				t.Fatalf("timed out after %d events", got)
			}
			continue
		}
		if ev["n"] != got {
			t.Fatalf("out of order: got %v, want %d", ev["n"], got)
		}
		got++
	}
}

func TestSignal_RaiseOnce(t *testing.T) {
	s := NewSignal()
	if s.Raised() {
		t.Fatal("new signal is raised")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	placed := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Raise() {
				mu.Lock()
				placed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if placed != 1 {
		t.Fatalf("token placed %d times, want 1", placed)
	}
	if !s.Raised() {
		t.Fatal("signal not raised")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done() not closed after Raise")
	}
}

func TestQueueSink(t *testing.T) {
	q := NewQueue()
	var sink Sink = QueueSink{Queue: q}
	if err := sink.Put(event(7)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ev, ok := q.TryPop()
	if !ok || ev["n"] != 7 {
		t.Fatalf("queue got %v ok=%v", ev, ok)
	}
}

func TestFuncSink(t *testing.T) {
	var got []model.RawEvent
	var sink Sink = FuncSink(func(ev model.RawEvent) error {
		got = append(got, ev)
		return nil
	})
	_ = sink.Put(event(1))
	_ = sink.Put(event(2))
	if len(got) != 2 {
		t.Fatalf("consumer saw %d events, want 2", len(got))
	}

	boom := errors.New("boom")
	failing := FuncSink(func(model.RawEvent) error { return boom })
	if err := failing.Put(event(3)); !errors.Is(err, boom) {
		t.Fatalf("Put error = %v, want %v", err, boom)
	}
}
