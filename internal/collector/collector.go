// Package collector drains the handoff queue, normalizes each event and
// keeps the results ordered until the writer takes them.
package collector

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/alfredjeanlab/harvest/internal/handoff"
	"github.com/alfredjeanlab/harvest/internal/metrics"
	"github.com/alfredjeanlab/harvest/internal/model"
	"github.com/alfredjeanlab/harvest/internal/pqueue"
)

// Collector owns the priority buffer for the collection phase.
type Collector struct {
	queue   *handoff.Queue
	signal  *handoff.Signal
	buffer  *pqueue.Buffer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a collector reading from queue until signal is raised. For
// direct handoff, pass nil queue and signal and wire Consume as the sink.
func New(queue *handoff.Queue, signal *handoff.Signal, logger *slog.Logger, m *metrics.Metrics) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Collector{
		queue:   queue,
		signal:  signal,
		buffer:  pqueue.New(),
		logger:  logger,
		metrics: m,
	}
}

// Consume normalizes one raw event into the buffer. A contract violation
// is returned as an error wrapping *model.NormalizeError and ends the run.
func (c *Collector) Consume(ev model.RawEvent) error {
	rec, err := model.Normalize(ev)
	if err != nil {
		return fmt.Errorf("collecting event: %w", err)
	}
	c.buffer.Push(rec)
	c.metrics.Collected()
	return nil
}

// Sink returns the direct-invocation sink for this collector.
func (c *Collector) Sink() handoff.Sink {
	return handoff.FuncSink(c.Consume)
}

// Run drains the queue. When the queue is empty it checks the signal:
// raised means done, otherwise it parks until more events or the signal
// arrive.
func (c *Collector) Run() error {
	for {
		ev, ok := c.queue.TryPop()
		if ok {
			if err := c.Consume(ev); err != nil {
				return err
			}
			continue
		}

		c.metrics.SetHandoffDepth(0)
		if c.signal.Raised() {
			c.logger.Debug("collector drained", "records", c.buffer.Len())
			return nil
		}
		select {
		case <-c.queue.Ready():
		case <-c.signal.Done():
		}
	}
}

// Buffer hands over the ordered records. Call it only after Run has
// returned (queue mode) or the reader has exited (direct mode).
func (c *Collector) Buffer() *pqueue.Buffer {
	return c.buffer
}
