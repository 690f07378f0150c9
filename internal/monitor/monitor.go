// Package monitor decides when a harvest run stops.
//
// The monitor is the only component that closes the upstream connection
// and the only one that raises the stop signal. It polls the elapsed time
// and the admitted-event counter on a fixed interval and stops when either
// budget is spent, or when the reader has already exited on its own.
package monitor

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/harvest/internal/counter"
	"github.com/alfredjeanlab/harvest/internal/handoff"
)

// DefaultPollInterval is used when Config.PollInterval is zero.
const DefaultPollInterval = 100 * time.Millisecond

// State is the monitor's lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateStopped
)

func (s State) String() string {
	if s == StateStopped {
		return "stopped"
	}
	return "running"
}

// Stop reasons reported by Reason.
const (
	ReasonTimeLimit   = "time_limit"
	ReasonEventLimit  = "event_limit"
	ReasonStreamEnded = "stream_ended"
	ReasonAborted     = "aborted"
)

// Config carries the run budgets. Both are fixed for the life of a run.
type Config struct {
	TimeLimit    time.Duration
	EventLimit   int64
	PollInterval time.Duration

	// Progress, if set, is called on every poll with the fraction of the
	// larger budget consumed, clamped to 1. It must not block.
	Progress func(fraction float64)
}

// Monitor watches the budgets of one run.
type Monitor struct {
	cfg        Config
	counter    *counter.Counter
	conn       io.Closer
	signal     *handoff.Signal
	readerDone <-chan struct{}
	logger     *slog.Logger

	now    func() time.Time
	start  time.Time
	state  atomic.Int32
	reason atomic.Value // string

	abort     chan struct{}
	abortOnce sync.Once
}

// New creates a monitor. start is when the connection opened. readerDone is
// closed when the stream reader exits; the monitor waits on it before
// raising the signal, so every handed-off event precedes the stop token.
func New(cfg Config, c *counter.Counter, conn io.Closer, sig *handoff.Signal, readerDone <-chan struct{}, start time.Time, logger *slog.Logger) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		cfg:        cfg,
		counter:    c,
		conn:       conn,
		signal:     sig,
		readerDone: readerDone,
		logger:     logger,
		now:        time.Now,
		start:      start,
		abort:      make(chan struct{}),
	}
}

// Abort asks the monitor to stop before a budget is spent, for a consumer
// that can no longer accept events. It does not wait for the stop.
func (m *Monitor) Abort() {
	m.abortOnce.Do(func() { close(m.abort) })
}

// State returns the current state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Reason reports why the monitor stopped, or "" while running.
func (m *Monitor) Reason() string {
	r, _ := m.reason.Load().(string)
	return r
}

// Exceeded reports whether either budget is spent.
func (m *Monitor) Exceeded(elapsed time.Duration, count int64) bool {
	return elapsed > m.cfg.TimeLimit || count >= m.cfg.EventLimit
}

// Fraction is max(elapsed/TimeLimit, count/EventLimit) clamped to [0, 1].
func (m *Monitor) Fraction(elapsed time.Duration, count int64) float64 {
	var f float64
	if m.cfg.TimeLimit > 0 {
		f = float64(elapsed) / float64(m.cfg.TimeLimit)
	}
	if m.cfg.EventLimit > 0 {
		if c := float64(count) / float64(m.cfg.EventLimit); c > f {
			f = c
		}
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Run polls until a stop condition holds, then closes the connection, waits
// for the reader to exit and raises the signal. It returns once STOPPED.
func (m *Monitor) Run() {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	readerExited, aborted := false, false
	for {
		elapsed := m.now().Sub(m.start)
		count := m.counter.Load()
		if m.cfg.Progress != nil {
			m.cfg.Progress(m.Fraction(elapsed, count))
		}
		if reason := m.check(elapsed, count, readerExited, aborted); reason != "" {
			m.stop(reason, elapsed, count)
			return
		}

		select {
		case <-ticker.C:
		case <-m.readerDone:
			readerExited = true
		case <-m.abort:
			aborted = true
		}
	}
}

func (m *Monitor) check(elapsed time.Duration, count int64, readerExited, aborted bool) string {
	switch {
	case aborted:
		return ReasonAborted
	case count >= m.cfg.EventLimit:
		return ReasonEventLimit
	case elapsed > m.cfg.TimeLimit:
		return ReasonTimeLimit
	case readerExited:
		return ReasonStreamEnded
	}
	return ""
}

func (m *Monitor) stop(reason string, elapsed time.Duration, count int64) {
	m.reason.Store(reason)
	m.state.Store(int32(StateStopped))
	m.logger.Info("stopping stream", "reason", reason, "elapsed", elapsed.Round(time.Millisecond), "events", count)

	if err := m.conn.Close(); err != nil {
		m.logger.Debug("closing stream", "err", err)
	}
	if m.readerDone != nil {
		<-m.readerDone
	}
	m.signal.Raise()
}
