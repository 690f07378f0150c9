// Package counter provides the shared event counter used by the stream
// reader and the stop-condition monitor.
package counter

import "sync/atomic"

// Counter is an integer that is safe to adjust and read from multiple
// goroutines. The zero value is ready to use.
type Counter struct {
	v atomic.Int64
}

// Inc adds one and returns the new value.
func (c *Counter) Inc() int64 {
	return c.v.Add(1)
}

// Add adjusts the counter by delta and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	return c.v.Add(delta)
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return c.v.Load()
}
