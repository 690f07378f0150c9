package handoff

import "sync"

// Signal is the terminal stop token. It can be raised once; later raises
// are no-ops.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns a signal that has not been raised.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Raise places the stop token. It reports whether this call placed it.
func (s *Signal) Raise() bool {
	raised := false
	s.once.Do(func() {
		close(s.ch)
		raised = true
	})
	return raised
}

// Raised reports whether the token is present, without blocking.
func (s *Signal) Raised() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the token is raised.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}
