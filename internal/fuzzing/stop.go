package fuzzing

import "sync"

// StopSignal tells still-running trials that the fuzz test already failed.
// It is advisory: trials poll it at their own checkpoints. Once stopped it
// stays stopped.
type StopSignal struct {
	once sync.Once
	ch   chan struct{}
}

// NewStopSignal returns an open signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{ch: make(chan struct{})}
}

// Stop closes the signal. It reports true only for the call that closed it.
func (s *StopSignal) Stop() bool {
	closed := false
	s.once.Do(func() {
		close(s.ch)
		closed = true
	})
	return closed
}

// Stopped reports whether Stop was called. A nil signal is never stopped.
func (s *StopSignal) Stopped() bool {
	if s == nil {
		return false
	}
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on Stop.
func (s *StopSignal) Done() <-chan struct{} {
	return s.ch
}
