package server

import "sync/atomic"

// Status is the run flag shared by Stop and the accept loop. It starts
// running and can only move to stopped.
type Status struct {
	stopped atomic.Bool
}

func (s *Status) IsRunning() bool { return !s.stopped.Load() }

// Stop marks the status stopped. It reports whether this call made the transition.
func (s *Status) Stop() bool {
	return s.stopped.CompareAndSwap(false, true)
}
