package audio

import (
	"sync"
	"time"
)

// stopwatch measures running time, excluding intervals spent paused.
type stopwatch struct {
	mu      sync.Mutex
	now     func() time.Time
	running bool
	since   time.Time
	total   time.Duration
}

func newStopwatch(now func() time.Time) *stopwatch {
	if now == nil {
		now = time.Now
	}
	return &stopwatch{now: now}
}

func (s *stopwatch) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.running = true
		s.since = s.now()
	}
}

func (s *stopwatch) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.total += s.now().Sub(s.since)
		s.running = false
	}
}

func (s *stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.total + s.now().Sub(s.since)
	}
	return s.total
}
