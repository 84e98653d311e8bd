package graph

import (
	"sync"
	"time"
)

// saveScheduler is a cancellable delayed task. Each schedule call restarts
// the delay, so a burst of mutations coalesces into one save once the store
// goes quiet. Flush cancels it before writing so the explicit save never
// races a pending timer.
type saveScheduler struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	fire  func()
}

func newSaveScheduler(delay time.Duration, fire func()) *saveScheduler {
	return &saveScheduler{delay: delay, fire: fire}
}

// schedule (re)starts the countdown
func (s *saveScheduler) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		s.fire()
	})
}

// cancel stops any pending countdown
func (s *saveScheduler) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
