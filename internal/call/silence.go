package call

import (
	"sync"
	"time"
)

// SilenceMonitor watches for the dispatcher going quiet. At most one timer
// is outstanding; arming again replaces the previous one, and any dispatcher
// activity disarms it.
type SilenceMonitor struct {
	mu        sync.Mutex
	onTimeout func()
	timer     *time.Timer
	gen       int
}

func NewSilenceMonitor(onTimeout func()) *SilenceMonitor {
	return &SilenceMonitor{onTimeout: onTimeout}
}

func (s *SilenceMonitor) Arm(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		stale := gen != s.gen
		s.mu.Unlock()
		if stale {
			return
		}
		s.onTimeout()
	})
}

func (s *SilenceMonitor) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}
