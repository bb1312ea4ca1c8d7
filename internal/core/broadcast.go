package core

import (
	"slices"
	"time"
)

// outbound is one encoded broadcast waiting for the next flush. Recipients
// are fixed when the broadcast is produced.
type outbound struct {
	key   string
	frame Frame
	to    []SessionID
}

// scheduler enforces the patch rate: at most one flush per rate interval.
// Keyed entries replace an older pending entry with the same key, so rapid
// updates of one player collapse into the latest one.
type scheduler struct {
	rate    time.Duration
	last    time.Time
	pending []outbound
	timer   *time.Timer
	armed   bool
}

func newScheduler(rate time.Duration) *scheduler {
	return &scheduler{rate: rate}
}

func (s *scheduler) push(key string, frame Frame, to []SessionID) {
	if key != "" {
		s.pending = slices.DeleteFunc(s.pending, func(o outbound) bool { return o.key == key })
	}
	s.pending = append(s.pending, outbound{key: key, frame: frame, to: to})
}

func (s *scheduler) hasPending() bool { return len(s.pending) > 0 }

func (s *scheduler) due(now time.Time) bool {
	if len(s.pending) == 0 {
		return false
	}
	return s.rate <= 0 || now.Sub(s.last) >= s.rate
}

// C is nil while no flush is armed, which disables its select case.
func (s *scheduler) C() <-chan time.Time {
	if !s.armed {
		return nil
	}
	return s.timer.C
}

func (s *scheduler) arm(now time.Time) {
	if s.armed {
		return
	}
	d := max(s.rate-now.Sub(s.last), 0)
	if s.timer == nil {
		s.timer = time.NewTimer(d)
	} else {
		s.timer.Reset(d)
	}
	s.armed = true
}

func (s *scheduler) fired() { s.armed = false }

// take hands over everything pending and starts a new interval.
func (s *scheduler) take(now time.Time) []outbound {
	s.last = now
	s.stop()
	out := s.pending
	s.pending = nil
	return out
}

func (s *scheduler) stop() {
	if s.armed {
		s.timer.Stop()
		s.armed = false
	}
}
