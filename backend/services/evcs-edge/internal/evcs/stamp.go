package evcs

import (
	"sync"
	"time"
)

// ChargeSessionStamp marks the instant and meter reading at which a charge
// session started or ended.
type ChargeSessionStamp struct {
	mu     sync.RWMutex
	time   time.Time
	energy int64
	set    bool
}

// Set records t and the meter reading energy in Wh.
func (s *ChargeSessionStamp) Set(t time.Time, energy int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.time = t.UTC()
	s.energy = energy
	s.set = true
}

// Time returns the recorded instant; zero when unset.
func (s *ChargeSessionStamp) Time() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.time
}

// Energy returns the recorded meter reading in Wh.
func (s *ChargeSessionStamp) Energy() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.energy
}

// IsSet reports whether the stamp was recorded.
func (s *ChargeSessionStamp) IsSet() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}
