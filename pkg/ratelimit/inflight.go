package ratelimit

import "sync"

// InFlightLimiter limits concurrent "in-flight" operations.
//
// max <= 0 means unlimited. It is safe for concurrent use.
type InFlightLimiter struct {
	mu       sync.Mutex
	inFlight int
	max      int
}

func NewInFlightLimiter(max int) *InFlightLimiter {
	return &InFlightLimiter{max: max}
}

func (l *InFlightLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// TryAcquire increments the in-flight counter if under the limit.
func (l *InFlightLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max > 0 && l.inFlight >= l.max {
		return false
	}
	l.inFlight++
	return true
}

// Release clamps at 0.
func (l *InFlightLimiter) Release() {
	l.mu.Lock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.mu.Unlock()
}
