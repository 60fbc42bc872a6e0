package services

import "time"

// Equalizer pads failed authentication attempts to a minimum wall-clock
// duration so a caller cannot distinguish "unknown user" from "wrong
// password" by measuring response latency.
type Equalizer struct {
	MinResponseTime time.Duration
}

// NewEqualizer creates an equalizer with the given floor. A zero or
// negative floor disables padding, which is useful in tests.
func NewEqualizer(min time.Duration) *Equalizer {
	return &Equalizer{MinResponseTime: min}
}

// Wait sleeps until at least MinResponseTime has elapsed since start.
// Call it on every failure path of an authentication attempt.
func (e *Equalizer) Wait(start time.Time) {
	if e == nil || e.MinResponseTime <= 0 {
		return
	}
	elapsed := time.Since(start)
	if elapsed < e.MinResponseTime {
		time.Sleep(e.MinResponseTime - elapsed)
	}
}
