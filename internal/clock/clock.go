// Package clock centralises time lookups so timers and latency measurements
// can be made deterministic in tests.
package clock

import "time"

// NowFunc returns current time. Override in tests for determinism.
var NowFunc = time.Now

// Now is a thin wrapper around NowFunc.
func Now() time.Time { return NowFunc() }

// Since returns the time elapsed since t according to NowFunc.
func Since(t time.Time) time.Duration { return NowFunc().Sub(t) }

// Stopwatch measures the latency of one request.
type Stopwatch struct {
	started time.Time
	stopped time.Time
}

// Start returns a running stopwatch.
func Start() *Stopwatch {
	return &Stopwatch{started: Now()}
}

// Stop freezes the stopwatch and returns the elapsed time. Subsequent calls
// return the same value.
func (s *Stopwatch) Stop() time.Duration {
	if s.stopped.IsZero() {
		s.stopped = Now()
	}
	return s.stopped.Sub(s.started)
}

// Started returns the start instant.
func (s *Stopwatch) Started() time.Time {
	return s.started
}
