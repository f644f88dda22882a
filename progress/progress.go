package progress

import (
	"context"
	"sync"
	"time"
)

// LatencyStats is a point-in-time copy of a Latency counter.
type LatencyStats struct {
	Count int
	Total time.Duration
	Max   time.Duration
}

// Mean returns Total/Count, or zero when nothing was recorded.
func (s LatencyStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Latency accumulates elapsed times. It is safe for concurrent use.
type Latency struct {
	mu       sync.Mutex
	stats    LatencyStats
	onChange func(LatencyStats)
}

// Record adds one measurement. The OnChange callback, if any, runs outside
// the critical section with a copy of the updated counters.
func (l *Latency) Record(elapsed time.Duration) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.stats.Count++
	l.stats.Total += elapsed
	if elapsed > l.stats.Max {
		l.stats.Max = elapsed
	}
	snapshot, cb := l.stats, l.onChange
	l.mu.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}

// Reset clears all measurements.
func (l *Latency) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.stats = LatencyStats{}
	l.mu.Unlock()
}

// Mean returns the average recorded latency.
func (l *Latency) Mean() time.Duration {
	return l.Snapshot().Mean()
}

// Snapshot returns a copy of the counters.
func (l *Latency) Snapshot() LatencyStats {
	if l == nil {
		return LatencyStats{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// OnChange registers a callback invoked after every Record; nil disables it.
func (l *Latency) OnChange(cb func(LatencyStats)) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.onChange = cb
	l.mu.Unlock()
}

// AccuracyStats is a point-in-time copy of an Accuracy counter.
type AccuracyStats struct {
	Count   int
	Correct int
}

// Ratio returns Correct/Count, or zero when nothing was recorded.
func (s AccuracyStats) Ratio() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Count)
}

// Accuracy counts predictions and how many of them were correct. It is safe
// for concurrent use.
type Accuracy struct {
	mu       sync.Mutex
	stats    AccuracyStats
	onChange func(AccuracyStats)
}

// Record adds one prediction outcome.
func (a *Accuracy) Record(correct bool) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.stats.Count++
	if correct {
		a.stats.Correct++
	}
	snapshot, cb := a.stats, a.onChange
	a.mu.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}

// Reset clears all outcomes.
func (a *Accuracy) Reset() {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.stats = AccuracyStats{}
	a.mu.Unlock()
}

// Ratio returns the fraction of correct predictions.
func (a *Accuracy) Ratio() float64 {
	return a.Snapshot().Ratio()
}

// Snapshot returns a copy of the counters.
func (a *Accuracy) Snapshot() AccuracyStats {
	if a == nil {
		return AccuracyStats{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// OnChange registers a callback invoked after every Record; nil disables it.
func (a *Accuracy) OnChange(cb func(AccuracyStats)) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.onChange = cb
	a.mu.Unlock()
}

// Tracker bundles the counters fed by one scheduler.
type Tracker struct {
	StartedAt time.Time
	Latency   Latency
	Accuracy  Accuracy
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{StartedAt: time.Now()}
}

// Reset clears both counters.
func (t *Tracker) Reset() {
	if t == nil {
		return
	}
	t.Latency.Reset()
	t.Accuracy.Reset()
}

// ----------------------------------------------------------------------------
// Context helpers
// ----------------------------------------------------------------------------

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithTracker embeds tracker in a derived context.
func WithTracker(ctx context.Context, tracker *Tracker) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, trackerKey, tracker)
}

// WithNewTracker creates a tracker, embeds it in a derived context and
// returns both.
func WithNewTracker(ctx context.Context) (context.Context, *Tracker) {
	tr := NewTracker()
	return WithTracker(ctx, tr), tr
}

// FromContext extracts the tracker from ctx.
func FromContext(ctx context.Context) (*Tracker, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Tracker)
	return tr, ok
}
