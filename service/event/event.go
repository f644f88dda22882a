// Package event delivers completed forward passes to observers. Publishing
// never blocks the caller: events are buffered without bound and handed to
// observers, in publish order, from a dedicated goroutine.
package event

import (
	"time"

	"github.com/viant/convflux/model/sample"
	"github.com/viant/convflux/model/volume"
)

// Event describes one delivered result.
type Event struct {
	Sample    *sample.Sample `json:"sample"`
	Result    *volume.Volume `json:"result"`
	Latency   time.Duration  `json:"latency"`
	WorkerID  int            `json:"workerID"` // -1 for in-process computation
	Async     bool           `json:"async"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(s *sample.Sample, result *volume.Volume, latency time.Duration, workerID int) *Event {
	return &Event{
		Sample:    s,
		Result:    result,
		Latency:   latency,
		WorkerID:  workerID,
		Async:     workerID >= 0,
		CreatedAt: time.Now(),
	}
}

// Observer receives a sample together with its forward result.
type Observer func(s *sample.Sample, result *volume.Volume)

// Handler receives the full event.
type Handler func(e *Event)

// AsHandler adapts an observer to a handler.
func (o Observer) AsHandler() Handler {
	return func(e *Event) {
		o(e.Sample, e.Result)
	}
}
