package scheduler

// State represents the scheduler lifecycle.
type State int

const (
	// Idle means intake is stopped and nothing is outstanding.
	Idle State = iota
	// RunningSync computes samples in process.
	RunningSync
	// RunningAsync submits samples to the worker pool.
	RunningAsync
	// Draining means intake is stopped until outstanding requests complete.
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RunningSync:
		return "running-sync"
	case RunningAsync:
		return "running-async"
	case Draining:
		return "draining"
	}
	return "unknown"
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	State     State
	Running   bool
	Async     bool
	InFlight  int
	Max       int
	Produced  uint64
	Delivered uint64
	Failed    uint64
	Discarded uint64
}
