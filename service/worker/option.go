package worker

import (
	"time"

	"github.com/viant/convflux/internal/parallel"
)

// Option configures a Worker.
type Option func(*Worker)

// WithParallel runs the kernel with the supplied parallel configuration.
func WithParallel(cfg parallel.Config) Option {
	return func(w *Worker) {
		w.parallel = &cfg
	}
}

// WithRetryDelay sets the back-off applied after a transient consume error.
func WithRetryDelay(delay time.Duration) Option {
	return func(w *Worker) {
		w.retryDelay = delay
	}
}
