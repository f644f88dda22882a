package scheduler

import (
	"time"

	"github.com/viant/convflux/internal/parallel"
	"github.com/viant/convflux/model/layer"
	"github.com/viant/convflux/progress"
	"github.com/viant/convflux/service/event"
	"github.com/viant/convflux/service/source"
)

// Option configures the scheduler Service.
type Option func(*Service)

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithMaxInFlight bounds outstanding async requests
func WithMaxInFlight(max int) Option {
	return func(s *Service) {
		s.config.MaxInFlight = max
	}
}

// WithRequestTimeout sets the per-request deadline; zero disables it
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.config.RequestTimeout = timeout
	}
}

// WithAsync selects the initial strategy
func WithAsync(async bool) Option {
	return func(s *Service) {
		s.config.Async = async
	}
}

// WithLayer sets the layer used by the sync strategy
func WithLayer(l *layer.Layer) Option {
	return func(s *Service) {
		s.layer = l
	}
}

// WithSource sets the sample source
func WithSource(src source.Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithPool sets the worker pool used by the async strategy
func WithPool(pool Pool) Option {
	return func(s *Service) {
		s.pool = pool
	}
}

// WithTracker sets the instrumentation counters
func WithTracker(tracker *progress.Tracker) Option {
	return func(s *Service) {
		s.tracker = tracker
	}
}

// WithObservers registers result observers
func WithObservers(observers ...event.Observer) Option {
	return func(s *Service) {
		for _, o := range observers {
			s.handlers = append(s.handlers, o.AsHandler())
		}
	}
}

// WithHandlers registers event handlers
func WithHandlers(handlers ...event.Handler) Option {
	return func(s *Service) {
		s.handlers = append(s.handlers, handlers...)
	}
}

// WithLogger replaces log.Printf as the diagnostic sink
func WithLogger(logf func(format string, args ...interface{})) Option {
	return func(s *Service) {
		s.logf = logf
	}
}

// WithParallel splits the sync kernel across goroutines
func WithParallel(cfg parallel.Config) Option {
	return func(s *Service) {
		s.parallel = &cfg
	}
}

// WithIDGenerator overrides correlation id generation
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}
