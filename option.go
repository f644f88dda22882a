package convflux

import (
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/convflux/model/layer"
	"github.com/viant/convflux/progress"
	"github.com/viant/convflux/service/event"
	"github.com/viant/convflux/service/source"
	"github.com/viant/convflux/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures the Service.
type Option func(s *Service)

// WithConfig sets the service configuration
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithLayer sets the conv layer, bypassing the model loader
func WithLayer(l *layer.Layer) Option {
	return func(s *Service) {
		s.layer = l
	}
}

// WithSource sets the sample source, bypassing the data config
func WithSource(src source.Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithFS sets the storage service used to load models, samples and queues
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithFsOptions sets storage options passed on every download (e.g. an embed.FS)
func WithFsOptions(options ...storage.Option) Option {
	return func(s *Service) {
		s.fsOptions = options
	}
}

// WithObservers registers result observers
func WithObservers(observers ...event.Observer) Option {
	return func(s *Service) {
		s.observers = append(s.observers, observers...)
	}
}

// WithHandlers registers event handlers
func WithHandlers(handlers ...event.Handler) Option {
	return func(s *Service) {
		s.handlers = append(s.handlers, handlers...)
	}
}

// WithTracker sets the instrumentation counters
func WithTracker(tracker *progress.Tracker) Option {
	return func(s *Service) {
		s.tracker = tracker
	}
}

// WithLogger replaces log.Printf as the diagnostic sink
func WithLogger(logf func(format string, args ...interface{})) Option {
	return func(s *Service) {
		s.logf = logf
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path. The first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter, for example
// OTLP, Jaeger or Zipkin. The first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
