package convflux

import (
	"context"
	"fmt"
	"log"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/convflux/internal/parallel"
	"github.com/viant/convflux/model/layer"
	"github.com/viant/convflux/progress"
	"github.com/viant/convflux/service/event"
	"github.com/viant/convflux/service/loader"
	"github.com/viant/convflux/service/messaging"
	"github.com/viant/convflux/service/pool"
	"github.com/viant/convflux/service/scheduler"
	"github.com/viant/convflux/service/source"
	"github.com/viant/convflux/tracing"
)

const (
	serviceName    = "convflux"
	serviceVersion = "0.1.0"
)

// Service wires the source, worker pool and scheduler.
type Service struct {
	config    *Config
	fs        afs.Service
	fsOptions []storage.Option
	layer     *layer.Layer
	source    source.Source
	observers []event.Observer
	handlers  []event.Handler
	tracker   *progress.Tracker
	logf      func(format string, args ...interface{})

	pool      *pool.Service
	scheduler *scheduler.Service
}

// New builds the service, starts the worker pool, loads the layer into every
// worker and leaves the scheduler Idle.
func New(ctx context.Context, options ...Option) (*Service, error) {
	s := &Service{logf: log.Printf}
	for _, opt := range options {
		opt(s)
	}
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	if s.tracker == nil {
		if tracker, ok := progress.FromContext(ctx); ok {
			s.tracker = tracker
		} else {
			s.tracker = progress.NewTracker()
		}
	}
	if s.config.Tracing.Enabled {
		if err := tracing.Init(serviceName, serviceVersion, s.config.Tracing.Output); err != nil {
			return nil, fmt.Errorf("failed to init tracing: %w", err)
		}
	}
	if err := s.ensureLayer(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureSource(ctx); err != nil {
		return nil, err
	}
	if err := s.startPool(ctx); err != nil {
		return nil, err
	}
	schedulerOptions := []scheduler.Option{
		scheduler.WithConfig(s.config.Scheduler),
		scheduler.WithLayer(s.layer),
		scheduler.WithSource(s.source),
		scheduler.WithPool(s.pool),
		scheduler.WithTracker(s.tracker),
		scheduler.WithObservers(s.observers...),
		scheduler.WithHandlers(s.handlers...),
		scheduler.WithLogger(s.logf),
	}
	if s.config.Parallel {
		schedulerOptions = append(schedulerOptions, scheduler.WithParallel(parallel.DefaultConfig()))
	}
	var err error
	if s.scheduler, err = scheduler.New(ctx, schedulerOptions...); err != nil {
		s.pool.Shutdown()
		return nil, err
	}
	return s, nil
}

func (s *Service) ensureLayer(ctx context.Context) error {
	if s.layer != nil {
		return s.layer.Validate()
	}
	if s.config.Model.URL == "" {
		return fmt.Errorf("model.url is required when no layer is supplied")
	}
	net, err := loader.New(s.fs).LoadNet(ctx, s.config.Model.URL, s.fsOptions...)
	if err != nil {
		return err
	}
	s.layer, err = net.ConvLayer(s.config.Model.Layer)
	return err
}

func (s *Service) ensureSource(ctx context.Context) error {
	if s.source != nil {
		return nil
	}
	data := s.config.Data
	var err error
	if data.ImageURL != "" {
		imageConfig := source.ImageConfig{Dimension: data.Dimension, Channels: data.Channels}
		s.source, err = source.LoadImageBatch(ctx, s.fs, data.ImageURL, data.LabelsURL, imageConfig, s.fsOptions...)
		return err
	}
	inDepth := s.layer.InDepth
	if inDepth == 0 && len(s.layer.Filters) > 0 {
		inDepth = s.layer.Filters[0].Depth
	}
	s.source, err = source.NewRandomBatch(data.RandomSamples, data.Dimension, data.Dimension, inDepth, data.Classes, data.Seed)
	return err
}

func (s *Service) startPool(ctx context.Context) error {
	mailbox := s.config.Pool.MailboxSize
	// a worker may hold every in-flight request plus its start message
	if minimum := s.config.Scheduler.MaxInFlight + 1; mailbox < minimum {
		mailbox = minimum
	}
	options := []pool.Option{
		pool.WithWorkers(s.config.Pool.Workers),
		pool.WithMailboxSize(mailbox),
		pool.WithVendor(messaging.Vendor(s.config.Pool.Vendor), s.config.Pool.QueuePath),
		pool.WithFS(s.fs),
	}
	if s.config.Parallel {
		options = append(options, pool.WithParallel(parallel.DefaultConfig()))
	}
	var err error
	if s.pool, err = pool.New(options...); err != nil {
		return err
	}
	if err = s.pool.Start(ctx); err != nil {
		return err
	}
	if err = s.pool.LoadLayer(ctx, s.layer); err != nil {
		s.pool.Shutdown()
		return err
	}
	return nil
}

// Start resumes intake under the current strategy
func (s *Service) Start() error {
	return s.scheduler.Start()
}

// Pause stops intake; outstanding requests still complete
func (s *Service) Pause() error {
	return s.scheduler.Pause()
}

// SetStrategy selects the worker pool (true) or in-process (false) strategy
func (s *Service) SetStrategy(useWorkers bool) error {
	return s.scheduler.SetStrategy(useWorkers)
}

// Stats returns a snapshot of the scheduler counters
func (s *Service) Stats() (scheduler.Stats, error) {
	return s.scheduler.Stats()
}

// Reset rewinds the source and clears the counters
func (s *Service) Reset() error {
	return s.scheduler.Reset()
}

// Observe registers an observer for subsequently delivered results
func (s *Service) Observe(observer event.Observer) {
	s.scheduler.Observe(observer)
}

// Flush blocks until every delivered result has reached the observers
func (s *Service) Flush() {
	s.scheduler.Flush()
}

// Tracker returns the latency and accuracy counters
func (s *Service) Tracker() *progress.Tracker {
	return s.tracker
}

// Layer returns the conv layer being evaluated
func (s *Service) Layer() *layer.Layer {
	return s.layer
}

// Config returns the effective configuration
func (s *Service) Config() *Config {
	return s.config
}

// Handled returns the number of messages each worker has processed, start
// messages included.
func (s *Service) Handled() []int64 {
	workers := s.pool.Workers()
	ret := make([]int64, len(workers))
	for i, w := range workers {
		ret[i] = w.Handled()
	}
	return ret
}

// Close stops the scheduler and the worker pool
func (s *Service) Close() {
	s.scheduler.Close()
	s.pool.Shutdown()
}
