package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/viant/convflux/internal/clock"
	"github.com/viant/convflux/internal/idgen"
	"github.com/viant/convflux/internal/parallel"
	"github.com/viant/convflux/kernel"
	"github.com/viant/convflux/model/layer"
	"github.com/viant/convflux/model/sample"
	"github.com/viant/convflux/model/volume"
	"github.com/viant/convflux/progress"
	"github.com/viant/convflux/service/event"
	"github.com/viant/convflux/service/inflight"
	"github.com/viant/convflux/service/protocol"
	"github.com/viant/convflux/service/source"
	"github.com/viant/convflux/tracing"
)

var (
	// ErrClosed is returned by methods called after Close.
	ErrClosed = errors.New("scheduler: closed")
	// ErrNoPool is returned when the async strategy is requested without a pool.
	ErrNoPool = errors.New("scheduler: no worker pool")
)

// Config represents scheduler configuration
type Config struct {
	// MaxInFlight bounds outstanding async requests
	MaxInFlight int `json:"maxInFlight" yaml:"maxInFlight"`
	// RequestTimeout fails a request with no response in time; zero disables it
	RequestTimeout time.Duration `json:"requestTimeout" yaml:"requestTimeout"`
	// Async selects the worker pool strategy at start-up
	Async bool `json:"async" yaml:"async"`
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{MaxInFlight: 4}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.MaxInFlight < 1 {
		return fmt.Errorf("scheduler: max in-flight must be positive: %d", c.MaxInFlight)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("scheduler: request timeout must not be negative: %v", c.RequestTimeout)
	}
	return nil
}

// Pool accepts forward requests and reports their completion.
type Pool interface {
	Submit(ctx context.Context, id string, v *volume.Volume) (int, error)
	Responses() <-chan *protocol.Response
}

type commandKind int

const (
	commandStart commandKind = iota
	commandPause
	commandStrategy
	commandStats
	commandReset
)

type command struct {
	kind  commandKind
	async bool
	reply chan reply
}

type reply struct {
	stats Stats
	err   error
}

// Service runs the forward-pass loop
type Service struct {
	config   Config
	layer    *layer.Layer
	source   source.Source
	pool     Pool
	tracker  *progress.Tracker
	handlers []event.Handler
	logf     func(format string, args ...interface{})
	parallel *parallel.Config
	newID    func() string

	events    *event.Dispatcher
	ctx       context.Context
	cancelFn  context.CancelFunc
	commands  chan command
	timeouts  chan string
	done      chan struct{}
	closeOnce sync.Once

	// owned by the driver goroutine
	running   bool
	async     bool
	switching bool
	table     *inflight.Table
	responses <-chan *protocol.Response
	seq       uint64
	produced  uint64
	delivered uint64
	failed    uint64
	discarded uint64
}

// New creates a scheduler and starts its driver goroutine in the Idle state.
// When no tracker option is given the tracker carried by ctx is used.
func New(ctx context.Context, options ...Option) (*Service, error) {
	s := &Service{
		config: DefaultConfig(),
		logf:   log.Printf,
		newID:  idgen.New,
	}
	for _, opt := range options {
		opt(s)
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if s.source == nil {
		return nil, fmt.Errorf("scheduler: source is required")
	}
	if err := s.layer.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if s.config.Async && s.pool == nil {
		return nil, ErrNoPool
	}
	if s.tracker == nil {
		if tracker, ok := progress.FromContext(ctx); ok {
			s.tracker = tracker
		} else {
			s.tracker = progress.NewTracker()
		}
	}
	s.async = s.config.Async
	s.table = inflight.New(s.config.MaxInFlight)
	if s.pool != nil {
		s.responses = s.pool.Responses()
	}
	s.events = event.NewDispatcher(s.handlers...)
	s.ctx, s.cancelFn = context.WithCancel(ctx)
	s.commands = make(chan command)
	s.timeouts = make(chan string)
	s.done = make(chan struct{})
	go s.run()
	return s, nil
}

// Start resumes intake under the current strategy
func (s *Service) Start() error {
	_, err := s.call(command{kind: commandStart})
	return err
}

// Pause stops intake; outstanding requests still complete and are delivered
func (s *Service) Pause() error {
	_, err := s.call(command{kind: commandPause})
	return err
}

// SetStrategy selects the worker pool (true) or in-process (false) strategy
func (s *Service) SetStrategy(useWorkers bool) error {
	_, err := s.call(command{kind: commandStrategy, async: useWorkers})
	return err
}

// Stats returns a snapshot of the scheduler counters
func (s *Service) Stats() (Stats, error) {
	return s.call(command{kind: commandStats})
}

// Reset rewinds the source and clears the counters
func (s *Service) Reset() error {
	_, err := s.call(command{kind: commandReset})
	return err
}

// Observe registers an observer for subsequently delivered results
func (s *Service) Observe(observer event.Observer) {
	s.events.Observe(observer)
}

// Tracker returns the instrumentation counters
func (s *Service) Tracker() *progress.Tracker {
	return s.tracker
}

// Flush blocks until every delivered result has reached the observers
func (s *Service) Flush() {
	s.events.Flush()
}

// Close stops the driver and delivers pending events. Outstanding requests are
// abandoned.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.cancelFn()
		<-s.done
		s.events.Close()
	})
}

func (s *Service) call(cmd command) (Stats, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case s.commands <- cmd:
	case <-s.done:
		return Stats{}, ErrClosed
	}
	select {
	case r := <-cmd.reply:
		return r.stats, r.err
	case <-s.done:
		return Stats{}, ErrClosed
	}
}

func (s *Service) run() {
	defer close(s.done)
	defer s.abandon()
	for {
		if s.canProduce() {
			select {
			case <-s.ctx.Done():
				return
			case cmd := <-s.commands:
				s.handle(cmd)
			case response, ok := <-s.responses:
				s.onResponse(response, ok)
			case id := <-s.timeouts:
				s.onTimeout(id)
			default:
				s.step()
			}
			continue
		}
		select {
		case <-s.ctx.Done():
			return
		case cmd := <-s.commands:
			s.handle(cmd)
		case response, ok := <-s.responses:
			s.onResponse(response, ok)
		case id := <-s.timeouts:
			s.onTimeout(id)
		}
	}
}

// abandon drops outstanding requests when the driver exits.
func (s *Service) abandon() {
	if ids := s.table.IDs(); len(ids) > 0 {
		s.logf("scheduler: abandoning %d outstanding requests: %v", len(ids), ids)
	}
	s.table.Clear()
}

func (s *Service) canProduce() bool {
	if !s.running || s.switching {
		return false
	}
	return !s.async || !s.table.Full()
}

func (s *Service) state() State {
	switch {
	case s.running && s.switching:
		return Draining
	case s.running && s.async:
		return RunningAsync
	case s.running:
		return RunningSync
	case !s.table.Empty():
		return Draining
	}
	return Idle
}

func (s *Service) stats() Stats {
	return Stats{
		State:     s.state(),
		Running:   s.running,
		Async:     s.async,
		InFlight:  s.table.Len(),
		Max:       s.table.Max(),
		Produced:  s.produced,
		Delivered: s.delivered,
		Failed:    s.failed,
		Discarded: s.discarded,
	}
}

func (s *Service) handle(cmd command) {
	var err error
	switch cmd.kind {
	case commandStart:
		s.running = true
	case commandPause:
		s.running = false
	case commandStrategy:
		err = s.setStrategy(cmd.async)
	case commandReset:
		s.source.Reset()
		s.tracker.Reset()
		s.produced = uint64(s.table.Len())
		s.delivered, s.failed, s.discarded = 0, 0, 0
	}
	cmd.reply <- reply{stats: s.stats(), err: err}
}

func (s *Service) setStrategy(async bool) error {
	if async == s.async {
		return nil
	}
	if async {
		if s.pool == nil {
			return ErrNoPool
		}
		s.switching = false
	} else {
		s.switching = !s.table.Empty()
	}
	s.async = async
	return nil
}

func (s *Service) step() {
	if s.async {
		s.submitNext()
		return
	}
	s.computeNext()
}

func (s *Service) nextSample() (*sample.Sample, bool) {
	smp, err := s.source.Next()
	if err != nil {
		s.logf("scheduler: source failed, pausing: %v", err)
		s.running = false
		return nil, false
	}
	s.seq++
	smp.Seq = s.seq
	s.produced++
	return smp, true
}

func (s *Service) submitNext() {
	smp, ok := s.nextSample()
	if !ok {
		return
	}
	id := s.newID()
	entry := &inflight.Entry{ID: id, Sample: smp, SubmittedAt: clock.Now()}
	if err := s.table.Add(entry); err != nil {
		s.failed++
		s.logf("scheduler: failed to register sample %d: %v", smp.Seq, err)
		return
	}
	if timeout := s.config.RequestTimeout; timeout > 0 {
		entry.Timer = time.AfterFunc(timeout, func() { s.expire(id) })
	}
	if _, err := s.pool.Submit(s.ctx, id, smp.Volume); err != nil {
		s.table.Take(id)
		if s.ctx.Err() != nil {
			return
		}
		s.failed++
		s.logf("scheduler: failed to submit %v: %v", id, err)
		s.settle()
	}
}

func (s *Service) computeNext() {
	smp, ok := s.nextSample()
	if !ok {
		return
	}
	_, span := tracing.StartSpan(s.ctx, "scheduler.forward", tracing.KindInternal)
	stopwatch := clock.Start()
	var result *volume.Volume
	var err error
	if s.parallel != nil {
		result, err = kernel.ForwardParallel(smp.Volume, s.layer, *s.parallel)
	} else {
		result, err = kernel.Forward(smp.Volume, s.layer)
	}
	elapsed := stopwatch.Stop()
	tracing.EndSpan(span, err)
	if err != nil {
		s.failed++
		s.logf("scheduler: forward of sample %d failed: %v", smp.Seq, err)
		return
	}
	s.deliver(smp, result, elapsed, -1)
}

func (s *Service) onResponse(response *protocol.Response, ok bool) {
	if !ok {
		s.logf("scheduler: worker pool closed its response channel")
		s.responses = nil
		return
	}
	switch response.Kind {
	case protocol.KindLog:
		if entry, ok := s.table.Get(response.ID); ok {
			s.logf("worker %d: %s [%v after %v]", response.WorkerID, response.Text, response.ID, entry.Elapsed(clock.Now()))
			return
		}
		s.logf("worker %d: %s [%v]", response.WorkerID, response.Text, response.ID)
		return
	case protocol.KindResult, protocol.KindFault:
	default:
		s.logf("scheduler: unexpected %v message from worker %d", response.Kind, response.WorkerID)
		return
	}
	entry, found := s.table.Take(response.ID)
	if !found {
		s.discarded++
		s.logf("scheduler: discarding %v for unknown or expired request %v", response.Kind, response.ID)
		return
	}
	if err := response.Err(); err != nil {
		s.failed++
		s.logf("scheduler: request %v failed on worker %d: %v", response.ID, response.WorkerID, err)
	} else {
		s.deliver(entry.Sample, response.Volume, clock.Since(entry.SubmittedAt), response.WorkerID)
	}
	s.settle()
}

// expire runs on a timer goroutine and hands the id to the driver.
func (s *Service) expire(id string) {
	select {
	case s.timeouts <- id:
	case <-s.done:
	}
}

func (s *Service) onTimeout(id string) {
	entry, ok := s.table.Take(id)
	if !ok {
		return
	}
	s.failed++
	s.logf("scheduler: %v: request %v after %v", protocol.ErrTimeout, id, entry.Elapsed(clock.Now()))
	s.settle()
}

// settle completes a pending strategy switch once the pool has drained.
func (s *Service) settle() {
	if s.switching && s.table.Empty() {
		s.switching = false
	}
}

func (s *Service) deliver(smp *sample.Sample, result *volume.Volume, latency time.Duration, workerID int) {
	s.delivered++
	s.tracker.Latency.Record(latency)
	if smp.Label >= 0 {
		s.tracker.Accuracy.Record(smp.Correct(result))
	}
	if err := s.events.Publish(event.NewEvent(smp, result, latency, workerID)); err != nil {
		s.logf("scheduler: failed to publish result of sample %d: %v", smp.Seq, err)
	}
}
