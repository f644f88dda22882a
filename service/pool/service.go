package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sync"
	"sync/atomic"

	"github.com/viant/afs"
	"github.com/viant/convflux/internal/idgen"
	"github.com/viant/convflux/internal/parallel"
	"github.com/viant/convflux/model/layer"
	"github.com/viant/convflux/model/volume"
	"github.com/viant/convflux/service/messaging"
	"github.com/viant/convflux/service/messaging/fs"
	"github.com/viant/convflux/service/messaging/memory"
	"github.com/viant/convflux/service/protocol"
	"github.com/viant/convflux/service/worker"
	"github.com/viant/convflux/tracing"
)

var (
	// ErrNotStarted is returned when the pool is used before Start.
	ErrNotStarted = errors.New("pool: not started")
	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("pool: already started")
)

// Config represents pool configuration
type Config struct {
	// WorkerCount is the number of compute workers
	WorkerCount int
	// MailboxSize bounds every worker inbox
	MailboxSize int
	// CompletionBuffer bounds the shared completion queue and response channel
	CompletionBuffer int
	// Vendor selects the transport (memory or fs)
	Vendor messaging.Vendor
	// BasePath is the root location of fs queues
	BasePath string
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount:      4,
		MailboxSize:      64,
		CompletionBuffer: 64,
		Vendor:           messaging.VendorMemory,
		BasePath:         fs.DefaultConfig().BasePath,
	}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("pool: worker count must be positive: %d", c.WorkerCount)
	}
	if c.MailboxSize < 1 {
		return fmt.Errorf("pool: mailbox size must be positive: %d", c.MailboxSize)
	}
	switch c.Vendor {
	case messaging.VendorMemory:
	case messaging.VendorFS:
		if c.BasePath == "" {
			return fmt.Errorf("pool: base path is required for %v vendor", c.Vendor)
		}
	default:
		return fmt.Errorf("pool: unsupported vendor: %v", c.Vendor)
	}
	return nil
}

// Service manages the compute workers
type Service struct {
	config    Config
	fs        afs.Service
	parallel  *parallel.Config
	members   []*member
	outbox    messaging.Queue[protocol.Response]
	responses chan *protocol.Response
	starts    sync.Map
	next      int

	mu        sync.Mutex
	started   bool
	stopped   bool
	workerWg  sync.WaitGroup
	relayDone chan struct{}
	cancelFn  context.CancelFunc
}

type member struct {
	worker   *worker.Worker
	inbox    messaging.Queue[protocol.Request]
	pending  atomic.Int64
	cancelFn context.CancelFunc
}

// New creates a pool with its workers and queues; workers run after Start.
func New(options ...Option) (*Service, error) {
	s := &Service{config: DefaultConfig()}
	for _, opt := range options {
		opt(s)
	}
	if s.config.CompletionBuffer <= 0 {
		s.config.CompletionBuffer = DefaultConfig().CompletionBuffer
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	runPath := path.Join(s.config.BasePath, idgen.New())
	var err error
	if s.outbox, err = newQueue[protocol.Response](s, path.Join(runPath, "completions"), s.config.CompletionBuffer); err != nil {
		return nil, err
	}
	var workerOptions []worker.Option
	if s.parallel != nil {
		workerOptions = append(workerOptions, worker.WithParallel(*s.parallel))
	}
	for i := 0; i < s.config.WorkerCount; i++ {
		inbox, err := newQueue[protocol.Request](s, path.Join(runPath, fmt.Sprintf("worker-%d", i)), s.config.MailboxSize)
		if err != nil {
			return nil, err
		}
		s.members = append(s.members, &member{
			worker: worker.New(i, inbox, s.outbox, workerOptions...),
			inbox:  inbox,
		})
	}
	s.responses = make(chan *protocol.Response, s.config.CompletionBuffer)
	return s, nil
}

func newQueue[T any](s *Service, basePath string, buffer int) (messaging.Queue[T], error) {
	if s.config.Vendor == messaging.VendorFS {
		cfg := fs.DefaultConfig()
		cfg.BasePath = basePath
		return fs.NewQueue[T](s.fs, cfg)
	}
	cfg := memory.DefaultConfig()
	cfg.QueueBuffer = buffer
	return memory.NewQueue[T](cfg), nil
}

// Start launches worker goroutines and the completion relay
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	for _, m := range s.members {
		workerCtx, cancel := context.WithCancel(ctx)
		m.cancelFn = cancel
		s.workerWg.Add(1)
		go func(m *member) {
			defer s.workerWg.Done()
			if err := m.worker.Run(workerCtx); err != nil {
				log.Printf("pool: worker %d stopped: %v", m.worker.ID(), err)
			}
		}(m)
	}
	relayCtx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.relayDone = make(chan struct{})
	go s.relay(relayCtx)
	return nil
}

// relay moves worker responses to the response channel and keeps the
// per-worker load accounting current.
func (s *Service) relay(ctx context.Context) {
	defer close(s.relayDone)
	defer close(s.responses)
	for {
		msg, err := s.outbox.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("pool: failed to consume completion: %v", err)
			continue
		}
		response := *msg.T()
		if err = msg.Ack(); err != nil {
			log.Printf("pool: failed to ack completion %v: %v", msg.ID(), err)
		}
		if _, isStart := s.starts.LoadAndDelete(response.ID); !isStart && response.Terminal() {
			if response.WorkerID >= 0 && response.WorkerID < len(s.members) {
				s.members[response.WorkerID].pending.Add(-1)
			}
		}
		select {
		case s.responses <- &response:
		case <-ctx.Done():
			return
		}
	}
}

// Responses returns the channel carrying every worker response. It is closed
// after Shutdown.
func (s *Service) Responses() <-chan *protocol.Response {
	return s.responses
}

// Size returns the number of workers
func (s *Service) Size() int {
	return len(s.members)
}

// Pending returns the outstanding forward requests per worker
func (s *Service) Pending() []int {
	ret := make([]int, len(s.members))
	for i, m := range s.members {
		ret[i] = int(m.pending.Load())
	}
	return ret
}

// Workers returns the pool workers
func (s *Service) Workers() []*worker.Worker {
	ret := make([]*worker.Worker, len(s.members))
	for i, m := range s.members {
		ret[i] = m.worker
	}
	return ret
}

// LoadLayer sends a start message carrying a copy of l to every worker.
func (s *Service) LoadLayer(ctx context.Context, l *layer.Layer) error {
	if !s.isRunning() {
		return ErrNotStarted
	}
	if err := l.Validate(); err != nil {
		return err
	}
	for _, m := range s.members {
		id := idgen.New()
		s.starts.Store(id, m.worker.ID())
		if err := m.inbox.Publish(ctx, protocol.NewStart(id, l.Clone())); err != nil {
			s.starts.Delete(id)
			return fmt.Errorf("pool: failed to load layer into worker %d: %w", m.worker.ID(), err)
		}
	}
	return nil
}

// Submit sends a forward request with correlation id to the least loaded
// worker and returns that worker's id. v is copied before it is queued.
func (s *Service) Submit(ctx context.Context, id string, v *volume.Volume) (workerID int, err error) {
	if !s.isRunning() {
		return -1, ErrNotStarted
	}
	_, span := tracing.StartSpan(ctx, "pool.submit", tracing.KindProducer)
	defer func() { tracing.EndSpan(span, err) }()

	m := s.leastLoaded()
	span.WithAttributes(map[string]string{"request.id": id}).WithInt("worker.id", m.worker.ID())
	m.pending.Add(1)
	if err = m.publish(ctx, protocol.NewForward(id, v.Clone())); err != nil {
		m.pending.Add(-1)
		return -1, fmt.Errorf("pool: failed to submit %v to worker %d: %w", id, m.worker.ID(), err)
	}
	return m.worker.ID(), nil
}

// tryPublisher is implemented by queues that can reject a message instead of
// blocking on a full buffer.
type tryPublisher interface {
	TryPublish(request *protocol.Request) error
}

// publish queues request without blocking when the mailbox supports it, so a
// full mailbox surfaces as messaging.ErrQueueFull.
func (m *member) publish(ctx context.Context, request *protocol.Request) error {
	if q, ok := m.inbox.(tryPublisher); ok {
		return q.TryPublish(request)
	}
	return m.inbox.Publish(ctx, request)
}

// leastLoaded picks the worker with the fewest pending requests, rotating the
// starting point so that ties are spread evenly.
func (s *Service) leastLoaded() *member {
	s.mu.Lock()
	start := s.next
	s.next = (s.next + 1) % len(s.members)
	s.mu.Unlock()
	best := s.members[start]
	bestLoad := best.pending.Load()
	for i := 1; i < len(s.members); i++ {
		candidate := s.members[(start+i)%len(s.members)]
		if load := candidate.pending.Load(); load < bestLoad {
			best, bestLoad = candidate, load
		}
	}
	return best
}

func (s *Service) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// Shutdown stops every worker and the relay. Requests still queued are dropped.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	for _, m := range s.members {
		m.cancelFn()
	}
	s.workerWg.Wait()
	s.cancelFn()
	<-s.relayDone
}
