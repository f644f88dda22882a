package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/viant/convflux/internal/parallel"
	"github.com/viant/convflux/kernel"
	"github.com/viant/convflux/model/layer"
	"github.com/viant/convflux/model/volume"
	"github.com/viant/convflux/service/messaging"
	"github.com/viant/convflux/service/protocol"
	"github.com/viant/convflux/tracing"
)

// Log texts emitted on acknowledgement.
const (
	StartReceived   = "start message received"
	ForwardReceived = "forward message received"
)

// State represents the worker lifecycle.
type State int32

const (
	Uninitialized State = iota
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Worker owns a layer and serves forward requests against it.
type Worker struct {
	id         int
	inbox      messaging.Queue[protocol.Request]
	outbox     messaging.Queue[protocol.Response]
	layer      *layer.Layer
	state      atomic.Int32
	handled    atomic.Int64
	parallel   *parallel.Config
	retryDelay time.Duration
}

// ID returns the worker identifier.
func (w *Worker) ID() int {
	return w.id
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Handled returns the number of requests processed so far.
func (w *Worker) Handled() int64 {
	return w.handled.Load()
}

// Run consumes requests until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.inbox.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("worker %d: consume failed: %v", w.id, err)
			select {
			case <-time.After(w.retryDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		if msg == nil {
			continue
		}
		if err = w.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("worker %d: failed to process message %v: %v", w.id, msg.ID(), err)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg messaging.Message[protocol.Request]) error {
	for _, response := range w.Handle(ctx, msg.T()) {
		err := w.outbox.Publish(ctx, response)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			_ = msg.Nack(err)
			return err
		}
		if !response.Terminal() {
			log.Printf("worker %d: failed to publish %v for %v: %v", w.id, response.Kind, response.ID, err)
			continue
		}
		// every request must terminate; a fault payload is always encodable
		fault := protocol.NewFault(response.ID, w.id, fmt.Errorf("%w: %v", protocol.ErrWorkerFault, err))
		if faultErr := w.outbox.Publish(ctx, fault); faultErr != nil {
			_ = msg.Nack(faultErr)
			return faultErr
		}
		log.Printf("worker %d: replaced undeliverable %v for %v with fault: %v", w.id, response.Kind, response.ID, err)
	}
	return msg.Ack()
}

// Handle applies a single request and returns the responses it produces, in
// emission order. It is not safe to call Handle concurrently with Run.
func (w *Worker) Handle(ctx context.Context, request *protocol.Request) []*protocol.Response {
	w.handled.Add(1)
	switch request.Kind {
	case protocol.KindStart:
		return w.start(request)
	case protocol.KindForward:
		return w.forward(ctx, request)
	}
	err := fmt.Errorf("%w: unsupported message kind %q", protocol.ErrWorkerFault, request.Kind)
	return []*protocol.Response{protocol.NewFault(request.ID, w.id, err)}
}

func (w *Worker) start(request *protocol.Request) []*protocol.Response {
	if err := request.Layer.Validate(); err != nil {
		return []*protocol.Response{protocol.NewFault(request.ID, w.id, fmt.Errorf("%w: %v", protocol.ErrWorkerFault, err))}
	}
	w.layer = request.Layer.Clone()
	w.state.Store(int32(Ready))
	return []*protocol.Response{protocol.NewLog(request.ID, w.id, StartReceived)}
}

func (w *Worker) forward(ctx context.Context, request *protocol.Request) (responses []*protocol.Response) {
	responses = append(responses, protocol.NewLog(request.ID, w.id, ForwardReceived))
	if w.layer == nil {
		return append(responses, protocol.NewFault(request.ID, w.id, protocol.ErrLayerNotLoaded))
	}
	var err error
	_, span := tracing.StartSpan(ctx, "worker.forward", tracing.KindConsumer)
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"request.id": request.ID, "worker.id": strconv.Itoa(w.id)})

	result, err := w.compute(request)
	if err != nil {
		if !errors.Is(err, protocol.ErrWorkerFault) && !errors.Is(err, protocol.ErrLayerNotLoaded) {
			err = fmt.Errorf("%w: %w", protocol.ErrWorkerFault, err)
		}
		return append(responses, protocol.NewFault(request.ID, w.id, err))
	}
	return append(responses, protocol.NewResult(request.ID, w.id, result))
}

func (w *Worker) compute(request *protocol.Request) (result *volume.Volume, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: kernel panic: %v", protocol.ErrWorkerFault, r)
		}
	}()
	if w.parallel != nil {
		return kernel.ForwardParallel(request.Volume, w.layer, *w.parallel)
	}
	return kernel.Forward(request.Volume, w.layer)
}

// New creates a worker bound to its inbox and outbox.
func New(id int, inbox messaging.Queue[protocol.Request], outbox messaging.Queue[protocol.Response], options ...Option) *Worker {
	ret := &Worker{
		id:         id,
		inbox:      inbox,
		outbox:     outbox,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}
