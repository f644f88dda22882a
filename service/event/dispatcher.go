package event

import (
	"errors"
	"log"
	"sync"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event: dispatcher closed")

// Dispatcher fans events out to handlers asynchronously.
type Dispatcher struct {
	mu          sync.Mutex
	idle        *sync.Cond
	pending     []*Event
	outstanding int
	handlers    []Handler
	delivered   uint64
	closed      bool
	signal      chan struct{}
	done        chan struct{}
}

// NewDispatcher creates a dispatcher and starts its delivery goroutine.
func NewDispatcher(handlers ...Handler) *Dispatcher {
	d := &Dispatcher{
		handlers: handlers,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	d.idle = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Subscribe registers a handler for subsequently delivered events.
func (d *Dispatcher) Subscribe(handler Handler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, handler)
	d.mu.Unlock()
}

// Observe registers an observer.
func (d *Dispatcher) Observe(observer Observer) {
	d.Subscribe(observer.AsHandler())
}

// Publish queues e for delivery without blocking.
func (d *Dispatcher) Publish(e *Event) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.pending = append(d.pending, e)
	d.outstanding++
	d.mu.Unlock()
	select {
	case d.signal <- struct{}{}:
	default:
	}
	return nil
}

// Delivered returns the number of events handed to handlers.
func (d *Dispatcher) Delivered() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered
}

// Flush blocks until every published event has been delivered.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	for d.outstanding > 0 {
		d.idle.Wait()
	}
	d.mu.Unlock()
}

// Close delivers the remaining events and stops the delivery goroutine.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()
	select {
	case d.signal <- struct{}{}:
	default:
	}
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for range d.signal {
		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		handlers := append([]Handler(nil), d.handlers...)
		closed := d.closed
		d.mu.Unlock()

		for _, e := range batch {
			for _, handler := range handlers {
				deliver(handler, e)
			}
		}

		d.mu.Lock()
		d.delivered += uint64(len(batch))
		d.outstanding -= len(batch)
		if d.outstanding == 0 {
			d.idle.Broadcast()
		}
		drained := closed && len(d.pending) == 0
		d.mu.Unlock()
		if drained {
			return
		}
	}
}

func deliver(handler Handler, e *Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event: handler panic: %v", r)
		}
	}()
	handler(e)
}
