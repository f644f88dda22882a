package messaging

import (
	"context"
	"errors"
)

// Vendor represents the name of a messaging vendor
type Vendor string

const (
	// VendorMemory keeps messages in a buffered channel.
	VendorMemory Vendor = "memory"
	// VendorFS persists messages as JSON files through afs.
	VendorFS Vendor = "fs"
)

var (
	// ErrQueueFull is returned by TryPublish when the queue has no capacity left.
	ErrQueueFull = errors.New("messaging: queue full")
	// ErrAlreadyProcessed is returned when a message is acked or nacked twice.
	ErrAlreadyProcessed = errors.New("messaging: message already processed")
)

// Queue represents an abstract FIFO message queue for any payload type
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue, blocking while the
	// queue is full
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available or ctx is done
	Consume(ctx context.Context) (Message[T], error)

	// Size returns the number of pending messages
	Size() int
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// ID returns the message identifier assigned on publish
	ID() string

	// T returns the payload of this message
	T() *T

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack indicates failure in processing this message
	Nack(err error) error
}
