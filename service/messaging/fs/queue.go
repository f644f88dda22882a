package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/convflux/internal/clock"
	"github.com/viant/convflux/internal/idgen"
	"github.com/viant/convflux/service/messaging"
)

// MessageState represents the state of a message in the filesystem queue
type MessageState string

const (
	// MessageStatePending indicates a message is waiting to be processed
	MessageStatePending MessageState = "pending"

	// MessageStateProcessing indicates a message is being processed
	MessageStateProcessing MessageState = "processing"

	// MessageStateCompleted indicates a message was successfully processed
	MessageStateCompleted MessageState = "completed"

	// MessageStateFailed indicates a message failed processing
	MessageStateFailed MessageState = "failed"
)

// Message implements messaging.Message for the filesystem queue
type Message[T any] struct {
	MessageID string       `json:"id"`
	Name      string       `json:"name"`
	Data      T            `json:"data"`
	State     MessageState `json:"state"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	queue     *Queue[T]
	processed bool
	mu        sync.Mutex
}

// ID returns the message identifier
func (m *Message[T]) ID() string {
	return m.MessageID
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack acknowledges that the message was processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("%w: %v", messaging.ErrAlreadyProcessed, m.MessageID)
	}
	m.processed = true
	m.State = MessageStateCompleted
	m.UpdatedAt = clock.Now()
	return m.queue.settle(context.Background(), m, m.queue.completedDir, m.queue.config.KeepCompleted)
}

// Nack indicates that the message processing failed; the message is moved to
// the failed directory and never redelivered.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("%w: %v", messaging.ErrAlreadyProcessed, m.MessageID)
	}
	m.processed = true
	m.State = MessageStateFailed
	if err != nil {
		m.Error = err.Error()
	}
	m.UpdatedAt = clock.Now()
	return m.queue.settle(context.Background(), m, m.queue.failedDir, true)
}

// Config holds configuration for filesystem queue
type Config struct {
	BasePath      string        // Base directory (or afs URL) for queue files
	PollInterval  time.Duration // Delay between listings while the queue is empty
	KeepCompleted bool          // Retain acknowledged messages under completed/
}

// DefaultConfig returns a default queue configuration
func DefaultConfig() Config {
	return Config{
		BasePath:     "/tmp/convflux/queue",
		PollInterval: 5 * time.Millisecond,
	}
}

// Queue implements a filesystem-based messaging.Queue. Messages are consumed
// in publish order; file names carry a monotonic sequence prefix.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	stagingDir    string
	pendingDir    string
	processingDir string
	completedDir  string
	failedDir     string
	seq           uint64
	mu            sync.Mutex
}

// NewQueue creates a new filesystem-based queue
func NewQueue[T any](fs afs.Service, config Config) (*Queue[T], error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		stagingDir:    path.Join(config.BasePath, "staging"),
		pendingDir:    path.Join(config.BasePath, "pending"),
		processingDir: path.Join(config.BasePath, "processing"),
		completedDir:  path.Join(config.BasePath, "completed"),
		failedDir:     path.Join(config.BasePath, "failed"),
		seq:           uint64(clock.Now().UnixNano()),
	}
	ctx := context.Background()
	for _, dir := range []string{q.stagingDir, q.pendingDir, q.processingDir, q.completedDir, q.failedDir} {
		exists, _ := fs.Exists(ctx, dir)
		if !exists {
			if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}
	return q, nil
}

// Publish adds a new message to the queue
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	now := clock.Now()
	id := idgen.New()
	message := &Message[T]{
		MessageID: id,
		Name:      fmt.Sprintf("%020d-%s.json", atomic.AddUint64(&q.seq, 1), id),
		Data:      *t,
		State:     MessageStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	// staged outside pending so consumers never list a partial file; source
	// and destination share a base name so Move treats the destination as a file
	stagedURL := path.Join(q.stagingDir, message.Name)
	if err = q.upload(ctx, stagedURL, data); err != nil {
		return err
	}
	if err = q.fs.Move(ctx, stagedURL, path.Join(q.pendingDir, message.Name)); err != nil {
		return fmt.Errorf("failed to publish message %v: %w", message.Name, err)
	}
	return nil
}

// Consume polls the pending directory until a message is available or ctx is
// done.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	for {
		message, err := q.next(ctx)
		if err != nil || message != nil {
			return message, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.config.PollInterval):
		}
	}
}

// next claims the oldest pending message, returning nil when none is pending.
func (q *Queue[T]) next(ctx context.Context) (*Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending, err := q.pending(ctx)
	if err != nil || len(pending) == 0 {
		return nil, err
	}
	obj := pending[0]
	message, err := q.read(ctx, obj.URL())
	if err != nil {
		_ = q.fs.Move(ctx, obj.URL(), path.Join(q.failedDir, "invalid-"+obj.Name()))
		return nil, err
	}
	message.State = MessageStateProcessing
	message.UpdatedAt = clock.Now()
	message.queue = q
	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal updated message: %w", err)
	}
	if err := q.upload(ctx, path.Join(q.processingDir, message.Name), data); err != nil {
		return nil, fmt.Errorf("failed to move message to processing directory: %w", err)
	}
	if err := q.fs.Delete(ctx, obj.URL()); err != nil {
		return nil, fmt.Errorf("failed to delete message from pending directory: %w", err)
	}
	return message, nil
}

func (q *Queue[T]) pending(ctx context.Context) ([]storage.Object, error) {
	objects, err := q.fs.List(ctx, q.pendingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}
	var ret []storage.Object
	for _, obj := range objects {
		if !obj.IsDir() && strings.HasSuffix(obj.Name(), ".json") {
			ret = append(ret, obj)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name() < ret[j].Name() })
	return ret, nil
}

// Size returns the number of pending messages
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending, _ := q.pending(context.Background())
	return len(pending)
}

// settle removes a message from processing, optionally recording it in dest.
func (q *Queue[T]) settle(ctx context.Context, m *Message[T], dest string, keep bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if keep {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal %v message: %w", m.State, err)
		}
		if err := q.upload(ctx, path.Join(dest, m.Name), data); err != nil {
			return fmt.Errorf("failed to write message to %s: %w", dest, err)
		}
	}
	processingPath := path.Join(q.processingDir, m.Name)
	if exists, _ := q.fs.Exists(ctx, processingPath); exists {
		if err := q.fs.Delete(ctx, processingPath); err != nil {
			return fmt.Errorf("failed to delete message from processing directory: %w", err)
		}
	}
	return nil
}

func (q *Queue[T]) upload(ctx context.Context, URL string, data []byte) error {
	return q.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewBuffer(data))
}

func (q *Queue[T]) read(ctx context.Context, URL string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", URL, err)
	}
	var message Message[T]
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", URL, err)
	}
	return &message, nil
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
