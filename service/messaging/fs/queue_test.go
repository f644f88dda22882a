package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/convflux/service/messaging"
)

type TestPayload struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func files(t *testing.T, fs afs.Service, dir string) int {
	objects, err := fs.List(context.Background(), dir)
	assert.NoError(t, err)
	count := 0
	for _, obj := range objects {
		if !obj.IsDir() {
			count++
		}
	}
	return count
}

func TestQueue(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "queue-test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	fs := afs.New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	queue, err := NewQueue[TestPayload](fs, Config{BasePath: tempDir, KeepCompleted: true})
	assert.NoError(t, err)
	assert.NotNil(t, queue)

	for _, dir := range []string{queue.stagingDir, queue.pendingDir, queue.processingDir, queue.completedDir, queue.failedDir} {
		exists, err := fs.Exists(ctx, dir)
		assert.NoError(t, err)
		assert.True(t, exists, fmt.Sprintf("Directory %s should exist", dir))
	}

	testCases := []TestPayload{
		{ID: "1", Message: "Test message 1", Count: 1},
		{ID: "2", Message: "Test message 2", Count: 2},
		{ID: "3", Message: "Test message 3", Count: 3},
	}
	for i := range testCases {
		assert.NoError(t, queue.Publish(ctx, &testCases[i]))
	}
	assert.Equal(t, 3, queue.Size())
	assert.Equal(t, 3, files(t, fs, queue.pendingDir))
	assert.Equal(t, 0, files(t, fs, queue.stagingDir))

	for i := range testCases {
		message, err := queue.Consume(ctx)
		assert.NoError(t, err)
		if !assert.NotNil(t, message) {
			return
		}
		assert.Equal(t, testCases[i], *message.T(), "messages are consumed in publish order")
		assert.NoError(t, message.Ack())
		assert.True(t, errors.Is(message.Ack(), messaging.ErrAlreadyProcessed))
		assert.Equal(t, i+1, files(t, fs, queue.completedDir))
	}
	assert.Equal(t, 0, files(t, fs, queue.processingDir))

	assert.NoError(t, queue.Publish(ctx, &TestPayload{ID: "4", Message: "Failure test"}))
	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.NoError(t, message.Nack(fmt.Errorf("boom")))
	assert.Equal(t, 1, files(t, fs, queue.failedDir))
	assert.Equal(t, 0, queue.Size())

	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer waitCancel()
	message, err = queue.Consume(waitCtx)
	assert.Nil(t, message)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestQueue_DropsCompleted(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "queue-drop-test")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	defer os.RemoveAll(tempDir)

	fs := afs.New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	queue, err := NewQueue[TestPayload](fs, Config{BasePath: tempDir})
	assert.NoError(t, err)
	assert.NoError(t, queue.Publish(ctx, &TestPayload{ID: "1"}))
	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.NoError(t, message.Ack())
	assert.Equal(t, 0, files(t, fs, queue.completedDir))
	assert.Equal(t, 0, files(t, fs, queue.processingDir))
}

func TestQueueInitialization(t *testing.T) {
	fs := afs.New()
	_, err := NewQueue[TestPayload](fs, Config{})
	assert.Error(t, err, "Should error with empty BasePath")

	tempDir := path.Join(os.TempDir(), fmt.Sprintf("queue-init-test-%d", time.Now().UnixNano()))
	defer os.RemoveAll(tempDir)
	queue, err := NewQueue[TestPayload](fs, Config{BasePath: tempDir})
	assert.NoError(t, err)
	assert.NotNil(t, queue)
	assert.Equal(t, DefaultConfig().PollInterval, queue.config.PollInterval)
}

func TestQueue_PublishLayout(t *testing.T) {
	tempDir := t.TempDir()
	fs := afs.New()
	ctx := context.Background()
	queue, err := NewQueue[TestPayload](fs, Config{BasePath: tempDir})
	assert.NoError(t, err)
	assert.NoError(t, queue.Publish(ctx, &TestPayload{ID: "1", Message: "layout"}))

	objects, err := fs.List(ctx, queue.pendingDir)
	assert.NoError(t, err)
	var published []string
	for _, obj := range objects {
		if obj.URL() == queue.pendingDir || obj.Name() == path.Base(queue.pendingDir) {
			continue
		}
		assert.False(t, obj.IsDir(), "published message %v must be a file", obj.Name())
		published = append(published, obj.Name())
	}
	if assert.Len(t, published, 1) {
		assert.True(t, strings.HasSuffix(published[0], ".json"))
	}
	assert.Equal(t, 1, queue.Size())

	consumeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	message, err := queue.Consume(consumeCtx)
	if assert.NoError(t, err) && assert.NotNil(t, message) {
		assert.Equal(t, "layout", message.T().Message)
		assert.NoError(t, message.Ack())
	}
}
