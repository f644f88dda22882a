package tracing

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracingFile(t *testing.T) {
	fname := "testdata/span_test.txt"
	_ = os.Remove(fname)
	defer os.Remove(fname)

	if err := Init("convflux", "0.0.1", fname); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	ctx, span := StartSpan(context.Background(), "worker.forward", KindConsumer)
	span.WithAttributes(map[string]string{"request.id": "r-1"}).WithInt("worker.id", 2)
	span.Event("kernel.done")
	_, ok := SpanFromContext(ctx)
	assert.True(t, ok)
	EndSpan(span, errors.New("boom"))

	data, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	assert.NotEmpty(t, data)
	assert.Contains(t, string(data), "worker.forward")
}

func TestSpan_Nil(t *testing.T) {
	var span *Span
	assert.Nil(t, span.WithAttributes(map[string]string{"k": "v"}))
	span.SetStatus(nil)
	EndSpan(span, nil)
	assert.Equal(t, context.Background(), WithSpan(context.Background(), nil))
	_, ok := SpanFromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "32x32x3", Shape(32, 32, 3))
}
