package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/convflux/internal/parallel"
	"github.com/viant/convflux/kernel"
	"github.com/viant/convflux/model/layer"
	"github.com/viant/convflux/model/volume"
	"github.com/viant/convflux/service/messaging/memory"
	"github.com/viant/convflux/service/protocol"
)

func testLayer(t *testing.T) *layer.Layer {
	filter, err := volume.FromData(2, 2, 1, []float32{1, 0, 0, 1})
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	l, err := layer.New(3, 3, 1, []*volume.Volume{filter}, []float32{0.5}, 1, 0)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return l
}

func testInput(t *testing.T) *volume.Volume {
	v, err := volume.FromData(3, 3, 1, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9})
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return v
}

func newTestWorker(options ...Option) *Worker {
	return New(1, memory.NewQueue[protocol.Request](memory.DefaultConfig()), memory.NewQueue[protocol.Response](memory.DefaultConfig()), options...)
}

func TestWorker_Handle(t *testing.T) {
	ctx := context.Background()
	l := testLayer(t)
	input := testInput(t)
	expected, err := kernel.Forward(input, l)
	assert.NoError(t, err)

	t.Run("forward before start", func(t *testing.T) {
		w := newTestWorker()
		responses := w.Handle(ctx, protocol.NewForward("f1", input))
		if assert.Len(t, responses, 2) {
			assert.Equal(t, protocol.KindLog, responses[0].Kind)
			assert.Equal(t, ForwardReceived, responses[0].Text)
			assert.Equal(t, protocol.KindFault, responses[1].Kind)
			assert.Equal(t, protocol.FaultLayerNotLoaded, responses[1].Fault.Code)
			assert.True(t, errors.Is(responses[1].Err(), protocol.ErrLayerNotLoaded))
			assert.Equal(t, "f1", responses[1].ID)
		}
		assert.Equal(t, Uninitialized, w.State())
	})

	t.Run("invalid start", func(t *testing.T) {
		w := newTestWorker()
		bad := l.Clone()
		bad.Biases = nil
		responses := w.Handle(ctx, protocol.NewStart("s1", bad))
		if assert.Len(t, responses, 1) {
			assert.Equal(t, protocol.FaultWorker, responses[0].Fault.Code)
		}
		assert.Equal(t, Uninitialized, w.State())
	})

	t.Run("start then forward", func(t *testing.T) {
		w := newTestWorker()
		responses := w.Handle(ctx, protocol.NewStart("s1", l))
		if assert.Len(t, responses, 1) {
			assert.Equal(t, protocol.KindLog, responses[0].Kind)
			assert.Equal(t, StartReceived, responses[0].Text)
		}
		assert.Equal(t, Ready, w.State())

		responses = w.Handle(ctx, protocol.NewForward("f1", input))
		if assert.Len(t, responses, 2) {
			assert.Equal(t, protocol.KindResult, responses[1].Kind)
			assert.Equal(t, "f1", responses[1].ID)
			assert.Equal(t, 1, responses[1].WorkerID)
			assert.True(t, expected.Equal(responses[1].Volume))
		}
	})

	t.Run("layer is copied on start", func(t *testing.T) {
		w := newTestWorker()
		owned := l.Clone()
		w.Handle(ctx, protocol.NewStart("s1", owned))
		owned.Filters[0].Set(0, 0, 0, 100)
		owned.Biases[0] = 100
		responses := w.Handle(ctx, protocol.NewForward("f1", input))
		assert.True(t, expected.Equal(responses[1].Volume))
	})

	t.Run("kernel error keeps worker alive", func(t *testing.T) {
		w := newTestWorker()
		w.Handle(ctx, protocol.NewStart("s1", l))
		wrongDepth, _ := volume.New(3, 3, 2)
		responses := w.Handle(ctx, protocol.NewForward("f1", wrongDepth))
		if assert.Len(t, responses, 2) {
			assert.Equal(t, protocol.FaultWorker, responses[1].Fault.Code)
			assert.True(t, errors.Is(responses[1].Err(), protocol.ErrWorkerFault))
		}
		responses = w.Handle(ctx, protocol.NewForward("f2", nil))
		if assert.Len(t, responses, 2) {
			assert.Equal(t, protocol.FaultInvalidVolume, responses[1].Fault.Code)
		}
		responses = w.Handle(ctx, protocol.NewForward("f3", input))
		assert.Equal(t, protocol.KindResult, responses[1].Kind)
		assert.Equal(t, Ready, w.State())
	})

	t.Run("unsupported kind", func(t *testing.T) {
		w := newTestWorker()
		responses := w.Handle(ctx, &protocol.Request{Kind: "bogus", ID: "x"})
		if assert.Len(t, responses, 1) {
			assert.Equal(t, protocol.KindFault, responses[0].Kind)
		}
	})
}

func TestWorker_Deterministic(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(WithParallel(parallel.Config{Enabled: true, NumWorkers: 2, MinChunkSize: 1}))
	w.Handle(ctx, protocol.NewStart("s1", testLayer(t)))
	input := testInput(t)
	first := w.Handle(ctx, protocol.NewForward("f1", input))[1].Volume
	for i := 0; i < 10; i++ {
		next := w.Handle(ctx, protocol.NewForward("f", input))[1].Volume
		assert.Equal(t, first.Data, next.Data)
	}
}

func TestWorker_Run(t *testing.T) {
	inbox := memory.NewQueue[protocol.Request](memory.DefaultConfig())
	outbox := memory.NewQueue[protocol.Response](memory.DefaultConfig())
	w := New(3, inbox, outbox)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	input := testInput(t)
	assert.NoError(t, inbox.Publish(ctx, protocol.NewForward("f0", input)))
	assert.NoError(t, inbox.Publish(ctx, protocol.NewStart("s1", testLayer(t))))
	assert.NoError(t, inbox.Publish(ctx, protocol.NewForward("f1", input)))
	assert.NoError(t, inbox.Publish(ctx, protocol.NewForward("f2", input)))

	var expected = []struct {
		kind protocol.Kind
		id   string
	}{
		{protocol.KindLog, "f0"},
		{protocol.KindFault, "f0"},
		{protocol.KindLog, "s1"},
		{protocol.KindLog, "f1"},
		{protocol.KindResult, "f1"},
		{protocol.KindLog, "f2"},
		{protocol.KindResult, "f2"},
	}
	for _, e := range expected {
		msg, err := outbox.Consume(ctx)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, e.kind, msg.T().Kind)
		assert.Equal(t, e.id, msg.T().ID)
		assert.Equal(t, 3, msg.T().WorkerID)
		assert.NoError(t, msg.Ack())
	}
	stop()
	assert.NoError(t, <-done)
	assert.EqualValues(t, 4, w.Handled())
	assert.Equal(t, Ready, w.State())
}

// resultRejecting refuses result responses the way a transport refuses a
// payload it cannot encode.
type resultRejecting struct {
	*memory.Queue[protocol.Response]
}

func (q resultRejecting) Publish(ctx context.Context, response *protocol.Response) error {
	if response.Kind == protocol.KindResult {
		return errors.New("json: unsupported value: +Inf")
	}
	return q.Queue.Publish(ctx, response)
}

func TestWorker_UndeliverableResult(t *testing.T) {
	inbox := memory.NewQueue[protocol.Request](memory.DefaultConfig())
	outbox := resultRejecting{Queue: memory.NewQueue[protocol.Response](memory.DefaultConfig())}
	w := New(2, inbox, outbox)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	assert.NoError(t, inbox.Publish(ctx, protocol.NewStart("s1", testLayer(t))))
	assert.NoError(t, inbox.Publish(ctx, protocol.NewForward("f1", testInput(t))))

	var expected = []struct {
		kind protocol.Kind
		id   string
	}{
		{protocol.KindLog, "s1"},
		{protocol.KindLog, "f1"},
		{protocol.KindFault, "f1"},
	}
	for _, e := range expected {
		msg, err := outbox.Consume(ctx)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, e.kind, msg.T().Kind)
		assert.Equal(t, e.id, msg.T().ID)
		if e.kind == protocol.KindFault {
			assert.Equal(t, protocol.FaultWorker, msg.T().Fault.Code)
			assert.True(t, errors.Is(msg.T().Err(), protocol.ErrWorkerFault))
		}
		assert.NoError(t, msg.Ack())
	}
	stop()
	assert.NoError(t, <-done)
}
