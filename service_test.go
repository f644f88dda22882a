package convflux_test

import (
	"context"
	"embed"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	_ "github.com/viant/afs/embed"
	"github.com/viant/convflux"
	"github.com/viant/convflux/kernel"
	"github.com/viant/convflux/model/sample"
	"github.com/viant/convflux/model/volume"
	"github.com/viant/convflux/service/scheduler"
)

//go:embed testdata/*
var embedFS embed.FS

func TestService(t *testing.T) {
	ctx := context.Background()
	cfg, err := convflux.LoadConfig(ctx, "embed:///testdata/config.yaml", &embedFS)
	if !assert.NoError(t, err) {
		return
	}

	var observed atomic.Int64
	var mismatched atomic.Int64
	var srv *convflux.Service
	srv, err = convflux.New(ctx,
		convflux.WithConfig(cfg),
		convflux.WithFsOptions(&embedFS),
		convflux.WithLogger(func(string, ...interface{}) {}),
	)
	if !assert.NoError(t, err) {
		return
	}
	defer srv.Close()
	l := srv.Layer()
	assert.Equal(t, 3, l.OutDepth)
	srv.Observe(func(s *sample.Sample, result *volume.Volume) {
		expected, err := kernel.Forward(s.Volume, l)
		if err != nil || !expected.Equal(result) {
			mismatched.Add(1)
		}
		observed.Add(1)
	})

	stats := func() scheduler.Stats {
		ret, err := srv.Stats()
		assert.NoError(t, err)
		return ret
	}
	assert.NoError(t, srv.Start())
	assert.Eventually(t, func() bool { return stats().Delivered >= 30 }, 5*time.Second, time.Millisecond)
	assert.NoError(t, srv.SetStrategy(true))
	assert.Eventually(t, func() bool { return stats().Delivered >= 90 }, 5*time.Second, time.Millisecond)
	assert.NoError(t, srv.Pause())
	assert.Eventually(t, func() bool { return stats().State == scheduler.Idle }, 5*time.Second, time.Millisecond)

	final := stats()
	assert.Equal(t, final.Produced, final.Delivered)
	assert.Zero(t, final.Failed)
	assert.Equal(t, 3, final.Max)
	srv.Flush()
	assert.EqualValues(t, final.Delivered, observed.Load())
	assert.Zero(t, mismatched.Load())
	assert.EqualValues(t, final.Delivered, srv.Tracker().Latency.Snapshot().Count)
	handled := srv.Handled()
	if assert.Len(t, handled, srv.Config().Pool.Workers) {
		for _, count := range handled {
			assert.GreaterOrEqual(t, count, int64(1), "every worker handles its start message")
		}
	}

	assert.NoError(t, srv.Reset())
	assert.Zero(t, stats().Produced)
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()
	var testCases = []struct {
		description string
		config      func() *convflux.Config
	}{
		{description: "missing model", config: convflux.DefaultConfig},
		{description: "invalid config", config: func() *convflux.Config {
			cfg := convflux.DefaultConfig()
			cfg.Pool.Workers = 0
			return cfg
		}},
		{description: "missing conv layer", config: func() *convflux.Config {
			cfg := convflux.DefaultConfig()
			cfg.Model.URL = "embed:///testdata/net.json"
			cfg.Model.Layer = 3
			return cfg
		}},
	}
	for _, testCase := range testCases {
		_, err := convflux.New(ctx, convflux.WithConfig(testCase.config()), convflux.WithFsOptions(&embedFS))
		assert.Error(t, err, testCase.description)
	}
}
