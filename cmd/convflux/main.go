package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/viant/convflux"
	"github.com/viant/convflux/internal/yml"
	"github.com/viant/convflux/model/sample"
	"github.com/viant/convflux/model/volume"
	"github.com/viant/convflux/service/scheduler"
)

const version = "v0.1.0"

type overrides []string

func (o *overrides) String() string { return strings.Join(*o, ",") }

func (o *overrides) Set(value string) error {
	*o = append(*o, value)
	return nil
}

func main() {
	configURL := flag.String("config", "", "YAML config URL (file path or any afs URL)")
	modelURL := flag.String("model", "", "convnetjs net JSON URL (overrides model.url)")
	async := flag.Bool("async", false, "Start with the worker pool strategy")
	duration := flag.Duration("duration", 10*time.Second, "How long to run (0 = until interrupted)")
	switchEvery := flag.Duration("switch", 0, "Toggle the strategy at this interval (0 = never)")
	statsEvery := flag.Duration("stats-interval", time.Second, "Interval between stats reports")
	traceFile := flag.String("trace", "", "Write OpenTelemetry spans to this file")
	verbose := flag.Bool("v", false, "Log worker messages and per-sample predictions")
	showVersion := flag.Bool("version", false, "Show version and exit")
	var sets overrides
	flag.Var(&sets, "set", "Config override key=value, e.g. -set pool.workers=8 (repeatable)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("convflux %s\n", version)
		os.Exit(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(ctx, *configURL, *modelURL, *async, sets)
	if err != nil {
		log.Fatalf("convflux: %v", err)
	}

	logf := func(string, ...interface{}) {}
	if *verbose {
		logf = log.Printf
	}
	options := []convflux.Option{convflux.WithConfig(cfg), convflux.WithLogger(logf)}
	if *traceFile != "" {
		options = append(options, convflux.WithTracing("convflux", version, *traceFile))
	}
	srv, err := convflux.New(ctx, options...)
	if err != nil {
		log.Fatalf("convflux: %v", err)
	}
	defer srv.Close()
	if *verbose {
		srv.Observe(printPrediction)
	}

	if err = srv.Start(); err != nil {
		log.Fatalf("convflux: %v", err)
	}
	run(ctx, srv, *duration, *switchEvery, *statsEvery)

	if err = srv.Pause(); err != nil {
		log.Printf("convflux: %v", err)
	}
	drain(srv, 5*time.Second)
	srv.Flush()
	report(srv)
	if *verbose {
		fmt.Printf("worker handled=%v\n", srv.Handled())
	}
}

func loadConfig(ctx context.Context, configURL, modelURL string, async bool, sets []string) (*convflux.Config, error) {
	cfg := convflux.DefaultConfig()
	if configURL != "" {
		var err error
		if cfg, err = convflux.LoadConfig(ctx, configURL); err != nil {
			return nil, err
		}
	}
	if modelURL != "" {
		cfg.Model.URL = modelURL
	}
	if async {
		cfg.Scheduler.Async = true
	}
	values, err := yml.Overrides(sets)
	if err != nil {
		return nil, err
	}
	if err = cfg.Apply(values); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, srv *convflux.Service, duration, switchEvery, statsEvery time.Duration) {
	var deadline <-chan time.Time
	if duration > 0 {
		deadline = time.After(duration)
	}
	var toggle <-chan time.Time
	if switchEvery > 0 {
		ticker := time.NewTicker(switchEvery)
		defer ticker.Stop()
		toggle = ticker.C
	}
	statsTicker := time.NewTicker(statsEvery)
	defer statsTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-toggle:
			stats, err := srv.Stats()
			if err != nil {
				log.Printf("convflux: %v", err)
				return
			}
			if err = srv.SetStrategy(!stats.Async); err != nil {
				log.Printf("convflux: %v", err)
			}
		case <-statsTicker.C:
			report(srv)
		}
	}
}

func drain(srv *convflux.Service, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		stats, err := srv.Stats()
		if err != nil || stats.State == scheduler.Idle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func report(srv *convflux.Service) {
	stats, err := srv.Stats()
	if err != nil {
		log.Printf("convflux: %v", err)
		return
	}
	latency := srv.Tracker().Latency.Snapshot()
	accuracy := srv.Tracker().Accuracy.Snapshot()
	fmt.Printf("state=%v produced=%d delivered=%d failed=%d inflight=%d/%d mean=%v accuracy=%.3f\n",
		stats.State, stats.Produced, stats.Delivered, stats.Failed, stats.InFlight, stats.Max,
		latency.Mean(), accuracy.Ratio())
}

func printPrediction(s *sample.Sample, result *volume.Volume) {
	ranked := sample.Rank(result)
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	parts := make([]string, len(ranked))
	for i, p := range ranked {
		parts[i] = fmt.Sprintf("%d:%.3f", p.Class, p.Score)
	}
	maxV, minV := result.MaxMin()
	fmt.Printf("sample %d label=%d top=[%s] activations=[%.3f, %.3f]\n", s.Seq, s.Label, strings.Join(parts, " "), minV, maxV)
}
