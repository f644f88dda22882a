// Package convflux runs the forward pass of a convolution layer over a stream
// of samples, either in process or offloaded to a pool of isolated compute
// workers, and reports per-sample results to observers.
//
// The root package exposes a Service facade that wires the sample source,
// the layer loader, the worker pool and the scheduler:
//
//	srv, _ := convflux.New(ctx, convflux.WithConfig(cfg))
//	srv.Observe(func(s *sample.Sample, result *volume.Volume) { ... })
//	_ = srv.Start()
//	_ = srv.SetStrategy(true) // offload to workers
//	stats, _ := srv.Stats()
//	srv.Close()
//
// For more details see the individual sub-packages.
package convflux
