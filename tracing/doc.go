// Package tracing wraps OpenTelemetry so the scheduler and workers can emit
// spans for dispatch and forward passes without importing the SDK directly.
// Until Init or InitWithExporter is called spans are no-ops.
package tracing
