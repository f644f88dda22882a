// Package scheduler drives the forward-pass loop. Samples are pulled from a
// source and either computed in process (sync strategy) or submitted to a
// worker pool (async strategy) with a bounded number of requests in flight.
//
// All mutable state belongs to a single driver goroutine. Public methods post
// commands to it and wait for the acknowledgement, while pool responses and
// request timeouts are consumed by the same loop.
package scheduler
