// Package worker implements the compute worker: an isolated actor that
// receives start and forward requests from its inbox, keeps a private copy of
// the convolution layer and publishes log, result and fault responses to its
// outbox. Requests are handled one at a time in the order they were queued.
package worker
