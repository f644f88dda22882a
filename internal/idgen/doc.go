// Package idgen produces the opaque identifiers used to correlate worker
// requests with their responses and to name queued messages. It is a thin
// wrapper so tests can substitute deterministic values.
package idgen
