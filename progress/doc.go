// Package progress provides passive counters observing scheduler results:
// cumulative latency (count, total, mean) and cumulative accuracy (count,
// correct). Counters never influence scheduling decisions. A Tracker bundling
// both can travel in a context so that any component holding the context can
// record into it without a global registry.
package progress
