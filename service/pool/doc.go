// Package pool hosts a fixed set of compute workers. Every worker owns a
// private mailbox; all workers publish to one completion queue that the pool
// relays to a single response channel. Forward requests go to the worker with
// the fewest outstanding requests.
package pool
