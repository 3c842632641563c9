// Package queue implements the last-in-first-out request queue used by the
// background cache.
//
// The queue also owns the single-flight bookkeeping: at most one live request
// exists per key, from Push until the worker reports Done. Every request
// carries a token; forgetting a key or resetting the queue invalidates the
// token so that a worker finishing a stale request can detect that its result
// must be dropped.
package queue
