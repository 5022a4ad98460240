// Package poller implements the liveness keep-alive used by a worker
// while it holds a queue entry.
//
// A Poller ticks on a fixed period (which should be at most half the
// backplane's liveness window) and, on each tick, invokes a
// caller-supplied predicate; if the predicate still holds, the
// Poller calls its Reporter to re-assert the entry's current
// execution stage with the backplane.
//
// A Poller moves through three states: ACTIVE, PAUSED, and
// TERMINATED. Pause stops ticking without releasing the underlying
// resource, so a later Resume can restart ticking (with a possibly
// updated stage) without re-registering with the backplane. Terminate
// is final.
package poller
