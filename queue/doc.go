// Package queue implements a Redis-backed distributed work queue with
// at-least-once delivery semantics.
//
// # Overview
//
// A DistributedQueue models two ordered Redis lists per logical queue
// name Q:
//
//   - Q          — the pending list (RPUSH appends, head is oldest)
//   - Q_dequeue  — the in-flight list, holding entries a worker has
//     popped but not yet acknowledged
//
// Entries move from Q to Q_dequeue atomically, using Redis's LMOVE /
// BLMOVE commands. This rules out the LPOP-then-RPUSH emulation,
// which can lose an entry between the two calls if the process dies
// in between.
//
// # Delivery Semantics
//
// Every entry a worker has taken is in exactly one of {Q, Q_dequeue,
// committed to the pipeline}. An entry that stays in Q_dequeue beyond
// a configured TTL is orphaned and expected to be swept back onto Q
// by an external recovery process; DistributedQueue only guarantees
// Q_dequeue remains inspectable by name (via VisitDequeue), it does
// not perform the sweep itself.
//
// # Cancellation
//
// Blocking Dequeue calls run the underlying BLMOVE on a helper
// goroutine so that, if the caller's context is canceled while
// waiting, the Redis connection can be forcibly closed to unblock the
// server-side wait. A reply that is already available when the
// cancellation is observed is still delivered to the caller with a nil
// error; the caller's context stays canceled.
package queue
