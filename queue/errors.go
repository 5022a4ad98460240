package queue

import "errors"

var (
	// ErrCancelled indicates the caller's context was canceled, either
	// while waiting on a blocking Dequeue or during a non-blocking
	// call that observed cancellation.
	ErrCancelled = errors.New("queue: cancelled")

	// ErrTransient indicates a transport-level failure talking to the
	// backplane. DistributedQueue does not retry internally; the
	// caller is expected to retry the call.
	ErrTransient = errors.New("queue: transient backplane error")

	// ErrBadName is returned when a queue name collides with the
	// reserved "_dequeue" suffix.
	ErrBadName = errors.New("queue: name must not end in _dequeue")
)
