package pipeline

import (
	"errors"

	"github.com/rexec/pipeline/opctx"
)

// Sentinel errors a Handler may wrap with fmt.Errorf("...: %w", err)
// to steer how a failed operation is reported. Any other error is
// treated as ErrFatal.
var (
	// ErrCancelled means the surrounding context was canceled (e.g.
	// graceful shutdown, or an upstream interrupt) while claiming or
	// handing off an operation. The operation is dropped: it still goes
	// to the error sink and is counted under the "cancelled" failure
	// kind, but a Driver logs it at debug level rather than as a failure.
	ErrCancelled = errors.New("pipeline: cancelled")

	// ErrTransient means the handler failed in a way a retry (a fresh
	// dequeue of the same action) might not; the operation is reported
	// failed but the queue entry itself is not blamed.
	ErrTransient = errors.New("pipeline: transient failure")

	// ErrFatal means the handler failed in a way that will not improve
	// on retry. The default (an error that is neither ErrCancelled nor
	// ErrTransient) is treated as ErrFatal.
	ErrFatal = errors.New("pipeline: fatal failure")

	// ErrIO wraps a failure talking to a backing store (the queue, an
	// output stream), as distinct from a failure in the handler's own
	// domain logic.
	ErrIO = errors.New("pipeline: io failure")
)

// FailedContext pairs a context that could not be advanced with the
// error that stopped it. It is sent to a Driver's error sink.
type FailedContext struct {
	Context *opctx.Context
	Err     error
}
