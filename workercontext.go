package pipeline

import (
	"context"

	"github.com/rexec/pipeline/opctx"
	"github.com/rexec/pipeline/poller"
	"github.com/rexec/pipeline/queue"
)

// MatchListener receives the callbacks WorkerContext.Match delivers
// while it waits for and matches a queue entry. onEntry may itself
// forward the matched context downstream and block; implementations
// of WorkerContext must tolerate that reentrancy rather than holding
// a lock across the callback.
type MatchListener interface {
	// OnWaitStart marks the beginning of an idle wait for a match.
	OnWaitStart()
	// OnWaitEnd marks the end of an idle wait, matched or not.
	OnWaitEnd()
	// OnEntry delivers a matched queue entry, or nil if Match is
	// returning without one (e.g. the worker is shutting down). It
	// returns whether the entry was accepted.
	OnEntry(e *queue.Entry) bool
	// OnError surfaces a failure encountered while matching.
	OnError(err error)
}

// WorkerContext is the external collaborator MatchStage depends on:
// the thing that actually knows how to pull work off a backplane,
// mint pollers, and report operation state. This module only depends
// on the interface; a real implementation lives outside this package.
type WorkerContext interface {
	// Match blocks until it matches one queue entry and delivers it to
	// listener, or returns when the worker is shutting down.
	Match(ctx context.Context, listener MatchListener) error
	// CreatePoller returns a Poller already in the Active state,
	// liveness-asserting queueEntry at the given execution stage.
	CreatePoller(stageName string, queueEntry *queue.Entry, stage opctx.ExecutionStage) (*poller.Poller, error)
	// PutOperation best-effort reports operation state to the
	// backplane. A false return (with a nil error) means the update
	// was skipped, not that it failed transiently.
	PutOperation(ctx context.Context, op *opctx.Operation) (bool, error)
	// GetName returns this worker's stable identifier.
	GetName() string
}
