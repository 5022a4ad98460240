package opctx

import (
	"errors"

	"github.com/rexec/pipeline/poller"
	"github.com/rexec/pipeline/queue"
)

// ErrFrozen is returned by mutating methods once a Context has been
// frozen. It signals a programmer error (a stage mutating a context
// it has already forwarded downstream), not a runtime condition
// callers are expected to recover from.
var ErrFrozen = errors.New("opctx: context is frozen")

// Context is the per-action value ("OperationContext") that flows
// through the pipeline. It is built incrementally by MatchStage, then
// frozen before being forwarded. Freeze locks the queue entry and the
// poller (SetQueueEntry and SetPoller return ErrFrozen afterwards);
// the Operation returned by Operation is not covered by Freeze and
// stays mutable, and downstream handlers update it in place.
type Context struct {
	frozen     bool
	operation  *Operation
	queueEntry *queue.Entry
	poller     *poller.Poller
}

// New creates a fresh, empty, unfrozen Context. MatchStage calls this
// once per iteration before attempting a match.
func New() *Context {
	return &Context{operation: &Operation{}}
}

// Operation returns the operation descriptor as a pointer; its fields,
// Metadata included, may be mutated in place before and after Freeze.
func (c *Context) Operation() *Operation {
	return c.operation
}

// QueueEntry returns the dequeued work item, or nil before MatchStage
// has matched one.
func (c *Context) QueueEntry() *queue.Entry {
	return c.queueEntry
}

// SetQueueEntry installs the matched queue entry. It is an error to
// call this after Freeze.
func (c *Context) SetQueueEntry(e *queue.Entry) error {
	if c.frozen {
		return ErrFrozen
	}
	c.queueEntry = e
	return nil
}

// Poller returns the liveness poller owned by this context, or nil
// before MatchStage installs one. Once installed, the reference is
// never cleared.
func (c *Context) Poller() *poller.Poller {
	return c.poller
}

// SetPoller installs this context's poller. It is an error to call
// this after Freeze, and an error to call it twice (a poller may only
// be installed once per context — installing a second one without
// terminating the first would leak a background goroutine).
func (c *Context) SetPoller(p *poller.Poller) error {
	if c.frozen {
		return ErrFrozen
	}
	if c.poller != nil {
		return errors.New("opctx: poller already installed")
	}
	c.poller = p
	return nil
}

// Freeze marks the Context immutable. It requires a non-nil
// QueueEntry, matching the invariant that queueEntry is non-null once
// a Context leaves MatchStage. Freeze is idempotent.
func (c *Context) Freeze() error {
	if c.frozen {
		return nil
	}
	if c.queueEntry == nil {
		return errors.New("opctx: cannot freeze without a queue entry")
	}
	c.frozen = true
	return nil
}

// Frozen reports whether Freeze has been called.
func (c *Context) Frozen() bool {
	return c.frozen
}
