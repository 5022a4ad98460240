// Package opctx defines OperationContext, the per-action value that
// flows through the pipeline from MatchStage to the report sink.
//
// A Context is built incrementally by MatchStage (queue entry,
// metadata, poller), then frozen before being handed to the next
// stage. Freezing is a one-way transition: once frozen, a Context's
// builder fields may no longer be mutated by the stage that produced
// it, preventing aliasing across the goroutine boundary a handoff
// crosses.
package opctx
