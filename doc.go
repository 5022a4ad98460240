// Package pipeline implements a remote-execution worker's execution
// pipeline: a directed chain of claim/put stages fed by a MatchStage
// that pulls work from a WorkerContext, and driven end to end by a
// Driver that owns thread lifecycle and graceful shutdown sequencing.
//
// A Stage models both the single-slot PipelineStage and the
// multi-slot SuperscalarPipelineStage from the same type: width and
// ClaimsFunc determine which. Claims are acquired one unit at a time
// from a golang.org/x/sync/semaphore-backed admission controller, so
// a cancellation partway through a multi-unit claim rolls back
// exactly the units already taken.
//
// MatchStage is the pipeline's only source: it has no upstream, and
// its iterate loop claims space on its output stage before attempting
// a match, so a claim failure or a refused match never leaves a
// half-built OperationContext stranded.
package pipeline
