package opctx

import "time"

// Metadata is the executed-action metadata MatchStage and later
// stages stamp onto an operation: worker identity, action digest,
// queued-operation digest and request metadata carried over from the
// matched queue entry, current stage, and the timestamp trail Bazel's
// ExecutedActionMetadata expects (queued/worker-start through
// output-upload-completed). Only the fields MatchStage and the
// (unspecified) downstream stages populate are modeled here.
type Metadata struct {
	Worker                string
	ActionDigest          string
	QueuedOperationDigest string
	RequestMetadata       map[string]string
	Stage                 ExecutionStage
	StdoutStreamName      string
	StderrStreamName      string
	QueuedTimestamp       time.Time
	WorkerStartTimestamp  time.Time
	InputFetchStartTime   time.Time
	InputFetchDoneTime    time.Time
	ExecutionStartTime    time.Time
	ExecutionDoneTime     time.Time
	OutputUploadStartTime time.Time
	OutputUploadDoneTime  time.Time
}

// Operation is the long-running operation descriptor MatchStage seeds
// and later stages update. Response is left as an opaque payload;
// this module does not define Remote Execution wire types.
type Operation struct {
	Name     string
	Done     bool
	Metadata Metadata
	Response any
}
