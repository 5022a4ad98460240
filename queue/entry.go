package queue

import "time"

// ExecuteEntry carries the operation-facing fields of a queued
// action: its long-running operation name, the stream names a worker
// should write stdout/stderr to, arbitrary request metadata propagated
// from the original client call, and the time the entry was queued.
type ExecuteEntry struct {
	OperationName    string            `json:"operation_name"`
	StdoutStreamName string            `json:"stdout_stream_name"`
	StderrStreamName string            `json:"stderr_stream_name"`
	RequestMetadata  map[string]string `json:"request_metadata,omitempty"`
	QueuedTimestamp  time.Time         `json:"queued_timestamp"`
}

// Entry is a single record in a DistributedQueue: an action digest,
// the digest of its resolved (queued) action, and the ExecuteEntry
// describing the in-flight operation it belongs to.
//
// Entry is transport data, not delivery state. It carries no notion
// of attempts, leases, or status; DistributedQueue's two lists (Q and
// Q_dequeue) encode delivery state positionally, not as a field on
// Entry itself.
type Entry struct {
	ActionDigest          string `json:"action_digest"`
	QueuedOperationDigest string `json:"queued_operation_digest"`
	Platform              map[string]string `json:"platform,omitempty"`
	Execute               ExecuteEntry      `json:"execute"`
}
