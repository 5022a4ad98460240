package opctx

import "fmt"

// ExecutionStage represents where in its lifecycle an action
// currently is. It is bit-compatible in spirit with Bazel's Remote
// Execution ExecutionStage.Value enum. MatchStage only ever stamps
// Queued; the remaining values give downstream stages (input fetch,
// execute, report) somewhere to record their own transitions on the
// same metadata, as cmd/worker's report handler does with Completed.
type ExecutionStage uint8

const (
	StageUnknown ExecutionStage = iota
	StageQueued
	StageExecuting
	StageCompleted
)

func stageToString(s ExecutionStage) string {
	switch s {
	case StageQueued:
		return "QUEUED"
	case StageExecuting:
		return "EXECUTING"
	case StageCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

func stageFromString(s string) (ExecutionStage, error) {
	switch s {
	case "QUEUED":
		return StageQueued, nil
	case "EXECUTING":
		return StageExecuting, nil
	case "COMPLETED":
		return StageCompleted, nil
	case "UNKNOWN":
		return StageUnknown, nil
	default:
		return 0, fmt.Errorf("unknown execution stage: %s", s)
	}
}

// String returns the canonical name of the stage.
func (s ExecutionStage) String() string {
	return stageToString(s)
}

// MarshalText implements encoding.TextMarshaler.
func (s ExecutionStage) MarshalText() ([]byte, error) {
	return []byte(stageToString(s)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ExecutionStage) UnmarshalText(text []byte) error {
	stage, err := stageFromString(string(text))
	if err != nil {
		return err
	}
	*s = stage
	return nil
}
