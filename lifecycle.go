package pipeline

import (
	"errors"
	"sync/atomic"

	"github.com/rexec/pipeline/internal"
)

const (
	lcStopped int32 = iota
	lcStarted
)

var (
	// ErrDoubleStarted is returned when Start is called on a stage or
	// MatchStage that is already running.
	ErrDoubleStarted = errors.New("pipeline: double start")

	// ErrDoubleStopped is returned when Stop is called on a stage or
	// MatchStage that is not currently running.
	ErrDoubleStopped = errors.New("pipeline: double stop")
)

// lcBase is a CAS-guarded start/stop latch shared by Stage and
// MatchStage, so both refuse to be started twice or stopped twice
// without a separate termination flag on every type.
type lcBase struct {
	state atomic.Int32
}

func (lb *lcBase) tryStart() error {
	if !lb.state.CompareAndSwap(lcStopped, lcStarted) {
		return ErrDoubleStarted
	}
	return nil
}

func (lb *lcBase) tryStop(df internal.DoneFunc) (internal.DoneChan, error) {
	if !lb.state.CompareAndSwap(lcStarted, lcStopped) {
		return nil, ErrDoubleStopped
	}
	return df(), nil
}
