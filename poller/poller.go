package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rexec/pipeline/internal"
)

// State is one of the three states a Poller may occupy.
type State int32

const (
	Active State = iota
	Paused
	Terminated
)

func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Paused:
		return "PAUSED"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrTerminated is returned by Pause/Resume once a Poller has been
	// terminated; terminal state is final.
	ErrTerminated = errors.New("poller: terminated")

	// ErrNotPaused is returned by Resume when the Poller is not
	// currently Paused.
	ErrNotPaused = errors.New("poller: not paused")
)

// Predicate is evaluated on every tick; if it returns false, the tick
// is skipped (no Reporter call is made) but the Poller keeps running.
type Predicate func() bool

// Reporter re-asserts the liveness of the entry this Poller guards,
// at the given stage, with the backplane.
type Reporter func(ctx context.Context, stage int32) error

// Poller periodically re-asserts an operation's execution stage with
// the backplane while a worker holds it.
type Poller struct {
	period    time.Duration
	predicate Predicate
	reporter  Reporter
	stage     atomic.Int32
	state     atomic.Int32
	task      internal.TimerTask
	log       *slog.Logger
}

// New creates a Poller in the ACTIVE state at initialStage. The
// caller must call Start to begin ticking.
func New(period time.Duration, initialStage int32, predicate Predicate, reporter Reporter, log *slog.Logger) *Poller {
	p := &Poller{
		period:    period,
		predicate: predicate,
		reporter:  reporter,
		log:       log,
	}
	p.stage.Store(initialStage)
	p.state.Store(int32(Active))
	return p
}

func (p *Poller) tick(ctx context.Context) {
	if !p.predicate() {
		return
	}
	if err := p.reporter(ctx, p.stage.Load()); err != nil {
		p.log.Warn("poller report failed", "error", err)
	}
}

// Start begins ticking every period, bound to ctx. Start must only be
// called once per Poller (and only while ACTIVE); use Resume to
// restart a paused Poller.
func (p *Poller) Start(ctx context.Context) {
	p.task.Start(ctx, p.tick, p.period)
}

// State returns the Poller's current state.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Pause stops further ticks without releasing the Poller's
// resources. Pause blocks until the current tick goroutine has fully
// stopped, so a subsequent Resume cannot race with it.
func (p *Poller) Pause() error {
	if !p.state.CompareAndSwap(int32(Active), int32(Paused)) {
		if p.State() == Terminated {
			return ErrTerminated
		}
		return nil // already paused
	}
	<-p.task.Stop()
	return nil
}

// Resume restarts ticking at newStage. Resume returns ErrNotPaused if
// the Poller is not currently Paused, and ErrTerminated if it has
// been terminated.
func (p *Poller) Resume(ctx context.Context, newStage int32) error {
	if p.State() == Terminated {
		return ErrTerminated
	}
	if !p.state.CompareAndSwap(int32(Paused), int32(Active)) {
		return ErrNotPaused
	}
	p.stage.Store(newStage)
	p.task.Start(ctx, p.tick, p.period)
	return nil
}

// Terminate stops ticking (if active) and transitions to TERMINATED.
// Terminate is idempotent.
func (p *Poller) Terminate() {
	prev := State(p.state.Swap(int32(Terminated)))
	if prev == Active {
		<-p.task.Stop()
	}
}
