package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rexec/pipeline/internal"
	"github.com/rexec/pipeline/opctx"
)

// Handler processes a single operation on a Stage. A nil return
// advances c to the stage's successor (if any); a non-nil return
// routes c to the Driver's error sink instead. Wrap the returned
// error with ErrTransient or ErrCancelled to steer how it is
// reported; an unwrapped error is treated as ErrFatal.
type Handler func(ctx context.Context, c *opctx.Context) error

// ClaimsFunc computes how many of a stage's width units an operation
// requires. A nil ClaimsFunc is equivalent to a constant 1, the
// single-slot PipelineStage case.
type ClaimsFunc func(c *opctx.Context) int

// Claim is the token returned by Stage.Claim. Exactly one of Put or
// Release must eventually be called on it; calling Release a second
// time is a no-op. After a successful Put the stage releases the claim
// itself once the handler returns; a Release by the caller after Put
// returns the slots before that handler has finished.
type Claim struct {
	stage    *Stage
	units    int
	released atomic.Bool
}

// Release returns the reserved slots to the stage without handing off
// an operation. Safe to call from any goroutine, at most once with
// effect.
func (c *Claim) Release() {
	if c.released.CompareAndSwap(false, true) {
		c.stage.admission.release(c.units)
		c.stage.reportClaimGauge()
	}
}

type inbound struct {
	c     *opctx.Context
	claim *Claim
}

// Release implements internal.Releasable: the Dispatcher calls this
// itself once process has returned, so Stage never has to remember to
// release a claim by hand.
func (i inbound) Release() { i.claim.Release() }

// Stage is a single pipeline node. Its width and ClaimsFunc determine
// which spec role it plays: width 1 with a nil ClaimsFunc is a plain
// PipelineStage; width N with a ClaimsFunc returning up to N is a
// SuperscalarPipelineStage. Both share one admission controller (claim
// one unit at a time) and one internal.Dispatcher, which bounds
// concurrently-running handlers to at most width goroutines — exactly
// one worker thread per active slot, since a slot can only be
// occupied by a claimed operation. Releasing a claim is the
// Dispatcher's job, not process's: inbound implements
// internal.Releasable, so the claim goes back the moment a handler
// returns, succeeds, fails, or panics, with no separate bookkeeping
// in Stage itself.
type Stage struct {
	name       string
	width      int
	claimsFn   ClaimsFunc
	admission  *admission
	handler    Handler
	next       *Stage
	errSink    chan<- *FailedContext
	log        *slog.Logger
	dispatcher *internal.Dispatcher[inbound]
	metrics    *Metrics

	terminated atomic.Bool
	lc         lcBase
}

// NewStage creates a single-slot, single-claim-per-operation stage.
func NewStage(name string, handler Handler, log *slog.Logger) *Stage {
	return NewSuperscalarStage(name, 1, nil, handler, log)
}

// NewSuperscalarStage creates a width-N stage whose operations may
// each reserve more than one unit, as computed by claimsFn.
func NewSuperscalarStage(name string, width int, claimsFn ClaimsFunc, handler Handler, log *slog.Logger) *Stage {
	return &Stage{
		name:       name,
		width:      width,
		claimsFn:   claimsFn,
		admission:  newAdmission(width),
		handler:    handler,
		dispatcher: internal.NewDispatcher[inbound](width, width, log),
		log:        log,
	}
}

// Name returns the stage's name, used in logs and metrics labels.
func (s *Stage) Name() string { return s.name }

// SetNext wires this stage's successor. It must be called, if at all,
// before Start; a nil successor marks this stage as terminal (a
// report sink).
func (s *Stage) SetNext(next *Stage) { s.next = next }

// setErrSink wires the channel a Driver drains for failed operations.
// Unexported: only a Driver assembling a chain calls it.
func (s *Stage) setErrSink(sink chan<- *FailedContext) { s.errSink = sink }

// setMetrics wires the instrument bundle a Driver reports through.
// Unexported: only a Driver assembling a chain calls it.
func (s *Stage) setMetrics(m *Metrics) { s.metrics = m }

func (s *Stage) reportClaimGauge() {
	if s.metrics != nil {
		s.metrics.ClaimsInUse.WithLabelValues(s.name).Set(float64(s.admission.held.Load()))
	}
}

// IsClaimed reports whether this stage currently holds any claims.
func (s *Stage) IsClaimed() bool { return s.admission.isClaimed() }

// IsFull reports whether this stage is at full admission capacity.
func (s *Stage) IsFull() bool { return s.admission.isFull() }

// Claim reserves the slots c requires on this stage, blocking until
// they are available or ctx is done. It returns (nil, nil) once the
// stage has been stopped — the spec's "return false" case — and
// (nil, err) if ctx was canceled while the stage is still live. A
// request for more units than the stage's total width blocks
// indefinitely unless interrupted, since it can never be satisfied;
// this is intentional and lets callers exercise partial-claim
// rollback under cancellation.
func (s *Stage) Claim(ctx context.Context, c *opctx.Context) (*Claim, error) {
	if s.terminated.Load() {
		return nil, nil
	}
	k := 1
	if s.claimsFn != nil {
		k = s.claimsFn(c)
	}
	if k < 1 {
		return nil, fmt.Errorf("%s: claimsRequired returned %d", s.name, k)
	}
	got, err := s.admission.acquire(ctx, k)
	if err != nil {
		if s.terminated.Load() {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	claim := &Claim{stage: s, units: got}
	s.reportClaimGauge()
	return claim, nil
}

// Put hands c to this stage, consuming a Claim obtained from this
// same Stage. It blocks until the stage's handoff buffer (width
// entries deep) has room for c or the stage is stopped. On failure it
// returns false and leaves
// claim unreleased — the caller still owns it and must Release it.
func (s *Stage) Put(claim *Claim, c *opctx.Context) bool {
	return s.dispatcher.Put(inbound{c: c, claim: claim})
}

// Start launches this stage's worker pool under ctx. Cancelling ctx
// (or calling Stop) stops the pool from accepting further work; Stop
// reports when every in-flight handler invocation has returned.
// Starting an already-started stage returns ErrDoubleStarted.
func (s *Stage) Start(ctx context.Context) error {
	if err := s.lc.tryStart(); err != nil {
		return err
	}
	s.dispatcher.Start(ctx, s.process)
	return nil
}

// Stop marks the stage terminated: Claim starts returning (nil, nil)
// and no further handoffs are accepted. The returned channel closes
// once every handler goroutine already in flight has returned.
// Stopping a stage that was never started, or stopping it twice,
// returns ErrDoubleStopped and a nil channel.
func (s *Stage) Stop() (internal.DoneChan, error) {
	s.terminated.Store(true)
	return s.lc.tryStop(func() internal.DoneChan {
		return s.dispatcher.Stop()
	})
}

func (s *Stage) process(ctx context.Context, item inbound) {
	if err := s.handler(ctx, item.c); err != nil {
		s.fail(ctx, item.c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.StageThroughput.WithLabelValues(s.name).Inc()
	}
	if s.next == nil {
		return
	}
	s.forward(ctx, item.c)
}

// forward claims space on the successor stage and hands c off. A
// claim failure (cancellation racing the handoff) is itself routed to
// the error sink rather than silently dropped, per the requirement
// that a context is never lost without being accounted for.
func (s *Stage) forward(ctx context.Context, c *opctx.Context) {
	claim, err := s.next.Claim(ctx, c)
	if err != nil {
		s.fail(ctx, c, err)
		return
	}
	if claim == nil {
		// successor has been stopped; account for c on the error sink.
		s.fail(ctx, c, ErrCancelled)
		return
	}
	if !s.next.Put(claim, c) {
		claim.Release()
		s.fail(ctx, c, ErrCancelled)
	}
}

func (s *Stage) fail(ctx context.Context, c *opctx.Context, err error) {
	if s.metrics != nil {
		s.metrics.OperationsFailed.WithLabelValues(failureKind(err)).Inc()
	}
	if s.errSink == nil {
		s.log.Error("operation failed with no error sink wired", "stage", s.name, "error", err)
		return
	}
	select {
	case s.errSink <- &FailedContext{Context: c, Err: err}:
	case <-ctx.Done():
	}
}
