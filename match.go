package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rexec/pipeline/internal"
	"github.com/rexec/pipeline/opctx"
	"github.com/rexec/pipeline/queue"
)

// MatchStage is the pipeline's entry stage: it pulls one queue entry
// at a time from a WorkerContext, seeds a fresh OperationContext, and
// forwards it to output. It is not built on the generic Stage type
// since it has no upstream to take from — it is its own source.
type MatchStage struct {
	worker WorkerContext
	output *Stage
	log    *slog.Logger

	shutdown atomic.Bool // PrepareForGracefulShutdown latch
	errSink  chan<- *FailedContext
	metrics  *Metrics

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	terminated atomic.Bool
	lc         lcBase
}

// NewMatchStage creates a MatchStage that forwards matched operations
// to output.
func NewMatchStage(worker WorkerContext, output *Stage, log *slog.Logger) *MatchStage {
	return &MatchStage{worker: worker, output: output, log: log}
}

func (m *MatchStage) setErrSink(sink chan<- *FailedContext) { m.errSink = sink }

func (m *MatchStage) setMetrics(mt *Metrics) { m.metrics = mt }

// PrepareForGracefulShutdown sets the shutdown latch: subsequent
// iterations become no-ops, so MatchStage stops consuming new work
// while letting anything already forwarded drain downstream.
func (m *MatchStage) PrepareForGracefulShutdown() {
	m.shutdown.Store(true)
}

// Start launches MatchStage's single worker thread. Starting an
// already-started MatchStage returns ErrDoubleStarted.
func (m *MatchStage) Start(ctx context.Context) error {
	if err := m.lc.tryStart(); err != nil {
		return err
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.ctx.Done():
				return
			default:
				m.iterate(m.ctx)
			}
		}
	}()
	return nil
}

// Stop terminates MatchStage. The returned channel closes once its
// worker thread has returned. Stopping a MatchStage that was never
// started, or stopping it twice, returns ErrDoubleStopped.
func (m *MatchStage) Stop() (internal.DoneChan, error) {
	m.terminated.Store(true)
	return m.lc.tryStop(func() internal.DoneChan {
		m.cancel()
		return internal.WrapWaitGroup(&m.wg)
	})
}

func (m *MatchStage) iterate(ctx context.Context) {
	if m.shutdown.Load() {
		return
	}

	opCtx := opctx.New()
	claim, err := m.output.Claim(ctx, opCtx)
	if err != nil {
		m.fail(opCtx, err)
		return
	}
	if claim == nil {
		// output is terminating; nothing to do.
		return
	}

	l := &matchListener{stage: m, opCtx: opCtx, claim: claim}
	if err := m.worker.Match(ctx, l); err != nil {
		l.OnError(err)
	}
	if !l.matched {
		claim.Release()
	}
}

// onOperationPolled stamps the partial-execution metadata a freshly
// matched operation carries, best-effort reports it, pauses its
// poller, freezes the context, and forwards it to output. A
// cancelled forward is redirected to the error sink rather than
// dropped.
func (m *MatchStage) onOperationPolled(c *opctx.Context, claim *Claim) {
	e := c.QueueEntry()
	md := &c.Operation().Metadata
	md.Worker = m.worker.GetName()
	md.ActionDigest = e.ActionDigest
	md.QueuedOperationDigest = e.QueuedOperationDigest
	md.RequestMetadata = e.Execute.RequestMetadata
	md.Stage = opctx.StageQueued
	md.StdoutStreamName = e.Execute.StdoutStreamName
	md.StderrStreamName = e.Execute.StderrStreamName
	md.QueuedTimestamp = e.Execute.QueuedTimestamp
	md.WorkerStartTimestamp = time.Now()
	c.Operation().Name = e.Execute.OperationName

	if ok, err := m.worker.PutOperation(m.ctx, c.Operation()); err != nil || !ok {
		m.log.Warn("putOperation failed after match", "operation", c.Operation().Name, "error", err)
	}
	if p := c.Poller(); p != nil {
		if err := p.Pause(); err != nil {
			m.log.Warn("failed to pause poller after match", "operation", c.Operation().Name, "error", err)
		}
	}
	if err := c.Freeze(); err != nil {
		m.fail(c, err)
		claim.Release()
		return
	}
	if !m.output.Put(claim, c) {
		claim.Release()
		m.fail(c, ErrCancelled)
	}
}

func (m *MatchStage) fail(c *opctx.Context, err error) {
	if m.metrics != nil {
		m.metrics.OperationsFailed.WithLabelValues(failureKind(err)).Inc()
	}
	if m.errSink == nil {
		m.log.Error("match failed with no error sink wired", "error", err)
		return
	}
	select {
	case m.errSink <- &FailedContext{Context: c, Err: err}:
	case <-m.ctx.Done():
	}
}

// matchListener adapts one iterate() call's MatchListener callbacks
// onto its enclosing MatchStage.
type matchListener struct {
	stage     *MatchStage
	opCtx     *opctx.Context
	claim     *Claim
	waitStart time.Time
	matched   bool
}

func (l *matchListener) OnWaitStart() { l.waitStart = time.Now() }

func (l *matchListener) OnWaitEnd() {}

func (l *matchListener) OnEntry(e *queue.Entry) bool {
	if e == nil {
		return false
	}
	if err := l.opCtx.SetQueueEntry(e); err != nil {
		l.stage.fail(l.opCtx, err)
		return false
	}
	p, err := l.stage.worker.CreatePoller("MatchStage", e, opctx.StageQueued)
	if err != nil {
		l.stage.fail(l.opCtx, err)
		return false
	}
	if err := l.opCtx.SetPoller(p); err != nil {
		l.stage.fail(l.opCtx, err)
		return false
	}
	l.matched = true
	l.stage.onOperationPolled(l.opCtx, l.claim)
	return true
}

func (l *matchListener) OnError(err error) {
	l.stage.fail(l.opCtx, err)
}
