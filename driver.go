package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rexec/pipeline/internal"
)

// Driver composes a MatchStage and an ordered chain of Stages into a
// running pipeline: it wires each stage's successor and error sink,
// starts every stage (each stage runs its own goroutines, bound to a
// context derived from Run's), runs the error-reporting loop under an
// errgroup, and sequences shutdown (stop ingestion, then stop each
// stage in chain order, then cancel the driver's context).
type Driver struct {
	match   *MatchStage
	stages  []*Stage
	errSink chan *FailedContext
	metrics *Metrics
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDriver wires match's output to the head of stages, chains each
// stage to the next, and shares one error sink across all of them.
// metrics may be nil; if so, stages skip instrumentation entirely.
func NewDriver(match *MatchStage, stages []*Stage, metrics *Metrics, log *slog.Logger) *Driver {
	sink := make(chan *FailedContext, 64)
	match.setErrSink(sink)
	match.setMetrics(metrics)
	for i, s := range stages {
		s.setErrSink(sink)
		s.setMetrics(metrics)
		if i+1 < len(stages) {
			s.SetNext(stages[i+1])
		}
	}
	return &Driver{match: match, stages: stages, errSink: sink, metrics: metrics, log: log}
}

// Run starts every stage thread and the error-reporting loop, and
// blocks until ctx is canceled or Shutdown cancels the driver's
// context. Only the error-reporting loop is joined before Run
// returns; stage goroutines are not waited for here (Shutdown waits
// for them).
func (d *Driver) Run(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)
	defer d.cancel()

	eg, egCtx := errgroup.WithContext(d.ctx)

	if err := d.match.Start(egCtx); err != nil {
		return err
	}
	for _, s := range d.stages {
		if err := s.Start(egCtx); err != nil {
			return err
		}
	}

	eg.Go(func() error {
		for {
			select {
			case <-egCtx.Done():
				return nil
			case f := <-d.errSink:
				d.report(f)
			}
		}
	})

	return eg.Wait()
}

func (d *Driver) report(f *FailedContext) {
	switch {
	case errors.Is(f.Err, ErrCancelled):
		d.log.Debug("operation dropped on cancellation", "operation", f.Context.Operation().Name, "error", f.Err)
	case errors.Is(f.Err, ErrTransient):
		d.log.Warn("operation failed transiently", "operation", f.Context.Operation().Name, "error", f.Err)
	default:
		d.log.Error("operation failed fatally", "operation", f.Context.Operation().Name, "error", f.Err)
	}
}

// Shutdown performs the sequenced graceful stop the spec requires:
// stop MatchStage from ingesting new work, wait for its thread to
// return, then stop each downstream stage in chain order, waiting for
// its in-flight handlers to return, before canceling the driver's own
// context. Stopping a stage cancels the context its handlers run
// under, so in-flight work is interrupted rather than run to
// completion, and entries still in a stage's handoff buffer may go
// unprocessed. It returns early with ctx's error if ctx is canceled
// before the sequence completes.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.match.PrepareForGracefulShutdown()

	done, err := d.match.Stop()
	if err != nil {
		return err
	}
	if err := waitDone(ctx, done); err != nil {
		return err
	}
	for _, s := range d.stages {
		sd, err := s.Stop()
		if err != nil {
			return err
		}
		done = internal.Combine(done, sd)
		if err := waitDone(ctx, sd); err != nil {
			return err
		}
	}
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

func waitDone(ctx context.Context, done internal.DoneChan) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
