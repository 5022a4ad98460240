package internal

import (
	"context"
	"log/slog"
	"sync"
)

// TaskHandler is invoked once per item taken from a Dispatcher's slot.
type TaskHandler[T any] func(context.Context, T)

// Releasable is an admission-gated item: whatever claimed it on the
// way in must be told when the Dispatcher is done with it, exactly
// once, regardless of whether the handler succeeded, failed, or
// panicked.
type Releasable interface {
	Release()
}

// Dispatcher owns the handoff channel for one pipeline stage and the
// fixed-size pool of worker goroutines draining it. A width-1
// Dispatcher models a plain PipelineStage's single take-thread; a
// width-N Dispatcher models the N worker threads of a
// SuperscalarPipelineStage. The admission controller that gated what
// got put into the handoff slot hands its accounting to Dispatcher at
// that point: Dispatcher calls Release on every item itself once its
// handler returns, so a caller can never forget to give a slot back
// or double-release one by hand.
type Dispatcher[T Releasable] struct {
	width int
	depth int
	wg    sync.WaitGroup
	in    chan T
	ctx   context.Context
	cancel context.CancelFunc
	log   *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given worker width and
// handoff channel depth (the number of puts that may be outstanding
// before Put blocks).
func NewDispatcher[T Releasable](width int, depth int, log *slog.Logger) *Dispatcher[T] {
	return &Dispatcher[T]{
		width: width,
		depth: depth,
		log:   log,
	}
}

func (d *Dispatcher[T]) safeHandle(ctx context.Context, h TaskHandler[T], t T) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("stage worker panic recovered", "panic", r)
		}
	}()
	h(ctx, t)
}

func (d *Dispatcher[T]) worker(ctx context.Context, h TaskHandler[T]) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.in:
			d.safeHandle(ctx, h, t)
			t.Release()
		}
	}
}

// Put deposits t into the handoff slot. It blocks until the handoff
// channel (depth entries deep) has room for it or the Dispatcher is
// stopped, in which case it returns false.
func (d *Dispatcher[T]) Put(t T) bool {
	select {
	case <-d.ctx.Done():
		return false
	case d.in <- t:
		return true
	}
}

// Start launches the worker pool. h is invoked once per item taken
// from the handoff slot, on one of width worker goroutines.
func (d *Dispatcher[T]) Start(ctx context.Context, h TaskHandler[T]) {
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.in = make(chan T, d.depth)
	for i := 0; i < d.width; i++ {
		d.wg.Add(1)
		go d.worker(d.ctx, h)
	}
}

// Stop cancels all worker goroutines and returns a channel that
// closes once every in-flight handler has returned.
func (d *Dispatcher[T]) Stop() DoneChan {
	d.cancel()
	return WrapWaitGroup(&d.wg)
}
