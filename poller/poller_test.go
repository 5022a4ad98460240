package poller_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rexec/pipeline/poller"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollerTicksAndReports(t *testing.T) {
	var reports atomic.Int32
	var lastStage atomic.Int32

	p := poller.New(10*time.Millisecond, 1, func() bool { return true }, func(ctx context.Context, stage int32) error {
		reports.Add(1)
		lastStage.Store(stage)
		return nil
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	time.Sleep(60 * time.Millisecond)
	if reports.Load() == 0 {
		t.Fatal("expected at least one report")
	}
	if lastStage.Load() != 1 {
		t.Fatalf("expected stage 1, got %d", lastStage.Load())
	}
}

func TestPollerPauseResume(t *testing.T) {
	var reports atomic.Int32

	p := poller.New(10*time.Millisecond, 1, func() bool { return true }, func(ctx context.Context, stage int32) error {
		reports.Add(1)
		return nil
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	time.Sleep(35 * time.Millisecond)
	if err := p.Pause(); err != nil {
		t.Fatal(err)
	}
	if p.State() != poller.Paused {
		t.Fatalf("expected Paused, got %v", p.State())
	}

	afterPause := reports.Load()
	time.Sleep(50 * time.Millisecond)
	if reports.Load() != afterPause {
		t.Fatalf("expected no ticks while paused, before=%d after=%d", afterPause, reports.Load())
	}

	if err := p.Resume(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if p.State() != poller.Active {
		t.Fatalf("expected Active after resume, got %v", p.State())
	}
	time.Sleep(35 * time.Millisecond)
	if reports.Load() <= afterPause {
		t.Fatal("expected additional reports after resume")
	}
}

func TestPollerTerminate(t *testing.T) {
	p := poller.New(10*time.Millisecond, 1, func() bool { return true }, func(ctx context.Context, stage int32) error {
		return nil
	}, discardLogger())

	ctx := context.Background()
	p.Start(ctx)
	time.Sleep(15 * time.Millisecond)

	p.Terminate()
	if p.State() != poller.Terminated {
		t.Fatalf("expected Terminated, got %v", p.State())
	}

	if err := p.Resume(ctx, 3); !errors.Is(err, poller.ErrTerminated) {
		t.Fatalf("expected ErrTerminated, got %v", err)
	}
}

func TestPollerSkipsTickWhenPredicateFalse(t *testing.T) {
	var reports atomic.Int32
	active := atomic.Bool{}

	p := poller.New(10*time.Millisecond, 1, func() bool { return active.Load() }, func(ctx context.Context, stage int32) error {
		reports.Add(1)
		return nil
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	time.Sleep(35 * time.Millisecond)
	if reports.Load() != 0 {
		t.Fatalf("expected no reports while predicate false, got %d", reports.Load())
	}

	active.Store(true)
	time.Sleep(35 * time.Millisecond)
	if reports.Load() == 0 {
		t.Fatal("expected reports once predicate became true")
	}
}
