package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rexec/pipeline"
	"github.com/rexec/pipeline/opctx"
	"github.com/rexec/pipeline/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frozenContext(t *testing.T, digest string) *opctx.Context {
	t.Helper()
	c := opctx.New()
	if err := c.SetQueueEntry(&queue.Entry{ActionDigest: digest}); err != nil {
		t.Fatal(err)
	}
	if err := c.Freeze(); err != nil {
		t.Fatal(err)
	}
	return c
}

// TestPartialClaimRollback is spec scenario 1: a width-3 stage, a
// caller requesting 5 claims, interrupted once the stage reports full.
// The caller must see ErrCancelled and the stage must report no held
// claims afterward — not 3, not any partial amount.
func TestPartialClaimRollback(t *testing.T) {
	stage := pipeline.NewSuperscalarStage("execute", 3, func(*opctx.Context) int { return 5 }, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := stage.Claim(ctx, frozenContext(t, "A"))
		errc <- err
	}()

	deadline := time.After(time.Second)
	for !stage.IsFull() {
		select {
		case <-deadline:
			t.Fatal("stage never reached full admission")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, pipeline.ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Claim did not return after cancellation")
	}
	if stage.IsClaimed() {
		t.Fatal("expected no claims held after rollback")
	}
}

func TestClaimReleaseRoundTrip(t *testing.T) {
	stage := pipeline.NewStage("fetch", nil, discardLogger())
	claim, err := stage.Claim(context.Background(), frozenContext(t, "A"))
	if err != nil {
		t.Fatal(err)
	}
	if !stage.IsClaimed() {
		t.Fatal("expected claim to be held")
	}
	claim.Release()
	claim.Release() // second release must be a no-op, not a double-free
	if stage.IsClaimed() {
		t.Fatal("expected claim released")
	}
}

func TestStageForwardsOnSuccess(t *testing.T) {
	done := make(chan *opctx.Context, 1)
	next := pipeline.NewStage("report", func(_ context.Context, c *opctx.Context) error {
		done <- c
		return nil
	}, discardLogger())
	first := pipeline.NewStage("fetch", func(context.Context, *opctx.Context) error { return nil }, discardLogger())
	first.SetNext(next)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := next.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := first.Start(ctx); err != nil {
		t.Fatal(err)
	}

	c := frozenContext(t, "A")
	claim, err := first.Claim(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Put(claim, c) {
		t.Fatal("expected Put to succeed")
	}

	select {
	case got := <-done:
		if got.QueueEntry().ActionDigest != "A" {
			t.Fatalf("expected forwarded context for A, got %q", got.QueueEntry().ActionDigest)
		}
	case <-time.After(time.Second):
		t.Fatal("context was not forwarded to next stage")
	}
}

func TestStageDoubleStartStop(t *testing.T) {
	stage := pipeline.NewStage("fetch", func(context.Context, *opctx.Context) error { return nil }, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := stage.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := stage.Start(ctx); !errors.Is(err, pipeline.ErrDoubleStarted) {
		t.Fatalf("expected ErrDoubleStarted, got %v", err)
	}
	if _, err := stage.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, err := stage.Stop(); !errors.Is(err, pipeline.ErrDoubleStopped) {
		t.Fatalf("expected ErrDoubleStopped, got %v", err)
	}
}

func TestClaimReturnsNilAfterStop(t *testing.T) {
	stage := pipeline.NewStage("fetch", func(context.Context, *opctx.Context) error { return nil }, discardLogger())
	ctx := context.Background()
	if err := stage.Start(ctx); err != nil {
		t.Fatal(err)
	}
	done, err := stage.Stop()
	if err != nil {
		t.Fatal(err)
	}
	<-done

	claim, err := stage.Claim(ctx, frozenContext(t, "A"))
	if err != nil {
		t.Fatalf("expected no error after stop, got %v", err)
	}
	if claim != nil {
		t.Fatal("expected nil claim once stage is terminated")
	}
}
