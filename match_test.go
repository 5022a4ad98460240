package pipeline_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rexec/pipeline"
	"github.com/rexec/pipeline/opctx"
	"github.com/rexec/pipeline/poller"
	"github.com/rexec/pipeline/queue"
)

// fakeWorker is a minimal pipeline.WorkerContext backed by a channel of
// entries, standing in for a real backplane in MatchStage tests.
type fakeWorker struct {
	name    string
	entries chan *queue.Entry
	calls   atomic.Int64
}

func (w *fakeWorker) GetName() string { return w.name }

func (w *fakeWorker) Match(ctx context.Context, l pipeline.MatchListener) error {
	w.calls.Add(1)
	l.OnWaitStart()
	select {
	case e := <-w.entries:
		l.OnWaitEnd()
		l.OnEntry(e)
		return nil
	case <-ctx.Done():
		l.OnWaitEnd()
		return ctx.Err()
	}
}

func (w *fakeWorker) CreatePoller(stageName string, e *queue.Entry, stage opctx.ExecutionStage) (*poller.Poller, error) {
	p := poller.New(time.Hour, int32(stage), func() bool { return true },
		func(context.Context, int32) error { return nil }, discardLogger())
	p.Start(context.Background())
	return p, nil
}

func (w *fakeWorker) PutOperation(context.Context, *opctx.Operation) (bool, error) {
	return true, nil
}

// TestMatchStageGracefulShutdown is spec scenario 4: the shutdown
// latch set before any iterate() must keep MatchStage from ever
// calling into the worker, let alone consuming an entry.
func TestMatchStageGracefulShutdown(t *testing.T) {
	worker := &fakeWorker{name: "w1", entries: make(chan *queue.Entry, 2)}
	worker.entries <- &queue.Entry{ActionDigest: "A"}
	worker.entries <- &queue.Entry{ActionDigest: "B"}

	received := make(chan *opctx.Context, 1)
	output := pipeline.NewStage("output", func(_ context.Context, c *opctx.Context) error {
		received <- c
		return nil
	}, discardLogger())

	match := pipeline.NewMatchStage(worker, output, discardLogger())
	match.PrepareForGracefulShutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := output.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := match.Start(ctx); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := match.Stop(); err != nil {
		t.Fatal(err)
	}
	if worker.calls.Load() != 0 {
		t.Fatalf("expected worker.Match to never be called, got %d calls", worker.calls.Load())
	}
	select {
	case <-received:
		t.Fatal("expected no context forwarded downstream")
	default:
	}
	if len(worker.entries) != 2 {
		t.Fatalf("expected both entries to remain unconsumed, got %d left", len(worker.entries))
	}
}

// TestMatchStageForwardsMetadata is spec scenario 6: a matched entry's
// queued-operation digest D, action digest, request metadata, and
// operation name must all survive into the context MatchStage hands
// to its output stage, stamped with QUEUED, the worker's name, and a
// non-zero start timestamp.
func TestMatchStageForwardsMetadata(t *testing.T) {
	worker := &fakeWorker{name: "worker-7", entries: make(chan *queue.Entry, 1)}
	worker.entries <- &queue.Entry{
		ActionDigest:          "deadbeef",
		QueuedOperationDigest: "D",
		Execute: queue.ExecuteEntry{
			OperationName:   "op-7",
			RequestMetadata: map[string]string{"correlation_id": "abc"},
		},
	}

	received := make(chan *opctx.Context, 1)
	output := pipeline.NewStage("output", func(_ context.Context, c *opctx.Context) error {
		received <- c
		return nil
	}, discardLogger())

	match := pipeline.NewMatchStage(worker, output, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := output.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := match.Start(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-received:
		op := c.Operation()
		if op.Name != "op-7" {
			t.Fatalf("expected operation name op-7, got %q", op.Name)
		}
		if op.Metadata.ActionDigest != "deadbeef" {
			t.Fatalf("expected action digest deadbeef, got %q", op.Metadata.ActionDigest)
		}
		if op.Metadata.QueuedOperationDigest != "D" {
			t.Fatalf("expected queued-operation digest D, got %q", op.Metadata.QueuedOperationDigest)
		}
		if op.Metadata.RequestMetadata["correlation_id"] != "abc" {
			t.Fatalf("expected request metadata to survive, got %v", op.Metadata.RequestMetadata)
		}
		if op.Metadata.Stage != opctx.StageQueued {
			t.Fatalf("expected stage QUEUED, got %s", op.Metadata.Stage)
		}
		if op.Metadata.Worker != "worker-7" {
			t.Fatalf("expected worker worker-7, got %q", op.Metadata.Worker)
		}
		if op.Metadata.WorkerStartTimestamp.IsZero() {
			t.Fatal("expected a non-zero worker start timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("expected a context to be forwarded downstream")
	}

	if _, err := match.Stop(); err != nil {
		t.Fatal(err)
	}
}
