package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rexec/pipeline"
	"github.com/rexec/pipeline/opctx"
	"github.com/rexec/pipeline/poller"
	"github.com/rexec/pipeline/queue"
)

// demoWorkerContext is a minimal pipeline.WorkerContext backed
// directly by a DistributedQueue. A real worker would instead talk to
// a remote-execution scheduler over gRPC; this exists to give cmd/worker
// something runnable to wire a Driver against.
type demoWorkerContext struct {
	name           string
	q              *queue.DistributedQueue
	dequeueTimeout time.Duration
	pollPeriod     time.Duration
	log            *slog.Logger
}

func (w *demoWorkerContext) GetName() string { return w.name }

func (w *demoWorkerContext) Match(ctx context.Context, listener pipeline.MatchListener) error {
	listener.OnWaitStart()
	entry, err := w.q.Dequeue(ctx, w.dequeueTimeout)
	listener.OnWaitEnd()
	if err != nil {
		if errors.Is(err, queue.ErrCancelled) {
			listener.OnEntry(nil)
			return nil
		}
		return err
	}
	listener.OnEntry(entry)
	return nil
}

func (w *demoWorkerContext) CreatePoller(stageName string, e *queue.Entry, stage opctx.ExecutionStage) (*poller.Poller, error) {
	action := e.ActionDigest
	reporter := func(ctx context.Context, s int32) error {
		w.log.Debug("liveness re-asserted", "stage", stageName, "action", action, "execution_stage", s)
		return nil
	}
	p := poller.New(w.pollPeriod, int32(stage), func() bool { return true }, reporter, w.log)
	p.Start(context.Background())
	return p, nil
}

func (w *demoWorkerContext) PutOperation(ctx context.Context, op *opctx.Operation) (bool, error) {
	w.log.Info("operation state updated", "name", op.Name, "stage", op.Metadata.Stage)
	return true, nil
}
