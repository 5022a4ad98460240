package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const visitPageSize = 10000

// DistributedQueue is a Redis-backed, at-least-once work queue.
//
// Two lists are maintained per logical queue name: the pending list
// itself, and a sibling "<name>_dequeue" list holding entries a
// worker has popped but not yet acknowledged via RemoveFromDequeue.
// The transition between them is a single atomic Redis LMOVE/BLMOVE,
// never an LPOP followed by a separate RPUSH.
type DistributedQueue struct {
	client      *redis.Client
	name        string
	dequeueName string
	log         *slog.Logger
}

// New creates a DistributedQueue bound to the given Redis client and
// base queue name. The "_dequeue" suffix is reserved for the sibling
// in-flight list and may not be used as (or end) the base name.
func New(client *redis.Client, name string, log *slog.Logger) (*DistributedQueue, error) {
	if strings.HasSuffix(name, "_dequeue") {
		return nil, ErrBadName
	}
	return &DistributedQueue{
		client:      client,
		name:        name,
		dequeueName: name + "_dequeue",
		log:         log,
	}, nil
}

func encodeEntry(e *Entry) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeEntry(s string) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func wrapTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// Push appends val to the tail of the pending list, with priority
// 1.0. See PushWithPriority for the priority-accepting variant.
func (q *DistributedQueue) Push(ctx context.Context, val *Entry) error {
	return q.PushWithPriority(ctx, val, 1.0)
}

// PushWithPriority appends val to the tail of the pending list.
//
// priority is accepted for forward compatibility with a
// priority-ordered queue variant, but is ignored by this FIFO
// implementation: entries are always served in insertion order.
func (q *DistributedQueue) PushWithPriority(ctx context.Context, val *Entry, priority float64) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(ErrCancelled, err)
	}
	encoded, err := encodeEntry(val)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.name, encoded).Err(); err != nil {
		return wrapTransient(err)
	}
	return nil
}

// NonBlockingDequeue atomically moves one entry from the head of the
// pending list to the head of the in-flight list and returns it. If
// the pending list is empty, it returns (nil, nil) immediately.
func (q *DistributedQueue) NonBlockingDequeue(ctx context.Context) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrCancelled, err)
	}
	val, err := q.client.LMove(ctx, q.name, q.dequeueName, "left", "left").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, errors.Join(ErrCancelled, err)
		}
		return nil, wrapTransient(err)
	}
	return decodeEntry(val)
}

// Dequeue behaves like NonBlockingDequeue but blocks up to timeout
// waiting for an entry to become available, returning (nil, nil) on
// expiry. A non-positive timeout degenerates to NonBlockingDequeue.
//
// The blocking BLMOVE runs on a dedicated connection owned by a
// helper goroutine. If ctx is canceled while waiting, that connection
// is forcibly closed to unblock the server-side wait; any error from
// the close itself is joined with ErrCancelled rather than hiding the
// cancellation. A reply that races in successfully despite the
// cancellation is still honored — the entry already left the pending
// list and must not be silently lost — but the caller's context
// remains canceled regardless.
func (q *DistributedQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Entry, error) {
	if timeout <= 0 {
		return q.NonBlockingDequeue(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrCancelled, err)
	}

	conn := q.client.Conn()
	defer conn.Close()

	type reply struct {
		val string
		err error
	}
	resCh := make(chan reply, 1)
	go func() {
		val, err := conn.BLMove(context.Background(), q.name, q.dequeueName, "left", "left", timeout).Result()
		resCh <- reply{val, err}
	}()

	select {
	case <-ctx.Done():
		closeErr := conn.Close()
		select {
		case r := <-resCh:
			if r.err == nil {
				q.log.Warn("dequeue reply raced with cancellation; entry honored", "queue", q.name)
				return decodeEntry(r.val)
			}
		default:
		}
		if closeErr != nil {
			return nil, errors.Join(ErrCancelled, closeErr)
		}
		return nil, ErrCancelled
	case r := <-resCh:
		if r.err != nil {
			if errors.Is(r.err, redis.Nil) {
				return nil, nil
			}
			return nil, wrapTransient(r.err)
		}
		return decodeEntry(r.val)
	}
}

// RemoveFromDequeue removes one occurrence of val from the in-flight
// list, scanning from the tail, and reports whether anything was
// removed. This is the acknowledgement step after a stage has
// durably committed an entry downstream.
func (q *DistributedQueue) RemoveFromDequeue(ctx context.Context, val *Entry) (bool, error) {
	return q.remove(ctx, q.dequeueName, val, -1)
}

// RemoveAll removes every occurrence of val from the pending list.
func (q *DistributedQueue) RemoveAll(ctx context.Context, val *Entry) (bool, error) {
	return q.remove(ctx, q.name, val, 0)
}

func (q *DistributedQueue) remove(ctx context.Context, key string, val *Entry, count int64) (bool, error) {
	encoded, err := encodeEntry(val)
	if err != nil {
		return false, err
	}
	removed, err := q.client.LRem(ctx, key, count, encoded).Result()
	if err != nil {
		return false, wrapTransient(err)
	}
	return removed > 0, nil
}

// Size returns the current length of the pending list.
func (q *DistributedQueue) Size(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, wrapTransient(err)
	}
	return n, nil
}

// Visitor is invoked once per entry during a Visit/VisitDequeue walk.
// Returning false stops the walk early.
type Visitor func(*Entry) bool

// Visit walks the pending list in order, paging in batches of 10000.
// The walk is not a snapshot: concurrent pushes, pops, or removals
// may cause entries to be skipped or visited more than once. This is
// documented, best-effort behavior, not a bug to be fixed.
func (q *DistributedQueue) Visit(ctx context.Context, visitor Visitor) error {
	return q.visit(ctx, q.name, visitor)
}

// VisitDequeue walks the in-flight list with the same paging and
// consistency caveats as Visit.
func (q *DistributedQueue) VisitDequeue(ctx context.Context, visitor Visitor) error {
	return q.visit(ctx, q.dequeueName, visitor)
}

func (q *DistributedQueue) visit(ctx context.Context, key string, visitor Visitor) error {
	var start int64
	for {
		vals, err := q.client.LRange(ctx, key, start, start+visitPageSize-1).Result()
		if err != nil {
			return wrapTransient(err)
		}
		for _, v := range vals {
			entry, err := decodeEntry(v)
			if err != nil {
				q.log.Warn("skipping malformed queue entry during visit", "key", key, "error", err)
				continue
			}
			if !visitor(entry) {
				return nil
			}
		}
		if int64(len(vals)) < visitPageSize {
			return nil
		}
		start += int64(len(vals))
	}
}
