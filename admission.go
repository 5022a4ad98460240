package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// admission is the claim-accounting half of a Stage: a semaphore of
// width units, acquired one at a time so a cancellation partway
// through a multi-unit claim rolls back exactly the units already
// taken (never more, never fewer).
type admission struct {
	width int
	sem   *semaphore.Weighted
	held  atomic.Int64
}

func newAdmission(width int) *admission {
	return &admission{width: width, sem: semaphore.NewWeighted(int64(width))}
}

// acquire takes n units one at a time. If ctx is canceled before all
// n are acquired, every unit already acquired during this call is
// released before the error is returned.
func (a *admission) acquire(ctx context.Context, n int) (int, error) {
	var got int
	for got < n {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			if got > 0 {
				a.sem.Release(int64(got))
				a.held.Add(-int64(got))
			}
			return 0, err
		}
		got++
		a.held.Add(1)
	}
	return got, nil
}

func (a *admission) release(n int) {
	if n <= 0 {
		return
	}
	a.sem.Release(int64(n))
	a.held.Add(-int64(n))
}

func (a *admission) isClaimed() bool { return a.held.Load() > 0 }
func (a *admission) isFull() bool    { return a.held.Load() >= int64(a.width) }
