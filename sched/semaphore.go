package sched

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// BoundedQueue is the "bounded message queue" OS primitive from the
// spec's Clock & OS adapter component. It limits the number of requests
// in flight (enqueued but not yet completed) to capacity. When the queue
// is saturated, TryAcquire reports false immediately and Acquire waits
// for a free slot — at.CommandAsync turns a false TryAcquire into the
// ErrMem response to a non-blocking request push.
//
// It is built on golang.org/x/sync/semaphore's counting semaphore, which
// is the direct analogue of the "counting semaphore" OS primitive the
// spec asks for.
type BoundedQueue struct {
	sem *semaphore.Weighted
}

// NewBoundedQueue creates a BoundedQueue that admits up to capacity
// concurrent outstanding requests.
func NewBoundedQueue(capacity int64) *BoundedQueue {
	return &BoundedQueue{sem: semaphore.NewWeighted(capacity)}
}

// TryAcquire attempts to reserve a slot without blocking, returning false
// if the queue is currently full.
func (q *BoundedQueue) TryAcquire() bool {
	return q.sem.TryAcquire(1)
}

// Acquire reserves a slot, blocking until one is available or ctx is
// done.
func (q *BoundedQueue) Acquire(ctx context.Context) error {
	return q.sem.Acquire(ctx, 1)
}

// Release frees a previously acquired slot.
func (q *BoundedQueue) Release() {
	q.sem.Release(1)
}
