// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// OverflowPolicy selects what Push does when the queue is full. The policy
// is fixed at construction and documented behavior, not a runtime knob.
type OverflowPolicy int

const (
	// Backpressure blocks the pusher until space frees up. Used by the
	// long-duration recorder, where losing audio is worse than briefly
	// stalling the capture callback.
	Backpressure OverflowPolicy = iota

	// DropOldest evicts the oldest queued block and never blocks. Used by
	// the live monitor, which must not stall the hardware callback; stale
	// audio is worthless to a real-time display anyway.
	DropOldest
)

// ParsePolicy converts a config string ("block", "drop_oldest") to an
// OverflowPolicy.
func ParsePolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "block":
		return Backpressure, nil
	case "drop_oldest":
		return DropOldest, nil
	default:
		return Backpressure, errors.New("unknown queue policy: " + s)
	}
}

var (
	// ErrQueueTimeout is returned by Pop when the wait deadline elapses
	// with the queue still empty.
	ErrQueueTimeout = errors.New("queue read timed out")

	// ErrQueueClosed is returned once the queue is closed and drained.
	ErrQueueClosed = errors.New("queue closed")

	// ErrQueueFull is returned by TryPush when no slot is free.
	ErrQueueFull = errors.New("queue full")
)

// Queue is the bounded FIFO between the capture producer and the consumer.
// Its depth never exceeds the capacity fixed at construction; push and pop
// are the only operations. Safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	ring   []Block // Fixed-size circular buffer
	head   int
	count  int
	policy OverflowPolicy

	closed  bool
	dropped uint64
}

// NewQueue creates a queue holding at most capacity blocks. Capacity must
// be positive.
func NewQueue(capacity int, policy OverflowPolicy) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d", capacity)
	}
	q := &Queue{
		ring:   make([]Block, capacity),
		policy: policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q, nil
}

// Push enqueues a block. Under Backpressure it blocks while the queue is
// full; under DropOldest it evicts the oldest block instead and never
// blocks. Returns ErrQueueClosed after Close.
func (q *Queue) Push(b Block) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if q.count == len(q.ring) {
		switch q.policy {
		case DropOldest:
			q.head = (q.head + 1) % len(q.ring)
			q.count--
			q.dropped++
		case Backpressure:
			for q.count == len(q.ring) && !q.closed {
				q.notFull.Wait()
			}
			if q.closed {
				return ErrQueueClosed
			}
		}
	}

	q.ring[(q.head+q.count)%len(q.ring)] = b
	q.count++
	q.notEmpty.Signal()
	return nil
}

// TryPush enqueues a block only if a slot is free, regardless of policy.
// It never blocks: a full queue returns ErrQueueFull and a closed queue
// returns ErrQueueClosed. Used for control blocks that must not stall the
// caller, such as the end-of-stream sentinel.
func (q *Queue) TryPush(b Block) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.count == len(q.ring) {
		return ErrQueueFull
	}

	q.ring[(q.head+q.count)%len(q.ring)] = b
	q.count++
	q.notEmpty.Signal()
	return nil
}

// Pop dequeues the oldest block, waiting up to timeout while the queue is
// empty. Returns ErrQueueTimeout if the deadline elapses and ErrQueueClosed
// once the queue is closed and drained. Blocks are returned strictly in
// arrival order.
func (q *Queue) Pop(timeout time.Duration) (Block, error) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 {
		if q.closed {
			return Block{}, ErrQueueClosed
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Block{}, ErrQueueTimeout
		}
		// sync.Cond has no timed wait; a timer broadcast wakes the loop
		// so the deadline check above runs again.
		timer := time.AfterFunc(remaining, q.notEmpty.Broadcast)
		q.notEmpty.Wait()
		timer.Stop()
	}

	b := q.ring[q.head]
	q.ring[q.head] = Block{} // Release the sample buffer reference
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.notFull.Signal()
	return b, nil
}

// Close marks the queue closed and wakes all waiters. Queued blocks remain
// poppable; once drained, Pop returns ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return len(q.ring)
}

// Dropped returns how many blocks the DropOldest policy has evicted.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
