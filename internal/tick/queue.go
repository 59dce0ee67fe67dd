package tick

import (
	"sync"
	"sync/atomic"
)

// Queue is the FIFO hand-off between serving goroutines and the host thread.
// Producers may be many; draining is reserved for a single consumer.
type Queue struct {
	mu     sync.Mutex
	items  []*PendingCall
	closed bool
	reason error

	enqueued atomic.Uint64
}

func NewQueue() *Queue {
	return &Queue{items: make([]*PendingCall, 0, 16)}
}

// Enqueue appends a call and returns its result slot. It never blocks on the consumer.
// A closed queue resolves the slot immediately with the close reason.
func (q *Queue) Enqueue(name string, fn Func, args []any, kwargs map[string]any) *Result {
	call := newPendingCall(name, fn, args, kwargs)

	q.mu.Lock()
	if q.closed {
		reason := q.reason
		q.mu.Unlock()
		call.result.resolve(nil, reason)
		return call.result
	}
	q.items = append(q.items, call)
	q.mu.Unlock()

	q.enqueued.Add(1)
	return call.result
}

// DrainAll pops calls in arrival order until the queue is empty, invoking fn on each
// synchronously on the calling goroutine. Calls enqueued while draining are picked up
// by the same drain. Returns the number of calls handed to fn.
func (q *Queue) DrainAll(fn func(*PendingCall)) int {
	n := 0
	for {
		call, ok := q.pop()
		if !ok {
			return n
		}
		fn(call)
		n++
	}
}

func (q *Queue) pop() (*PendingCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	call := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = q.items[:0:0]
	}
	return call, true
}

// Len reports calls waiting for the next drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Enqueued reports the total number of calls accepted since construction.
func (q *Queue) Enqueued() uint64 {
	return q.enqueued.Load()
}

// Close stops accepting calls and resolves every call still waiting with reason.
// Returns the number of calls resolved this way. Closing twice is a no-op.
func (q *Queue) Close(reason error) int {
	if reason == nil {
		reason = ErrQueueClosed
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.closed = true
	q.reason = reason
	left := q.items
	q.items = nil
	q.mu.Unlock()

	for _, call := range left {
		call.result.resolve(nil, reason)
	}
	return len(left)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Reopen accepts calls again after Close.
func (q *Queue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
	q.reason = nil
}
