package tick

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

var (
	ErrCallFailed  = errors.New("tick: call failed")
	ErrCallPanic   = errors.New("tick: call panicked")
	ErrQueueClosed = errors.New("tick: queue closed")
)

// Func is one host-affine callable. It runs synchronously on the draining thread.
type Func func(args []any, kwargs map[string]any) (any, error)

// Result is the single-resolution slot correlating an enqueued call with its outcome.
type Result struct {
	done chan struct{}
	once sync.Once

	value any
	err   error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// resolve stores the outcome; only the first resolution wins.
func (r *Result) resolve(value any, err error) bool {
	resolved := false
	r.once.Do(func() {
		r.value = value
		r.err = err
		close(r.done)
		resolved = true
	})
	return resolved
}

// Done closes once the result has been resolved.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Resolved reports whether the slot already holds an outcome.
func (r *Result) Resolved() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the result resolves or ctx ends. Giving up on the wait does
// not withdraw the call from the queue.
func (r *Result) Wait(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PendingCall pairs a callable and its arguments with a result slot.
type PendingCall struct {
	Name       string
	EnqueuedAt time.Time

	fn     Func
	args   []any
	kwargs map[string]any
	result *Result
}

func newPendingCall(name string, fn Func, args []any, kwargs map[string]any) *PendingCall {
	var argsCopy []any
	if len(args) > 0 {
		argsCopy = make([]any, len(args))
		copy(argsCopy, args)
	}
	var kwargsCopy map[string]any
	if len(kwargs) > 0 {
		kwargsCopy = make(map[string]any, len(kwargs))
		maps.Copy(kwargsCopy, kwargs)
	}
	return &PendingCall{
		Name:       name,
		EnqueuedAt: time.Now(),
		fn:         fn,
		args:       argsCopy,
		kwargs:     kwargsCopy,
		result:     newResult(),
	}
}

// Result returns the slot the enqueuing caller waits on.
func (c *PendingCall) Result() *Result {
	return c.result
}

// invoke runs the callable and converts errors and panics into a descriptive failure.
func (c *PendingCall) invoke() (value any, err error) {
	if c.fn == nil {
		return nil, fmt.Errorf("%w: %s: nil callable", ErrCallFailed, c.Name)
	}
	defer func() {
		if rec := recover(); rec != nil {
			value = nil
			err = fmt.Errorf("%w: %s: %v", ErrCallPanic, c.Name, rec)
		}
	}()
	value, err = c.fn(c.args, c.kwargs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCallFailed, c.Name, err)
	}
	return value, nil
}
