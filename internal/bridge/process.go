package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackplume233/remotemcp/internal/tick"
)

var ErrProcessReset = fmt.Errorf("bridge: process state reset: %w", tick.ErrQueueClosed)

// ProcessState is the bridge state that must survive a reload of the hosting script:
// the host-affine queue, its executor, and the should-exit flag.
type ProcessState struct {
	queue    *tick.Queue
	executor *tick.Executor
	created  time.Time

	shouldExit atomic.Bool
	exitMu     sync.Mutex
	exitCh     chan struct{}
}

// NewProcessState builds an unshared state. Most callers want EnsureProcessState.
func NewProcessState(cfg tick.ExecutorConfig) *ProcessState {
	q := tick.NewQueue()
	return &ProcessState{
		queue:    q,
		executor: tick.NewExecutor(q, cfg),
		created:  time.Now(),
		exitCh:   make(chan struct{}),
	}
}

var (
	processMu sync.Mutex
	process   *ProcessState
)

// EnsureProcessState returns the process-wide state, constructing it only if absent.
// The second return reports whether this call created it.
func EnsureProcessState(cfg tick.ExecutorConfig) (*ProcessState, bool) {
	processMu.Lock()
	defer processMu.Unlock()
	if process != nil {
		return process, false
	}
	process = NewProcessState(cfg)
	return process, true
}

func CurrentProcessState() (*ProcessState, bool) {
	processMu.Lock()
	defer processMu.Unlock()
	return process, process != nil
}

// ResetProcessState tears down the process-wide state. Calls still queued are
// resolved with ErrProcessReset.
func ResetProcessState() {
	processMu.Lock()
	old := process
	process = nil
	processMu.Unlock()
	if old != nil {
		old.RequestExit()
		old.queue.Close(ErrProcessReset)
	}
}

func (p *ProcessState) Queue() *tick.Queue {
	return p.queue
}

func (p *ProcessState) Executor() *tick.Executor {
	return p.executor
}

func (p *ProcessState) CreatedAt() time.Time {
	return p.created
}

// RequestExit raises the should-exit flag and wakes anything waiting on ExitRequested.
func (p *ProcessState) RequestExit() {
	p.exitMu.Lock()
	defer p.exitMu.Unlock()
	if p.shouldExit.Swap(true) {
		return
	}
	close(p.exitCh)
}

func (p *ProcessState) ShouldExit() bool {
	return p.shouldExit.Load()
}

// ExitRequested closes when RequestExit is called for the current run.
func (p *ProcessState) ExitRequested() <-chan struct{} {
	p.exitMu.Lock()
	defer p.exitMu.Unlock()
	return p.exitCh
}

// Renew clears the should-exit flag and reopens the queue for a fresh session.
// The tick counter carries over.
func (p *ProcessState) Renew() {
	p.exitMu.Lock()
	if p.shouldExit.Swap(false) {
		p.exitCh = make(chan struct{})
	}
	p.exitMu.Unlock()
	p.queue.Reopen()
}
