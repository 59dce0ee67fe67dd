package tick

import (
	"errors"
	"sync"
	"time"

	"github.com/blackplume233/remotemcp/internal/observability"
	"github.com/rs/zerolog/log"
)

// DefaultPeriod bounds the tick counter to one day of one-second ticks.
const DefaultPeriod uint64 = 86400

// ExecutorConfig tunes tick counting and slow-call reporting.
type ExecutorConfig struct {
	Period            uint64
	Initial           uint64
	SlowCallThreshold time.Duration
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Period:            DefaultPeriod,
		SlowCallThreshold: time.Second,
	}
}

// TickStats is a diagnostics snapshot; none of it carries correctness obligations.
type TickStats struct {
	TickCount    uint64        `json:"tick_count"`
	LastIndex    uint64        `json:"last_index"`
	Executed     uint64        `json:"executed"`
	Failed       uint64        `json:"failed"`
	Pending      int           `json:"pending"`
	LastDrain    int           `json:"last_drain"`
	LastDuration time.Duration `json:"last_duration"`
}

// Executor drains its queue once per tick. Drains are serialized so the queue
// only ever sees one consumer, whichever goroutine the tick arrives on.
type Executor struct {
	queue *Queue
	cfg   ExecutorConfig

	drainMu sync.Mutex

	mu    sync.Mutex
	stats TickStats
}

func NewExecutor(queue *Queue, cfg ExecutorConfig) *Executor {
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if queue == nil {
		queue = NewQueue()
	}
	e := &Executor{queue: queue, cfg: cfg}
	e.stats.TickCount = cfg.Initial % cfg.Period
	return e
}

// Queue returns the queue this executor drains.
func (e *Executor) Queue() *Queue {
	return e.queue
}

// OnTick advances the tick counter and executes every queued call in arrival order.
// It never waits on anything but the queued calls themselves.
func (e *Executor) OnTick(index uint64) bool {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	start := time.Now()
	e.mu.Lock()
	e.stats.TickCount = (e.stats.TickCount + 1) % e.cfg.Period
	e.stats.LastIndex = index
	e.mu.Unlock()

	failed := 0
	drained := e.queue.DrainAll(func(call *PendingCall) {
		if !e.execute(call) {
			failed++
		}
	})

	elapsed := time.Since(start)
	e.mu.Lock()
	e.stats.Executed += uint64(drained - failed)
	e.stats.Failed += uint64(failed)
	e.stats.LastDrain = drained
	e.stats.LastDuration = elapsed
	e.mu.Unlock()
	observability.RecordTick(drained, failed, elapsed)
	observability.SetQueueDepth(e.queue.Len())
	return true
}

// execute runs one call and resolves its slot; reports whether the call succeeded.
func (e *Executor) execute(call *PendingCall) bool {
	start := time.Now()
	value, err := call.invoke()
	elapsed := time.Since(start)
	call.result.resolve(value, err)

	if e.cfg.SlowCallThreshold > 0 && elapsed > e.cfg.SlowCallThreshold {
		log.Warn().
			Str("call", call.Name).
			Dur("duration", elapsed).
			Msg("host call exceeded slow threshold")
	}
	if err != nil {
		event := log.Info()
		if errors.Is(err, ErrCallPanic) {
			event = log.Error()
		}
		event.
			Str("call", call.Name).
			Err(err).
			Msg("host call failed")
		return false
	}
	log.Debug().
		Str("call", call.Name).
		Dur("duration", elapsed).
		Dur("queued", start.Sub(call.EnqueuedAt)).
		Msg("host call executed")
	return true
}

// TickCount returns the wrapped tick counter.
func (e *Executor) TickCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.TickCount
}

// Period returns the modulus applied to the tick counter.
func (e *Executor) Period() uint64 {
	return e.cfg.Period
}

func (e *Executor) Stats() TickStats {
	e.mu.Lock()
	out := e.stats
	e.mu.Unlock()
	out.Pending = e.queue.Len()
	return out
}
