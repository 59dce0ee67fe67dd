package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackplume233/remotemcp/internal/bridge"
	"github.com/blackplume233/remotemcp/internal/dispatch"
	"github.com/blackplume233/remotemcp/internal/tick"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyRunning = errors.New("server: already running")
	ErrTransport      = errors.New("server: transport failure")
	ErrShutdown       = fmt.Errorf("server: shutting down: %w", tick.ErrQueueClosed)
)

// Loop owns startup, steady-state ticking, and shutdown of the serving side.
// Each Run is independent. Starting a stopped loop clears the pending exit and
// reopens the host queue.
type Loop struct {
	cfg        Config
	state      *bridge.ProcessState
	dispatcher *dispatch.Dispatcher
	listen     func(network, addr string) (net.Listener, error)

	mu      sync.Mutex
	run     *runState
	status  func() bridge.Status
	running atomic.Bool
}

// runState is everything owned by one Run, torn down by exactly one shutdown.
type runState struct {
	ln       net.Listener
	router   *gin.Engine
	httpSrv  *http.Server
	hub      *streamHub
	started  time.Time
	serveErr chan error
	ready    chan struct{}
	done     chan struct{}

	shutdownOnce sync.Once
	shutdowns    atomic.Int32
	shutdownErr  error
}

func newRunState() *runState {
	return &runState{
		hub:      newStreamHub(),
		serveErr: make(chan error, 1),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func NewLoop(cfg Config, state *bridge.ProcessState, dispatcher *dispatch.Dispatcher) *Loop {
	return &Loop{
		cfg:        cfg.withDefaults(),
		state:      state,
		dispatcher: dispatcher,
		listen:     net.Listen,
	}
}

// SetStatusSource binds the lifecycle snapshot served at /session and in heartbeats.
func (l *Loop) SetStatusSource(fn func() bridge.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = fn
}

func (l *Loop) Running() bool {
	return l.running.Load()
}

// Start launches Run on its own goroutine. It satisfies bridge.Starter.
func (l *Loop) Start() error {
	rs, err := l.begin()
	if err != nil {
		return err
	}
	go func() {
		if err := l.serve(context.Background(), rs); err != nil {
			log.Error().Err(err).Msg("server loop exited with error")
		}
	}()
	return nil
}

// Run blocks until the should-exit flag is raised, ctx ends, or the transport fails.
// Startup errors are returned after shutdown has run.
func (l *Loop) Run(ctx context.Context) error {
	rs, err := l.begin()
	if err != nil {
		return err
	}
	return l.serve(ctx, rs)
}

// Stop raises the should-exit flag and waits for the current run to finish shutdown.
func (l *Loop) Stop(ctx context.Context) error {
	rs := l.current()
	l.state.RequestExit()
	if rs == nil {
		return nil
	}
	select {
	case <-rs.done:
		return rs.shutdownErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done closes when the current run has shut down. Nil before the first run.
func (l *Loop) Done() <-chan struct{} {
	rs := l.current()
	if rs == nil {
		return nil
	}
	return rs.done
}

// Ready closes once the current run has finished startup, successfully or not.
func (l *Loop) Ready() <-chan struct{} {
	rs := l.current()
	if rs == nil {
		return nil
	}
	return rs.ready
}

// Addr is the bound listener address of the current run, or "" before startup.
func (l *Loop) Addr() string {
	rs := l.current()
	if rs == nil {
		return ""
	}
	select {
	case <-rs.ready:
	default:
		return ""
	}
	if rs.ln == nil {
		return ""
	}
	return rs.ln.Addr().String()
}

// begin marks the loop running and installs a fresh run under one lock, so a
// running loop always has its run in place. An exit left over from the previous
// run is cleared and the queue reopened before the new run starts.
func (l *Loop) begin() (*runState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	if l.state.ShouldExit() || l.state.Queue().Closed() {
		l.state.Renew()
	}
	rs := newRunState()
	l.run = rs
	return rs, nil
}

func (l *Loop) current() *runState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run
}

func (l *Loop) serve(ctx context.Context, rs *runState) error {
	defer close(rs.done)
	defer l.running.Store(false)

	exit := l.state.ExitRequested()
	err := l.startUp(rs)
	close(rs.ready)
	if err != nil {
		log.Error().Err(err).Msg("server startup failed")
		_ = l.shutdown(rs)
		return err
	}

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	var (
		index   uint64
		loopErr error
	)
steady:
	for {
		if l.cfg.DriveTicks {
			index++
			l.state.Executor().OnTick(index)
		}
		select {
		case <-exit:
			break steady
		case <-ctx.Done():
			break steady
		case err := <-rs.serveErr:
			loopErr = fmt.Errorf("%w: %w", ErrTransport, err)
			break steady
		case <-ticker.C:
		}
	}

	if err := l.shutdown(rs); err != nil && loopErr == nil {
		loopErr = err
	}
	return loopErr
}

// startUp binds the transport and installs the routes for this run.
func (l *Loop) startUp(rs *runState) error {
	addr := l.cfg.Addr()
	ln, err := l.listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %w", ErrTransport, addr, err)
	}
	rs.ln = ln
	rs.router = l.buildRouter(rs)
	rs.httpSrv = &http.Server{
		Handler:           rs.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	rs.started = time.Now()

	go func() {
		if err := rs.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.serveErr <- err
		}
	}()

	log.Info().
		Str("server", l.cfg.Name).
		Str("addr", ln.Addr().String()).
		Int("pid", os.Getpid()).
		Bool("drive_ticks", l.cfg.DriveTicks).
		Msg("server started")
	return nil
}

// shutdown runs once per run: a final drain, queue close, forced transport exit.
func (l *Loop) shutdown(rs *runState) error {
	rs.shutdownOnce.Do(func() {
		rs.shutdowns.Add(1)
		log.Info().Str("server", l.cfg.Name).Msg("server stopping")

		stats := l.state.Executor().Stats()
		l.state.Executor().OnTick(stats.LastIndex + 1)
		if n := l.state.Queue().Close(ErrShutdown); n > 0 {
			log.Warn().Int("calls", n).Msg("server stopping: resolved calls queued after final drain")
		}

		rs.hub.closeAll()
		if rs.httpSrv != nil {
			rs.shutdownErr = rs.httpSrv.Close()
		} else if rs.ln != nil {
			rs.shutdownErr = rs.ln.Close()
		}
		log.Info().Str("server", l.cfg.Name).Err(rs.shutdownErr).Msg("server stopped")
	})
	return rs.shutdownErr
}
