package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/blackplume233/remotemcp/internal/bridge"
	"github.com/blackplume233/remotemcp/internal/dispatch"
	"github.com/blackplume233/remotemcp/internal/testutil/testlog"
	"github.com/blackplume233/remotemcp/internal/tick"
)

func testConfig() Config {
	return Config{
		Name:              "remotemcp-test",
		Host:              "127.0.0.1",
		Port:              0,
		TickInterval:      20 * time.Millisecond,
		HeartbeatInterval: time.Minute,
	}
}

func newTestLoop(t *testing.T, cfg Config) (*Loop, *bridge.ProcessState) {
	t.Helper()
	state := bridge.NewProcessState(tick.DefaultExecutorConfig())
	catalog := dispatch.NewCatalog()
	catalog.MustRegister(
		dispatch.Operation{
			Name:        "ping",
			Description: "Liveness.",
			Handler: func(context.Context, map[string]any) (any, error) {
				return "pong", nil
			},
		},
		dispatch.Operation{
			Name:        "echo",
			Description: "Echo arguments from the host thread.",
			Affinity:    dispatch.AffinityHost,
			Handler: func(_ context.Context, args map[string]any) (any, error) {
				return args["text"], nil
			},
		},
	)
	return NewLoop(cfg, state, dispatch.NewDispatcher(catalog, state.Queue())), state
}

func waitReady(t *testing.T, l *Loop) {
	t.Helper()
	select {
	case <-l.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("loop never finished startup")
	}
	if l.Addr() == "" {
		t.Fatalf("loop has no bound address after startup")
	}
}

func waitDone(t *testing.T, l *Loop) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("loop never shut down")
	}
}

func TestStartupFailureRunsShutdownOnce(t *testing.T) {
	testlog.Start(t)

	l, state := newTestLoop(t, testConfig())
	bindErr := errors.New("address already in use")
	l.listen = func(string, string) (net.Listener, error) {
		return nil, bindErr
	}

	err := l.Run(context.Background())
	if !errors.Is(err, ErrTransport) || !errors.Is(err, bindErr) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	rs := l.current()
	if got := rs.shutdowns.Load(); got != 1 {
		t.Fatalf("expected exactly one shutdown, got %d", got)
	}
	if !state.Queue().Closed() {
		t.Fatalf("expected queue closed after failed startup")
	}
	if l.Running() {
		t.Fatalf("loop still reports running after failed startup")
	}
}

func TestExitFlagStopsLoopAndDrainsQueue(t *testing.T) {
	testlog.Start(t)

	l, state := newTestLoop(t, testConfig())
	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitReady(t, l)

	res := state.Queue().Enqueue("queued", func([]any, map[string]any) (any, error) {
		return "ran", nil
	}, nil, nil)

	started := time.Now()
	state.RequestExit()
	waitDone(t, l)
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("loop took %s to observe the exit flag", elapsed)
	}

	v, err := res.Wait(context.Background())
	if err != nil || v != "ran" {
		t.Fatalf("queued call should run in the final drain, got %v, %v", v, err)
	}
	if got := l.current().shutdowns.Load(); got != 1 {
		t.Fatalf("expected one shutdown, got %d", got)
	}

	late := state.Queue().Enqueue("late", func([]any, map[string]any) (any, error) {
		return "never", nil
	}, nil, nil)
	if _, err := late.Wait(context.Background()); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected late enqueue to fail with shutdown, got %v", err)
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	testlog.Start(t)

	l, _ := newTestLoop(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Run(ctx)
	}()
	waitReady(t, l)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestDriveTicksRunsHostAffineCalls(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig()
	cfg.DriveTicks = true
	cfg.TickInterval = 5 * time.Millisecond
	l, state := newTestLoop(t, cfg)
	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		_ = l.Stop(context.Background())
	}()
	waitReady(t, l)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp := l.dispatcher.Dispatch(ctx, "echo", map[string]any{"text": "hello"})
	if !resp.OK() || resp.Result != "hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if state.Executor().TickCount() == 0 {
		t.Fatalf("expected the loop to drive ticks")
	}
}

func TestStartTwiceAndRestart(t *testing.T) {
	testlog.Start(t)

	l, state := newTestLoop(t, testConfig())
	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitReady(t, l)
	if err := l.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if l.Running() {
		t.Fatalf("loop still running after stop")
	}

	if err := l.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitReady(t, l)
	if !l.Running() || state.ShouldExit() || state.Queue().Closed() {
		t.Fatalf("restarted loop should run with a fresh exit flag and open queue")
	}
	if err := l.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestRunAfterStopServesAgain(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig()
	cfg.DriveTicks = true
	cfg.TickInterval = 5 * time.Millisecond
	l, state := newTestLoop(t, cfg)
	if err := l.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitReady(t, l)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- l.Run(context.Background())
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !l.Running() {
		if time.Now().After(deadline) {
			t.Fatalf("second run never began")
		}
		time.Sleep(time.Millisecond)
	}
	waitReady(t, l)

	select {
	case err := <-runErr:
		t.Fatalf("second run returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	resp := l.dispatcher.Dispatch(ctx, "echo", map[string]any{"text": "again"})
	if !resp.OK() || resp.Result != "again" {
		t.Fatalf("host call after restart failed: %+v", resp)
	}

	state.RequestExit()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second run never stopped")
	}
}
