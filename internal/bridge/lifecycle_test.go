package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blackplume233/remotemcp/internal/testutil/testlog"
	"github.com/blackplume233/remotemcp/internal/tick"
)

type fakeHost struct {
	mu          sync.Mutex
	registerErr error
	identity    string
	onControl   ControlHandler
	onTick      TickHandler
	registers   int
	unregisters int
	installed   int
}

func (h *fakeHost) Register(identity string, onControl ControlHandler, onTick TickHandler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registerErr != nil {
		return h.registerErr
	}
	h.registers++
	h.installed++
	h.identity = identity
	h.onControl = onControl
	h.onTick = onTick
	return nil
}

func (h *fakeHost) Unregister() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisters++
	if h.installed > 0 {
		h.installed--
	}
	h.onControl = nil
	h.onTick = nil
	return nil
}

func (h *fakeHost) signal(sig ControlSignal) {
	h.mu.Lock()
	fn := h.onControl
	h.mu.Unlock()
	if fn != nil {
		fn(sig)
	}
}

func (h *fakeHost) frame(n uint64) {
	h.mu.Lock()
	fn := h.onTick
	h.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

type fakeStarter struct {
	mu      sync.Mutex
	running bool
	starts  int
	err     error
}

func (s *fakeStarter) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.starts++
	s.running = true
	return nil
}

func (s *fakeStarter) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func newTestLifecycle(t *testing.T) (*Lifecycle, *fakeHost, *fakeStarter, *ProcessState) {
	t.Helper()
	host := &fakeHost{}
	starter := &fakeStarter{}
	state := NewProcessState(tick.DefaultExecutorConfig())
	return NewLifecycle(host, state, starter), host, starter, state
}

func TestRegisterInstallsHandlersWithFreshIdentity(t *testing.T) {
	testlog.Start(t)

	lc, host, _, _ := newTestLifecycle(t)
	if err := lc.Register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	if lc.Phase() != PhaseRegistered {
		t.Fatalf("unexpected phase: %s", lc.Phase())
	}
	first := lc.Identity()
	if first == "" || host.identity != first {
		t.Fatalf("identity not passed to host: lifecycle=%q host=%q", first, host.identity)
	}

	if err := lc.Register(); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if lc.Identity() == first {
		t.Fatalf("expected a fresh identity on re-register")
	}
	if host.installed != 1 {
		t.Fatalf("re-register duplicated handlers: installed=%d", host.installed)
	}
	if host.registers != 2 || host.unregisters != 1 {
		t.Fatalf("unexpected host calls registers=%d unregisters=%d", host.registers, host.unregisters)
	}
}

func TestRegisterFailurePropagates(t *testing.T) {
	testlog.Start(t)

	lc, host, _, _ := newTestLifecycle(t)
	host.registerErr = errors.New("subsystem unavailable")
	err := lc.Register()
	if !errors.Is(err, ErrRegistration) {
		t.Fatalf("expected ErrRegistration, got %v", err)
	}
	if lc.Phase() != PhaseUnregistered {
		t.Fatalf("unexpected phase after failed register: %s", lc.Phase())
	}
}

func TestRegisterWithoutHostFails(t *testing.T) {
	testlog.Start(t)

	lc := NewLifecycle(nil, NewProcessState(tick.DefaultExecutorConfig()), nil)
	if err := lc.Register(); !errors.Is(err, ErrRegistration) || !errors.Is(err, ErrNoHost) {
		t.Fatalf("expected ErrRegistration wrapping ErrNoHost, got %v", err)
	}
}

func TestUnregisterTwiceIsNoop(t *testing.T) {
	testlog.Start(t)

	lc, host, _, _ := newTestLifecycle(t)
	if err := lc.Register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := lc.Unregister(); err != nil {
		t.Fatalf("first unregister: %v", err)
	}
	if err := lc.Unregister(); err != nil {
		t.Fatalf("second unregister: %v", err)
	}
	if host.unregisters != 1 {
		t.Fatalf("expected one host unregister, got %d", host.unregisters)
	}
	if lc.Phase() != PhaseUnregistered {
		t.Fatalf("unexpected phase: %s", lc.Phase())
	}
}

func TestStartSignalStartsServerOnce(t *testing.T) {
	testlog.Start(t)

	lc, host, starter, _ := newTestLifecycle(t)
	if err := lc.Register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	host.signal(ControlSignal{Kind: SignalStart, Message: "start"})
	host.signal(ControlSignal{Kind: SignalStart, Message: "start again"})

	if starter.starts != 1 {
		t.Fatalf("expected one start, got %d", starter.starts)
	}
	if lc.Phase() != PhaseRunning {
		t.Fatalf("unexpected phase: %s", lc.Phase())
	}
	if st := lc.Status(); st.Server != ServerRunning || !st.Running {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestStartBeforeRegisterIsRejected(t *testing.T) {
	testlog.Start(t)

	lc, _, starter, _ := newTestLifecycle(t)
	lc.OnControlSignal(ControlSignal{Kind: SignalStart})
	if starter.starts != 0 {
		t.Fatalf("start must not run while unregistered")
	}
}

func TestExitSignalStopsAndUnregisters(t *testing.T) {
	testlog.Start(t)

	lc, host, _, state := newTestLifecycle(t)
	if err := lc.Register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	host.signal(ControlSignal{Kind: SignalStart})
	host.signal(ControlSignal{Kind: SignalExit, Message: "MCP Stopped"})

	if !state.ShouldExit() {
		t.Fatalf("expected should-exit after EXIT")
	}
	select {
	case <-state.ExitRequested():
	default:
		t.Fatalf("expected exit channel closed")
	}
	if lc.Phase() != PhaseUnregistered {
		t.Fatalf("unexpected phase: %s", lc.Phase())
	}
	if host.installed != 0 {
		t.Fatalf("expected handlers removed, installed=%d", host.installed)
	}
	if err := lc.Unregister(); err != nil {
		t.Fatalf("unregister after exit: %v", err)
	}
	if host.unregisters != 1 {
		t.Fatalf("exit + unregister should reach the host once, got %d", host.unregisters)
	}
}

func TestUnknownSignalIsIgnored(t *testing.T) {
	testlog.Start(t)

	lc, host, starter, state := newTestLifecycle(t)
	if err := lc.Register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	host.signal(ControlSignal{Kind: SignalOther, Message: "heartbeat"})
	if state.ShouldExit() || starter.starts != 0 || lc.Phase() != PhaseRegistered {
		t.Fatalf("unknown signal changed state: phase=%s starts=%d", lc.Phase(), starter.starts)
	}
}

func TestHostTickDrainsQueue(t *testing.T) {
	testlog.Start(t)

	lc, host, _, state := newTestLifecycle(t)
	if err := lc.Register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	res := state.Queue().Enqueue("echo", func(_ []any, kwargs map[string]any) (any, error) {
		return kwargs["text"], nil
	}, nil, map[string]any{"text": "hi"})

	host.frame(10)

	v, err := res.Wait(context.Background())
	if err != nil || v != "hi" {
		t.Fatalf("unexpected result value=%v err=%v", v, err)
	}
	st := lc.Status()
	if st.HostFrames != 1 || st.TickCount != 1 {
		t.Fatalf("unexpected status counters: %+v", st)
	}
}

func TestRegisterAfterExitRenewsSession(t *testing.T) {
	testlog.Start(t)

	lc, host, _, state := newTestLifecycle(t)
	if err := lc.Register(); err != nil {
		t.Fatalf("register: %v", err)
	}
	host.signal(ControlSignal{Kind: SignalExit})
	state.Queue().Close(nil)

	if err := lc.Register(); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if state.ShouldExit() {
		t.Fatalf("expected should-exit cleared on fresh session")
	}
	if state.Queue().Closed() {
		t.Fatalf("expected queue reopened on fresh session")
	}
}

func TestStatusListsHostTools(t *testing.T) {
	testlog.Start(t)

	lc, _, _, _ := newTestLifecycle(t)
	lc.SetToolSource(func() []string { return []string{"echo", "bridge.status"} })
	st := lc.Status()
	if len(st.HostTools) != 2 || st.HostTools[0] != "bridge.status" {
		t.Fatalf("unexpected host tools: %v", st.HostTools)
	}
	if st.Server != ServerNone {
		t.Fatalf("unexpected server state: %s", st.Server)
	}
}
