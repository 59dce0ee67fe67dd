package bridge

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrRegistration   = errors.New("bridge: host registration failed")
	ErrLifecycleOrder = errors.New("bridge: invalid lifecycle transition")
	ErrNoHost         = errors.New("bridge: no host configured")
)

// Phase is the bridge registration state.
type Phase string

const (
	PhaseUnregistered Phase = "unregistered"
	PhaseRegistered   Phase = "registered"
	PhaseRunning      Phase = "running"
	PhaseStopping     Phase = "stopping"
)

// ServerState is the coarse view the host shows its operator.
type ServerState string

const (
	ServerNone    ServerState = "none"
	ServerRunning ServerState = "running"
	ServerStopped ServerState = "stopped"
)

// Starter launches the serving loop without blocking the caller.
type Starter interface {
	Start() error
	Running() bool
}

// Status is the session snapshot exposed to diagnostics.
type Status struct {
	Identity     string      `json:"identity"`
	Phase        Phase       `json:"phase"`
	Server       ServerState `json:"server"`
	Running      bool        `json:"running"`
	TickCount    uint64      `json:"tick_count"`
	HostFrames   uint64      `json:"host_frames"`
	Pending      int         `json:"pending"`
	HostTools    []string    `json:"host_tools"`
	RegisteredAt time.Time   `json:"registered_at"`
}

// Lifecycle owns the bridge's registration with the host and the host-thread entry
// points: the control handler and the tick handler.
type Lifecycle struct {
	mu sync.Mutex

	host    Host
	state   *ProcessState
	starter Starter
	tools   func() []string

	phase        Phase
	identity     string
	registered   bool
	registeredAt time.Time
	started      bool
	frames       uint64
}

func NewLifecycle(host Host, state *ProcessState, starter Starter) *Lifecycle {
	return &Lifecycle{
		host:    host,
		state:   state,
		starter: starter,
		phase:   PhaseUnregistered,
	}
}

// SetToolSource names where the host-affine operation set is read from for Status.
func (l *Lifecycle) SetToolSource(fn func() []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tools = fn
}

// SetStarter binds the serving loop. Needed when the loop is built after the lifecycle.
func (l *Lifecycle) SetStarter(starter Starter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starter = starter
}

// Register installs the control and tick handlers with the host under a fresh
// session identity. Registering again replaces the previous handlers.
func (l *Lifecycle) Register() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.host == nil {
		return fmt.Errorf("%w: %w", ErrRegistration, ErrNoHost)
	}

	if l.registered {
		if err := l.host.Unregister(); err != nil {
			log.Warn().Str("identity", l.identity).Err(err).Msg("bridge replace: unregister previous handlers failed")
		}
		l.registered = false
	}

	identity := uuid.NewString()
	if err := l.host.Register(identity, l.OnControlSignal, l.OnHostTick); err != nil {
		l.phase = PhaseUnregistered
		return fmt.Errorf("%w: %w", ErrRegistration, err)
	}

	l.state.Renew()
	l.identity = identity
	l.registered = true
	l.registeredAt = time.Now()
	if l.starter != nil && l.starter.Running() {
		l.phase = PhaseRunning
	} else {
		l.phase = PhaseRegistered
	}
	log.Info().Str("identity", identity).Str("phase", string(l.phase)).Msg("bridge registered")
	return nil
}

// Unregister removes the host handlers. Calling it when not registered does nothing.
func (l *Lifecycle) Unregister() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unregisterLocked()
}

func (l *Lifecycle) unregisterLocked() error {
	if !l.registered {
		return nil
	}
	l.registered = false
	l.phase = PhaseUnregistered
	if err := l.host.Unregister(); err != nil {
		return err
	}
	log.Info().Str("identity", l.identity).Msg("bridge unregistered")
	return nil
}

// OnControlSignal handles one host control signal. Unknown kinds are logged and ignored.
func (l *Lifecycle) OnControlSignal(sig ControlSignal) {
	log.Info().
		Str("kind", sig.Kind.String()).
		Str("message", sig.Message).
		Msg("bridge control signal")

	switch sig.Kind {
	case SignalExit:
		l.handleExit()
	case SignalStart:
		if err := l.handleStart(); err != nil {
			log.Error().Err(err).Msg("bridge start failed")
		}
	default:
	}
}

func (l *Lifecycle) handleExit() {
	l.state.RequestExit()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.phase = PhaseStopping
	if err := l.unregisterLocked(); err != nil {
		log.Warn().Str("identity", l.identity).Err(err).Msg("bridge exit: unregister failed")
	}
}

func (l *Lifecycle) handleStart() error {
	l.mu.Lock()
	starter := l.starter
	phase := l.phase
	l.mu.Unlock()

	if starter == nil {
		return fmt.Errorf("%w: start without a server loop", ErrLifecycleOrder)
	}
	if phase == PhaseUnregistered || phase == PhaseStopping {
		return transitionError(phase, PhaseRunning)
	}
	if starter.Running() {
		log.Debug().Msg("bridge start ignored: server already running")
		return nil
	}
	l.state.Renew()
	if err := starter.Start(); err != nil {
		return err
	}

	l.mu.Lock()
	l.started = true
	if l.registered {
		l.phase = PhaseRunning
	}
	l.mu.Unlock()
	return nil
}

// OnHostTick drains host-affine calls. It runs on the host thread.
func (l *Lifecycle) OnHostTick(frame uint64) {
	l.mu.Lock()
	l.frames++
	l.mu.Unlock()
	l.state.Executor().OnTick(frame)
}

func (l *Lifecycle) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

func (l *Lifecycle) Identity() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.identity
}

func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	out := Status{
		Identity:     l.identity,
		Phase:        l.phase,
		HostFrames:   l.frames,
		RegisteredAt: l.registeredAt,
	}
	starter := l.starter
	started := l.started
	tools := l.tools
	l.mu.Unlock()

	out.Running = starter != nil && starter.Running()
	switch {
	case out.Running:
		out.Server = ServerRunning
	case started:
		out.Server = ServerStopped
	default:
		out.Server = ServerNone
	}
	stats := l.state.Executor().Stats()
	out.TickCount = stats.TickCount
	out.Pending = stats.Pending
	if tools != nil {
		out.HostTools = tools()
		sort.Strings(out.HostTools)
	}
	return out
}

func transitionError(from, to Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrLifecycleOrder, from, to)
}
