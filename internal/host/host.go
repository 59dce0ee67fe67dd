package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackplume233/remotemcp/internal/bridge"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidFrameInterval = errors.New("host: invalid frame interval")
	ErrInvalidRegistration  = errors.New("host: invalid registration")
	ErrSignalBacklog        = errors.New("host: control signal backlog full")
	ErrAlreadyRunning       = errors.New("host: frame loop already running")
)

const signalBacklog = 32

// Config configures the simulated host frame loop.
type Config struct {
	FrameInterval time.Duration
}

func DefaultConfig() Config {
	return Config{FrameInterval: 16 * time.Millisecond}
}

func (c Config) Validate() error {
	if c.FrameInterval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidFrameInterval, c.FrameInterval)
	}
	return nil
}

// LoopHost stands in for an embedding application: one goroutine plays the host
// thread, ticking registered handlers once per frame and delivering control signals
// between frames.
type LoopHost struct {
	cfg Config

	mu        sync.Mutex
	identity  string
	onControl bridge.ControlHandler
	onTick    bridge.TickHandler

	signals chan bridge.ControlSignal
	frames  atomic.Uint64
	running atomic.Bool
}

var _ bridge.Host = (*LoopHost)(nil)

func NewLoopHost(cfg Config) (*LoopHost, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LoopHost{
		cfg:     cfg,
		signals: make(chan bridge.ControlSignal, signalBacklog),
	}, nil
}

// Register installs handlers under identity, replacing any previous pair.
func (h *LoopHost) Register(identity string, onControl bridge.ControlHandler, onTick bridge.TickHandler) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return fmt.Errorf("%w: empty identity", ErrInvalidRegistration)
	}
	if onControl == nil || onTick == nil {
		return fmt.Errorf("%w: %s: missing handler", ErrInvalidRegistration, identity)
	}
	h.mu.Lock()
	prev := h.identity
	h.identity = identity
	h.onControl = onControl
	h.onTick = onTick
	h.mu.Unlock()

	if prev != "" && prev != identity {
		log.Debug().Str("previous", prev).Str("identity", identity).Msg("host handlers replaced")
	}
	return nil
}

func (h *LoopHost) Unregister() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.identity = ""
	h.onControl = nil
	h.onTick = nil
	return nil
}

// Registered reports the identity of the installed handlers.
func (h *LoopHost) Registered() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.identity, h.identity != ""
}

// Signal posts a control signal for delivery on the host goroutine.
func (h *LoopHost) Signal(kind bridge.SignalKind, message string) error {
	select {
	case h.signals <- bridge.ControlSignal{Kind: kind, Message: message}:
		return nil
	default:
		return ErrSignalBacklog
	}
}

func (h *LoopHost) Frames() uint64 {
	return h.frames.Load()
}

func (h *LoopHost) Running() bool {
	return h.running.Load()
}

// Run is the host thread. It returns when ctx ends.
func (h *LoopHost) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer h.running.Store(false)

	ticker := time.NewTicker(h.cfg.FrameInterval)
	defer ticker.Stop()
	log.Info().Dur("frame_interval", h.cfg.FrameInterval).Msg("host frame loop started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Uint64("frames", h.frames.Load()).Msg("host frame loop stopped")
			return nil
		case sig := <-h.signals:
			h.deliver(sig)
		case <-ticker.C:
			h.frame()
		}
	}
}

// Handlers run without h.mu held so they may call back into Register or Unregister.
func (h *LoopHost) deliver(sig bridge.ControlSignal) {
	h.mu.Lock()
	handler := h.onControl
	h.mu.Unlock()
	if handler == nil {
		log.Debug().Str("kind", sig.Kind.String()).Msg("host signal dropped: no handler registered")
		return
	}
	handler(sig)
}

func (h *LoopHost) frame() {
	n := h.frames.Add(1)
	h.mu.Lock()
	handler := h.onTick
	h.mu.Unlock()
	if handler != nil {
		handler(n)
	}
}
