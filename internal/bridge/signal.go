package bridge

import "strings"

// SignalKind tags a host control signal.
type SignalKind int

const (
	SignalOther SignalKind = iota
	SignalExit
	SignalStart
)

func (k SignalKind) String() string {
	switch k {
	case SignalExit:
		return "exit"
	case SignalStart:
		return "start"
	default:
		return "other"
	}
}

// ParseSignalKind maps a wire name to a kind; unknown names are SignalOther.
func ParseSignalKind(raw string) SignalKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "exit", "stop":
		return SignalExit
	case "start":
		return SignalStart
	default:
		return SignalOther
	}
}

// ControlSignal is delivered by the host out of band, never over the network transport.
type ControlSignal struct {
	Kind    SignalKind
	Message string
}

// ControlHandler consumes one control signal on the host's thread.
type ControlHandler func(sig ControlSignal)

// TickHandler runs once per host frame on the host's thread.
type TickHandler func(frame uint64)

// Host is the embedding application's registration surface. Register replaces any
// previously installed handlers for the same bridge.
type Host interface {
	Register(identity string, onControl ControlHandler, onTick TickHandler) error
	Unregister() error
}
