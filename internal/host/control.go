package host

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/blackplume233/remotemcp/internal/bridge"
	"github.com/rs/zerolog/log"
)

const controlReadTimeout = 30 * time.Second

// controlRequest is one operator action, one JSON object per line.
type controlRequest struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
}

type controlResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// ControlServer is the operator surface of the simulated host: start and stop the
// bridge server and read its status. Start and stop arrive at the bridge as control
// signals on the host goroutine.
type ControlServer struct {
	host    *LoopHost
	status  func() bridge.Status
	prepare func() error
	clients atomic.Int32
}

// NewControlServer builds the operator surface. prepare, when set, runs before a
// start signal is posted while no handlers are registered; the daemon uses it to
// register the bridge again after a stop.
func NewControlServer(host *LoopHost, status func() bridge.Status, prepare func() error) *ControlServer {
	return &ControlServer{host: host, status: status, prepare: prepare}
}

func (s *ControlServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts operator connections until ctx ends.
func (s *ControlServer) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	log.Info().Str("addr", ln.Addr().String()).Msg("host control listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *ControlServer) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	active := s.clients.Add(1)
	log.Info().Str("remote", remote).Int32("active_clients", active).Msg("host control client connected")
	defer func() {
		remaining := s.clients.Add(-1)
		log.Info().Str("remote", remote).Int32("active_clients", remaining).Msg("host control client disconnected")
	}()

	reader := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(controlReadTimeout))
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Warn().Err(err).Str("remote", remote).Msg("host control read failed")
			}
			return
		}
		var req controlRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = writeControlResponse(conn, controlResponse{OK: false, Error: err.Error()})
			continue
		}
		if err := writeControlResponse(conn, s.handle(req)); err != nil {
			log.Warn().Err(err).Str("remote", remote).Msg("host control write failed")
			return
		}
	}
}

func (s *ControlServer) handle(req controlRequest) controlResponse {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	switch action {
	case "status":
		if s.status == nil {
			return controlResponse{OK: true, Data: map[string]any{"frames": s.host.Frames()}}
		}
		return controlResponse{OK: true, Data: s.status()}
	case "start":
		if _, ok := s.host.Registered(); !ok && s.prepare != nil {
			if err := s.prepare(); err != nil {
				return controlResponse{OK: false, Error: err.Error()}
			}
		}
		return s.signal(bridge.SignalStart, req.Message)
	case "stop", "exit":
		return s.signal(bridge.SignalExit, req.Message)
	default:
		return controlResponse{OK: false, Error: fmt.Sprintf("unknown action: %s", req.Action)}
	}
}

func (s *ControlServer) signal(kind bridge.SignalKind, message string) controlResponse {
	if err := s.host.Signal(kind, message); err != nil {
		return controlResponse{OK: false, Error: err.Error()}
	}
	return controlResponse{OK: true, Data: map[string]any{"signal": kind.String()}}
}

func writeControlResponse(w io.Writer, resp controlResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}
