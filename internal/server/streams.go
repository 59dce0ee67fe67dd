package server

import (
	"context"
	"errors"
	"sync"

	"github.com/blackplume233/remotemcp/internal/observability"
	"github.com/google/uuid"
)

var errStreamClosed = errors.New("server: stream closed")

type streamEvent struct {
	name string
	data any
}

// stream is one open SSE connection; results for /messages/<id> posts land on ch.
type stream struct {
	id     string
	ch     chan streamEvent
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *stream) send(ev streamEvent) error {
	select {
	case <-s.ctx.Done():
		return errStreamClosed
	case s.ch <- ev:
		return nil
	}
}

type streamHub struct {
	mu      sync.Mutex
	streams map[string]*stream
	closed  bool
}

func newStreamHub() *streamHub {
	return &streamHub{streams: make(map[string]*stream)}
}

func (h *streamHub) open(parent context.Context) (*stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errStreamClosed
	}
	ctx, cancel := context.WithCancel(parent)
	s := &stream{
		id:     uuid.NewString(),
		ch:     make(chan streamEvent, 16),
		ctx:    ctx,
		cancel: cancel,
	}
	h.streams[s.id] = s
	observability.AddOpenStreams(1)
	return s, nil
}

func (h *streamHub) get(id string) (*stream, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[id]
	return s, ok
}

func (h *streamHub) remove(id string) {
	h.mu.Lock()
	s, ok := h.streams[id]
	delete(h.streams, id)
	h.mu.Unlock()
	if ok {
		s.cancel()
		observability.AddOpenStreams(-1)
	}
}

func (h *streamHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

// closeAll ends every open stream and refuses new ones.
func (h *streamHub) closeAll() {
	h.mu.Lock()
	h.closed = true
	ids := make([]string, 0, len(h.streams))
	for id := range h.streams {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.remove(id)
	}
}
