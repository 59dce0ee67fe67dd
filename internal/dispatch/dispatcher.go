package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blackplume233/remotemcp/internal/observability"
	"github.com/blackplume233/remotemcp/internal/tick"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownOperation = errors.New("dispatch: unknown operation")
	ErrOperationPanic   = errors.New("dispatch: operation panicked")
)

// Failure kinds reported to remote callers.
const (
	KindUnknownOperation = "unknown_operation"
	KindOperationError   = "operation_error"
	KindOperationPanic   = "operation_panic"
	KindShutdown         = "shutdown"
	KindCanceled         = "canceled"
)

// Request is the inbound call envelope.
type Request struct {
	ID        any            `json:"id,omitempty"`
	Operation string         `json:"operation"`
	Arguments map[string]any `json:"arguments"`
}

// Failure is the structured error returned in place of a result.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (f *Failure) Error() string {
	return f.Kind + ": " + f.Message
}

// Response carries either Result or Error, never both.
type Response struct {
	ID        any      `json:"id,omitempty"`
	Operation string   `json:"operation"`
	Result    any      `json:"result,omitempty"`
	Error     *Failure `json:"error,omitempty"`
}

func (r Response) OK() bool {
	return r.Error == nil
}

// Dispatcher routes calls inline or through the host tick queue by declared affinity.
type Dispatcher struct {
	catalog *Catalog
	queue   *tick.Queue
}

func NewDispatcher(catalog *Catalog, queue *tick.Queue) *Dispatcher {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Dispatcher{catalog: catalog, queue: queue}
}

func (d *Dispatcher) Catalog() *Catalog {
	return d.catalog
}

// unknownOperationLabel keeps names outside the catalog from minting metric series.
const unknownOperationLabel = "unknown"

// Dispatch runs one operation and always returns a response; operation failures
// never escape as errors or panics.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) Response {
	start := time.Now()
	op, ok := d.catalog.Lookup(name)
	if !ok {
		resp := failed(name, KindUnknownOperation, fmt.Errorf("%w: %s", ErrUnknownOperation, name))
		observability.RecordDispatch(unknownOperationLabel, "none", resp.Error.Kind, time.Since(start))
		log.Warn().Str("operation", name).Msg("dispatch unknown operation")
		return resp
	}

	var (
		value any
		err   error
	)
	if op.Affinity == AffinityHost {
		value, err = d.dispatchHost(ctx, op, args)
	} else {
		value, err = invokeInline(ctx, op, args)
	}

	elapsed := time.Since(start)
	if err != nil {
		resp := failed(op.Name, classify(err), err)
		observability.RecordDispatch(op.Name, op.Affinity.String(), resp.Error.Kind, elapsed)
		log.Info().
			Str("operation", op.Name).
			Str("affinity", op.Affinity.String()).
			Str("kind", resp.Error.Kind).
			Err(err).
			Msg("dispatch failed")
		return resp
	}
	observability.RecordDispatch(op.Name, op.Affinity.String(), "success", elapsed)
	log.Debug().
		Str("operation", op.Name).
		Str("affinity", op.Affinity.String()).
		Dur("duration", elapsed).
		Msg("dispatch complete")
	return Response{Operation: op.Name, Result: value}
}

// DispatchRequest is Dispatch for a decoded envelope.
func (d *Dispatcher) DispatchRequest(ctx context.Context, req Request) Response {
	resp := d.Dispatch(ctx, req.Operation, req.Arguments)
	resp.ID = req.ID
	return resp
}

func (d *Dispatcher) dispatchHost(ctx context.Context, op Operation, args map[string]any) (any, error) {
	if d.queue == nil {
		return nil, fmt.Errorf("%w: no host queue for %s", tick.ErrQueueClosed, op.Name)
	}
	handler := op.Handler
	result := d.queue.Enqueue(op.Name, func(_ []any, kwargs map[string]any) (any, error) {
		return handler(ctx, kwargs)
	}, nil, args)
	return result.Wait(ctx)
}

func invokeInline(ctx context.Context, op Operation, args map[string]any) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			value = nil
			err = fmt.Errorf("%w: %s: %v", ErrOperationPanic, op.Name, rec)
		}
	}()
	return op.Handler(ctx, args)
}

func classify(err error) string {
	switch {
	case errors.Is(err, tick.ErrCallPanic), errors.Is(err, ErrOperationPanic):
		return KindOperationPanic
	case errors.Is(err, tick.ErrQueueClosed):
		return KindShutdown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindOperationError
	}
}

func failed(name, kind string, err error) Response {
	return Response{
		Operation: name,
		Error: &Failure{
			Kind:    kind,
			Message: fmt.Sprintf("error calling %s: %v", name, err),
		},
	}
}
