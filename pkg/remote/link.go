// Package remote is the RPC boundary between the robot core and the
// simulation backend.
//
// A Link issues blocking script calls and buffered signal reads and returns
// the raw status bitmask of every call. The core decodes that bitmask with
// package status; a Link only reports transport failures as errors.
//
// Client implements Link over a websocket carrying msgpack envelopes. Server
// exposes any Handler (for example the bundled simulator) on the other side of
// that websocket. Mock is a scriptable Link for tests.
package remote

import (
	"context"
	"errors"

	"github.com/teslashibe/go-epuck/pkg/status"
)

// Sentinel errors for transport conditions.
var (
	// ErrClosed is returned when using a link after Close or after a
	// transport failure tore the session down.
	ErrClosed = errors.New("remote: link closed")

	// ErrMismatchedReply is returned when a reply does not answer the
	// request that is in flight.
	ErrMismatchedReply = errors.New("remote: reply does not match request")
)

// Link is one session with the simulation backend.
//
// Implementations must be safe for concurrent use, but callers should not
// rely on parallelism: the backend is assumed non-reentrant.
type Link interface {
	// CallFunction calls a script function attached to target.
	CallFunction(ctx context.Context, target, function string, in Args) (Args, status.Code, error)

	// StartStreaming asks the backend to start buffering a signal.
	StartStreaming(ctx context.Context, signal string) (status.Code, error)

	// BufferedSignal returns the last buffered value of a streamed signal.
	BufferedSignal(ctx context.Context, signal string) ([]byte, status.Code, error)

	// StartSimulation starts the simulation.
	StartSimulation(ctx context.Context) (status.Code, error)

	// SetSynchronous switches lock-step mode on or off.
	SetSynchronous(ctx context.Context, enable bool) (status.Code, error)

	// TriggerStep advances the simulation by one tick in lock-step mode.
	TriggerStep(ctx context.Context) (status.Code, error)

	// Close ends the session.
	Close() error
}

// Handler is the backend side of a Link. Handlers never fail at the
// transport level; every problem is expressed as a status code.
type Handler interface {
	CallFunction(target, function string, in Args) (Args, status.Code)
	StartStreaming(signal string) status.Code
	BufferedSignal(signal string) ([]byte, status.Code)
	StartSimulation() status.Code
	SetSynchronous(enable bool) status.Code
	TriggerStep() status.Code
}

// Dispatch routes a decoded request to a handler and builds the reply.
func Dispatch(h Handler, req *Request) *Response {
	resp := &Response{ID: req.ID}

	switch req.Op {
	case OpCall:
		resp.Args, resp.Status = h.CallFunction(req.Target, req.Function, req.Args)
	case OpStream:
		resp.Status = h.StartStreaming(req.Signal)
	case OpBuffer:
		resp.Bytes, resp.Status = h.BufferedSignal(req.Signal)
	case OpStartSim:
		resp.Status = h.StartSimulation()
	case OpSynchronous:
		resp.Status = h.SetSynchronous(req.Enable)
	case OpTriggerStep:
		resp.Status = h.TriggerStep()
	default:
		resp.Status = status.Code(status.IllegalOpMode)
		resp.Error = "unknown op " + string(req.Op)
	}

	return resp
}
