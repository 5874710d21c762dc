package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-epuck/internal/log"
	"github.com/teslashibe/go-epuck/internal/netc"
	"github.com/teslashibe/go-epuck/pkg/status"
)

// Path is the websocket route served by Server.
const Path = "/remote"

// DefaultCallTimeout bounds a single request when the context has no
// earlier deadline.
const DefaultCallTimeout = 5 * time.Second

// Client implements Link over a websocket to a simulator bridge.
//
// Only one request is in flight at a time: the session mutex is held from
// write until the matching reply is read.
type Client struct {
	conn    *websocket.Conn
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Dial connects to the bridge at address:port.
func Dial(ctx context.Context, address string, port int, timeout time.Duration) (*Client, error) {
	conn, err := netc.Dial(ctx, address, port, Path)
	if err != nil {
		return nil, fmt.Errorf("remote: connect failed: %w", err)
	}
	return NewClient(conn, timeout), nil
}

// NewClient wraps an established websocket connection.
func NewClient(conn *websocket.Conn, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{
		conn:    conn,
		timeout: timeout,
		log:     log.With("component", "remote", "peer", conn.RemoteAddr().String()),
	}
}

// Close ends the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

// CallFunction calls a script function attached to target.
func (c *Client) CallFunction(ctx context.Context, target, function string, in Args) (Args, status.Code, error) {
	resp, err := c.do(ctx, &Request{Op: OpCall, Target: target, Function: function, Args: in})
	return resp.Args, resp.Status, err
}

// StartStreaming asks the backend to start buffering a signal.
func (c *Client) StartStreaming(ctx context.Context, signal string) (status.Code, error) {
	resp, err := c.do(ctx, &Request{Op: OpStream, Signal: signal})
	return resp.Status, err
}

// BufferedSignal returns the last buffered value of a streamed signal.
func (c *Client) BufferedSignal(ctx context.Context, signal string) ([]byte, status.Code, error) {
	resp, err := c.do(ctx, &Request{Op: OpBuffer, Signal: signal})
	return resp.Bytes, resp.Status, err
}

// StartSimulation starts the simulation.
func (c *Client) StartSimulation(ctx context.Context) (status.Code, error) {
	resp, err := c.do(ctx, &Request{Op: OpStartSim})
	return resp.Status, err
}

// SetSynchronous switches lock-step mode on or off.
func (c *Client) SetSynchronous(ctx context.Context, enable bool) (status.Code, error) {
	resp, err := c.do(ctx, &Request{Op: OpSynchronous, Enable: enable})
	return resp.Status, err
}

// TriggerStep advances the simulation by one tick.
func (c *Client) TriggerStep(ctx context.Context) (status.Code, error) {
	resp, err := c.do(ctx, &Request{Op: OpTriggerStep})
	return resp.Status, err
}

// do sends one request and waits for its reply. A transport failure closes
// the session, since a websocket that timed out mid-read cannot be reused.
func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return &Response{Status: status.Code(status.LocalError)}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return &Response{Status: status.Code(status.LocalError)}, err
	}

	req.ID = uuid.NewString()
	data, err := EncodeRequest(req)
	if err != nil {
		return &Response{Status: status.Code(status.LocalError)}, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return c.fail(req, err)
	}

	c.conn.SetReadDeadline(deadline)
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return c.fail(req, err)
	}
	resp, err := DecodeResponse(msg)
	if err != nil {
		return c.fail(req, err)
	}
	// only one request is ever in flight, so any other id means the
	// stream is out of step
	if resp.ID != req.ID {
		return c.fail(req, fmt.Errorf("%w: want %s, got %q", ErrMismatchedReply, req.ID, resp.ID))
	}
	if resp.Error != "" {
		c.log.Debug("backend reported error", "op", req.Op, "function", req.Function, "error", resp.Error)
	}
	return resp, nil
}

// fail tears the session down after a transport error. Timeouts are
// reported with the timeout flag so callers see the same code a blocking
// call on the backend would produce.
func (c *Client) fail(req *Request, err error) (*Response, error) {
	c.closed = true
	c.conn.Close()

	code := status.Code(status.LocalError)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		code |= status.Code(status.Timeout)
	}
	c.log.Warn("remote session failed", "op", req.Op, "function", req.Function, "error", err)
	return &Response{Status: code}, fmt.Errorf("remote: %s %s: %w", req.Op, req.Function, err)
}

var _ Link = (*Client)(nil)
