// Package netc provides a shared websocket dialer with sensible defaults.
// Use this instead of websocket.DefaultDialer to ensure timeouts are set.
package netc

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// Default timeouts for simulator connections.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultConnectTimeout   = 5 * time.Second
	DefaultKeepAlive        = 30 * time.Second
	DefaultBufferSize       = 64 * 1024 // one 64x64 float RGB frame is 48KB
)

// Dialer is a shared websocket dialer with production-ready defaults.
var Dialer = NewDialer(DefaultHandshakeTimeout)

// NewDialer creates a websocket dialer with the specified handshake timeout.
// For most cases, use the shared Dialer variable instead.
func NewDialer(handshake time.Duration) *websocket.Dialer {
	return &websocket.Dialer{
		NetDialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		HandshakeTimeout: handshake,
		ReadBufferSize:   DefaultBufferSize,
		WriteBufferSize:  DefaultBufferSize,
	}
}

// URL builds the websocket URL of a simulator bridge.
func URL(address string, port int, path string) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(address, strconv.Itoa(port)),
		Path:   path,
	}
	return u.String()
}

// Dial connects to the websocket endpoint with the shared dialer.
func Dial(ctx context.Context, address string, port int, path string) (*websocket.Conn, error) {
	target := URL(address, port, path)
	conn, _, err := Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return conn, nil
}
