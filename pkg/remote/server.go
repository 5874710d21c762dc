package remote

import (
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-epuck/internal/log"
)

// Server exposes a Handler to Clients over websocket.
type Server struct {
	app     *fiber.App
	handler Handler
	log     *slog.Logger

	sessions atomic.Int64
}

// NewServer creates a bridge server for the handler.
func NewServer(h Handler) *Server {
	s := &Server{
		handler: h,
		log:     log.With("component", "bridge"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "e-Puck simulator bridge",
		DisableStartupMessage: true,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true, "sessions": s.sessions.Load()})
	})

	// WebSocket upgrade middleware
	app.Use(Path, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(Path, websocket.New(s.serve, websocket.Config{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
	}))

	s.app = app
	return s
}

// App returns the underlying fiber app, e.g. for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info("bridge listening", "addr", addr)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("bridge listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Sessions returns the number of connected clients.
func (s *Server) Sessions() int {
	return int(s.sessions.Load())
}

// serve handles one session. Requests are answered strictly in order.
func (s *Server) serve(c *websocket.Conn) {
	s.sessions.Add(1)
	defer s.sessions.Add(-1)

	peer := c.RemoteAddr().String()
	s.log.Info("session opened", "peer", peer)
	defer s.log.Info("session closed", "peer", peer)

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		req, err := DecodeRequest(data)
		if err != nil {
			s.log.Warn("bad request", "peer", peer, "error", err)
			continue
		}

		resp := Dispatch(s.handler, req)
		out, err := EncodeResponse(resp)
		if err != nil {
			s.log.Error("encode reply failed", "error", err)
			return
		}
		if err := c.WriteMessage(websocket.BinaryMessage, out); err != nil {
			return
		}
	}
}
