// Package web provides a real-time dashboard for the e-Puck
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-epuck/internal/log"
	"github.com/teslashibe/go-epuck/pkg/hub"
	"github.com/teslashibe/go-epuck/pkg/protocol"
	"github.com/teslashibe/go-epuck/pkg/robot"
)

// Robot is what the dashboard reads from and commands on the robot.
type Robot interface {
	robot.Observable
	robot.ActuatorSink
	Snapshot() robot.Snapshot
	Stats() robot.RefreshStats
	Options() robot.Options
	IsConnected() bool
	IsSynchronous() bool
	IsSensing() bool
	SimState() robot.SimState
	SenseAllTogether() bool
	EnabledSensors() []robot.Sensor
}

var _ Robot = (*robot.EPuck)(nil)

// Server is the web dashboard server
type Server struct {
	app   *fiber.App
	port  string
	robot Robot
	log   *slog.Logger

	// Hubs for websocket broadcast
	sensorHub *hub.Hub
	cameraHub *hub.Hub

	// Latest PNG frame for /api/camera.png
	frameMu sync.RWMutex
	frame   []byte

	mu      sync.Mutex
	removes []func()
}

// NewServer creates a new web dashboard server
func NewServer(r Robot, port string) *Server {
	s := &Server{
		port:      port,
		robot:     r,
		log:       log.With("component", "web"),
		sensorHub: hub.New("sensors"),
		cameraHub: hub.New("camera"),
	}
	s.sensorHub.SetHandler(s.handleClientMessage)

	app := fiber.New(fiber.Config{
		AppName:               "e-Puck Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/sensors", s.handleSensors)
	api.Post("/speed", s.handleSpeed)
	api.Get("/camera.png", s.handleCamera)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/sensors", websocket.New(s.handleSensorsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// App returns the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Attach registers the server as sensor and camera observer and starts
// the hubs. It is called by Start and Serve.
func (s *Server) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removes != nil {
		return
	}
	go s.sensorHub.Run()
	go s.cameraHub.Run()
	s.removes = []func(){
		s.robot.AddSensorObserver(s),
		s.robot.AddCameraObserver(s),
	}
}

// Start starts the web server
func (s *Server) Start() error {
	s.Attach()
	s.log.Info("web dashboard listening", "url", fmt.Sprintf("http://localhost:%s", s.port))
	return s.app.Listen(":" + s.port)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.Attach()
	return s.app.Listener(ln)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.log.Error("web server error", "error", err)
		}
	}()
}

// SensorValuesChanged implements robot.SensorObserver.
func (s *Server) SensorValuesChanged(changed []robot.Sensor) {
	if s.sensorHub.ClientCount() == 0 {
		return
	}
	msg, err := protocol.NewSensorsMessage(s.robot.Snapshot(), changed)
	if err != nil {
		s.log.Warn("encode sensors", "error", err)
		return
	}
	s.sensorHub.BroadcastJSON(msg)
}

// CameraImageChanged implements robot.CameraObserver.
func (s *Server) CameraImageChanged(frame *robot.CameraFrame) {
	data, err := protocol.EncodeFrame(frame)
	if err != nil {
		s.log.Warn("encode frame", "error", err)
		return
	}
	s.frameMu.Lock()
	s.frame = data
	s.frameMu.Unlock()

	// Broadcast via hub
	s.cameraHub.BroadcastBinary(data)
}

// GetSensorHub returns the sensor hub for external use
func (s *Server) GetSensorHub() *hub.Hub {
	return s.sensorHub
}

// GetCameraHub returns the camera hub for external use
func (s *Server) GetCameraHub() *hub.Hub {
	return s.cameraHub
}

// Shutdown unregisters the observers and stops the server
func (s *Server) Shutdown() error {
	s.mu.Lock()
	removes := s.removes
	s.removes = nil
	s.mu.Unlock()

	for _, remove := range removes {
		remove()
	}
	s.sensorHub.Stop()
	s.cameraHub.Stop()
	return s.app.ShutdownWithContext(context.Background())
}
