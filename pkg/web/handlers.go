package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-epuck/pkg/hub"
	"github.com/teslashibe/go-epuck/pkg/protocol"
	"github.com/teslashibe/go-epuck/pkg/robot"
)

// speedTimeout bounds a speed command issued from the dashboard.
const speedTimeout = 2 * time.Second

// status builds the status payload.
func (s *Server) status() protocol.StatusData {
	st := s.robot.Stats()
	data := protocol.StatusData{
		Name:        s.robot.Options().Name,
		Connected:   s.robot.IsConnected(),
		Synchronous: s.robot.IsSynchronous(),
		SimState:    s.robot.SimState().String(),
		SenseAll:    s.robot.SenseAllTogether(),
		Sensing:     s.robot.IsSensing(),
		Enabled:     []string{},
		Cycles:      st.Cycles,
		Failures:    st.Failures,
	}
	for _, kind := range s.robot.EnabledSensors() {
		data.Enabled = append(data.Enabled, kind.String())
	}
	if st.LastError != nil {
		data.LastError = st.LastError.Error()
	}
	return data
}

// handleStatus returns the link and refresh state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleSensors returns the cached sensor values without refreshing
func (s *Server) handleSensors(c *fiber.Ctx) error {
	return c.JSON(protocol.SensorsFromSnapshot(s.robot.Snapshot(), nil))
}

// handleCamera returns the latest camera frame as PNG
func (s *Server) handleCamera(c *fiber.Ctx) error {
	s.frameMu.RLock()
	frame := s.frame
	s.frameMu.RUnlock()

	if frame == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no camera frame yet",
		})
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(frame)
}

// handleSpeed sets the wheel speeds
func (s *Server) handleSpeed(c *fiber.Ctx) error {
	var req protocol.SpeedCommand
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body: " + err.Error(),
		})
	}

	if err := s.setSpeed(c.UserContext(), req); err != nil {
		return c.Status(speedStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"left":  req.Left,
		"right": req.Right,
		"max":   s.robot.MaxVelocity(),
	})
}

func (s *Server) setSpeed(ctx context.Context, cmd protocol.SpeedCommand) error {
	ctx, cancel := context.WithTimeout(ctx, speedTimeout)
	defer cancel()
	return s.robot.SetMotorSpeeds(ctx, robot.Speed{Left: cmd.Left, Right: cmd.Right})
}

// speedStatus maps a command error to an HTTP status code.
func speedStatus(err error) int {
	switch {
	case errors.Is(err, robot.ErrConfiguration):
		return fiber.StatusBadRequest
	case errors.Is(err, robot.ErrIncompatibleState):
		return fiber.StatusServiceUnavailable
	case robot.IsTimeout(err):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusBadGateway
	}
}

// handleClientMessage answers pings and applies speed commands sent over
// /ws/sensors.
func (s *Server) handleClientMessage(_ *hub.Client, data []byte) *hub.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.log.Debug("bad client message", "error", err)
		return nil
	}

	switch msg.Type {
	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return nil
		}
		pong, err := protocol.NewPongMessage(ping.ID, msg.Timestamp, time.Now().UnixMilli())
		if err != nil {
			return nil
		}
		return encode(pong)

	case protocol.TypeSpeed:
		cmd, err := msg.GetSpeedCommand()
		if err != nil {
			return nil
		}
		if err := s.setSpeed(context.Background(), *cmd); err != nil {
			s.log.Warn("speed command failed", "error", err)
		}
		return nil

	default:
		s.log.Debug("ignoring client message", "type", msg.Type)
		return nil
	}
}

func encode(msg *protocol.Message) *hub.Message {
	data, err := msg.Bytes()
	if err != nil {
		return nil
	}
	out := hub.NewJSONMessage(data)
	return &out
}

// handleSensorsWS streams sensor messages and accepts speed commands
func (s *Server) handleSensorsWS(c *websocket.Conn) {
	// Send the current state first
	if msg, err := protocol.NewSensorsMessage(s.robot.Snapshot(), nil); err == nil {
		c.WriteJSON(msg)
	}
	if msg, err := protocol.NewStatusMessage(s.status()); err == nil {
		c.WriteJSON(msg)
	}

	client := hub.NewClient(s.sensorHub, c)
	client.Run()
}

// handleCameraWS streams PNG frames as binary messages
func (s *Server) handleCameraWS(c *websocket.Conn) {
	s.frameMu.RLock()
	frame := s.frame
	s.frameMu.RUnlock()
	if frame != nil {
		c.WriteMessage(websocket.BinaryMessage, frame)
	}

	client := hub.NewClient(s.cameraHub, c)
	client.Run()
}
