package protocol

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/teslashibe/go-epuck/pkg/robot"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// SensorsFromSnapshot converts a robot snapshot. Only enabled channels are
// filled in.
func SensorsFromSnapshot(s robot.Snapshot, changed []robot.Sensor) SensorsData {
	data := SensorsData{Speed: WheelPair{Left: s.Speed.Left, Right: s.Speed.Right}}
	for _, c := range changed {
		data.Changed = append(data.Changed, c.String())
	}
	for _, kind := range s.Enabled {
		switch kind {
		case robot.SensorProximity:
			data.Proximity = s.Proximity
		case robot.SensorLight:
			data.Light = s.Light
		case robot.SensorGround:
			data.Ground = s.Ground
		case robot.SensorAccelerometer:
			data.Acceleration = &Vector3{X: s.Acceleration.X, Y: s.Acceleration.Y, Z: s.Acceleration.Z}
		case robot.SensorWheelEncoding:
			data.WheelEncoding = &WheelPair{Left: s.WheelEncoding.Left, Right: s.WheelEncoding.Right}
		case robot.SensorPose:
			data.Pose = &PoseState{X: s.Pose.X, Y: s.Pose.Y, Theta: s.Pose.Theta}
		}
	}
	return data
}

// NewSensorsMessage creates a sensors message from a robot snapshot
func NewSensorsMessage(s robot.Snapshot, changed []robot.Sensor) (*Message, error) {
	return NewMessage(TypeSensors, SensorsFromSnapshot(s, changed))
}

// EncodeFrame encodes a camera frame as PNG
func EncodeFrame(f *robot.CameraFrame) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// NewFrameMessage creates a frame message from raw PNG data
func NewFrameMessage(width, height int, pngData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "png",
		Data:    base64.StdEncoding.EncodeToString(pngData),
		FrameID: frameID,
	})
}

// NewCameraMessage encodes a camera frame and wraps it in a frame message
func NewCameraMessage(f *robot.CameraFrame, frameID uint64) (*Message, error) {
	data, err := EncodeFrame(f)
	if err != nil {
		return nil, err
	}
	return NewFrameMessage(f.Width, f.Height, data, frameID)
}

// NewStatusMessage creates a status message
func NewStatusMessage(status StatusData) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewSpeedMessage creates a wheel speed command message
func NewSpeedMessage(left, right float64) (*Message, error) {
	return NewMessage(TypeSpeed, SpeedCommand{Left: left, Right: right})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetSensorsData extracts sensor data from a message
func (m *Message) GetSensorsData() (*SensorsData, error) {
	var data SensorsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetStatusData extracts status data from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSpeedCommand extracts a speed command from a message
func (m *Message) GetSpeedCommand() (*SpeedCommand, error) {
	var data SpeedCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
