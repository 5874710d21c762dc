// Package protocol defines the JSON messages exchanged between the robot
// process and its dashboard and telemetry consumers.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Robot → consumer messages
	TypeSensors MessageType = "sensors" // Sensor snapshot
	TypeFrame   MessageType = "frame"   // Camera frame
	TypeStatus  MessageType = "status"  // Connection and refresh state

	// Consumer → robot messages
	TypeSpeed MessageType = "speed" // Wheel speed command

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Robot → Consumer Message Types
// =============================================================================

// SensorsData is one sensor snapshot. Channels that are disabled are
// omitted.
type SensorsData struct {
	Changed       []string   `json:"changed,omitempty"` // channels refreshed since the last message
	Proximity     []float64  `json:"proximity,omitempty"`
	Light         []float64  `json:"light,omitempty"`
	Ground        []float64  `json:"ground,omitempty"`
	Acceleration  *Vector3   `json:"acceleration,omitempty"`
	WheelEncoding *WheelPair `json:"wheel_encoding,omitempty"`
	Pose          *PoseState `json:"pose,omitempty"`
	Speed         WheelPair  `json:"speed"`
}

// Vector3 is an accelerometer reading in m/s²
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// WheelPair holds one value per wheel
type WheelPair struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// PoseState is the planar pose in meters and radians
type PoseState struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// FrameData contains a camera frame
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "png"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// StatusData reports the robot link and refresh counters
type StatusData struct {
	Name        string   `json:"name"`
	Connected   bool     `json:"connected"`
	Synchronous bool     `json:"synchronous"`
	SimState    string   `json:"sim_state"`
	SenseAll    bool     `json:"sense_all"`
	Sensing     bool     `json:"sensing"`
	Enabled     []string `json:"enabled"`
	Cycles      uint64   `json:"cycles"`
	Failures    uint64   `json:"failures"`
	LastError   string   `json:"last_error,omitempty"`
}

// =============================================================================
// Consumer → Robot Message Types
// =============================================================================

// SpeedCommand requests wheel speeds in rad/s. The robot clamps them.
type SpeedCommand struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
