package robot

import (
	"fmt"
	"math"
)

// Physical e-Puck constants.
const (
	NumProximity = 8
	NumLight     = 8
	NumGround    = 3

	DefaultImageWidth  = 64
	DefaultImageHeight = 64

	DefaultWheelDiameter = 0.0425 // meters
	DefaultWheelDistance = 0.0623 // meters
)

// DefaultMaxVelocity is the wheel velocity limit in rad/s (120 deg/s).
var DefaultMaxVelocity = 120 * math.Pi / 180

// Layout of the aggregated "_allSens" signal.
const (
	offsetProximity     = 0
	offsetLight         = 8
	offsetGround        = 16
	offsetAccelerometer = 19
	offsetWheelEncoding = 22

	// AllSensorsLen is the minimum length of an aggregated reading.
	AllSensorsLen = 24
)

// Sensor identifies a sensor channel.
type Sensor int

// Sensor channels in refresh order.
const (
	SensorProximity Sensor = iota
	SensorLight
	SensorGround
	SensorAccelerometer
	SensorWheelEncoding
	SensorPose
)

// AllSensors lists every sensor channel in refresh order. Camera is handled
// separately because it has its own timer and observers.
var AllSensors = []Sensor{
	SensorProximity,
	SensorLight,
	SensorGround,
	SensorAccelerometer,
	SensorWheelEncoding,
	SensorPose,
}

func (s Sensor) String() string {
	switch s {
	case SensorProximity:
		return "proximity"
	case SensorLight:
		return "light"
	case SensorGround:
		return "ground"
	case SensorAccelerometer:
		return "accelerometer"
	case SensorWheelEncoding:
		return "wheel_encoding"
	case SensorPose:
		return "pose"
	default:
		return fmt.Sprintf("sensor(%d)", int(s))
	}
}

// MarshalText lets sensors appear by name in JSON.
func (s Sensor) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Pose is the robot position (meters) and heading (radians).
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Acceleration is the accelerometer reading on three axes.
type Acceleration struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// WheelEncode is the wheel encoder reading.
type WheelEncode struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Speed is a left/right wheel velocity pair in rad/s.
type Speed struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Clamp returns a new Speed with both sides limited to ±limit.
func (s Speed) Clamp(limit float64) Speed {
	return Speed{
		Left:  clamp(s.Left, -limit, limit),
		Right: clamp(s.Right, -limit, limit),
	}
}

// finite reports whether both sides are real numbers.
func (s Speed) finite() bool {
	return !math.IsNaN(s.Left) && !math.IsInf(s.Left, 0) &&
		!math.IsNaN(s.Right) && !math.IsInf(s.Right, 0)
}
