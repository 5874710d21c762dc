// Package robot is the control core for a simulated e-Puck.
//
// It keeps cached sensor readings fresh by pulling them from the simulator
// over a remote.Link, gates outgoing wheel velocities, drives the simulator
// tick by tick in synchronous mode and fans refresh events out to observers.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces that can be composed as needed. Consumers should
// depend only on the interfaces they actually use.
package robot

import "context"

// SensorSource provides the sensor getters.
// Use this minimal interface when only reading is needed (e.g., a dashboard).
type SensorSource interface {
	ProximityValues(ctx context.Context) ([]float64, error)
	LightValues(ctx context.Context) ([]float64, error)
	GroundValues(ctx context.Context) ([]float64, error)
	AccelerometerValues(ctx context.Context) (Acceleration, error)
	WheelEncodingValues(ctx context.Context) (WheelEncode, error)
	Pose(ctx context.Context) (Pose, error)
}

// CameraSource provides camera frames.
type CameraSource interface {
	CameraImage(ctx context.Context) (*CameraFrame, error)
}

// ActuatorSink provides wheel velocity control.
type ActuatorSink interface {
	SetMotorSpeeds(ctx context.Context, s Speed) error
	MaxVelocity() float64
}

// Stepper drives the simulator in synchronous mode.
type Stepper interface {
	StartSimulation(ctx context.Context) error
	Step(ctx context.Context, n int) error
	IsSynchronous() bool
}

// Refresher runs one sensing cycle of the configured strategy.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Observable accepts refresh observers.
type Observable interface {
	AddSensorObserver(o SensorObserver) (remove func())
	AddCameraObserver(o CameraObserver) (remove func())
}

// Controller is the composite interface for full robot control.
// Use this when you need complete robot control capabilities.
type Controller interface {
	SensorSource
	CameraSource
	ActuatorSink
	Stepper
	Refresher
	Observable
	Snapshot() Snapshot
}

// Ensure EPuck implements Controller
var _ Controller = (*EPuck)(nil)
