package robot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-epuck/internal/log"
	"github.com/teslashibe/go-epuck/pkg/remote"
	"github.com/teslashibe/go-epuck/pkg/status"
)

// Script functions exposed by the e-Puck model in the scene.
const (
	FnProximity      = "getProxSensorsForRemote"
	FnLight          = "getLightSensorsForRemote"
	FnGround         = "getGroundSensorForRemote"
	FnAccelerometer  = "getAccelerometerForRemote"
	FnWheelEncoding  = "getWheelEncodingSensorForRemote"
	FnPose           = "getPoseForRemote"
	FnCamera         = "getCameraSensorsForRemote"
	FnSetVelocities  = "setVelocitiesForRemote"
	FnSetMaxVelocity = "setMaxVelocityForRemote"
	FnWheelDiameter  = "getWheelDiameterForRemote"
	FnWheelDistance  = "getWheelDistanceForRemote"
	FnSetImageCycle  = "setImageCycleForRemote"
)

// Signal suffixes appended to the robot's signal name.
const (
	SuffixAllSensors = "_allSens"
	SuffixCamera     = "_camera"
)

// Default timer intervals.
const (
	DefaultSensorInterval = 90 * time.Millisecond
	DefaultCameraInterval = 500 * time.Millisecond
)

// Options configures an EPuck.
type Options struct {
	// Name is the scene object the script functions are attached to.
	Name string

	// SignalName prefixes the streamed signals, usually "epuck<port>".
	SignalName string

	// Synchronous enables lock-step simulation. It cannot change after New.
	Synchronous bool

	// SenseAllTogether selects the aggregated refresh strategy.
	SenseAllTogether bool

	MaxVelocity    float64 // rad/s
	ImageWidth     int
	ImageHeight    int
	SensorInterval time.Duration
	CameraInterval time.Duration
}

// DefaultOptions returns options for the stock e-Puck model on port.
func DefaultOptions(port int) Options {
	return Options{
		Name:           "ePuck",
		SignalName:     fmt.Sprintf("epuck%d", port),
		MaxVelocity:    DefaultMaxVelocity,
		ImageWidth:     DefaultImageWidth,
		ImageHeight:    DefaultImageHeight,
		SensorInterval: DefaultSensorInterval,
		CameraInterval: DefaultCameraInterval,
	}
}

func (o *Options) fill() {
	if o.Name == "" {
		o.Name = "ePuck"
	}
	if o.SignalName == "" {
		o.SignalName = "epuck"
	}
	if o.MaxVelocity <= 0 {
		o.MaxVelocity = DefaultMaxVelocity
	}
	if o.ImageWidth <= 0 {
		o.ImageWidth = DefaultImageWidth
	}
	if o.ImageHeight <= 0 {
		o.ImageHeight = DefaultImageHeight
	}
	if o.SensorInterval <= 0 {
		o.SensorInterval = DefaultSensorInterval
	}
	if o.CameraInterval <= 0 {
		o.CameraInterval = DefaultCameraInterval
	}
}

// EPuck is one e-Puck session.
//
// All remote calls are serialized on a single session lock; cached values
// live in per-channel cells so getters of one channel never wait for the
// refresh of another. EPuck is safe for concurrent use.
type EPuck struct {
	opts Options
	link remote.Link
	log  *slog.Logger

	// apiMu serializes every call on the link. seq is advanced under it,
	// so sequence order equals reply order.
	apiMu sync.Mutex
	seq   atomic.Uint64

	connected atomic.Bool
	senseAll  atomic.Bool
	simState  atomic.Int32

	prox   *indexed
	light  *indexed
	ground *indexed
	accel  scalar[Acceleration]
	wheel  scalar[WheelEncode]
	pose   scalar[Pose]
	camera scalar[*CameraFrame]

	// actuator gate
	gateMu sync.Mutex
	speed  Speed

	modelMu       sync.RWMutex
	wheelDiameter float64
	wheelDistance float64

	timerMu sync.Mutex
	sensing *ticker
	imaging *ticker
	stats   refreshStats

	sensorObs observers[SensorObserver]
	cameraObs observers[CameraObserver]
}

// New creates an EPuck on an established link. Call Connect before use.
func New(link remote.Link, opts Options) *EPuck {
	opts.fill()

	e := &EPuck{
		opts:          opts,
		link:          link,
		log:           log.With("component", "epuck", "robot", opts.Name),
		prox:          newIndexed(SensorProximity, FnProximity, offsetProximity, NumProximity),
		light:         newIndexed(SensorLight, FnLight, offsetLight, NumLight),
		ground:        newIndexed(SensorGround, FnGround, offsetGround, NumGround),
		wheelDiameter: DefaultWheelDiameter,
		wheelDistance: DefaultWheelDistance,
	}
	e.accel.kind = SensorAccelerometer
	e.wheel.kind = SensorWheelEncoding
	e.pose.kind = SensorPose
	e.senseAll.Store(opts.SenseAllTogether)
	return e
}

// Dial connects to a simulator bridge and returns a connected EPuck.
func Dial(ctx context.Context, address string, port int, callTimeout time.Duration, opts Options) (*EPuck, error) {
	link, err := remote.Dial(ctx, address, port, callTimeout)
	if err != nil {
		return nil, err
	}
	if opts.SignalName == "" {
		opts.SignalName = fmt.Sprintf("epuck%d", port)
	}

	e := New(link, opts)
	if err := e.Connect(ctx); err != nil {
		link.Close()
		return nil, err
	}
	return e, nil
}

// Connect starts the signal streams and reads the robot model. It is a
// no-op on a connected session.
func (e *EPuck) Connect(ctx context.Context) error {
	if !e.connected.CompareAndSwap(false, true) {
		return nil
	}

	if err := e.initModel(ctx); err != nil {
		e.connected.Store(false)
		return err
	}

	e.log.Info("connected",
		"signal", e.opts.SignalName,
		"synchronous", e.opts.Synchronous,
		"sense_all", e.senseAll.Load())
	return nil
}

// initModel starts streaming and pushes/pulls the model parameters.
func (e *EPuck) initModel(ctx context.Context) error {
	for _, sig := range []string{e.opts.SignalName + SuffixAllSensors, e.opts.SignalName + SuffixCamera} {
		e.apiMu.Lock()
		code, err := e.link.StartStreaming(ctx, sig)
		e.apiMu.Unlock()

		// The first streaming read has no value yet.
		if err == nil && code.Has(status.NoValue) {
			code = 0
		}
		if err := checkCall("start streaming "+sig, code, err); err != nil {
			return err
		}
	}

	if _, _, err := e.call(ctx, "set max velocity", FnSetMaxVelocity, remote.Args{Floats: []float32{float32(e.opts.MaxVelocity)}}); err != nil {
		return err
	}

	diameter, err := e.callScalar(ctx, "read wheel diameter", FnWheelDiameter)
	if err != nil {
		return err
	}
	distance, err := e.callScalar(ctx, "read wheel distance", FnWheelDistance)
	if err != nil {
		return err
	}

	e.modelMu.Lock()
	e.wheelDiameter = diameter
	e.wheelDistance = distance
	e.modelMu.Unlock()
	return nil
}

// Disconnect stops both timers and closes the link.
func (e *EPuck) Disconnect() error {
	e.StopSensing()
	e.StopImaging()

	if !e.connected.CompareAndSwap(true, false) {
		return nil
	}
	e.log.Info("disconnected")
	return e.link.Close()
}

// IsConnected reports whether Connect succeeded and Disconnect was not called.
func (e *EPuck) IsConnected() bool {
	return e.connected.Load()
}

// Options returns the session options.
func (e *EPuck) Options() Options {
	return e.opts
}

// MaxVelocity returns the wheel velocity limit in rad/s.
func (e *EPuck) MaxVelocity() float64 {
	return e.opts.MaxVelocity
}

// WheelDiameter returns the wheel diameter reported by the model.
func (e *EPuck) WheelDiameter() float64 {
	e.modelMu.RLock()
	defer e.modelMu.RUnlock()
	return e.wheelDiameter
}

// WheelDistance returns the axle length reported by the model.
func (e *EPuck) WheelDistance() float64 {
	e.modelMu.RLock()
	defer e.modelMu.RUnlock()
	return e.wheelDistance
}

// SetImageCycle tells the model to render a camera image every n
// simulation steps.
func (e *EPuck) SetImageCycle(ctx context.Context, n int) error {
	if n < 1 {
		return fmt.Errorf("%w: image cycle must be at least 1, got %d", ErrConfiguration, n)
	}
	_, _, err := e.call(ctx, "set image cycle", FnSetImageCycle, remote.Args{Ints: []int32{int32(n)}})
	return err
}

// call performs one script call under the session lock and returns the
// sequence number of its reply.
func (e *EPuck) call(ctx context.Context, op, function string, in remote.Args) (remote.Args, uint64, error) {
	if !e.connected.Load() {
		return remote.Args{}, 0, ErrNotConnected
	}

	e.apiMu.Lock()
	out, code, err := e.link.CallFunction(ctx, e.opts.Name, function, in)
	seq := e.seq.Add(1)
	e.apiMu.Unlock()

	if err := checkCall(op, code, err); err != nil {
		return out, seq, err
	}
	return out, seq, nil
}

// callFloats calls a function and checks that the reply has at least n
// floats.
func (e *EPuck) callFloats(ctx context.Context, op, function string, n int) ([]float64, uint64, error) {
	out, seq, err := e.call(ctx, op, function, remote.Args{})
	if err != nil {
		return nil, seq, err
	}
	if len(out.Floats) < n {
		return nil, seq, &RemoteCallError{
			Op:  op,
			Err: fmt.Errorf("%w: got %d values, want %d", ErrShortReply, len(out.Floats), n),
		}
	}
	vals := make([]float64, len(out.Floats))
	for i, f := range out.Floats {
		vals[i] = float64(f)
	}
	return vals, seq, nil
}

func (e *EPuck) callScalar(ctx context.Context, op, function string) (float64, error) {
	vals, _, err := e.callFloats(ctx, op, function, 1)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// signal reads a buffered signal under the session lock and unpacks it.
func (e *EPuck) signal(ctx context.Context, op, name string) ([]float64, uint64, error) {
	if !e.connected.Load() {
		return nil, 0, ErrNotConnected
	}

	e.apiMu.Lock()
	payload, code, err := e.link.BufferedSignal(ctx, name)
	seq := e.seq.Add(1)
	e.apiMu.Unlock()

	if err := checkCall(op, code, err); err != nil {
		return nil, seq, err
	}
	vals, err := remote.UnpackFloats(payload)
	if err != nil {
		return nil, seq, &RemoteCallError{Op: op, Err: err}
	}
	return vals, seq, nil
}
