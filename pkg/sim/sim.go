// Package sim is a small kinematic e-Puck simulator. It answers the same
// remote calls and signals as the robot model in a full physics scene, so
// the control core can be exercised without one.
//
// The simulator runs free at a fixed tick after StartSimulation, or advances
// only on TriggerStep once synchronous mode is on.
package sim

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-epuck/internal/log"
	"github.com/teslashibe/go-epuck/pkg/remote"
	"github.com/teslashibe/go-epuck/pkg/robot"
	"github.com/teslashibe/go-epuck/pkg/status"
)

// Body geometry.
const (
	BodyRadius     = 0.037 // meters
	DefaultTick    = 50 * time.Millisecond
	DefaultProxMax = 0.1 // meters beyond the body
	gravity        = 9.81
)

// Proximity sensor directions relative to the heading, counter-clockwise
// positive: left, left-front, front-left, front-right, right-front, right,
// back-right, back-left.
var proxAngles = [robot.NumProximity]float64{
	math.Pi / 2, 0.79, 0.30, -0.30, -0.79, -math.Pi / 2, -2.64, 2.64,
}

// Light sensors sit next to the proximity sensors.
var lightAngles = proxAngles

// Ground sensors: left, centre, right, just ahead of the wheels.
var groundOffsets = [robot.NumGround]Vec{{0.03, 0.01}, {0.03, 0}, {0.03, -0.01}}

// Config describes the simulated robot.
type Config struct {
	Name           string
	SignalName     string
	Tick           time.Duration
	Start          robot.Pose
	MaxVelocity    float64
	WheelDiameter  float64
	WheelDistance  float64
	ImageWidth     int
	ImageHeight    int
	ProximityRange float64
}

// DefaultConfig returns a stock e-Puck answering as "ePuck" on port.
func DefaultConfig(port int) Config {
	o := robot.DefaultOptions(port)
	return Config{
		Name:           o.Name,
		SignalName:     o.SignalName,
		Tick:           DefaultTick,
		MaxVelocity:    robot.DefaultMaxVelocity,
		WheelDiameter:  robot.DefaultWheelDiameter,
		WheelDistance:  robot.DefaultWheelDistance,
		ImageWidth:     robot.DefaultImageWidth,
		ImageHeight:    robot.DefaultImageHeight,
		ProximityRange: DefaultProxMax,
	}
}

// Simulator implements remote.Handler.
type Simulator struct {
	cfg   Config
	world *World
	log   *slog.Logger

	mu          sync.Mutex
	pose        robot.Pose
	speed       robot.Speed
	maxVel      float64
	lastLinear  float64
	accel       robot.Acceleration
	encoders    robot.WheelEncode
	steps       uint64
	imageCycle  int
	image       []float32
	streams     map[string]bool
	running     bool
	synchronous bool

	stop chan struct{}
	done chan struct{}
}

// New creates a stopped simulator in world.
func New(cfg Config, world *World) *Simulator {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.ProximityRange <= 0 {
		cfg.ProximityRange = DefaultProxMax
	}
	if cfg.MaxVelocity <= 0 {
		cfg.MaxVelocity = robot.DefaultMaxVelocity
	}
	if cfg.ImageWidth <= 0 || cfg.ImageHeight <= 0 {
		cfg.ImageWidth, cfg.ImageHeight = robot.DefaultImageWidth, robot.DefaultImageHeight
	}
	if world == nil {
		world = NewArena(0.5)
	}
	return &Simulator{
		cfg:        cfg,
		world:      world,
		log:        log.With("component", "sim", "robot", cfg.Name),
		pose:       cfg.Start,
		maxVel:     cfg.MaxVelocity,
		accel:      robot.Acceleration{Z: gravity},
		imageCycle: 1,
		streams:    make(map[string]bool),
	}
}

// Pose returns the true pose.
func (s *Simulator) Pose() robot.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose
}

// SetPose teleports the robot.
func (s *Simulator) SetPose(p robot.Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = p
	s.image = nil
}

// Speed returns the wheel velocities in use.
func (s *Simulator) Speed() robot.Speed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Steps returns the number of ticks simulated so far.
func (s *Simulator) Steps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// Running reports whether StartSimulation was called.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Close stops the free-running loop.
func (s *Simulator) Close() {
	s.mu.Lock()
	s.running = false
	stop, done := s.detachLoop()
	s.mu.Unlock()
	waitLoop(stop, done)
}

// CallFunction implements remote.Handler.
func (s *Simulator) CallFunction(target, function string, in remote.Args) (remote.Args, status.Code) {
	if target != s.cfg.Name {
		return remote.Args{}, status.Code(status.RemoteError)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch function {
	case robot.FnProximity:
		return floats(s.proximity()), 0
	case robot.FnLight:
		return floats(s.light()), 0
	case robot.FnGround:
		return floats(s.ground()), 0
	case robot.FnAccelerometer:
		return floats([]float64{s.accel.X, s.accel.Y, s.accel.Z}), 0
	case robot.FnWheelEncoding:
		return floats([]float64{s.encoders.Left, s.encoders.Right}), 0
	case robot.FnPose:
		return floats([]float64{s.pose.X, s.pose.Y, s.pose.Theta}), 0
	case robot.FnCamera:
		return remote.Args{Floats: s.cameraImage()}, 0
	case robot.FnWheelDiameter:
		return floats([]float64{s.cfg.WheelDiameter}), 0
	case robot.FnWheelDistance:
		return floats([]float64{s.cfg.WheelDistance}), 0
	case robot.FnSetVelocities:
		if len(in.Floats) < 2 {
			return remote.Args{}, status.Code(status.RemoteError)
		}
		l, r := float64(in.Floats[0]), float64(in.Floats[1])
		s.speed = robot.Speed{Left: l, Right: r}.Clamp(s.maxVel)
		return remote.Args{}, 0
	case robot.FnSetMaxVelocity:
		if len(in.Floats) < 1 || in.Floats[0] <= 0 {
			return remote.Args{}, status.Code(status.RemoteError)
		}
		s.maxVel = float64(in.Floats[0])
		return remote.Args{}, 0
	case robot.FnSetImageCycle:
		if len(in.Ints) < 1 || in.Ints[0] < 1 {
			return remote.Args{}, status.Code(status.RemoteError)
		}
		s.imageCycle = int(in.Ints[0])
		return remote.Args{}, 0
	}

	s.log.Debug("unknown script function", "function", function)
	return remote.Args{}, status.Code(status.RemoteError)
}

// StartStreaming implements remote.Handler. The first request for a signal
// answers "no value yet", later ones succeed.
func (s *Simulator) StartStreaming(signal string) status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streams[signal] {
		return 0
	}
	s.streams[signal] = true
	return status.Code(status.NoValue)
}

// BufferedSignal implements remote.Handler.
func (s *Simulator) BufferedSignal(signal string) ([]byte, status.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.streams[signal] {
		return nil, status.Code(status.NoValue)
	}
	switch signal {
	case s.cfg.SignalName + robot.SuffixAllSensors:
		return remote.PackFloats(s.allSensors()), 0
	case s.cfg.SignalName + robot.SuffixCamera:
		return remote.PackFloats(s.cameraImage()), 0
	}
	return nil, status.Code(status.NoValue)
}

// StartSimulation implements remote.Handler.
func (s *Simulator) StartSimulation() status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return 0
	}
	s.running = true
	if !s.synchronous {
		s.startLoop()
	}
	s.log.Info("simulation started", "synchronous", s.synchronous, "tick", s.cfg.Tick)
	return 0
}

// SetSynchronous implements remote.Handler.
func (s *Simulator) SetSynchronous(enable bool) status.Code {
	s.mu.Lock()
	s.synchronous = enable
	var stop, done chan struct{}
	if enable {
		stop, done = s.detachLoop()
	} else if s.running && s.stop == nil {
		s.startLoop()
	}
	s.mu.Unlock()

	waitLoop(stop, done)
	return 0
}

// TriggerStep implements remote.Handler.
func (s *Simulator) TriggerStep() status.Code {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.synchronous || !s.running {
		return status.Code(status.IllegalOpMode)
	}
	s.stepLocked()
	return 0
}

// startLoop runs free ticks. s.mu must be held.
func (s *Simulator) startLoop() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

// detachLoop takes the loop channels so the caller can stop it after
// releasing s.mu.
func (s *Simulator) detachLoop() (stop, done chan struct{}) {
	stop, done = s.stop, s.done
	s.stop, s.done = nil, nil
	return stop, done
}

func waitLoop(stop, done chan struct{}) {
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Simulator) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.stepLocked()
			s.mu.Unlock()
		}
	}
}

// stepLocked integrates one tick of differential-drive kinematics.
func (s *Simulator) stepLocked() {
	dt := s.cfg.Tick.Seconds()
	r := s.cfg.WheelDiameter / 2

	vl, vr := s.speed.Left*r, s.speed.Right*r
	linear := (vl + vr) / 2
	angular := (vr - vl) / s.cfg.WheelDistance

	theta := s.pose.Theta + angular*dt
	mid := s.pose.Theta + angular*dt/2
	next := Vec{s.pose.X, s.pose.Y}.Add(heading(mid).Scale(linear * dt))

	// The body stops at walls; wheels keep turning.
	if s.world.clearance(next) >= BodyRadius {
		s.pose.X, s.pose.Y = next.X, next.Y
	} else {
		linear = 0
	}
	s.pose.Theta = wrapAngle(theta)

	s.encoders.Left += s.speed.Left * dt
	s.encoders.Right += s.speed.Right * dt

	s.accel = robot.Acceleration{
		X: (linear - s.lastLinear) / dt,
		Y: linear * angular,
		Z: gravity,
	}
	s.lastLinear = linear

	s.steps++
	if s.steps%uint64(s.imageCycle) == 0 {
		s.image = nil
	}
}

func (s *Simulator) position() Vec {
	return Vec{s.pose.X, s.pose.Y}
}

// proximity returns the free distance in front of each sensor, capped at
// the sensor range.
func (s *Simulator) proximity() []float64 {
	out := make([]float64, robot.NumProximity)
	p := s.position()
	for i, a := range proxAngles {
		dir := heading(s.pose.Theta + a)
		origin := p.Add(dir.Scale(BodyRadius))
		out[i] = s.world.raycast(origin, dir, s.cfg.ProximityRange)
	}
	return out
}

func (s *Simulator) light() []float64 {
	out := make([]float64, robot.NumLight)
	p := s.position()
	for i, a := range lightAngles {
		dir := heading(s.pose.Theta + a)
		out[i] = s.world.illumination(p.Add(dir.Scale(BodyRadius)), dir)
	}
	return out
}

func (s *Simulator) ground() []float64 {
	out := make([]float64, robot.NumGround)
	p := s.position()
	cos, sin := math.Cos(s.pose.Theta), math.Sin(s.pose.Theta)
	for i, o := range groundOffsets {
		at := p.Add(Vec{o.X*cos - o.Y*sin, o.X*sin + o.Y*cos})
		out[i] = s.world.reflectance(at)
	}
	return out
}

// allSensors packs the aggregated signal: proximity, light, ground,
// accelerometer, wheel encoding.
func (s *Simulator) allSensors() []float32 {
	vals := make([]float64, 0, robot.AllSensorsLen)
	vals = append(vals, s.proximity()...)
	vals = append(vals, s.light()...)
	vals = append(vals, s.ground()...)
	vals = append(vals, s.accel.X, s.accel.Y, s.accel.Z)
	vals = append(vals, s.encoders.Left, s.encoders.Right)
	return toFloat32(vals)
}

func (s *Simulator) cameraImage() []float32 {
	if s.image == nil {
		s.image = s.render()
	}
	return s.image
}

func floats(v []float64) remote.Args {
	return remote.Args{Floats: toFloat32(v)}
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

var _ remote.Handler = (*Simulator)(nil)
