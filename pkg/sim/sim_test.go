package sim

import (
	"context"
	"math"
	"net"
	"testing"
	"time"

	"github.com/teslashibe/go-epuck/pkg/remote"
	"github.com/teslashibe/go-epuck/pkg/robot"
	"github.com/teslashibe/go-epuck/pkg/status"
)

const floatTolerance = 1e-6

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func newSyncSim(t *testing.T, start robot.Pose) *Simulator {
	t.Helper()
	cfg := DefaultConfig(19999)
	cfg.Start = start
	s := New(cfg, NewArena(0.5))
	t.Cleanup(s.Close)

	if code := s.StartSimulation(); code != 0 {
		t.Fatalf("StartSimulation() = %v", code)
	}
	if code := s.SetSynchronous(true); code != 0 {
		t.Fatalf("SetSynchronous() = %v", code)
	}
	return s
}

func setSpeed(t *testing.T, s *Simulator, l, r float32) {
	t.Helper()
	if _, code := s.CallFunction("ePuck", robot.FnSetVelocities, remote.Args{Floats: []float32{l, r}}); code != 0 {
		t.Fatalf("set velocities = %v", code)
	}
}

func TestSimulator_DrivesForward(t *testing.T) {
	s := newSyncSim(t, robot.Pose{})
	setSpeed(t, s, 1, 1)

	for i := 0; i < 10; i++ {
		if code := s.TriggerStep(); code != 0 {
			t.Fatalf("TriggerStep() = %v", code)
		}
	}

	want := 1 * robot.DefaultWheelDiameter / 2 * DefaultTick.Seconds() * 10
	p := s.Pose()
	if !floatEquals(p.X, want) || !floatEquals(p.Y, 0) || !floatEquals(p.Theta, 0) {
		t.Errorf("pose = %+v, want x=%v", p, want)
	}
	if s.Steps() != 10 {
		t.Errorf("Steps() = %d, want 10", s.Steps())
	}
}

func TestSimulator_TurnsInPlace(t *testing.T) {
	s := newSyncSim(t, robot.Pose{})
	setSpeed(t, s, -1, 1)
	s.TriggerStep()

	p := s.Pose()
	if p.Theta <= 0 {
		t.Errorf("Theta = %v, want counter-clockwise turn", p.Theta)
	}
	if !floatEquals(p.X, 0) || !floatEquals(p.Y, 0) {
		t.Errorf("position moved: %+v", p)
	}
}

func TestSimulator_ClampsVelocity(t *testing.T) {
	s := newSyncSim(t, robot.Pose{})
	setSpeed(t, s, 10, -10)

	sp := s.Speed()
	if !floatEquals(sp.Left, robot.DefaultMaxVelocity) || !floatEquals(sp.Right, -robot.DefaultMaxVelocity) {
		t.Errorf("Speed() = %+v", sp)
	}

	if _, code := s.CallFunction("ePuck", robot.FnSetVelocities, remote.Args{Floats: []float32{1}}); !code.Has(status.RemoteError) {
		t.Errorf("short velocity args code = %v", code)
	}
}

func TestSimulator_WallStopsBody(t *testing.T) {
	s := newSyncSim(t, robot.Pose{X: 0.45})
	setSpeed(t, s, 2, 2)
	for i := 0; i < 200; i++ {
		s.TriggerStep()
	}
	if x := s.Pose().X; x > 0.5-BodyRadius+1e-9 {
		t.Errorf("X = %v, body went through the wall", x)
	}
}

func TestSimulator_StepRequiresSync(t *testing.T) {
	cfg := DefaultConfig(19999)
	s := New(cfg, nil)
	defer s.Close()

	if code := s.TriggerStep(); !code.Has(status.IllegalOpMode) {
		t.Errorf("TriggerStep() before start = %v, want illegal_opmode", code)
	}
	s.SetSynchronous(true)
	if code := s.TriggerStep(); !code.Has(status.IllegalOpMode) {
		t.Errorf("TriggerStep() before StartSimulation = %v, want illegal_opmode", code)
	}
}

func TestSimulator_Proximity(t *testing.T) {
	s := newSyncSim(t, robot.Pose{X: 0.43})

	out, code := s.CallFunction("ePuck", robot.FnProximity, remote.Args{})
	if code != 0 || len(out.Floats) != robot.NumProximity {
		t.Fatalf("proximity = %v, %v", out.Floats, code)
	}
	// front sensors see the wall, the left one sees nothing in range
	if out.Floats[2] >= 0.05 || out.Floats[3] >= 0.05 {
		t.Errorf("front readings = %v, %v, want < 0.05", out.Floats[2], out.Floats[3])
	}
	if !floatEquals(float64(out.Floats[0]), DefaultProxMax) {
		t.Errorf("left reading = %v, want max range", out.Floats[0])
	}
}

func TestSimulator_LightAndGround(t *testing.T) {
	cfg := DefaultConfig(19999)
	w := NewArena(0.5)
	w.Lights = []Light{{Pos: Vec{0.3, 0}, Intensity: 1}}
	w.Spots = []Spot{{Center: Vec{0.03, 0}, Radius: 0.02, Reflectance: 0}}
	s := New(cfg, w)

	light, _ := s.CallFunction("ePuck", robot.FnLight, remote.Args{})
	// front sensors face the light, back ones do not
	if light.Floats[2] <= 0 || light.Floats[6] != 0 {
		t.Errorf("light = %v", light.Floats)
	}

	ground, _ := s.CallFunction("ePuck", robot.FnGround, remote.Args{})
	if len(ground.Floats) != robot.NumGround || ground.Floats[1] != 0 {
		t.Errorf("ground = %v, want dark centre", ground.Floats)
	}
}

func TestSimulator_Signals(t *testing.T) {
	s := newSyncSim(t, robot.Pose{})
	sig := "epuck19999_allSens"

	if _, code := s.BufferedSignal(sig); !code.Has(status.NoValue) {
		t.Errorf("signal before streaming = %v, want novalue", code)
	}
	if code := s.StartStreaming(sig); !code.Has(status.NoValue) {
		t.Errorf("first StartStreaming() = %v, want novalue", code)
	}
	if code := s.StartStreaming(sig); code != 0 {
		t.Errorf("second StartStreaming() = %v, want ok", code)
	}

	payload, code := s.BufferedSignal(sig)
	if code != 0 {
		t.Fatalf("BufferedSignal() = %v", code)
	}
	vals, err := remote.UnpackFloats(payload)
	if err != nil || len(vals) != robot.AllSensorsLen {
		t.Fatalf("allSens = %d values, %v", len(vals), err)
	}
	if !floatEquals(vals[21], gravity) {
		t.Errorf("accelerometer z = %v, want gravity", vals[21])
	}

	s.StartStreaming("epuck19999_camera")
	img, code := s.BufferedSignal("epuck19999_camera")
	if code != 0 || len(img) != robot.DefaultImageWidth*robot.DefaultImageHeight*3*4 {
		t.Errorf("camera = %d bytes, %v", len(img), code)
	}
}

func TestSimulator_UnknownTarget(t *testing.T) {
	s := New(DefaultConfig(19999), nil)
	if _, code := s.CallFunction("other", robot.FnPose, remote.Args{}); !code.Has(status.RemoteError) {
		t.Errorf("code = %v, want remote_error", code)
	}
	if _, code := s.CallFunction("ePuck", "nope", remote.Args{}); !code.Has(status.RemoteError) {
		t.Errorf("code = %v, want remote_error", code)
	}
}

func TestSimulator_FreeRunning(t *testing.T) {
	cfg := DefaultConfig(19999)
	cfg.Tick = time.Millisecond
	s := New(cfg, nil)
	s.StartSimulation()

	deadline := time.Now().Add(2 * time.Second)
	for s.Steps() < 5 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if s.Steps() < 5 {
		t.Fatalf("Steps() = %d, loop not running", s.Steps())
	}

	// switching to synchronous mode halts free ticks
	s.SetSynchronous(true)
	n := s.Steps()
	time.Sleep(20 * time.Millisecond)
	if s.Steps() != n {
		t.Errorf("steps advanced in synchronous mode: %d -> %d", n, s.Steps())
	}
	s.Close()
}

func TestRender(t *testing.T) {
	cfg := DefaultConfig(19999)
	cfg.ImageWidth, cfg.ImageHeight = 8, 6
	s := New(cfg, NewArena(0.2))

	img := s.render()
	if len(img) != 8*6*3 {
		t.Fatalf("len = %d", len(img))
	}
	for i, v := range img {
		if v < 0 || v > 1 {
			t.Fatalf("img[%d] = %v out of range", i, v)
		}
	}
	// top row (stored last) is sky or wall, bottom row (stored first) is floor
	if img[0] != img[1] || img[0] != img[2] {
		t.Errorf("bottom-left pixel = %v, want grey floor", img[:3])
	}
}

// TestEndToEnd drives an EPuck over the websocket bridge against the
// simulator in synchronous mode.
func TestEndToEnd(t *testing.T) {
	s := New(DefaultConfig(19999), NewArena(0.5))
	defer s.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := remote.NewServer(s)
	go srv.Serve(ln)
	defer srv.Shutdown()

	port := ln.Addr().(*net.TCPAddr).Port
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := robot.DefaultOptions(19999)
	opts.Synchronous = true

	var e *robot.EPuck
	for i := 0; i < 20; i++ {
		e, err = robot.Dial(ctx, "127.0.0.1", port, time.Second, opts)
		if err == nil {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer e.Disconnect()

	e.EnableAllSensors()
	e.SetSenseAllTogether(true)

	if err := e.StartSimulation(ctx); err != nil {
		t.Fatalf("StartSimulation() error = %v", err)
	}
	if err := e.SetSpeed(ctx, 1, 1); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	if err := e.Step(ctx, 20); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	p, err := e.Pose(ctx)
	if err != nil {
		t.Fatalf("Pose() error = %v", err)
	}
	if p.X <= 0 {
		t.Errorf("Pose().X = %v, want forward motion", p.X)
	}
	wheel, _ := e.WheelEncodingValues(ctx)
	if wheel.Left <= 0 {
		t.Errorf("wheel encoding = %+v", wheel)
	}
	if s.Steps() < 21 {
		t.Errorf("sim steps = %d, want at least 21", s.Steps())
	}
}
