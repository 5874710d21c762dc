package behavior

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-epuck/pkg/remote"
	"github.com/teslashibe/go-epuck/pkg/robot"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

// mockRobot records all commands for testing
type mockRobot struct {
	mu         sync.Mutex
	prox       []float64
	sync       bool
	senseAll   bool
	refreshErr error
	speeds     []robot.Speed
	steps      int
	refreshes  int
}

func newMockRobot(prox ...float64) *mockRobot {
	if len(prox) == 0 {
		prox = []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	}
	return &mockRobot{prox: prox}
}

func (m *mockRobot) Snapshot() robot.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return robot.Snapshot{
		Proximity: append([]float64(nil), m.prox...),
		Enabled:   []robot.Sensor{robot.SensorProximity},
	}
}

func (m *mockRobot) SenseAllTogether() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.senseAll
}

func (m *mockRobot) MaxVelocity() float64 { return robot.DefaultMaxVelocity }

func (m *mockRobot) StartSimulation(ctx context.Context) error { return nil }

func (m *mockRobot) IsSynchronous() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sync
}

func (m *mockRobot) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	return m.refreshErr
}

func (m *mockRobot) SetMotorSpeeds(ctx context.Context, s robot.Speed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speeds = append(m.speeds, s)
	return nil
}

func (m *mockRobot) Step(ctx context.Context, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps += n
	return nil
}

func (m *mockRobot) setProx(prox ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prox = prox
}

func (m *mockRobot) speedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.speeds)
}

func (m *mockRobot) lastSpeed() robot.Speed {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.speeds) == 0 {
		return robot.Speed{}
	}
	return m.speeds[len(m.speeds)-1]
}

// constant always asks for the same speed.
type constant struct {
	speed robot.Speed
	ticks int
	limit int
}

func (c *constant) Name() string { return "constant" }

func (c *constant) Decide(p Perception) (robot.Speed, bool) {
	c.ticks++
	return c.speed, true
}

func (c *constant) Done() bool { return c.limit > 0 && c.ticks >= c.limit }

func TestRunner_TickSendsCommand(t *testing.T) {
	mock := newMockRobot()
	r := NewRunner(mock, nil, &constant{speed: robot.Speed{Left: 1, Right: -1}}, 10*time.Millisecond)

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if got := mock.lastSpeed(); got.Left != 1 || got.Right != -1 {
		t.Errorf("speed = %+v, want {1 -1}", got)
	}
	if mock.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", mock.refreshes)
	}
	if mock.steps != 0 {
		t.Errorf("steps = %d in asynchronous mode", mock.steps)
	}
}

func TestRunner_DeadZone(t *testing.T) {
	mock := newMockRobot()
	b := &constant{speed: robot.Speed{Left: 1, Right: 1}}
	r := NewRunner(mock, nil, b, 10*time.Millisecond)
	ctx := context.Background()

	r.Tick(ctx)
	r.Tick(ctx)
	b.speed = robot.Speed{Left: 1.005, Right: 1}
	r.Tick(ctx)

	if n := mock.speedCount(); n != 1 {
		t.Errorf("sends = %d, want 1 (dead zone)", n)
	}
	if s := r.Stats(); s.Skipped != 2 || s.Ticks != 3 {
		t.Errorf("stats = %+v", s)
	}

	b.speed = robot.Speed{Left: 1.5, Right: 1}
	r.Tick(ctx)
	if n := mock.speedCount(); n != 2 {
		t.Errorf("sends = %d, want 2 after a real change", n)
	}
}

func TestRunner_ClampsCommand(t *testing.T) {
	mock := newMockRobot()
	r := NewRunner(mock, nil, &constant{speed: robot.Speed{Left: 10, Right: -10}}, time.Millisecond)
	r.Tick(context.Background())

	got := mock.lastSpeed()
	if !floatEquals(got.Left, robot.DefaultMaxVelocity) || !floatEquals(got.Right, -robot.DefaultMaxVelocity) {
		t.Errorf("speed = %+v, want clamped", got)
	}
}

func TestRunner_SynchronousSteps(t *testing.T) {
	mock := newMockRobot()
	mock.sync = true
	r := NewRunner(mock, nil, &constant{}, time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := r.Tick(context.Background()); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	if mock.steps != 3 {
		t.Errorf("steps = %d, want one per tick", mock.steps)
	}
}

func TestRunner_PartialRefreshKeepsDriving(t *testing.T) {
	mock := newMockRobot()
	mock.refreshErr = errors.New("light timed out")
	r := NewRunner(mock, nil, &constant{speed: robot.Speed{Left: 1}}, time.Millisecond)

	if err := r.Tick(context.Background()); err == nil {
		t.Fatal("Tick() expected the refresh error")
	}
	if mock.speedCount() != 1 {
		t.Errorf("sends = %d, want 1 from cached values", mock.speedCount())
	}
}

func TestRunner_AggregatedRefreshErrorSkipsSend(t *testing.T) {
	mock := newMockRobot()
	mock.senseAll = true
	mock.refreshErr = errors.New("signal missing")
	r := NewRunner(mock, nil, &constant{speed: robot.Speed{Left: 1}}, time.Millisecond)

	if err := r.Tick(context.Background()); err == nil {
		t.Fatal("Tick() expected error")
	}
	if mock.speedCount() != 0 {
		t.Error("command sent after failed aggregated sense")
	}
}

func TestRunner_SynchronousStepsAfterRefreshError(t *testing.T) {
	tests := []struct {
		name     string
		senseAll bool
	}{
		{"individual", false},
		{"aggregated", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockRobot()
			mock.sync = true
			mock.senseAll = tt.senseAll
			mock.refreshErr = errors.New("light timed out")
			r := NewRunner(mock, nil, &constant{}, time.Millisecond)

			for i := 0; i < 5; i++ {
				r.Tick(context.Background())
			}
			if mock.steps != 5 {
				t.Errorf("steps = %d, want 5 even when sensing fails", mock.steps)
			}
		})
	}
}

func TestRunner_ReadsProximityOncePerTick(t *testing.T) {
	m := remote.NewMock()
	m.OnCall(robot.FnSetMaxVelocity, remote.Args{})
	m.OnCall(robot.FnSetVelocities, remote.Args{})
	m.OnFloats(robot.FnWheelDiameter, 0.0425)
	m.OnFloats(robot.FnWheelDistance, 0.0623)
	m.OnFloats(robot.FnProximity, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1)

	e := robot.New(m, robot.DefaultOptions(19999))
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer e.Disconnect()
	e.EnableAll(robot.SensorProximity)
	m.Reset()

	r := NewRunner(e, nil, &constant{speed: robot.Speed{Left: 1}}, time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := r.Tick(context.Background()); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	if n := m.Count(remote.OpCall, robot.FnProximity); n != 3 {
		t.Errorf("proximity calls = %d, want one per tick", n)
	}
}

func TestRunner_RunStop(t *testing.T) {
	mock := newMockRobot()
	r := NewRunner(mock, nil, &constant{speed: robot.Speed{Left: 1}}, 5*time.Millisecond)

	done := make(chan error)
	go func() {
		done <- r.Run(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	r.Stop()
	r.Stop() // idempotent

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil after Stop", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Runner did not stop within timeout")
	}
	if r.Stats().Ticks < 3 {
		t.Errorf("ticks = %d, want several", r.Stats().Ticks)
	}
}

func TestRunner_RunUntilDone(t *testing.T) {
	mock := newMockRobot()
	r := NewRunner(mock, nil, &constant{limit: 3}, time.Millisecond)

	err := r.Run(context.Background())
	if !errors.Is(err, ErrBehaviorDone) {
		t.Errorf("Run() = %v, want ErrBehaviorDone", err)
	}
	if r.Stats().Ticks != 3 {
		t.Errorf("ticks = %d, want 3", r.Stats().Ticks)
	}
}

func TestRunner_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r := NewRunner(newMockRobot(), nil, &constant{}, time.Millisecond)
	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v, want deadline exceeded", err)
	}
}
