// Package behavior runs reactive controllers on top of the robot core.
//
// A Behavior turns one Perception into a wheel command. The Runner senses,
// decides and actuates at a fixed rate and, in synchronous mode, advances
// the simulator one step per tick.
package behavior

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/teslashibe/go-epuck/internal/log"
	"github.com/teslashibe/go-epuck/pkg/robot"
)

// Robot is the interface needed by the Runner.
type Robot interface {
	robot.ActuatorSink
	robot.Refresher
	robot.Stepper
	SenseAllTogether() bool
	Snapshot() robot.Snapshot
}

// Perception is what a behavior sees on one tick.
type Perception struct {
	Proximity []float64
	Frame     *robot.CameraFrame // nil unless the behavior is a CameraUser
	Tick      uint64
}

// Behavior decides wheel speeds. ok=false keeps the previous command.
type Behavior interface {
	Name() string
	Decide(p Perception) (cmd robot.Speed, ok bool)
}

// CameraUser is implemented by behaviors that need a camera frame.
type CameraUser interface {
	UsesCamera()
}

// Stopper is implemented by behaviors that can finish.
type Stopper interface {
	Done() bool
}

// DeadZoneSpeed skips sends whose change on both wheels is below it (rad/s).
const DeadZoneSpeed = 0.01

// ErrBehaviorDone is returned by Run when the behavior reports Done.
var ErrBehaviorDone = errors.New("behavior: done")

// Stats are the runner counters.
type Stats struct {
	Ticks   uint64
	Skipped uint64 // sends skipped inside the dead zone
	Errors  uint64
}

// Runner drives a Behavior at a fixed rate.
type Runner struct {
	robot    Robot
	camera   robot.CameraSource
	behavior Behavior
	rate     time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	lastSent robot.Speed
	hasSent  bool
	stats    Stats
	// last error timestamp, to avoid log spam
	lastErrorTime time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRunner creates a runner ticking at rate. camera may be nil when the
// behavior does not use one.
func NewRunner(r Robot, camera robot.CameraSource, b Behavior, rate time.Duration) *Runner {
	return &Runner{
		robot:    r,
		camera:   camera,
		behavior: b,
		rate:     rate,
		log:      log.With("component", "behavior", "behavior", b.Name()),
		stop:     make(chan struct{}),
	}
}

// Run starts the control loop. Blocks until Stop is called, ctx ends or the
// behavior is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.rate)
	defer ticker.Stop()

	r.log.Info("behavior started", "rate", r.rate, "synchronous", r.robot.IsSynchronous())

	for {
		select {
		case <-r.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.recordError(err)
			}
			if s, ok := r.behavior.(Stopper); ok && s.Done() {
				r.log.Info("behavior finished", "ticks", r.Stats().Ticks)
				return ErrBehaviorDone
			}
		}
	}
}

// Stop halts the control loop.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Stats returns the runner counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// abs returns the absolute value of x.
func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Tick executes one control cycle: sense, decide, send, and step the
// simulator when it runs in lock-step. The step is taken even when the
// cycle fails, so simulated time never stalls on a bad sample.
//
// A failed individual refresh still updates the channels that answered;
// the tick carries on with the cached values and returns the error. A
// failed aggregated refresh read nothing, so nothing is sent.
func (r *Runner) Tick(ctx context.Context) (err error) {
	r.mu.Lock()
	r.stats.Ticks++
	tick := r.stats.Ticks
	r.mu.Unlock()

	if r.robot.IsSynchronous() {
		defer func() {
			if serr := r.robot.Step(ctx, 1); serr != nil {
				err = errors.Join(err, serr)
			}
		}()
	}

	refreshErr := r.robot.Refresh(ctx)
	if refreshErr != nil && r.robot.SenseAllTogether() {
		return refreshErr
	}

	// the refresh above already read every enabled channel
	snap := r.robot.Snapshot()
	if !slices.Contains(snap.Enabled, robot.SensorProximity) {
		return errors.Join(refreshErr, fmt.Errorf("%w: %s", robot.ErrNotEnabled, robot.SensorProximity))
	}

	p := Perception{Proximity: snap.Proximity, Tick: tick}
	if _, ok := r.behavior.(CameraUser); ok && r.camera != nil {
		frame, cerr := r.camera.CameraImage(ctx)
		if cerr != nil {
			return errors.Join(refreshErr, cerr)
		}
		p.Frame = frame
	}

	if cmd, ok := r.behavior.Decide(p); ok {
		if serr := r.send(ctx, cmd); serr != nil {
			return errors.Join(refreshErr, serr)
		}
	}
	return refreshErr
}

// send applies the dead zone and forwards the command.
func (r *Runner) send(ctx context.Context, cmd robot.Speed) error {
	cmd = cmd.Clamp(r.robot.MaxVelocity())

	r.mu.Lock()
	skip := r.hasSent &&
		abs(cmd.Left-r.lastSent.Left) < DeadZoneSpeed &&
		abs(cmd.Right-r.lastSent.Right) < DeadZoneSpeed
	if skip {
		r.stats.Skipped++
	}
	r.mu.Unlock()

	if skip {
		return nil
	}
	if err := r.robot.SetMotorSpeeds(ctx, cmd); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastSent = cmd
	r.hasSent = true
	r.mu.Unlock()
	return nil
}

// recordError counts a failed tick and logs at most once per 5 seconds.
func (r *Runner) recordError(err error) {
	r.mu.Lock()
	r.stats.Errors++
	total := r.stats.Errors
	loud := r.lastErrorTime.IsZero() || time.Since(r.lastErrorTime) > 5*time.Second
	if loud {
		r.lastErrorTime = time.Now()
	}
	r.mu.Unlock()

	if loud {
		r.log.Warn("tick failed", "error", err, "total_errors", total)
	}
}
