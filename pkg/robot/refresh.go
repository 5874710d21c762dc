package robot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/teslashibe/go-epuck/internal/log"
)

// refreshStats counts background refresh outcomes. Failures are logged at
// most once per errorLogInterval; every failure is traced.
type refreshStats struct {
	mu            sync.Mutex
	cycles        uint64
	failures      uint64
	lastError     error
	lastErrorTime time.Time
}

const errorLogInterval = 5 * time.Second

// RefreshStats is a snapshot of the background refresh counters.
type RefreshStats struct {
	Cycles    uint64
	Failures  uint64
	LastError error
}

// Stats returns the background refresh counters.
func (e *EPuck) Stats() RefreshStats {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()
	return RefreshStats{Cycles: e.stats.cycles, Failures: e.stats.failures, LastError: e.stats.lastError}
}

// recordFailure counts a background failure and logs it without spamming.
func (e *EPuck) recordFailure(op string, err error) {
	e.stats.mu.Lock()
	e.stats.failures++
	total := e.stats.failures
	e.stats.lastError = err
	loud := e.stats.lastErrorTime.IsZero() || time.Since(e.stats.lastErrorTime) > errorLogInterval
	if loud {
		e.stats.lastErrorTime = time.Now()
	}
	e.stats.mu.Unlock()

	if loud {
		e.log.Warn("background refresh failed", "op", op, "error", err, "total_failures", total)
	}
	e.log.Log(context.Background(), log.LevelTrace, "background refresh failed", "op", op, "error", err)
}

// SenseAllTogether reports whether the aggregated strategy is selected.
func (e *EPuck) SenseAllTogether() bool {
	return e.senseAll.Load()
}

// SetSenseAllTogether switches the refresh strategy. A running sensing
// timer picks the new strategy up on its next tick.
func (e *EPuck) SetSenseAllTogether(on bool) {
	e.senseAll.Store(on)
}

// Refresh runs one sensing cycle of the configured strategy. In individual
// mode every enabled channel is tried; failures are joined and the
// channels that did refresh are still notified.
func (e *EPuck) Refresh(ctx context.Context) error {
	if e.senseAll.Load() {
		return e.refreshAggregated(ctx)
	}
	return e.refreshIndividual(ctx)
}

// refreshIndividual refreshes each enabled channel with its own call and
// sends one notification naming the channels that changed.
func (e *EPuck) refreshIndividual(ctx context.Context) error {
	var (
		changed []Sensor
		errs    []error
	)
	for _, kind := range AllSensors {
		if !e.IsEnabled(kind) {
			continue
		}
		stored, err := e.refreshChannel(ctx, kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if stored {
			changed = append(changed, kind)
		}
	}

	e.notifySensors(changed)
	return errors.Join(errs...)
}

// refreshChannel refreshes one channel with its dedicated call.
func (e *EPuck) refreshChannel(ctx context.Context, kind Sensor) (bool, error) {
	op := "refresh " + kind.String()

	if ch := e.indexedFor(kind); ch != nil {
		raw, seq, err := e.callFloats(ctx, op, ch.function, ch.count)
		if err != nil {
			return false, err
		}
		return ch.store(seq, raw), nil
	}

	switch kind {
	case SensorAccelerometer:
		v, seq, err := e.callFloats(ctx, op, FnAccelerometer, 3)
		if err != nil {
			return false, err
		}
		return e.accel.update(seq, func(Acceleration) Acceleration {
			return Acceleration{X: v[0], Y: v[1], Z: v[2]}
		}), nil
	case SensorWheelEncoding:
		v, seq, err := e.callFloats(ctx, op, FnWheelEncoding, 2)
		if err != nil {
			return false, err
		}
		return e.wheel.update(seq, func(WheelEncode) WheelEncode {
			return WheelEncode{Left: v[0], Right: v[1]}
		}), nil
	case SensorPose:
		v, seq, err := e.callFloats(ctx, op, FnPose, 3)
		if err != nil {
			return false, err
		}
		return e.pose.update(seq, func(Pose) Pose {
			return Pose{X: v[0], Y: v[1], Theta: v[2]}
		}), nil
	}
	return false, fmt.Errorf("%w: unknown sensor %s", ErrConfiguration, kind)
}

// refreshAggregated reads every sensor from the "_allSens" signal in one
// call. Pose is not part of the signal. The reply is validated before any
// cell is touched, so a failure leaves every channel unchanged.
func (e *EPuck) refreshAggregated(ctx context.Context) error {
	op := "refresh all sensors"
	raw, seq, err := e.signal(ctx, op, e.opts.SignalName+SuffixAllSensors)
	if err != nil {
		return err
	}
	if len(raw) < AllSensorsLen {
		return &RemoteCallError{
			Op:  op,
			Err: fmt.Errorf("%w: got %d values, want %d", ErrShortReply, len(raw), AllSensorsLen),
		}
	}

	var changed []Sensor
	for _, ch := range []*indexed{e.prox, e.light, e.ground} {
		if ch.enabled.Load() && ch.store(seq, raw[ch.offset:ch.offset+ch.count]) {
			changed = append(changed, ch.kind)
		}
	}
	if e.accel.enabled.Load() {
		a := raw[offsetAccelerometer:]
		if e.accel.update(seq, func(Acceleration) Acceleration {
			return Acceleration{X: a[0], Y: a[1], Z: a[2]}
		}) {
			changed = append(changed, SensorAccelerometer)
		}
	}
	if e.wheel.enabled.Load() {
		w := raw[offsetWheelEncoding:]
		if e.wheel.update(seq, func(WheelEncode) WheelEncode {
			return WheelEncode{Left: w[0], Right: w[1]}
		}) {
			changed = append(changed, SensorWheelEncoding)
		}
	}

	e.notifySensors(changed)
	return nil
}

// refreshOnDemand reports whether getters of the signal-covered channels
// must refresh before answering: only when no timer keeps them fresh and
// the aggregated strategy is off.
func (e *EPuck) refreshOnDemand() bool {
	return !e.sensingActive() && !e.senseAll.Load()
}

func (e *EPuck) indexedValues(ctx context.Context, ch *indexed) ([]float64, error) {
	if !ch.enabled.Load() {
		return nil, fmt.Errorf("%w: %s", ErrNotEnabled, ch.kind)
	}
	if e.refreshOnDemand() {
		if _, err := e.refreshChannel(ctx, ch.kind); err != nil {
			return nil, err
		}
	}
	return ch.values(), nil
}

// ProximityValues returns the enabled proximity readings in id order.
func (e *EPuck) ProximityValues(ctx context.Context) ([]float64, error) {
	return e.indexedValues(ctx, e.prox)
}

// LightValues returns the enabled light readings in id order.
func (e *EPuck) LightValues(ctx context.Context) ([]float64, error) {
	return e.indexedValues(ctx, e.light)
}

// GroundValues returns the enabled ground readings in id order.
func (e *EPuck) GroundValues(ctx context.Context) ([]float64, error) {
	return e.indexedValues(ctx, e.ground)
}

func scalarValue[T any](ctx context.Context, e *EPuck, ch *scalar[T], refresh bool) (T, error) {
	var zero T
	if !ch.enabled.Load() {
		return zero, fmt.Errorf("%w: %s", ErrNotEnabled, ch.kind)
	}
	if refresh {
		if _, err := e.refreshChannel(ctx, ch.kind); err != nil {
			return zero, err
		}
	}
	return ch.load(), nil
}

// AccelerometerValues returns the accelerometer reading.
func (e *EPuck) AccelerometerValues(ctx context.Context) (Acceleration, error) {
	return scalarValue(ctx, e, &e.accel, e.refreshOnDemand())
}

// WheelEncodingValues returns the wheel encoder reading.
func (e *EPuck) WheelEncodingValues(ctx context.Context) (WheelEncode, error) {
	return scalarValue(ctx, e, &e.wheel, e.refreshOnDemand())
}

// Pose returns the robot pose. Pose is not carried by the aggregated
// signal, so it is fetched on demand unless the sensing timer refreshes it
// individually.
func (e *EPuck) Pose(ctx context.Context) (Pose, error) {
	refresh := !e.sensingActive() || e.senseAll.Load()
	return scalarValue(ctx, e, &e.pose, refresh)
}

// Snapshot is a consistent-per-channel copy of the cached state. It never
// calls the simulator.
type Snapshot struct {
	Time          time.Time    `json:"time"`
	Proximity     []float64    `json:"proximity"`
	Light         []float64    `json:"light"`
	Ground        []float64    `json:"ground"`
	Acceleration  Acceleration `json:"acceleration"`
	WheelEncoding WheelEncode  `json:"wheel_encoding"`
	Pose          Pose         `json:"pose"`
	Speed         Speed        `json:"speed"`
	Enabled       []Sensor     `json:"enabled"`
}

// Snapshot returns the cached state of every channel.
func (e *EPuck) Snapshot() Snapshot {
	return Snapshot{
		Time:          time.Now(),
		Proximity:     e.prox.values(),
		Light:         e.light.values(),
		Ground:        e.ground.values(),
		Acceleration:  e.accel.load(),
		WheelEncoding: e.wheel.load(),
		Pose:          e.pose.load(),
		Speed:         e.MotorSpeed(),
		Enabled:       e.EnabledSensors(),
	}
}
