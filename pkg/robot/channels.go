package robot

import "fmt"

// indexedFor returns the subset-capable channel for kind, or nil.
func (e *EPuck) indexedFor(kind Sensor) *indexed {
	switch kind {
	case SensorProximity:
		return e.prox
	case SensorLight:
		return e.light
	case SensorGround:
		return e.ground
	}
	return nil
}

// EnableAll enables every sensor of a channel. For subset-capable channels
// the id list is reset to all ids and the cached values to zero. Enabling
// does not refresh.
func (e *EPuck) EnableAll(kind Sensor) error {
	if ch := e.indexedFor(kind); ch != nil {
		ids := make([]int, ch.count)
		for i := range ids {
			ids[i] = i
		}
		ch.selectIDs(e.seq.Add(1), ids)
		ch.enabled.Store(true)
		return nil
	}

	switch kind {
	case SensorAccelerometer:
		e.accel.enabled.Store(true)
	case SensorWheelEncoding:
		e.wheel.enabled.Store(true)
	case SensorPose:
		e.pose.enabled.Store(true)
	default:
		return fmt.Errorf("%w: unknown sensor %s", ErrConfiguration, kind)
	}
	return nil
}

// EnableSubset enables only the given sensor ids of a proximity, light or
// ground channel. Readings are reported in the order of ids.
func (e *EPuck) EnableSubset(kind Sensor, ids ...int) error {
	ch := e.indexedFor(kind)
	if ch == nil {
		return &ConfigError{Sensor: kind, Err: ErrNoSubset, Detail: "only proximity, light and ground accept ids"}
	}
	if err := ch.validateIDs(ids); err != nil {
		return err
	}
	ch.selectIDs(e.seq.Add(1), ids)
	ch.enabled.Store(true)
	return nil
}

// Disable turns a channel off. Its cached value is kept.
func (e *EPuck) Disable(kind Sensor) {
	if ch := e.indexedFor(kind); ch != nil {
		ch.enabled.Store(false)
		return
	}
	switch kind {
	case SensorAccelerometer:
		e.accel.enabled.Store(false)
	case SensorWheelEncoding:
		e.wheel.enabled.Store(false)
	case SensorPose:
		e.pose.enabled.Store(false)
	}
}

// IsEnabled reports whether a channel is enabled.
func (e *EPuck) IsEnabled(kind Sensor) bool {
	if ch := e.indexedFor(kind); ch != nil {
		return ch.enabled.Load()
	}
	switch kind {
	case SensorAccelerometer:
		return e.accel.enabled.Load()
	case SensorWheelEncoding:
		return e.wheel.enabled.Load()
	case SensorPose:
		return e.pose.enabled.Load()
	}
	return false
}

// EnabledIDs returns the selected ids of a subset-capable channel.
func (e *EPuck) EnabledIDs(kind Sensor) []int {
	ch := e.indexedFor(kind)
	if ch == nil {
		return nil
	}
	return append([]int(nil), ch.load().IDs...)
}

// EnableAllSensors enables every sensor channel with all ids. The camera is
// left alone.
func (e *EPuck) EnableAllSensors() {
	for _, kind := range AllSensors {
		_ = e.EnableAll(kind)
	}
}

// EnableCamera turns the camera channel on.
func (e *EPuck) EnableCamera() {
	e.camera.enabled.Store(true)
}

// DisableCamera turns the camera channel off.
func (e *EPuck) DisableCamera() {
	e.camera.enabled.Store(false)
}

// IsCameraEnabled reports whether the camera channel is on.
func (e *EPuck) IsCameraEnabled() bool {
	return e.camera.enabled.Load()
}

// EnabledSensors lists the enabled channels in refresh order.
func (e *EPuck) EnabledSensors() []Sensor {
	var out []Sensor
	for _, kind := range AllSensors {
		if e.IsEnabled(kind) {
			out = append(out, kind)
		}
	}
	return out
}
