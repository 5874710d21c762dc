package robot

import (
	"context"
	"errors"
	"fmt"

	"github.com/teslashibe/go-epuck/pkg/remote"
)

// SetMotorSpeeds sends a wheel velocity pair, each side clamped to
// ±MaxVelocity. On success the transmitted speed becomes MotorSpeed.
func (e *EPuck) SetMotorSpeeds(ctx context.Context, s Speed) error {
	if !s.finite() {
		return fmt.Errorf("%w: left=%v right=%v", ErrInvalidSpeed, s.Left, s.Right)
	}

	sent := s.Clamp(e.opts.MaxVelocity)
	if sent != s {
		e.log.Debug("wheel speed clamped", "left", s.Left, "right", s.Right, "max", e.opts.MaxVelocity)
	}

	in := remote.Args{Floats: []float32{float32(sent.Left), float32(sent.Right)}}
	if _, _, err := e.call(ctx, "set motor speeds", FnSetVelocities, in); err != nil {
		var rce *RemoteCallError
		if errors.As(err, &rce) {
			rce.Op = fmt.Sprintf("set motor speeds (left=%v, right=%v)", s.Left, s.Right)
		}
		return err
	}

	e.gateMu.Lock()
	e.speed = sent
	e.gateMu.Unlock()
	return nil
}

// SetSpeed is SetMotorSpeeds for a left/right pair.
func (e *EPuck) SetSpeed(ctx context.Context, left, right float64) error {
	return e.SetMotorSpeeds(ctx, Speed{Left: left, Right: right})
}

// MotorSpeed returns the last speed the simulator accepted.
func (e *EPuck) MotorSpeed() Speed {
	e.gateMu.Lock()
	defer e.gateMu.Unlock()
	return e.speed
}
