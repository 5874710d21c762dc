package robot

import (
	"context"
	"fmt"
)

// SimState is the lock-step state of a synchronous session.
type SimState int32

const (
	// Unsynchronized means StartSimulation has not succeeded yet.
	Unsynchronized SimState = iota
	// SimulationRunning means the simulator advances only on Step.
	SimulationRunning
)

func (s SimState) String() string {
	switch s {
	case Unsynchronized:
		return "unsynchronized"
	case SimulationRunning:
		return "running"
	default:
		return fmt.Sprintf("simstate(%d)", int32(s))
	}
}

// IsSynchronous reports whether the session was created in synchronous
// mode.
func (e *EPuck) IsSynchronous() bool {
	return e.opts.Synchronous
}

// SimState returns the lock-step state.
func (e *EPuck) SimState() SimState {
	return SimState(e.simState.Load())
}

// StartSimulation starts the simulator in lock-step mode and advances it by
// one step so the first readings are available.
func (e *EPuck) StartSimulation(ctx context.Context) error {
	if !e.opts.Synchronous {
		return ErrNotSynchronous
	}
	if !e.connected.Load() {
		return ErrNotConnected
	}

	e.apiMu.Lock()
	defer e.apiMu.Unlock()

	if e.timersActive() {
		return ErrSteppingNotPossible
	}

	code, err := e.link.StartSimulation(ctx)
	if err := checkCall("start simulation", code, err); err != nil {
		return err
	}
	code, err = e.link.SetSynchronous(ctx, true)
	if err := checkCall("enable synchronous mode", code, err); err != nil {
		return err
	}
	if err := e.stepLocked(ctx, 1); err != nil {
		return err
	}

	e.simState.Store(int32(SimulationRunning))
	e.log.Info("simulation started", "mode", "synchronous")
	return nil
}

// Step advances the simulator by n ticks, one call per tick. It refuses to
// run while a background timer is active, since timer refreshes would
// interleave with the steps. n < 1 does nothing.
func (e *EPuck) Step(ctx context.Context, n int) error {
	if !e.opts.Synchronous {
		return ErrNotSynchronous
	}
	if !e.connected.Load() {
		return ErrNotConnected
	}

	e.apiMu.Lock()
	defer e.apiMu.Unlock()
	return e.stepLocked(ctx, n)
}

// stepLocked issues n step calls. apiMu must be held.
func (e *EPuck) stepLocked(ctx context.Context, n int) error {
	if e.timersActive() {
		return ErrSteppingNotPossible
	}
	for i := 1; i <= n; i++ {
		code, err := e.link.TriggerStep(ctx)
		if err := checkCall("step simulation", code, err); err != nil {
			err.(*RemoteCallError).Step = i
			return err
		}
		e.seq.Add(1)
	}
	return nil
}
