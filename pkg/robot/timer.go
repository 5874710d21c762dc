package robot

import (
	"context"
	"time"
)

// ticker runs a task at a fixed rate on its own goroutine. The first run
// happens immediately.
type ticker struct {
	interval time.Duration
	task     func(ctx context.Context)
	stop     chan struct{}
	done     chan struct{}
}

func startTicker(interval time.Duration, task func(ctx context.Context)) *ticker {
	t := &ticker{
		interval: interval,
		task:     task,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.run()
	return t
}

// run blocks until Stop is called. A call in flight when Stop arrives is
// allowed to finish, so its context is never cancelled.
func (t *ticker) run() {
	defer close(t.done)

	ctx := context.Background()
	t.task(ctx)

	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-tk.C:
			// Stop wins over a tick that became ready at the same time.
			select {
			case <-t.stop:
				return
			default:
			}
			t.task(ctx)
		}
	}
}

// Stop halts the loop and waits for the task in progress to complete.
func (t *ticker) Stop() {
	close(t.stop)
	<-t.done
}

// StartSensing starts the background sensor timer using the configured
// interval. It is a no-op if the timer is already running.
func (e *EPuck) StartSensing() {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if e.sensing != nil {
		return
	}
	e.log.Debug("sensing timer started", "interval", e.opts.SensorInterval, "sense_all", e.senseAll.Load())
	e.sensing = startTicker(e.opts.SensorInterval, e.sensingTick)
}

// StopSensing stops the background sensor timer. When it returns no
// further refresh will run. It must not be called from an observer.
func (e *EPuck) StopSensing() {
	e.timerMu.Lock()
	t := e.sensing
	e.sensing = nil
	e.timerMu.Unlock()

	if t != nil {
		t.Stop()
		e.log.Debug("sensing timer stopped")
	}
}

// StartImaging starts the background camera timer.
func (e *EPuck) StartImaging() {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if e.imaging != nil {
		return
	}
	e.log.Debug("camera timer started", "interval", e.opts.CameraInterval)
	e.imaging = startTicker(e.opts.CameraInterval, e.imagingTick)
}

// StopImaging stops the background camera timer.
func (e *EPuck) StopImaging() {
	e.timerMu.Lock()
	t := e.imaging
	e.imaging = nil
	e.timerMu.Unlock()

	if t != nil {
		t.Stop()
		e.log.Debug("camera timer stopped")
	}
}

func (e *EPuck) sensingActive() bool {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	return e.sensing != nil
}

func (e *EPuck) imagingActive() bool {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	return e.imaging != nil
}

// IsSensing reports whether the sensor timer runs.
func (e *EPuck) IsSensing() bool { return e.sensingActive() }

// IsImaging reports whether the camera timer runs.
func (e *EPuck) IsImaging() bool { return e.imagingActive() }

// timersActive reports whether either background timer runs.
func (e *EPuck) timersActive() bool {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	return e.sensing != nil || e.imaging != nil
}

func (e *EPuck) sensingTick(ctx context.Context) {
	e.stats.mu.Lock()
	e.stats.cycles++
	e.stats.mu.Unlock()

	if e.senseAll.Load() {
		if err := e.refreshAggregated(ctx); err != nil {
			e.recordFailure("refresh all sensors", err)
		}
		return
	}
	if err := e.refreshIndividual(ctx); err != nil {
		e.recordFailure("refresh sensors", err)
	}
}

func (e *EPuck) imagingTick(ctx context.Context) {
	if !e.camera.enabled.Load() {
		return
	}
	if _, err := e.refreshCamera(ctx); err != nil {
		e.recordFailure("refresh camera", err)
	}
}
