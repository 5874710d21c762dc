package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-epuck/internal/config"
	"github.com/teslashibe/go-epuck/internal/log"
	"github.com/teslashibe/go-epuck/pkg/robot"
	"github.com/teslashibe/go-epuck/pkg/telemetry"
	"github.com/teslashibe/go-epuck/pkg/web"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// robotOptions maps the robot section of the config.
func robotOptions(r config.RobotConfig) robot.Options {
	return robot.Options{
		Name:             r.Name,
		SignalName:       r.SignalName(),
		Synchronous:      r.Synchronous,
		SenseAllTogether: r.SenseAll,
		MaxVelocity:      r.MaxVelocity,
		ImageWidth:       r.ImageWidth,
		ImageHeight:      r.ImageHeight,
		SensorInterval:   r.SensorInterval,
		CameraInterval:   r.CameraInterval,
	}
}

// connect dials the simulator bridge and initializes the robot model.
func connect(ctx context.Context, cfg *config.Config) (*robot.EPuck, error) {
	r := cfg.Robot
	log.Info("connecting to simulator", "addr", r.Address, "port", r.Port, "synchronous", r.Synchronous)
	return robot.Dial(ctx, r.Address, r.Port, r.CallTimeout, robotOptions(r))
}

// attachTelemetry mirrors the robot to the configured broker. The returned
// func detaches and closes it; it is a no-op when telemetry is disabled.
func attachTelemetry(ctx context.Context, cfg *config.Config, e *robot.EPuck) (func(), error) {
	b, err := telemetry.NewBackend(cfg.Telemetry)
	if errors.Is(err, telemetry.ErrDisabled) {
		return func() {}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}

	p := telemetry.NewPublisher(b, e, cfg.Telemetry.TopicPrefix)
	p.Start()
	removeSensors := e.AddSensorObserver(p)
	removeCamera := e.AddCameraObserver(p)
	log.Info("telemetry enabled", "backend", cfg.Telemetry.Backend, "prefix", cfg.Telemetry.TopicPrefix)

	return func() {
		removeSensors()
		removeCamera()
		p.Stop()
		b.Close()
		st := p.Stats()
		log.Info("telemetry closed", "published", st.Published, "dropped", st.Dropped, "errors", st.Errors)
	}, nil
}

// attachDashboard starts the web dashboard when enabled (or forced).
func attachDashboard(cfg *config.Config, e *robot.EPuck, force bool) func() {
	if !cfg.Web.Enabled && !force {
		return func() {}
	}
	srv := web.NewServer(e, cfg.Web.Port)
	srv.StartAsync()
	return func() {
		if err := srv.Shutdown(); err != nil {
			log.Warn("dashboard shutdown", "error", err)
		}
	}
}
