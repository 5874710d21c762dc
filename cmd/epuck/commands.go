package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli"

	"github.com/teslashibe/go-epuck/internal/log"
	"github.com/teslashibe/go-epuck/pkg/behavior"
	"github.com/teslashibe/go-epuck/pkg/protocol"
	"github.com/teslashibe/go-epuck/pkg/robot"
)

// behaviors lists the controllers selectable with run --behavior.
var behaviors = map[string]func() behavior.Behavior{
	"bangbang-wallfollow":     func() behavior.Behavior { return behavior.NewBangBangWallFollow() },
	"proportional-wallfollow": func() behavior.Behavior { return behavior.NewProportionalWallFollow() },
	"bangbang-push":           func() behavior.Behavior { return behavior.NewBangBangPush() },
}

func behaviorNames() []string {
	names := make([]string, 0, len(behaviors))
	for n := range behaviors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var runCommand = cli.Command{
	Name:  "run",
	Usage: "run a reactive behavior until interrupted",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "behavior, b",
			Value: "bangbang-wallfollow",
			Usage: fmt.Sprintf("one of %v", behaviorNames()),
		},
		cli.DurationFlag{
			Name:  "rate",
			Value: 50 * time.Millisecond,
			Usage: "control loop period",
		},
		cli.DurationFlag{
			Name:  "for",
			Usage: "stop after this long (0 runs until interrupted)",
		},
	},
	Action: runBehavior,
}

func runBehavior(c *cli.Context) error {
	newBehavior, ok := behaviors[c.String("behavior")]
	if !ok {
		return fmt.Errorf("unknown behavior %q, want one of %v", c.String("behavior"), behaviorNames())
	}
	b := newBehavior()

	ctx, cancel := signalContext()
	defer cancel()
	if d := c.Duration("for"); d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	e, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Disconnect()

	e.EnableAllSensors()
	if _, ok := b.(behavior.CameraUser); ok {
		e.EnableCamera()
	}

	detachTelemetry, err := attachTelemetry(ctx, cfg, e)
	if err != nil {
		return err
	}
	defer detachTelemetry()
	defer attachDashboard(cfg, e, false)()

	if e.IsSynchronous() {
		if err := e.StartSimulation(ctx); err != nil {
			return err
		}
	}

	runner := behavior.NewRunner(e, e, b, c.Duration("rate"))
	err = runner.Run(ctx)

	// leave the robot standing
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Robot.CallTimeout)
	defer stopCancel()
	if serr := e.SetSpeed(stopCtx, 0, 0); serr != nil {
		log.Warn("failed to stop motors", "error", serr)
	}

	st := runner.Stats()
	log.Info("behavior ended", "ticks", st.Ticks, "skipped", st.Skipped, "errors", st.Errors)

	switch {
	case err == nil, errors.Is(err, behavior.ErrBehaviorDone),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	default:
		return err
	}
}

var senseCommand = cli.Command{
	Name:  "sense",
	Usage: "refresh the sensors and print the snapshots as JSON lines",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "count, n",
			Value: 1,
			Usage: "number of snapshots (0 prints until interrupted)",
		},
		cli.DurationFlag{
			Name:  "interval",
			Value: time.Second,
			Usage: "time between snapshots",
		},
		cli.BoolFlag{
			Name:  "all-together",
			Usage: "use the aggregated all-sensors signal",
		},
		cli.StringFlag{
			Name:  "image",
			Usage: "also save the camera image as PNG to this path",
		},
	},
	Action: sense,
}

func sense(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Disconnect()

	e.EnableAllSensors()
	e.EnableAll(robot.SensorPose)
	if c.Bool("all-together") {
		e.SetSenseAllTogether(true)
	}

	enc := json.NewEncoder(os.Stdout)
	ticker := time.NewTicker(c.Duration("interval"))
	defer ticker.Stop()

	for i := 0; c.Int("count") == 0 || i < c.Int("count"); i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		if err := e.Refresh(ctx); err != nil {
			// partial refreshes still print what was read
			log.Warn("refresh failed", "error", err)
		}
		if err := enc.Encode(protocol.SensorsFromSnapshot(e.Snapshot(), nil)); err != nil {
			return err
		}
	}

	if path := c.String("image"); path != "" {
		e.EnableCamera()
		frame, err := e.CameraImage(ctx)
		if err != nil {
			return err
		}
		data, err := protocol.EncodeFrame(frame)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
		log.Info("camera image saved", "path", path, "width", frame.Width, "height", frame.Height)
	}
	return nil
}

var dashboardCommand = cli.Command{
	Name:  "dashboard",
	Usage: "sense in the background and serve the live dashboard",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "web-port",
			Usage: "dashboard port (overrides the config)",
		},
		cli.BoolFlag{
			Name:  "no-camera",
			Usage: "do not refresh the camera",
		},
	},
	Action: dashboard,
}

func dashboard(c *cli.Context) error {
	if p := c.String("web-port"); p != "" {
		cfg.Web.Port = p
	}

	ctx, cancel := signalContext()
	defer cancel()

	e, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Disconnect()

	if e.IsSynchronous() {
		return fmt.Errorf("dashboard needs asynchronous mode: %w", robot.ErrSteppingNotPossible)
	}

	e.EnableAllSensors()
	e.EnableAll(robot.SensorPose)

	detachTelemetry, err := attachTelemetry(ctx, cfg, e)
	if err != nil {
		return err
	}
	defer detachTelemetry()
	defer attachDashboard(cfg, e, true)()

	e.StartSensing()
	if !c.Bool("no-camera") {
		e.EnableCamera()
		e.StartImaging()
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}
