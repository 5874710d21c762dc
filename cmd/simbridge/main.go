// Command simbridge serves the kinematic e-Puck simulator over the remote
// API websocket, so the epuck command can run without an external
// simulator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/teslashibe/go-epuck/internal/config"
	"github.com/teslashibe/go-epuck/internal/log"
	"github.com/teslashibe/go-epuck/pkg/remote"
	"github.com/teslashibe/go-epuck/pkg/robot"
	"github.com/teslashibe/go-epuck/pkg/sim"
)

func main() {
	app := cli.NewApp()
	app.Name = "simbridge"
	app.Usage = "serve a simulated e-Puck over the remote API"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  "epuck.yaml",
			Usage:  "path to the YAML config file",
			EnvVar: "EPUCK_CONFIG",
		},
		cli.StringFlag{
			Name:  "listen",
			Usage: "listen address (overrides the config)",
		},
		cli.DurationFlag{
			Name:  "tick",
			Usage: "simulation step in free-running mode (overrides the config)",
		},
		cli.Float64Flag{
			Name:  "arena",
			Usage: "half width of the square arena in metres (overrides the config)",
		},
		cli.Float64Flag{
			Name:  "x",
			Usage: "start position x in metres",
		},
		cli.Float64Flag{
			Name:  "y",
			Usage: "start position y in metres",
		},
		cli.Float64Flag{
			Name:  "theta",
			Usage: "start heading in radians",
		},
	}
	app.Action = serve

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "simbridge: %v\n", err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel)

	if v := c.String("listen"); v != "" {
		cfg.Sim.Listen = v
	}
	if v := c.Duration("tick"); v > 0 {
		cfg.Sim.Tick = v
	}
	if v := c.Float64("arena"); v > 0 {
		cfg.Sim.ArenaHalf = v
	}

	simCfg := sim.DefaultConfig(cfg.Robot.Port)
	simCfg.Name = cfg.Robot.Name
	simCfg.SignalName = cfg.Robot.SignalName()
	simCfg.Tick = cfg.Sim.Tick
	simCfg.MaxVelocity = cfg.Robot.MaxVelocity
	simCfg.ImageWidth = cfg.Robot.ImageWidth
	simCfg.ImageHeight = cfg.Robot.ImageHeight
	simCfg.Start = robot.Pose{X: c.Float64("x"), Y: c.Float64("y"), Theta: c.Float64("theta")}

	s := sim.New(simCfg, sim.NewArena(cfg.Sim.ArenaHalf))
	defer s.Close()

	srv := remote.NewServer(s)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(cfg.Sim.Listen) }()

	log.Info("simulator ready",
		"robot", simCfg.Name,
		"signals", simCfg.SignalName,
		"arena_half", cfg.Sim.ArenaHalf,
		"tick", simCfg.Tick)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		log.Info("shutting down", "steps", s.Steps())
		return srv.Shutdown()
	}
}
