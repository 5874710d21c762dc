// Command epuck drives a simulated e-Puck: it runs reactive behaviors,
// prints sensor readings and serves the live dashboard.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/teslashibe/go-epuck/internal/config"
	"github.com/teslashibe/go-epuck/internal/log"
)

// cfg is loaded once in Before and shared by every command.
var cfg *config.Config

func main() {
	app := cli.NewApp()
	app.Name = "epuck"
	app.Usage = "control a simulated e-Puck robot"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  "epuck.yaml",
			Usage:  "path to the YAML config file",
			EnvVar: "EPUCK_CONFIG",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "trace, debug, info, warn or error (overrides the config)",
		},
		cli.StringFlag{
			Name:  "addr",
			Usage: "simulator bridge address (overrides the config)",
		},
		cli.IntFlag{
			Name:  "port",
			Usage: "simulator bridge port (overrides the config)",
		},
		cli.BoolFlag{
			Name:  "sync",
			Usage: "run the simulation in synchronous (lock-step) mode",
		},
	}
	app.Before = setup
	app.Commands = []cli.Command{
		runCommand,
		senseCommand,
		dashboardCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "epuck: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and initializes logging.
func setup(c *cli.Context) error {
	var err error
	cfg, err = config.Load(c.GlobalString("config"))
	if err != nil {
		return err
	}

	if lvl := c.GlobalString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if addr := c.GlobalString("addr"); addr != "" {
		cfg.Robot.Address = addr
	}
	if port := c.GlobalInt("port"); port != 0 {
		cfg.Robot.Port = port
	}
	if c.GlobalBool("sync") {
		cfg.Robot.Synchronous = true
	}

	log.Init(cfg.LogLevel)

	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid config:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}
