// Package cli provides the command-line interface for droid-agent.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// Process exit codes
const (
	exitOK           = 0
	exitFailure      = 1 // error, failed action or no match
	exitNotInstalled = 2 // package-info on a missing package
)

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"s"},
		Usage:   "Device serial (default: $ANDROID_SERIAL or the only attached device)",
	},
	&cli.StringFlag{
		Name:  "adb",
		Usage: "Path to the adb binary (default: $ADB_PATH, then PATH)",
	},
	&cli.StringFlag{
		Name:  "config",
		Usage: "Path to droid-agent.yaml",
	},
	&cli.DurationFlag{
		Name:  "timeout",
		Usage: "Per-command device timeout (default 30s)",
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Write diagnostic logs to this file",
		EnvVars: []string{"DROID_AGENT_LOG"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable debug logging on stderr",
		EnvVars: []string{"DROID_AGENT_VERBOSE"},
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "droid-agent",
		Usage:   "Perceive and drive an Android device over adb",
		Version: Version,
		Description: `droid-agent reads the on-screen UI of a connected Android device,
finds elements in it and performs validated actions. Every command prints
JSON on stdout.

Examples:
  droid-agent screen --summary
  droid-agent find --text Login
  droid-agent act '{"action":"tap","coordinates":[200,300]}'
  echo '[{"action":"home"},{"action":"wait"}]' | droid-agent batch
  droid-agent script --file reply.js
  droid-agent visual --dir ./templates send_button`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			screenCommand,
			findCommand,
			searchCommand,
			actCommand,
			batchCommand,
			scriptCommand,
			visualCommand,
			appsCommand,
			psCommand,
			packageInfoCommand,
			doctorCommand,
		},
		// Exit codes are handled by Execute so tests can run the app in-process.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := newApp().Run(os.Args); err != nil {
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			if msg := err.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(exit.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
}
