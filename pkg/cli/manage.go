package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/manage"
)

// manageResult is the output of apps and ps subcommands.
type manageResult struct {
	Action    string           `json:"action"`
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Packages  []string         `json:"packages,omitempty"`
	Processes []manage.Process `json:"processes,omitempty"`
}

func packageFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "package",
		Aliases:  []string{"p"},
		Usage:    "Package name",
		Required: true,
	}
}

var appsCommand = &cli.Command{
	Name:  "apps",
	Usage: "List, install, uninstall or clear apps",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "List installed packages",
			Action: withSession(runAppsList),
		},
		{
			Name:      "install",
			Usage:     "Install a local APK",
			ArgsUsage: "<apk>",
			Action:    withSession(runAppsInstall),
		},
		{
			Name:   "uninstall",
			Usage:  "Uninstall a package",
			Flags:  []cli.Flag{packageFlag()},
			Action: withSession(runAppsUninstall),
		},
		{
			Name:   "clear",
			Usage:  "Clear a package's data",
			Flags:  []cli.Flag{packageFlag()},
			Action: withSession(runAppsClear),
		},
	},
}

var psCommand = &cli.Command{
	Name:  "ps",
	Usage: "List or kill device processes",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "List all processes",
			Action: withSession(runPsList),
		},
		{
			Name:  "kill",
			Usage: "Kill by --pid or by --package",
			Description: `Killing by package greps the process list for the name, so it can
also hit other packages whose names contain it.`,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "pid", Usage: "Process id"},
				&cli.StringFlag{Name: "package", Aliases: []string{"p"}, Usage: "Package name"},
			},
			Action: withSession(runPsKill),
		},
	},
}

var packageInfoCommand = &cli.Command{
	Name:      "package-info",
	Usage:     "Show version and install times of a package",
	ArgsUsage: "<package>",
	Description: `Exits 2 when the package is not installed.

Examples:
  droid-agent package-info com.android.settings`,
	Action: withSession(runPackageInfo),
}

func manageOutcome(c *cli.Context, res manageResult, err error) error {
	if err != nil {
		res.Success = false
		res.Message = core.FailureFromError("", err).Message
		return emit(c, res, exitFailure)
	}
	res.Success = true
	return emit(c, res, exitOK)
}

func runAppsList(c *cli.Context, s *session) error {
	pkgs, err := s.manager().ListPackages(c.Context)
	res := manageResult{Action: "list", Packages: pkgs}
	if err == nil {
		res.Message = fmt.Sprintf("Listed %d packages.", len(pkgs))
	}
	return manageOutcome(c, res, err)
}

func runAppsInstall(c *cli.Context, s *session) error {
	msg, err := s.manager().Install(c.Context, c.Args().First())
	return manageOutcome(c, manageResult{Action: "install", Message: msg}, err)
}

func runAppsUninstall(c *cli.Context, s *session) error {
	msg, err := s.manager().Uninstall(c.Context, c.String("package"))
	return manageOutcome(c, manageResult{Action: "uninstall", Message: msg}, err)
}

func runAppsClear(c *cli.Context, s *session) error {
	msg, err := s.manager().ClearData(c.Context, c.String("package"))
	return manageOutcome(c, manageResult{Action: "clear", Message: msg}, err)
}

func runPsList(c *cli.Context, s *session) error {
	procs, err := s.manager().ListProcesses(c.Context)
	res := manageResult{Action: "list", Processes: procs}
	if err == nil {
		res.Message = fmt.Sprintf("Listed %d processes.", len(procs))
	}
	return manageOutcome(c, res, err)
}

func runPsKill(c *cli.Context, s *session) error {
	var (
		msg string
		err error
	)
	switch {
	case c.String("pid") != "":
		msg, err = s.manager().KillPID(c.Context, c.String("pid"))
	case c.String("package") != "":
		msg, err = s.manager().KillPackage(c.Context, c.String("package"))
	default:
		err = core.ErrInvalidAction.WithMessage("Either --package or --pid is required for kill")
	}
	return manageOutcome(c, manageResult{Action: "kill", Message: msg}, err)
}

func runPackageInfo(c *cli.Context, s *session) error {
	pkg := c.Args().First()
	info, err := s.manager().PackageInfo(c.Context, pkg)
	if err != nil {
		out := struct {
			manage.PackageInfo
			Error string `json:"error"`
		}{info, core.FailureFromError("", err).Message}
		return emit(c, out, exitFailure)
	}
	if !info.Installed {
		return emit(c, info, exitNotInstalled)
	}
	return emit(c, info, exitOK)
}
