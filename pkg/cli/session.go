package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/droid-agent/pkg/action"
	"github.com/devicelab-dev/droid-agent/pkg/agent"
	"github.com/devicelab-dev/droid-agent/pkg/audit"
	"github.com/devicelab-dev/droid-agent/pkg/config"
	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/device"
	"github.com/devicelab-dev/droid-agent/pkg/hierarchy"
	"github.com/devicelab-dev/droid-agent/pkg/jsengine"
	"github.com/devicelab-dev/droid-agent/pkg/logger"
	"github.com/devicelab-dev/droid-agent/pkg/manage"
	"github.com/devicelab-dev/droid-agent/pkg/visual"
)

// newGateway opens the device transport. Tests replace it with a mock.
var newGateway = func(cfg *config.Config) (core.Gateway, error) {
	return device.NewADB(device.Options{
		Path:    cfg.ADBPath,
		Serial:  cfg.Device,
		Timeout: cfg.CommandTimeout.D(),
	})
}

// session is everything one invocation needs. It is built per command,
// never shared.
type session struct {
	cfg     *config.Config
	gw      core.Gateway
	exec    *action.Executor
	runtime *agent.Runtime
	capture hierarchy.CaptureOptions
}

// openSession resolves configuration (file, env, then flags), starts
// logging and connects the gateway.
func openSession(c *cli.Context) (*session, error) {
	cfg, err := config.Resolve(c.String("config"))
	if err != nil {
		return nil, err
	}
	applyFlags(c, cfg)

	if err := initLogging(c, cfg); err != nil {
		return nil, err
	}

	gw, err := newGateway(cfg)
	if err != nil {
		logger.Close()
		return nil, err
	}

	timeout := cfg.CommandTimeout.D()
	exec := action.NewExecutor(gw, action.Options{
		Timeout:       timeout,
		WaitPause:     cfg.WaitPause.D(),
		BatchPause:    cfg.BatchPause.D(),
		DeviceTempDir: cfg.DeviceTempDir,
		Audit:         audit.New(cfg.ResolvePath(cfg.AuditLog)),
	})
	capture := hierarchy.CaptureOptions{DumpPath: cfg.DumpPath, Timeout: timeout}

	logger.Info("session: device=%q adb=%q timeout=%s", cfg.Device, cfg.ADBPath, timeout)

	return &session{
		cfg:  cfg,
		gw:   gw,
		exec: exec,
		runtime: agent.New(gw, exec, agent.Options{
			Capture:      capture,
			Timeout:      timeout,
			PollInterval: cfg.PollInterval.D(),
		}),
		capture: capture,
	}, nil
}

func (s *session) Close() {
	logger.Close()
}

func (s *session) matcher() *visual.Matcher {
	return visual.NewMatcher(s.gw, visual.Options{
		DeviceTempDir: s.cfg.DeviceTempDir,
		Timeout:       s.cfg.CommandTimeout.D(),
	})
}

func (s *session) manager() *manage.Manager {
	return manage.New(s.gw, s.cfg.CommandTimeout.D())
}

func (s *session) scripts() *jsengine.Engine {
	return jsengine.New(s.runtime, jsengine.Options{Timeout: s.cfg.ScriptTimeout.D()})
}

// applyFlags lets explicit global flags override file and environment.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("device") {
		cfg.Device = c.String("device")
	}
	if c.IsSet("adb") {
		cfg.ADBPath = c.String("adb")
	}
	if c.IsSet("timeout") && c.Duration("timeout") > 0 {
		cfg.CommandTimeout = config.Duration(c.Duration("timeout"))
	}
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}
	if c.Bool("verbose") {
		cfg.LogLevel = "debug"
	}
}

func initLogging(c *cli.Context, cfg *config.Config) error {
	opts := logger.Options{File: cfg.LogFile, Level: cfg.LogLevel}
	if c.Bool("verbose") {
		opts.Console = c.App.ErrWriter
	}
	if opts.File == "" && opts.Console == nil {
		return nil
	}
	if err := logger.InitWithOptions(opts); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// ============================================================================
// Input and output
// ============================================================================

// readInput returns the command payload from --json, --file, the
// positional arguments or stdin, in that order.
func readInput(c *cli.Context) ([]byte, error) {
	if s := c.String("json"); s != "" {
		return []byte(s), nil
	}
	if f := c.String("file"); f != "" {
		data, err := os.ReadFile(f) //#nosec G304 -- user-provided input file
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
		return data, nil
	}
	if c.Args().Present() {
		return []byte(strings.Join(c.Args().Slice(), " ")), nil
	}
	return io.ReadAll(c.App.Reader)
}

func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "json",
			Usage: "Inline JSON input",
		},
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Read input from a file",
		},
	}
}

func writeJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// emit prints v and turns a non-zero code into a silent cli exit.
func emit(c *cli.Context, v interface{}, code int) error {
	if err := writeJSON(c, v); err != nil {
		return err
	}
	if code != exitOK {
		return cli.Exit("", code)
	}
	return nil
}

// fail prints err as an error result.
func fail(c *cli.Context, err error) error {
	logger.Error("%s: %v", c.Command.Name, err)
	return emit(c, core.FailureFromError("", err), exitFailure)
}

// withSession opens a session, runs fn and always closes it. Session
// setup failures are reported like any other error.
func withSession(fn func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return fail(c, err)
		}
		defer s.Close()
		return fn(c, s)
	}
}
