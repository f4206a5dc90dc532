package cli

import (
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/droid-agent/pkg/core"
)

var actCommand = &cli.Command{
	Name:  "act",
	Usage: "Execute one action descriptor",
	Description: `Validate and execute a single action. The descriptor is read from
--json, --file, the argument or stdin.

Kinds: tap, long_press, swipe, drag_and_drop, type, home, back, wait, done,
start_intent, open_app, screenshot, get_current_package.

Examples:
  droid-agent act '{"action":"tap","coordinates":[540,1200]}'
  droid-agent act --json '{"action":"type","text":"hello"}'
  echo '{"action":"screenshot","file_path":"screen.png"}' | droid-agent act`,
	ArgsUsage: "[descriptor]",
	Flags:     inputFlags(),
	Action:    withSession(runAct),
}

var batchCommand = &cli.Command{
	Name:  "batch",
	Usage: "Execute a JSON array of actions, stopping at the first error",
	Description: `Actions run in order with a short pause between them. The first
invalid or failed action stops the batch; results so far are printed.

Examples:
  droid-agent batch --file steps.json
  echo '[{"action":"home"},{"action":"open_app","package_name":"com.android.settings"}]' | droid-agent batch`,
	ArgsUsage: "[actions]",
	Flags:     inputFlags(),
	Action:    withSession(runBatch),
}

var scriptCommand = &cli.Command{
	Name:  "script",
	Usage: "Run an automation script in the sandbox",
	Description: `Scripts are JavaScript with only these functions available:
  click(target)          target: "query", [x, y] or {text, id, desc, query, point}
  find(target)           returns [x, y] or null
  type(text, enter=true)
  wait(seconds)
  wait_for(query, timeoutSeconds=10)
  home(), back()

Examples:
  droid-agent script 'click("Messages"); wait_for("Send"); type("on my way")'
  droid-agent script --file reply.js`,
	ArgsUsage: "[code]",
	Flags:     inputFlags(),
	Action:    withSession(runScript),
}

func runAct(c *cli.Context, s *session) error {
	data, err := readInput(c)
	if err != nil {
		return fail(c, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return emit(c, core.Failure("", "No input provided"), exitFailure)
	}

	res := s.exec.ExecuteJSON(c.Context, data)
	return emit(c, res, exitCodeFor(res.Status))
}

func runBatch(c *cli.Context, s *session) error {
	data, err := readInput(c)
	if err != nil {
		return fail(c, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return emit(c, core.Failure("", "No input provided"), exitFailure)
	}

	res := s.exec.ExecuteBatchJSON(c.Context, data)
	return emit(c, res, exitCodeFor(res.Status))
}

func runScript(c *cli.Context, s *session) error {
	code, err := readInput(c)
	if err != nil {
		return fail(c, err)
	}

	res := s.scripts().Run(c.Context, string(code))
	return emit(c, res, exitCodeFor(res.Status))
}

func exitCodeFor(status core.Status) int {
	if status.IsError() {
		return exitFailure
	}
	return exitOK
}
