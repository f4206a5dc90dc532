package action

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devicelab-dev/droid-agent/pkg/audit"
	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/logger"
)

// Defaults
const (
	DefaultWaitPause     = 2 * time.Second
	DefaultBatchPause    = 200 * time.Millisecond
	DefaultDeviceTempDir = "/sdcard"
)

// Options configures an Executor.
type Options struct {
	Timeout       time.Duration  // per-command timeout; 0 uses the gateway default
	WaitPause     time.Duration  // fixed pause for "wait" (default 2s)
	BatchPause    time.Duration  // pause between successful batch steps (default 200ms)
	DeviceTempDir string         // where device-side artifacts are written (default /sdcard)
	Audit         audit.Recorder // one line per execution; nil disables auditing

	// Sleep blocks for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Executor dispatches validated actions to a gateway.
type Executor struct {
	gw   core.Gateway
	opts Options
	log  zerolog.Logger
}

// NewExecutor creates an executor over gw.
func NewExecutor(gw core.Gateway, opts Options) *Executor {
	if opts.WaitPause <= 0 {
		opts.WaitPause = DefaultWaitPause
	}
	if opts.BatchPause <= 0 {
		opts.BatchPause = DefaultBatchPause
	}
	if opts.DeviceTempDir == "" {
		opts.DeviceTempDir = DefaultDeviceTempDir
	}
	if opts.Audit == nil {
		opts.Audit = audit.Discard
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	return &Executor{gw: gw, opts: opts, log: logger.Component("action")}
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteJSON decodes a descriptor and executes it. A descriptor that fails
// validation is audited and returned as an error result without touching
// the device.
func (e *Executor) ExecuteJSON(ctx context.Context, data []byte) *core.ActionResult {
	a, err := Decode(data)
	if err != nil {
		kind := PeekKind(data)
		if kind == "" {
			kind = "invalid"
		}
		res := core.FailureFromError("", err)
		e.record(Kind(kind), string(data), res)
		return res
	}
	return e.Execute(ctx, a)
}

// Execute validates and runs a single action. It always returns a result
// and appends exactly one audit line.
func (e *Executor) Execute(ctx context.Context, a Action) *core.ActionResult {
	if a == nil {
		res := core.FailureFromError("", invalid("Missing action"))
		e.record("invalid", "", res)
		return res
	}
	if err := a.Validate(); err != nil {
		res := core.FailureFromError(string(a.Kind()), err)
		e.record(a.Kind(), a.Params(), res)
		return res
	}

	if a.Kind().needsDevice() && !e.gw.IsConnected(ctx) {
		res := core.FailureFromError(string(a.Kind()), core.ErrNoDevice)
		e.record(a.Kind(), a.Params(), res)
		return res
	}

	start := time.Now()
	res := e.dispatch(ctx, a)
	e.log.Debug().
		Str("action", string(a.Kind())).
		Str("status", res.Status.String()).
		Dur("elapsed", time.Since(start)).
		Msg(res.Message)

	e.record(a.Kind(), a.Params(), res)
	return res
}

func (e *Executor) dispatch(ctx context.Context, a Action) *core.ActionResult {
	switch a := a.(type) {
	case Tap:
		x, y := a.Coordinates.X, a.Coordinates.Y
		return e.input(ctx, a, "Tap",
			fmt.Sprintf("Tapped at (%d, %d)", x, y),
			"tap", itoa(x), itoa(y))

	case LongPress:
		x, y, d := a.Coordinates.X, a.Coordinates.Y, a.duration()
		return e.input(ctx, a, "Long press",
			fmt.Sprintf("Long pressed at (%d, %d) for %dms", x, y, d),
			"swipe", itoa(x), itoa(y), itoa(x), itoa(y), itoa(d))

	case Swipe:
		args := []string{"swipe", itoa(a.Start.X), itoa(a.Start.Y), itoa(a.End.X), itoa(a.End.Y)}
		msg := fmt.Sprintf("Swiped from [%d,%d] to [%d,%d]", a.Start.X, a.Start.Y, a.End.X, a.End.Y)
		if a.Duration != nil {
			args = append(args, itoa(*a.Duration))
			msg += fmt.Sprintf(" over %dms", *a.Duration)
		}
		return e.input(ctx, a, "Swipe", msg, args...)

	case DragAndDrop:
		d := a.duration()
		return e.input(ctx, a, "Drag and drop",
			fmt.Sprintf("Dragged from [%d,%d] to [%d,%d] over %dms", a.Start.X, a.Start.Y, a.End.X, a.End.Y, d),
			"draganddrop", itoa(a.Start.X), itoa(a.Start.Y), itoa(a.End.X), itoa(a.End.Y), itoa(d))

	case TypeText:
		return e.input(ctx, a, "Type", "Typed: "+a.Text, "text", "'"+a.Text+"'")

	case Home:
		return e.input(ctx, a, "Home", "Pressed Home button", "keyevent", "KEYCODE_HOME")

	case Back:
		return e.input(ctx, a, "Back", "Pressed Back button", "keyevent", "KEYCODE_BACK")

	case Wait:
		if err := e.opts.Sleep(ctx, e.opts.WaitPause); err != nil {
			return core.Failure(string(KindWait), "Wait interrupted: "+err.Error())
		}
		return core.Success(string(KindWait),
			fmt.Sprintf("Waited %s seconds", strconv.FormatFloat(e.opts.WaitPause.Seconds(), 'f', -1, 64)))

	case Done:
		return core.Success(string(KindDone), "Goal achieved - task complete")

	case StartIntent:
		return e.shell(ctx, a, "Start Intent",
			fmt.Sprintf("Started intent with URI: %s and package: %s", a.URI, a.Package),
			"am", "start", "-a", "android.intent.action.VIEW", "-d", a.URI, a.Package)

	case OpenApp:
		return e.shell(ctx, a, "Open app",
			"Opened app with package: "+a.Package,
			"monkey", "-p", a.Package, "-c", "android.intent.category.LAUNCHER", "1")

	case Screenshot:
		return e.screenshot(ctx, a)

	case GetCurrentPackage:
		return e.currentPackage(ctx)
	}

	return core.FailureFromError(string(a.Kind()), invalidf("Unsupported action type '%s'", a.Kind()))
}

// input runs `shell input <args...>`.
func (e *Executor) input(ctx context.Context, a Action, label, okMsg string, args ...string) *core.ActionResult {
	return e.shell(ctx, a, label, okMsg, append([]string{"input"}, args...)...)
}

// shell runs `shell <args...>`; a non-zero exit becomes an error result
// carrying stderr verbatim.
func (e *Executor) shell(ctx context.Context, a Action, label, okMsg string, args ...string) *core.ActionResult {
	out := e.run(ctx, append([]string{"shell"}, args...)...)
	if !out.OK() {
		return commandFailure(a.Kind(), label, out)
	}
	return core.Success(string(a.Kind()), okMsg)
}

func (e *Executor) run(ctx context.Context, args ...string) core.CommandOutput {
	return e.gw.Execute(ctx, args, e.opts.Timeout)
}

func commandFailure(kind Kind, label string, out core.CommandOutput) *core.ActionResult {
	err := core.ErrCommandFailed.
		WithMessagef("%s failed: %s", label, out.Stderr).
		WithDetails(map[string]interface{}{"exitCode": out.ExitCode})
	return core.FailureFromError(string(kind), err).With("exitCode", out.ExitCode)
}

// screenshot captures to a unique device path, optionally pulls it, and
// removes the device file on every path.
func (e *Executor) screenshot(ctx context.Context, a Screenshot) *core.ActionResult {
	remote := path.Join(e.opts.DeviceTempDir, "screenshot_"+uuid.NewString()+".png")
	defer e.run(ctx, "shell", "rm", remote)

	out := e.run(ctx, "shell", "screencap", "-p", remote)
	if !out.OK() {
		return commandFailure(KindScreenshot, "Screenshot on device", out)
	}

	if a.FilePath == "" {
		return core.Success(string(KindScreenshot), "Screenshot captured on device: "+remote).
			With("device_path", remote)
	}

	out = e.run(ctx, "pull", remote, a.FilePath)
	if !out.OK() {
		return core.Warning(string(KindScreenshot),
			"Screenshot captured on device but failed to pull to local: "+out.Stderr).
			With("device_path", remote)
	}
	return core.Success(string(KindScreenshot), "Screenshot saved to local: "+a.FilePath).
		With("file_path", a.FilePath).
		With("device_path", remote)
}

var (
	currentFocusPattern = regexp.MustCompile(`mCurrentFocus=Window\{[^}]*\s+([^\s/}]+)/\S+\}`)
	focusedAppPattern   = regexp.MustCompile(`mFocusedApp=\S*\{[^}]*\s+([^\s/}]+)/\S+`)
)

func (e *Executor) currentPackage(ctx context.Context) *core.ActionResult {
	out := e.run(ctx, "shell", "dumpsys", "window")
	if !out.OK() {
		return commandFailure(KindGetCurrentPackage, "Get current package", out)
	}
	pkg := ParseForegroundPackage(out.Stdout)
	if pkg == "" {
		return core.Failure(string(KindGetCurrentPackage), "Could not determine current package")
	}
	return core.Success(string(KindGetCurrentPackage), "Current package: "+pkg).With("package", pkg)
}

// ParseForegroundPackage extracts the focused package from `dumpsys window`
// output, preferring mCurrentFocus and falling back to mFocusedApp.
func ParseForegroundPackage(output string) string {
	for _, re := range []*regexp.Regexp{currentFocusPattern, focusedAppPattern} {
		if m := re.FindStringSubmatch(output); len(m) >= 2 && strings.Contains(m[1], ".") {
			return m[1]
		}
	}
	return ""
}

func (e *Executor) record(kind Kind, params string, res *core.ActionResult) {
	outcome := "SUCCESS"
	switch res.Status {
	case core.StatusError:
		outcome = "ERROR: " + res.Message
	case core.StatusWarning:
		outcome = "WARNING: " + res.Message
	}
	e.opts.Audit.Record(string(kind), params, outcome)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
