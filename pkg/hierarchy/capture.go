package hierarchy

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/logger"
)

// DefaultDumpPath is where uiautomator writes the dump on the device.
const DefaultDumpPath = "/sdcard/window_dump.xml"

// CaptureOptions configures a perception cycle.
type CaptureOptions struct {
	DumpPath string        // device-side dump file (default: DefaultDumpPath)
	Timeout  time.Duration // per-command timeout; 0 uses the gateway default
}

func (o CaptureOptions) dumpPath() string {
	if o.DumpPath == "" {
		return DefaultDumpPath
	}
	return o.DumpPath
}

// Capture dumps the current window hierarchy and returns the raw XML.
// The device and local dump files are removed on every exit path.
func Capture(ctx context.Context, gw core.Gateway, opts CaptureOptions) (string, error) {
	if !gw.IsConnected(ctx) {
		return "", core.ErrNoDevice.WithMessage("No Android device connected. Run 'adb devices' to check.")
	}

	remote := opts.dumpPath()
	defer gw.Execute(ctx, []string{"shell", "rm", remote}, opts.Timeout)

	out := gw.Execute(ctx, []string{"shell", "uiautomator", "dump", remote}, opts.Timeout)
	if !out.OK() || strings.Contains(strings.ToUpper(out.Stderr), "ERROR") {
		return "", core.ErrCommandFailed.WithMessagef("UI dump failed: %s", out.Stderr)
	}

	local, err := os.CreateTemp("", "window_dump_*.xml")
	if err != nil {
		return "", core.ErrCommandFailed.WithMessagef("Failed to create local dump file: %v", err).WithCause(err)
	}
	localPath := local.Name()
	local.Close()
	defer func() {
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			logger.Debug("remove %s: %v", localPath, err)
		}
	}()

	out = gw.Execute(ctx, []string{"pull", remote, localPath}, opts.Timeout)
	if !out.OK() {
		return "", core.ErrCommandFailed.WithMessagef("Failed to pull XML: %s", out.Stderr)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", core.ErrCommandFailed.WithMessage("Window dump file not found after pull").WithCause(err)
	}
	return string(data), nil
}

// Snapshot captures and parses the current screen.
func Snapshot(ctx context.Context, gw core.Gateway, opts CaptureOptions) ([]Element, error) {
	dump, err := Capture(ctx, gw, opts)
	if err != nil {
		return nil, err
	}
	return Parse(dump)
}

// SnapshotAll captures the current screen and returns every node with bounds.
func SnapshotAll(ctx context.Context, gw core.Gateway, opts CaptureOptions) ([]Element, error) {
	dump, err := Capture(ctx, gw, opts)
	if err != nil {
		return nil, err
	}
	return ParseAll(dump)
}
