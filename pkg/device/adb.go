// Package device provides the adb-backed implementation of core.Gateway.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/logger"
)

// envADBPath overrides adb discovery.
const envADBPath = "ADB_PATH"

// exitNotFound is reported when the adb binary cannot be started.
const exitNotFound = 127

// ADB executes commands against a device through the adb binary.
type ADB struct {
	path    string
	serial  string
	timeout time.Duration
}

// Options configures an ADB gateway.
type Options struct {
	Path    string        // adb binary; empty means $ADB_PATH, then PATH lookup
	Serial  string        // target device; empty means whatever adb picks
	Timeout time.Duration // per-command timeout (default: core.DefaultCommandTimeout)
}

// DeviceEntry is one line of `adb devices`.
type DeviceEntry struct {
	Serial string `json:"serial"`
	State  string `json:"state"`
}

// NewADB creates an adb gateway. It fails only when no adb binary can be found.
func NewADB(opts Options) (*ADB, error) {
	path, err := FindADB(opts.Path)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = core.DefaultCommandTimeout
	}
	return &ADB{
		path:    path,
		serial:  opts.Serial,
		timeout: opts.Timeout,
	}, nil
}

// FindADB locates the adb binary.
//
// Resolution order:
//  1. explicit path (if it exists)
//  2. $ADB_PATH (if it exists)
//  3. adb in PATH
func FindADB(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(envADBPath)} {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("ADB not found. Please install Android Platform Tools and ensure " +
		"'adb' is in your PATH, or set ADB_PATH environment variable")
}

// Path returns the adb binary in use.
func (a *ADB) Path() string {
	return a.path
}

// Serial returns the configured device serial (may be empty).
func (a *ADB) Serial() string {
	return a.serial
}

// Execute runs one adb command. Failures never surface as Go errors: a timeout
// yields exit code 1, a missing binary exit code 127.
func (a *ADB) Execute(ctx context.Context, args []string, timeout time.Duration) core.CommandOutput {
	if timeout <= 0 {
		timeout = a.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdArgs := make([]string, 0, len(args)+2)
	if a.serial != "" {
		cmdArgs = append(cmdArgs, "-s", a.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.CommandContext(ctx, a.path, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("adb %s", strings.Join(args, " "))
	err := cmd.Run()

	out := core.CommandOutput{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	switch {
	case err == nil:
		return out
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		logger.Warn("adb %s timed out after %v", strings.Join(args, " "), timeout)
		return core.CommandOutput{
			Stderr:   fmt.Sprintf("ADB command timed out after %s", formatSeconds(timeout)),
			ExitCode: 1,
		}
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist):
		return core.CommandOutput{Stderr: err.Error(), ExitCode: exitNotFound}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		if out.ExitCode <= 0 {
			out.ExitCode = 1
		}
		return out
	}

	out.ExitCode = 1
	out.Stderr = fmt.Sprintf("ADB command failed: %v", err)
	return out
}

// IsConnected reports whether an authorized device is ready. When a serial is
// configured, only that device counts.
func (a *ADB) IsConnected(ctx context.Context) bool {
	_, err := a.ConnectedDeviceID(ctx)
	return err == nil
}

// ConnectedDeviceID returns the first ready device (or the configured serial
// when it is ready).
func (a *ADB) ConnectedDeviceID(ctx context.Context) (string, error) {
	devices, err := a.ListDevices(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range devices {
		if d.State != "device" {
			continue
		}
		if a.serial == "" || d.Serial == a.serial {
			return d.Serial, nil
		}
	}
	return "", core.ErrNoDevice.WithMessage(
		"No Android device connected. Please connect a device and enable USB debugging.")
}

// ListDevices returns every device adb knows about, in any state.
func (a *ADB) ListDevices(ctx context.Context) ([]DeviceEntry, error) {
	out := a.run(ctx, "devices")
	if !out.OK() {
		return nil, core.ErrCommandFailed.WithMessagef("Failed to get devices: %s", out.Diagnostic())
	}
	return ParseDevices(out.Stdout), nil
}

// Version returns the first line of `adb version`.
func (a *ADB) Version(ctx context.Context) (string, error) {
	out := a.run(ctx, "version")
	if !out.OK() {
		return "", core.ErrCommandFailed.WithMessagef("adb version: %s", out.Diagnostic())
	}
	line, _, _ := strings.Cut(out.Stdout, "\n")
	return strings.TrimSpace(line), nil
}

// run executes an adb-server command that must not carry -s.
func (a *ADB) run(ctx context.Context, args ...string) core.CommandOutput {
	unscoped := *a
	unscoped.serial = ""
	return unscoped.Execute(ctx, args, a.timeout)
}

// ParseDevices parses `adb devices` output, skipping the header line.
func ParseDevices(output string) []DeviceEntry {
	var devices []DeviceEntry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		devices = append(devices, DeviceEntry{Serial: parts[0], State: parts[1]})
	}
	return devices
}

func formatSeconds(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	return d.String()
}
