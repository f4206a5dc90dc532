// Package manage performs app, process and package housekeeping on the
// connected device: listing and (un)installing packages, clearing app
// data, listing and killing processes and reading package metadata.
package manage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/logger"
)

const packagePrefix = "package:"

// Manager runs management commands through a gateway.
type Manager struct {
	gw      core.Gateway
	timeout time.Duration
	log     zerolog.Logger
}

// New creates a Manager. timeout applies to each command; 0 uses the
// gateway default.
func New(gw core.Gateway, timeout time.Duration) *Manager {
	return &Manager{gw: gw, timeout: timeout, log: logger.Component("manage")}
}

func (m *Manager) run(ctx context.Context, args ...string) core.CommandOutput {
	out := m.gw.Execute(ctx, args, m.timeout)
	m.log.Debug().Strs("args", args).Int("exit", out.ExitCode).Msg("manage command")
	return out
}

func (m *Manager) requireDevice(ctx context.Context) error {
	if !m.gw.IsConnected(ctx) {
		return core.ErrNoDevice
	}
	return nil
}

func requirePackage(pkg string) error {
	if strings.TrimSpace(pkg) == "" {
		return core.ErrInvalidAction.WithMessage("package_name is required")
	}
	return nil
}

// ============================================================================
// Packages
// ============================================================================

// ListPackages returns the identifiers of every installed package.
func (m *Manager) ListPackages(ctx context.Context) ([]string, error) {
	if err := m.requireDevice(ctx); err != nil {
		return nil, err
	}
	out := m.run(ctx, "shell", "pm", "list", "packages")
	if !out.OK() {
		return nil, core.ErrCommandFailed.WithMessagef("Failed to list packages: %s", out.Stderr)
	}
	return ParsePackages(out.Stdout), nil
}

// ParsePackages extracts identifiers from `pm list packages` output. Lines
// without the package: marker are ignored.
func ParsePackages(out string) []string {
	pkgs := []string{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, packagePrefix) {
			pkgs = append(pkgs, strings.TrimPrefix(line, packagePrefix))
		}
	}
	return pkgs
}

// Install installs a local APK. It succeeds only when adb exits 0 and
// reports Success.
func (m *Manager) Install(ctx context.Context, apkPath string) (string, error) {
	if apkPath == "" {
		return "", core.ErrInvalidAction.WithMessage("apk_path is required")
	}
	if err := m.requireDevice(ctx); err != nil {
		return "", err
	}
	if _, err := os.Stat(apkPath); err != nil {
		return "", core.ErrInvalidAction.WithMessagef("APK file not found at: %s", apkPath).WithCause(err)
	}

	name := filepath.Base(apkPath)
	out := m.run(ctx, "install", apkPath)
	if !succeeded(out) {
		return "", core.ErrCommandFailed.WithMessagef("Failed to install %s: %s", name, out.Diagnostic())
	}
	return fmt.Sprintf("Successfully installed %s", name), nil
}

// Uninstall removes a package.
func (m *Manager) Uninstall(ctx context.Context, pkg string) (string, error) {
	if err := requirePackage(pkg); err != nil {
		return "", err
	}
	if err := m.requireDevice(ctx); err != nil {
		return "", err
	}
	out := m.run(ctx, "shell", "pm", "uninstall", pkg)
	if !succeeded(out) {
		return "", core.ErrCommandFailed.WithMessagef("Failed to uninstall %s: %s", pkg, out.Diagnostic())
	}
	return fmt.Sprintf("Successfully uninstalled %s", pkg), nil
}

// ClearData wipes a package's data and cache.
func (m *Manager) ClearData(ctx context.Context, pkg string) (string, error) {
	if err := requirePackage(pkg); err != nil {
		return "", err
	}
	if err := m.requireDevice(ctx); err != nil {
		return "", err
	}
	out := m.run(ctx, "shell", "pm", "clear", pkg)
	if !succeeded(out) {
		return "", core.ErrCommandFailed.WithMessagef("Failed to clear data for %s: %s", pkg, out.Diagnostic())
	}
	return fmt.Sprintf("Successfully cleared data for %s", pkg), nil
}

// pm can exit 0 on failure; only a Success line counts.
func succeeded(out core.CommandOutput) bool {
	return out.ExitCode == 0 && strings.Contains(out.Stdout, "Success")
}

// ============================================================================
// Processes
// ============================================================================

// Process is one row of `ps -A`.
type Process struct {
	User  string `json:"user"`
	PID   string `json:"pid"`
	PPID  string `json:"ppid"`
	VSZ   string `json:"vsz"`
	RSS   string `json:"rss"`
	WChan string `json:"wchan"`
	Addr  string `json:"addr"`
	State string `json:"s"`
	Name  string `json:"name"`
}

// ListProcesses returns every process on the device.
func (m *Manager) ListProcesses(ctx context.Context) ([]Process, error) {
	if err := m.requireDevice(ctx); err != nil {
		return nil, err
	}
	out := m.run(ctx, "shell", "ps", "-A")
	if !out.OK() {
		return nil, core.ErrCommandFailed.WithMessagef("Failed to list processes: %s", out.Stderr)
	}
	return ParseProcesses(out.Stdout), nil
}

// ParseProcesses parses `ps` output. The header line is skipped, rows with
// fewer than nine columns are dropped and the name is everything from the
// ninth column on, since it may contain spaces.
func ParseProcesses(out string) []Process {
	procs := []Process{}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return procs
	}
	for _, line := range lines[1:] {
		f := strings.Fields(line)
		if len(f) < 9 {
			continue
		}
		procs = append(procs, Process{
			User:  f[0],
			PID:   f[1],
			PPID:  f[2],
			VSZ:   f[3],
			RSS:   f[4],
			WChan: f[5],
			Addr:  f[6],
			State: f[7],
			Name:  strings.Join(f[8:], " "),
		})
	}
	return procs
}

// KillPID sends SIGTERM to a process.
func (m *Manager) KillPID(ctx context.Context, pid string) (string, error) {
	if _, err := strconv.Atoi(pid); err != nil {
		return "", core.ErrInvalidAction.WithMessagef("pid must be numeric, got %q", pid)
	}
	if err := m.requireDevice(ctx); err != nil {
		return "", err
	}
	return m.kill(ctx, fmt.Sprintf("PID: %s", pid), "shell", "kill", pid)
}

// KillPackage kills every process whose ps line mentions pkg. The grep is
// a plain substring match, so it can also hit processes of other packages
// that share the prefix.
func (m *Manager) KillPackage(ctx context.Context, pkg string) (string, error) {
	if err := requirePackage(pkg); err != nil {
		return "", err
	}
	if err := m.requireDevice(ctx); err != nil {
		return "", err
	}
	pipeline := fmt.Sprintf("ps | grep %s | awk '{print $2}' | xargs kill", pkg)
	return m.kill(ctx, fmt.Sprintf("Package: %s", pkg), "shell", pipeline)
}

// kill treats anything but an explicit "No such process" failure as an
// attempt that went through; kill and xargs exit codes are unreliable.
func (m *Manager) kill(ctx context.Context, target string, args ...string) (string, error) {
	out := m.run(ctx, args...)
	if out.ExitCode != 0 && strings.Contains(out.Stderr, "No such process") {
		return "", core.ErrCommandFailed.WithMessagef("Failed to kill process (%s): %s", target, out.Diagnostic())
	}
	return fmt.Sprintf("Attempted to kill process (%s). Output: %s, Error: %s", target, out.Stdout, out.Stderr), nil
}

// ============================================================================
// Package info
// ============================================================================

// PackageInfo is what `dumpsys package` reveals about one package.
type PackageInfo struct {
	Package          string `json:"package_name"`
	Installed        bool   `json:"installed"`
	VersionName      string `json:"version_name,omitempty"`
	VersionCode      *int   `json:"version_code,omitempty"`
	FirstInstallTime string `json:"first_install_time,omitempty"`
	LastUpdateTime   string `json:"last_update_time,omitempty"`
}

const notFoundMarker = "Package couldn't be found"

var versionCodeRe = regexp.MustCompile(`versionCode=(\d+)`)

// PackageInfo reads metadata for pkg. A package that is not installed is
// a normal result with Installed false, not an error.
func (m *Manager) PackageInfo(ctx context.Context, pkg string) (PackageInfo, error) {
	info := PackageInfo{Package: pkg}
	if err := requirePackage(pkg); err != nil {
		return info, err
	}
	if err := m.requireDevice(ctx); err != nil {
		return info, err
	}

	out := m.run(ctx, "shell", "dumpsys", "package", pkg)
	if !out.OK() {
		return info, core.ErrCommandFailed.WithMessagef("ADB command failed: %s", out.Diagnostic())
	}
	if strings.Contains(out.Stderr, notFoundMarker) || strings.Contains(out.Stdout, notFoundMarker+": "+pkg) {
		return info, nil
	}
	return ParsePackageInfo(pkg, out.Stdout), nil
}

// ParsePackageInfo reads the version and install-time fields from dumpsys
// output. The first occurrence of each field wins.
func ParsePackageInfo(pkg, out string) PackageInfo {
	info := PackageInfo{Package: pkg, Installed: true}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "versionName=") && info.VersionName == "":
			info.VersionName = value(line)
		case strings.HasPrefix(line, "versionCode=") && info.VersionCode == nil:
			if m := versionCodeRe.FindStringSubmatch(line); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					info.VersionCode = &n
				}
			}
		case strings.HasPrefix(line, "firstInstallTime=") && info.FirstInstallTime == "":
			info.FirstInstallTime = value(line)
		case strings.HasPrefix(line, "lastUpdateTime=") && info.LastUpdateTime == "":
			info.LastUpdateTime = value(line)
		}
	}
	return info
}

func value(line string) string {
	_, v, _ := strings.Cut(line, "=")
	return v
}
