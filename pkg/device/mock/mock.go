// Package mock provides an in-memory gateway for testing without a real device.
package mock

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/droid-agent/pkg/core"
)

// Gateway is a mock implementation of core.Gateway for testing.
//
// It simulates the handful of device commands the core relies on:
//   - shell uiautomator dump <path>  stores DumpXML at path
//   - shell screencap -p <path>      stores Screenshot at path
//   - shell cat <path>               prints a stored file
//   - shell rm [-f] <path>           deletes a stored file
//   - pull <remote> <local>          writes a stored file to the local disk
//
// Every other command succeeds with empty output unless a response was
// registered with On.
type Gateway struct {
	// Configuration
	Config Config

	mu        sync.Mutex
	files     map[string][]byte
	responses []response
	calls     [][]string
}

// Config configures mock gateway behavior.
type Config struct {
	// Disconnected makes IsConnected report false.
	Disconnected bool
	// DeviceID to report
	DeviceID string
	// DumpXML is what `uiautomator dump` writes.
	DumpXML string
	// Screenshot is what `screencap` writes.
	Screenshot []byte
	// FailPull makes every pull fail.
	FailPull bool
	// CommandDelay adds artificial delay per command
	CommandDelay time.Duration
}

type response struct {
	prefix string
	out    core.CommandOutput
}

// New creates a new mock gateway.
func New(cfg Config) *Gateway {
	if cfg.DeviceID == "" {
		cfg.DeviceID = "mock-device"
	}
	return &Gateway{
		Config: cfg,
		files:  make(map[string][]byte),
	}
}

// On registers a canned response for every command whose space-joined args
// start with prefix. Later registrations win.
func (g *Gateway) On(prefix string, out core.CommandOutput) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses = append([]response{{prefix: prefix, out: out}}, g.responses...)
	return g
}

// SetDump replaces the hierarchy the next dump will produce.
func (g *Gateway) SetDump(xml string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Config.DumpXML = xml
}

// Execute simulates a device command.
func (g *Gateway) Execute(ctx context.Context, args []string, timeout time.Duration) core.CommandOutput {
	g.mu.Lock()
	g.calls = append(g.calls, append([]string(nil), args...))
	delay := g.Config.CommandDelay
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return core.CommandOutput{Stderr: ctx.Err().Error(), ExitCode: 1}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	joined := strings.Join(args, " ")
	for _, r := range g.responses {
		if strings.HasPrefix(joined, r.prefix) {
			return r.out
		}
	}
	return g.simulate(args)
}

func (g *Gateway) simulate(args []string) core.CommandOutput {
	if len(args) == 0 {
		return core.CommandOutput{Stderr: "no command", ExitCode: 1}
	}

	switch args[0] {
	case "pull":
		if len(args) < 3 {
			return core.CommandOutput{Stderr: "pull: missing arguments", ExitCode: 1}
		}
		data, ok := g.files[args[1]]
		if g.Config.FailPull || !ok {
			return core.CommandOutput{
				Stderr:   fmt.Sprintf("adb: error: remote object '%s' does not exist", args[1]),
				ExitCode: 1,
			}
		}
		if err := os.WriteFile(args[2], data, 0644); err != nil {
			return core.CommandOutput{Stderr: err.Error(), ExitCode: 1}
		}
		return core.CommandOutput{Stdout: fmt.Sprintf("%s: 1 file pulled", args[1])}
	case "shell":
		return g.simulateShell(args[1:])
	}
	return core.CommandOutput{}
}

func (g *Gateway) simulateShell(args []string) core.CommandOutput {
	if len(args) == 0 {
		return core.CommandOutput{}
	}
	last := args[len(args)-1]

	switch args[0] {
	case "uiautomator":
		if len(args) >= 3 && args[1] == "dump" {
			g.files[last] = []byte(g.Config.DumpXML)
			return core.CommandOutput{Stdout: "UI hierchary dumped to: " + last}
		}
	case "screencap":
		g.files[last] = append([]byte(nil), g.Config.Screenshot...)
		return core.CommandOutput{}
	case "cat":
		data, ok := g.files[last]
		if !ok {
			return core.CommandOutput{Stderr: fmt.Sprintf("cat: %s: No such file or directory", last), ExitCode: 1}
		}
		return core.CommandOutput{Stdout: string(data)}
	case "rm":
		delete(g.files, last)
		return core.CommandOutput{}
	}
	return core.CommandOutput{}
}

// IsConnected reports the configured connectivity.
func (g *Gateway) IsConnected(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.Config.Disconnected
}

// ConnectedDeviceID returns the mock device id.
func (g *Gateway) ConnectedDeviceID(ctx context.Context) (string, error) {
	if !g.IsConnected(ctx) {
		return "", core.ErrNoDevice
	}
	return g.Config.DeviceID, nil
}

// Calls returns a copy of every command executed so far.
func (g *Gateway) Calls() [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([][]string, len(g.calls))
	for i, c := range g.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// Commands returns every executed command as a space-joined string.
func (g *Gateway) Commands() []string {
	calls := g.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = strings.Join(c, " ")
	}
	return out
}

// CallCount returns the number of commands executed.
func (g *Gateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Count returns how many commands started with prefix.
func (g *Gateway) Count(prefix string) int {
	n := 0
	for _, c := range g.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// HasFile reports whether path is still stored on the simulated device.
func (g *Gateway) HasFile(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.files[path]
	return ok
}

// PutFile stores data on the simulated device.
func (g *Gateway) PutFile(path string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.files[path] = data
}

// Reset clears recorded calls.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = nil
}

var _ core.Gateway = (*Gateway)(nil)
