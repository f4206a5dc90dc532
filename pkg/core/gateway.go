package core

import (
	"context"
	"time"
)

// DefaultCommandTimeout bounds every gateway command unless configured otherwise.
const DefaultCommandTimeout = 30 * time.Second

// Gateway is the contract for talking to a device.
// Implementations: device.ADB (adb binary), mock.Gateway (tests).
// The core never depends on transport details beyond this interface.
type Gateway interface {
	// Execute runs one command against the device. It never returns an error:
	// failures, including timeouts, are reported through a non-zero ExitCode.
	Execute(ctx context.Context, args []string, timeout time.Duration) CommandOutput

	// IsConnected reports whether an authorized device is ready.
	IsConnected(ctx context.Context) bool

	// ConnectedDeviceID returns the id of the first ready device.
	ConnectedDeviceID(ctx context.Context) (string, error)
}

// CommandOutput is the result of a single gateway command.
type CommandOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// OK reports a zero exit status.
func (o CommandOutput) OK() bool {
	return o.ExitCode == 0
}

// Diagnostic returns stderr, falling back to stdout when stderr is empty.
func (o CommandOutput) Diagnostic() string {
	if o.Stderr != "" {
		return o.Stderr
	}
	return o.Stdout
}

// Point is an integer screen coordinate, serialized as [x, y].
type Point struct {
	X int
	Y int
}
