// Package action validates action descriptors and dispatches them to a device.
//
// An Action is a tagged union: one Go type per kind, each carrying only the
// fields its kind needs. Descriptors are decoded from JSON with Decode and
// checked again with Validate before anything reaches the gateway.
package action

import (
	"fmt"

	"github.com/devicelab-dev/droid-agent/pkg/core"
)

// Kind names an action descriptor variant.
type Kind string

// Action kinds
const (
	KindTap               Kind = "tap"
	KindLongPress         Kind = "long_press"
	KindSwipe             Kind = "swipe"
	KindDragAndDrop       Kind = "drag_and_drop"
	KindType              Kind = "type"
	KindHome              Kind = "home"
	KindBack              Kind = "back"
	KindWait              Kind = "wait"
	KindDone              Kind = "done"
	KindStartIntent       Kind = "start_intent"
	KindOpenApp           Kind = "open_app"
	KindScreenshot        Kind = "screenshot"
	KindGetCurrentPackage Kind = "get_current_package"
)

// Kinds lists every supported kind in documentation order.
var Kinds = []Kind{
	KindTap, KindType, KindHome, KindBack, KindWait, KindDone, KindStartIntent,
	KindSwipe, KindOpenApp, KindScreenshot, KindLongPress, KindDragAndDrop,
	KindGetCurrentPackage,
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// needsDevice reports whether the kind requires a connected device.
func (k Kind) needsDevice() bool {
	return k != KindWait && k != KindDone
}

// DefaultPressDuration applies to long_press and drag_and_drop (ms).
const DefaultPressDuration = 1000

// Action is one validated descriptor.
type Action interface {
	Kind() Kind
	// Validate re-checks the kind's structural contract.
	Validate() error
	// Params renders the parameters for the audit log.
	Params() string
}

// Tap taps a single point.
type Tap struct {
	Coordinates core.Point
}

// LongPress holds a point for Duration ms (default 1000).
type LongPress struct {
	Coordinates core.Point
	Duration    *int
}

// Swipe moves from Start to End. Duration is passed through only when set.
type Swipe struct {
	Start    core.Point
	End      core.Point
	Duration *int
}

// DragAndDrop presses at Start, moves to End and releases (default 1000 ms).
type DragAndDrop struct {
	Start    core.Point
	End      core.Point
	Duration *int
}

// TypeText delivers literal text to the focused input.
type TypeText struct {
	Text string
}

// Home presses the home key.
type Home struct{}

// Back presses the back key.
type Back struct{}

// Wait pauses for a fixed interval. A caller-supplied duration is recorded
// but not honored.
type Wait struct {
	Duration *int
}

// Done marks the task complete. No device call is made.
type Done struct {
	Reason string
}

// StartIntent opens URI under Package.
type StartIntent struct {
	URI     string
	Package string
}

// OpenApp launches Package through its launcher activity.
type OpenApp struct {
	Package string
}

// Screenshot captures the screen on the device and, when FilePath is set,
// retrieves it locally.
type Screenshot struct {
	FilePath string
}

// GetCurrentPackage queries the foreground application id.
type GetCurrentPackage struct{}

func (Tap) Kind() Kind               { return KindTap }
func (LongPress) Kind() Kind         { return KindLongPress }
func (Swipe) Kind() Kind             { return KindSwipe }
func (DragAndDrop) Kind() Kind       { return KindDragAndDrop }
func (TypeText) Kind() Kind          { return KindType }
func (Home) Kind() Kind              { return KindHome }
func (Back) Kind() Kind              { return KindBack }
func (Wait) Kind() Kind              { return KindWait }
func (Done) Kind() Kind              { return KindDone }
func (StartIntent) Kind() Kind       { return KindStartIntent }
func (OpenApp) Kind() Kind           { return KindOpenApp }
func (Screenshot) Kind() Kind        { return KindScreenshot }
func (GetCurrentPackage) Kind() Kind { return KindGetCurrentPackage }

func (Tap) Validate() error { return nil }

func (a LongPress) Validate() error { return checkDuration(a.Duration) }

func (a Swipe) Validate() error { return checkDuration(a.Duration) }

func (a DragAndDrop) Validate() error { return checkDuration(a.Duration) }

func (TypeText) Validate() error { return nil }

func (Home) Validate() error { return nil }

func (Back) Validate() error { return nil }

func (a Wait) Validate() error { return checkDuration(a.Duration) }

func (Done) Validate() error { return nil }

func (a StartIntent) Validate() error {
	if a.URI == "" {
		return invalid("start_intent action requires 'uri' field")
	}
	if a.Package == "" {
		return invalid("start_intent action requires 'package' field")
	}
	return nil
}

func (a OpenApp) Validate() error {
	if a.Package == "" {
		return invalid("open_app action requires 'package_name' field")
	}
	return nil
}

func (Screenshot) Validate() error { return nil }

func (GetCurrentPackage) Validate() error { return nil }

func (a Tap) Params() string { return fmt.Sprintf("%d,%d", a.Coordinates.X, a.Coordinates.Y) }

func (a LongPress) Params() string {
	return fmt.Sprintf("%d,%d, duration=%d", a.Coordinates.X, a.Coordinates.Y, a.duration())
}

func (a Swipe) Params() string {
	s := fmt.Sprintf("start=[%d,%d], end=[%d,%d]", a.Start.X, a.Start.Y, a.End.X, a.End.Y)
	if a.Duration != nil {
		s += fmt.Sprintf(", duration=%d", *a.Duration)
	}
	return s
}

func (a DragAndDrop) Params() string {
	return fmt.Sprintf("start=[%d,%d], end=[%d,%d], duration=%d",
		a.Start.X, a.Start.Y, a.End.X, a.End.Y, a.duration())
}

func (a TypeText) Params() string { return a.Text }

func (Home) Params() string { return "" }

func (Back) Params() string { return "" }

func (Wait) Params() string { return "" }

func (a Done) Params() string { return a.Reason }

func (a StartIntent) Params() string {
	return fmt.Sprintf("uri=%s, package=%s", a.URI, a.Package)
}

func (a OpenApp) Params() string { return "package_name=" + a.Package }

func (a Screenshot) Params() string { return a.FilePath }

func (GetCurrentPackage) Params() string { return "" }

func (a LongPress) duration() int { return durationOr(a.Duration, DefaultPressDuration) }

func (a DragAndDrop) duration() int { return durationOr(a.Duration, DefaultPressDuration) }

func durationOr(d *int, def int) int {
	if d == nil {
		return def
	}
	return *d
}

func checkDuration(d *int) error {
	if d != nil && *d < 0 {
		return invalid("duration cannot be negative")
	}
	return nil
}

// IntPtr returns a pointer to v, for building optional durations.
func IntPtr(v int) *int {
	return &v
}

func invalid(msg string) error {
	return core.ErrInvalidAction.WithMessage(msg)
}

func invalidf(format string, args ...interface{}) error {
	return core.ErrInvalidAction.WithMessagef(format, args...)
}
