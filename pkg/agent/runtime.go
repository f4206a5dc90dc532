// Package agent is the high-level automation runtime used by scripts and the
// CLI: find things on screen, tap them, type, wait for them to appear.
//
// A Runtime is an explicit object built once per session. There is no
// package-level default instance.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/devicelab-dev/droid-agent/pkg/action"
	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/hierarchy"
	"github.com/devicelab-dev/droid-agent/pkg/logger"
	"github.com/devicelab-dev/droid-agent/pkg/query"
)

// Defaults
const (
	DefaultPollInterval   = time.Second
	DefaultWaitForTimeout = 10 * time.Second
)

// KeyEnter is the keycode sent after typed text.
const KeyEnter = "66"

// Options configures a Runtime.
type Options struct {
	Capture      hierarchy.CaptureOptions
	Timeout      time.Duration // per-command timeout; 0 uses the gateway default
	PollInterval time.Duration // WaitFor poll period (default 1s)

	// Sleep and Now are replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Runtime performs element-level operations on one device.
type Runtime struct {
	gw   core.Gateway
	exec *action.Executor
	opts Options
	log  zerolog.Logger
}

// New creates a runtime. Taps and key presses go through exec so they are
// validated and audited like any other action.
func New(gw core.Gateway, exec *action.Executor, opts Options) *Runtime {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Sleep == nil {
		opts.Sleep = action.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runtime{gw: gw, exec: exec, opts: opts, log: logger.Component("runtime")}
}

// Target is what Click acts on: a fixed point or an element lookup.
type Target struct {
	Point *core.Point
	query.Criteria
}

// Find captures the screen and returns the center of the first element
// matching c. Every call takes a fresh dump.
func (r *Runtime) Find(ctx context.Context, c query.Criteria) (core.Point, bool, error) {
	elements, err := r.snapshot(ctx)
	if err != nil {
		return core.Point{}, false, err
	}
	e, ok := query.Find(elements, c)
	if !ok {
		return core.Point{}, false, nil
	}
	return e.Center, true, nil
}

// Click taps the target. It reports false when the element was not found
// or the target is empty.
func (r *Runtime) Click(ctx context.Context, t Target) (bool, error) {
	var p core.Point
	switch {
	case t.Point != nil:
		p = *t.Point
	case !t.Criteria.IsEmpty():
		found, ok, err := r.Find(ctx, t.Criteria)
		if err != nil || !ok {
			return false, err
		}
		p = found
	default:
		return false, nil
	}

	if err := r.perform(ctx, action.Tap{Coordinates: p}); err != nil {
		return false, err
	}
	return true, nil
}

// Type types text, encoding spaces for the input method, and optionally
// presses enter.
func (r *Runtime) Type(ctx context.Context, text string, enter bool) error {
	escaped := strings.ReplaceAll(text, " ", "%s")
	if err := r.shell(ctx, "input", "text", escaped); err != nil {
		return err
	}
	if enter {
		return r.shell(ctx, "input", "keyevent", KeyEnter)
	}
	return nil
}

// Wait pauses for d.
func (r *Runtime) Wait(ctx context.Context, d time.Duration) error {
	return r.opts.Sleep(ctx, d)
}

// WaitFor polls the screen until an element matching the free-text query
// appears or timeout elapses. Each poll is a fresh dump; nothing is cached.
// A missing device ends the wait with an error; other perception failures
// count as "not yet".
func (r *Runtime) WaitFor(ctx context.Context, q string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = DefaultWaitForTimeout
	}
	deadline := r.opts.Now().Add(timeout)

	for r.opts.Now().Before(deadline) {
		_, ok, err := r.Find(ctx, query.Criteria{Query: q})
		switch {
		case err != nil && core.IsCategory(err, core.ErrCategoryConnectivity):
			return false, err
		case err != nil:
			r.log.Debug().Err(err).Str("query", q).Msg("wait_for poll failed")
		case ok:
			return true, nil
		}
		if err := r.opts.Sleep(ctx, r.opts.PollInterval); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Home presses the home key.
func (r *Runtime) Home(ctx context.Context) error {
	return r.perform(ctx, action.Home{})
}

// Back presses the back key.
func (r *Runtime) Back(ctx context.Context) error {
	return r.perform(ctx, action.Back{})
}

// Elements returns every on-screen node that carries text, a description
// or a resource id.
func (r *Runtime) Elements(ctx context.Context) ([]hierarchy.Element, error) {
	all, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	elements := []hierarchy.Element{}
	for _, e := range all {
		if e.Text != "" || e.Description != "" || e.ID != "" {
			elements = append(elements, e)
		}
	}
	return elements, nil
}

// ReadMessages returns the visible text of message-like elements: those
// whose id mentions "message" or "chat", or whose type is a text view.
func (r *Runtime) ReadMessages(ctx context.Context) ([]string, error) {
	elements, err := r.Elements(ctx)
	if err != nil {
		return nil, err
	}
	messages := []string{}
	for _, e := range elements {
		content := e.Text
		if content == "" {
			content = e.Description
		}
		if content == "" {
			continue
		}
		id, typ := strings.ToLower(e.ID), strings.ToLower(e.Type)
		if strings.Contains(id, "message") || strings.Contains(id, "chat") || strings.Contains(typ, "text") {
			messages = append(messages, content)
		}
	}
	return messages, nil
}

// Reply focuses an input field and types text followed by enter. With an
// inputID the field is looked up by resource id; otherwise query.ReplyHints
// are tried in order and the first hit is tapped. Text is typed even when no
// field was found, into whatever currently has focus.
func (r *Runtime) Reply(ctx context.Context, text, inputID string) error {
	elements, err := r.snapshot(ctx)
	if err != nil {
		return err
	}

	var (
		target hierarchy.Element
		found  bool
	)
	if inputID != "" {
		target, found = query.Find(elements, query.Criteria{ID: inputID})
	} else {
		var hint string
		target, hint, found = query.FirstByHints(elements, query.ReplyHints)
		if found {
			r.log.Debug().Str("hint", hint).Str("id", target.ID).Msg("reply field")
		}
	}

	if found {
		if err := r.perform(ctx, action.Tap{Coordinates: target.Center}); err != nil {
			return err
		}
	}
	return r.Type(ctx, text, true)
}

func (r *Runtime) snapshot(ctx context.Context) ([]hierarchy.Element, error) {
	opts := r.opts.Capture
	if opts.Timeout == 0 {
		opts.Timeout = r.opts.Timeout
	}
	return hierarchy.SnapshotAll(ctx, r.gw, opts)
}

// perform runs a single action through the executor and converts an error
// result into a Go error.
func (r *Runtime) perform(ctx context.Context, a action.Action) error {
	res := r.exec.Execute(ctx, a)
	if res.Status.IsError() {
		code, _ := res.Payload["code"].(string)
		return core.NewExecutionError(categoryForCode(code), code, res.Message)
	}
	return nil
}

func (r *Runtime) shell(ctx context.Context, args ...string) error {
	if !r.gw.IsConnected(ctx) {
		return core.ErrNoDevice
	}
	out := r.gw.Execute(ctx, append([]string{"shell"}, args...), r.opts.Timeout)
	if !out.OK() {
		return core.ErrCommandFailed.WithMessagef("%s failed: %s", strings.Join(args[:2], " "), out.Diagnostic())
	}
	return nil
}

func categoryForCode(code string) core.ErrorCategory {
	switch code {
	case core.ErrNoDevice.Code:
		return core.ErrCategoryConnectivity
	case core.ErrInvalidAction.Code:
		return core.ErrCategoryValidation
	}
	return core.ErrCategoryDeviceCommand
}
