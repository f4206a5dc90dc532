// Package jsengine runs caller-supplied automation scripts in a goja
// sandbox. Only a fixed set of device primitives is bound into the
// script's global scope: click, type, wait, wait_for, home, back and find.
// There is no require, no timers, no network and no filesystem access.
package jsengine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/devicelab-dev/droid-agent/pkg/agent"
	"github.com/devicelab-dev/droid-agent/pkg/core"
	"github.com/devicelab-dev/droid-agent/pkg/logger"
	"github.com/devicelab-dev/droid-agent/pkg/query"
)

// Primitives is the device surface a script can reach. *agent.Runtime
// implements it.
type Primitives interface {
	Find(ctx context.Context, c query.Criteria) (core.Point, bool, error)
	Click(ctx context.Context, t agent.Target) (bool, error)
	Type(ctx context.Context, text string, enter bool) error
	Wait(ctx context.Context, d time.Duration) error
	WaitFor(ctx context.Context, q string, timeout time.Duration) (bool, error)
	Home(ctx context.Context) error
	Back(ctx context.Context) error
}

// Result is the outcome of one script run.
type Result struct {
	Status    core.Status `json:"status"`
	Message   string      `json:"message"`
	Traceback string      `json:"traceback,omitempty"`
}

// Options configures an Engine.
type Options struct {
	// Timeout bounds a whole script run. Zero means no limit beyond the
	// caller's context.
	Timeout time.Duration
}

// Engine executes scripts against a set of primitives. Each Run gets a
// fresh goja runtime so no state leaks between scripts.
type Engine struct {
	prims Primitives
	opts  Options
	log   zerolog.Logger
}

// New creates a script engine.
func New(prims Primitives, opts Options) *Engine {
	return &Engine{prims: prims, opts: opts, log: logger.Component("script")}
}

// Run executes code. Script exceptions, primitive failures, interruption
// and Go panics are all returned as an error Result; Run itself never
// panics.
func (e *Engine) Run(ctx context.Context, code string) (res Result) {
	if strings.TrimSpace(code) == "" {
		return Result{Status: core.StatusError, Message: "No code provided"}
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	vm := goja.New()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("script host panic")
			res = Result{
				Status:    core.StatusError,
				Message:   fmt.Sprint(r),
				Traceback: string(debug.Stack()),
			}
		}
	}()

	s := &sandbox{ctx: ctx, vm: vm, prims: e.prims, log: e.log}
	s.install()

	start := time.Now()
	_, err := vm.RunString(code)
	if err != nil {
		res = failure(err)
		e.log.Debug().Dur("elapsed", time.Since(start)).Str("error", res.Message).Msg("script failed")
		return res
	}
	e.log.Debug().Dur("elapsed", time.Since(start)).Msg("script finished")
	return Result{Status: core.StatusSuccess, Message: "Script executed successfully"}
}

// failure converts a goja error into a Result.
func failure(err error) Result {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return Result{
			Status:    core.StatusError,
			Message:   fmt.Sprintf("Script interrupted: %v", interrupted.Value()),
			Traceback: interrupted.String(),
		}
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		return Result{
			Status:    core.StatusError,
			Message:   exceptionMessage(ex.Value()),
			Traceback: ex.String(),
		}
	}

	// Syntax errors and anything else goja reports.
	return Result{Status: core.StatusError, Message: err.Error(), Traceback: err.Error()}
}

// exceptionMessage returns the "message" property of a thrown Error, or
// the thrown value itself for non-Error throws.
func exceptionMessage(v goja.Value) string {
	if v == nil {
		return "unknown script error"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			return m.String()
		}
	}
	return v.String()
}

// sandbox holds the state shared by the bound functions of one run.
type sandbox struct {
	ctx   context.Context
	vm    *goja.Runtime
	prims Primitives
	log   zerolog.Logger
}

func (s *sandbox) install() {
	s.vm.Set("click", s.click)
	s.vm.Set("find", s.find)
	s.vm.Set("type", s.typeText)
	s.vm.Set("wait", s.wait)
	s.vm.Set("wait_for", s.waitFor)
	s.vm.Set("home", s.home)
	s.vm.Set("back", s.back)

	// Script output never reaches stdout.
	s.vm.Set("print", s.discard)
	console := s.vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		console.Set(name, s.discard)
	}
	s.vm.Set("console", console)
}

// fail raises err inside the script as a catchable exception.
func (s *sandbox) fail(err error) {
	panic(s.vm.NewGoError(err))
}

func (s *sandbox) discard(call goja.FunctionCall) goja.Value {
	if s.log.GetLevel() <= zerolog.DebugLevel {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		s.log.Debug().Str("output", strings.Join(parts, " ")).Msg("script print")
	}
	return goja.Undefined()
}

// click(target) -> bool
func (s *sandbox) click(call goja.FunctionCall) goja.Value {
	target := s.target(call.Argument(0))
	ok, err := s.prims.Click(s.ctx, target)
	if err != nil {
		s.fail(err)
	}
	return s.vm.ToValue(ok)
}

// find(target) -> [x, y] | null
func (s *sandbox) find(call goja.FunctionCall) goja.Value {
	target := s.target(call.Argument(0))
	if target.Point != nil {
		return s.vm.NewArray(target.Point.X, target.Point.Y)
	}
	if target.Criteria.IsEmpty() {
		return goja.Null()
	}
	p, ok, err := s.prims.Find(s.ctx, target.Criteria)
	if err != nil {
		s.fail(err)
	}
	if !ok {
		return goja.Null()
	}
	return s.vm.NewArray(p.X, p.Y)
}

// type(text, enter = true)
func (s *sandbox) typeText(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		panic(s.vm.NewTypeError("type requires a text argument"))
	}
	enter := true
	if e := call.Argument(1); !goja.IsUndefined(e) {
		enter = e.ToBoolean()
	}
	if err := s.prims.Type(s.ctx, arg.String(), enter); err != nil {
		s.fail(err)
	}
	return goja.Undefined()
}

// wait(seconds)
func (s *sandbox) wait(call goja.FunctionCall) goja.Value {
	d := s.seconds(call.Argument(0), "wait")
	if err := s.prims.Wait(s.ctx, d); err != nil {
		s.fail(err)
	}
	return goja.Undefined()
}

// wait_for(query, timeoutSeconds = 10) -> bool
func (s *sandbox) waitFor(call goja.FunctionCall) goja.Value {
	q := call.Argument(0)
	if goja.IsUndefined(q) || goja.IsNull(q) {
		panic(s.vm.NewTypeError("wait_for requires a query argument"))
	}
	var timeout time.Duration
	if t := call.Argument(1); !goja.IsUndefined(t) && !goja.IsNull(t) {
		timeout = s.seconds(t, "wait_for")
	}
	ok, err := s.prims.WaitFor(s.ctx, q.String(), timeout)
	if err != nil {
		s.fail(err)
	}
	return s.vm.ToValue(ok)
}

func (s *sandbox) home(goja.FunctionCall) goja.Value {
	if err := s.prims.Home(s.ctx); err != nil {
		s.fail(err)
	}
	return goja.Undefined()
}

func (s *sandbox) back(goja.FunctionCall) goja.Value {
	if err := s.prims.Back(s.ctx); err != nil {
		s.fail(err)
	}
	return goja.Undefined()
}

func (s *sandbox) seconds(v goja.Value, fn string) time.Duration {
	f := v.ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		panic(s.vm.NewTypeError(fmt.Sprintf("%s requires a non-negative number of seconds", fn)))
	}
	return time.Duration(f * float64(time.Second))
}

// target converts a click/find argument into an agent.Target. Accepted
// forms: a free-text query string, an [x, y] array, or an object with any
// of query, text, id (resource_id), desc (content_desc) and point.
func (s *sandbox) target(v goja.Value) agent.Target {
	var t agent.Target
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return t
	}

	switch raw := v.Export().(type) {
	case string:
		t.Query = raw
	case []interface{}:
		t.Point = s.point(raw)
	case map[string]interface{}:
		t.Query = str(raw, "query")
		t.Text = str(raw, "text")
		t.ID = str(raw, "id", "resource_id")
		t.Description = str(raw, "desc", "content_desc")
		if p, ok := raw["point"]; ok && p != nil {
			arr, ok := p.([]interface{})
			if !ok {
				panic(s.vm.NewTypeError("point must be [x, y]"))
			}
			t.Point = s.point(arr)
		}
	default:
		panic(s.vm.NewTypeError(fmt.Sprintf("unsupported target %s", v.String())))
	}
	return t
}

func (s *sandbox) point(arr []interface{}) *core.Point {
	if len(arr) != 2 {
		panic(s.vm.NewTypeError("point must be [x, y]"))
	}
	x, okX := number(arr[0])
	y, okY := number(arr[1])
	if !okX || !okY {
		panic(s.vm.NewTypeError("point coordinates must be numeric"))
	}
	return &core.Point{X: x, Y: y}
}

func number(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// str returns the first non-empty string value among keys.
func str(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
