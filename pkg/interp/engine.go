// Package interp provides the code-execution engine behind the dispatch
// queue: a Starlark interpreter (a Python dialect) with a namespace that
// persists across snippets, so successive requests can build on each
// other's definitions the way console sessions in the host application
// do.
//
// Submitted code may assign the well-known variable _result_ to return a
// value to the caller. Print output is captured and returned verbatim
// instead of leaking to the process's stdout. Errors raised by user code
// are classified by kind and reported with a backtrace, never propagated
// as Go errors.
//
// An embedding application with its own interpreter (the real CAD host)
// substitutes its runner for this one; the dispatcher only sees the
// dispatch.Runner interface.
package interp

import (
	"fmt"
	"strings"
	"time"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/rhuss/cadbridge/pkg/debug"
	"github.com/rhuss/cadbridge/pkg/dispatch"
)

// ResultVariable is the well-known name submitted code assigns to return
// a value to the remote caller.
const ResultVariable = "_result_"

// Engine executes snippets in a persistent namespace. It is only ever
// invoked from the single drain goroutine, so it carries no lock; the
// dispatcher's single-flight guarantee is the synchronization.
type Engine struct {
	predeclared starlark.StringDict
	globals     starlark.StringDict
	fileOpts    *syntax.FileOptions
}

// Option configures an Engine.
type Option func(*Engine)

// WithModule seeds the namespace with a host-supplied module or value,
// visible to every snippet under the given name. This is how an
// embedding application exposes its top-level modules.
func WithModule(name string, value starlark.Value) Option {
	return func(e *Engine) { e.predeclared[name] = value }
}

// NewEngine creates an engine with the default builtins: sleep(seconds),
// plus the standard json and math modules.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		predeclared: starlark.StringDict{
			"sleep": starlark.NewBuiltin("sleep", sleepBuiltin),
			"json":  json.Module,
			"math":  math.Module,
		},
		globals: starlark.StringDict{},
		fileOpts: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       true,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ dispatch.Runner = (*Engine)(nil)

// Run executes one snippet and reports the outcome. Empty code is a
// valid no-op. Definitions from earlier runs are visible; new top-level
// bindings are carried forward to later runs.
func (e *Engine) Run(code string) (res dispatch.Result) {
	start := time.Now()
	var stdout strings.Builder

	defer func() {
		if r := recover(); r != nil {
			res = dispatch.Failure("RuntimeError", fmt.Sprintf("interpreter panic: %v", r))
			res.Stdout = stdout.String()
			res.Duration = time.Since(start)
		}
	}()

	thread := &starlark.Thread{
		Name: "exec",
		Print: func(_ *starlark.Thread, msg string) {
			stdout.WriteString(msg)
			stdout.WriteByte('\n')
		},
	}

	env := make(starlark.StringDict, len(e.predeclared)+len(e.globals))
	for k, v := range e.predeclared {
		env[k] = v
	}
	for k, v := range e.globals {
		env[k] = v
	}

	globals, err := starlark.ExecFileOptions(e.fileOpts, thread, "<exec>", code, env)
	duration := time.Since(start)

	if err != nil {
		res = classify(err)
		res.Stdout = stdout.String()
		res.Duration = duration
		debug.Log("interp", "execution failed",
			"error_type", res.ErrorType, "error", res.ErrorMessage)
		return res
	}

	// Carry new top-level bindings forward so the namespace persists
	// across snippets.
	for k, v := range globals {
		e.globals[k] = v
	}

	res = dispatch.Result{
		Success:  true,
		Stdout:   stdout.String(),
		Duration: duration,
	}
	if v, ok := globals[ResultVariable]; ok {
		res.Value = FromStarlark(v)
	}
	return res
}

// Lookup returns the current value of a global binding, for tests and
// host-side inspection.
func (e *Engine) Lookup(name string) (starlark.Value, bool) {
	v, ok := e.globals[name]
	return v, ok
}

// classify translates an interpreter error into a failed Result with the
// error kind, message, and backtrace filled in.
func classify(err error) dispatch.Result {
	switch err := err.(type) {
	case *starlark.EvalError:
		res := dispatch.Failure("EvalError", err.Msg)
		res.ErrorTraceback = err.Backtrace()
		return res
	case syntax.Error:
		res := dispatch.Failure("SyntaxError", err.Msg)
		res.ErrorTraceback = err.Error()
		return res
	case resolve.ErrorList:
		msg := "resolve error"
		if len(err) > 0 {
			msg = err[0].Msg
		}
		res := dispatch.Failure("SyntaxError", msg)
		res.ErrorTraceback = err.Error()
		return res
	default:
		// Parse errors surface as *syntax.Error wrapped in various ways;
		// anything unrecognized that mentions the scanner is a syntax
		// problem, the rest is a runtime failure.
		msg := err.Error()
		kind := "RuntimeError"
		if strings.Contains(msg, "syntax error") || strings.Contains(msg, "got ") {
			kind = "SyntaxError"
		}
		res := dispatch.Failure(kind, msg)
		res.ErrorTraceback = msg
		return res
	}
}

// sleepBuiltin implements sleep(seconds). It exists so hosts and tests
// can exercise slow executions; the dispatcher intentionally imposes no
// execution-time cap, so sleeping code simply occupies the drain turn.
func sleepBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var seconds float64
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &seconds); err != nil {
		return nil, err
	}
	if seconds < 0 {
		return nil, fmt.Errorf("%s: negative duration", b.Name())
	}
	time.Sleep(time.Duration(seconds * float64(time.Second)))
	return starlark.None, nil
}
