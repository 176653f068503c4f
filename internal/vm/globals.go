package vm

import (
	"strings"

	"github.com/dop251/goja"
)

// installConsole wires console.log and friends to the context's log sink.
// Output is session data: it is forwarded to the active sink in call
// order, never to the host logger.
func (c *Context) installConsole() error {
	console := c.rt.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, c.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	return c.rt.Set("console", console)
}

func (c *Context) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, c.formatValue(arg))
		}
		c.emitLog(strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// formatValue renders one console argument the way Node's util.inspect
// renders the common cases: primitives verbatim, errors as their stack
// line, plain objects and arrays as JSON.
func (c *Context) formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	obj, isObj := v.(*goja.Object)
	if !isObj {
		return v.String()
	}
	if _, callable := goja.AssertFunction(v); callable {
		return "[Function]"
	}
	// Error-like objects render as "Name: message".
	if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			return v.String()
		}
	}
	if c.stringify != nil {
		if out, err := c.stringify(goja.Undefined(), v); err == nil && !goja.IsUndefined(out) {
			return out.String()
		}
	}
	return v.String()
}

// installTimers wires setTimeout/setInterval/clearTimeout/clearInterval
// and queueMicrotask to the virtual-clock timer queue.
func (c *Context) installTimers() error {
	setTimer := func(repeat bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				panic(c.rt.NewTypeError("callback must be a function"))
			}
			delay := call.Argument(1).ToInteger()
			var extra []goja.Value
			if len(call.Arguments) > 2 {
				extra = append(extra, call.Arguments[2:]...)
			}
			id := c.timers.Add(fn, delay, repeat, extra)
			return c.rt.ToValue(id)
		}
	}
	clearTimer := func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		if !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			c.timers.Clear(arg.ToInteger())
		}
		return goja.Undefined()
	}

	if err := c.rt.Set("setTimeout", setTimer(false)); err != nil {
		return err
	}
	if err := c.rt.Set("setInterval", setTimer(true)); err != nil {
		return err
	}
	if err := c.rt.Set("clearTimeout", clearTimer); err != nil {
		return err
	}
	if err := c.rt.Set("clearInterval", clearTimer); err != nil {
		return err
	}
	if err := c.rt.Set("setImmediate", setTimer(false)); err != nil {
		return err
	}
	if err := c.rt.Set("clearImmediate", clearTimer); err != nil {
		return err
	}
	return c.rt.Set("queueMicrotask", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(c.rt.NewTypeError("callback must be a function"))
		}
		c.timers.AddMicrotask(fn, nil)
		return goja.Undefined()
	})
}

// installProcess builds the process global: argv, env stub, cwd, stream
// stubs whose write goes to the console sink, and nextTick on the
// microtask queue. argv is re-read per call so each session reports its
// own arguments.
func (c *Context) installProcess() error {
	process := c.rt.NewObject()

	if err := process.DefineAccessorProperty("argv", c.rt.ToValue(func(goja.FunctionCall) goja.Value {
		c.mu.Lock()
		argv := c.argv
		c.mu.Unlock()
		out := make([]interface{}, 0, len(argv))
		for _, a := range argv {
			out = append(out, a)
		}
		return c.rt.ToValue(out)
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}

	if err := process.Set("env", c.env); err != nil {
		return err
	}
	if err := process.Set("cwd", func() string { return "/" }); err != nil {
		return err
	}
	if err := process.Set("platform", "sandbox"); err != nil {
		return err
	}
	if err := process.Set("version", "v18.0.0"); err != nil {
		return err
	}
	if err := process.Set("pid", 1); err != nil {
		return err
	}

	if err := process.Set("nextTick", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(c.rt.NewTypeError("callback must be a function"))
		}
		var extra []goja.Value
		if len(call.Arguments) > 1 {
			extra = append(extra, call.Arguments[1:]...)
		}
		c.timers.AddMicrotask(fn, extra)
		return goja.Undefined()
	}); err != nil {
		return err
	}

	makeStream := func() (*goja.Object, error) {
		stream := c.rt.NewObject()
		err := stream.Set("write", func(call goja.FunctionCall) goja.Value {
			line := call.Argument(0).String()
			c.emitLog(strings.TrimSuffix(line, "\n"))
			return c.rt.ToValue(true)
		})
		return stream, err
	}
	stdout, err := makeStream()
	if err != nil {
		return err
	}
	stderr, err := makeStream()
	if err != nil {
		return err
	}
	stdin := c.rt.NewObject()
	if err := process.Set("stdout", stdout); err != nil {
		return err
	}
	if err := process.Set("stderr", stderr); err != nil {
		return err
	}
	if err := process.Set("stdin", stdin); err != nil {
		return err
	}

	if err := process.Set("exit", func(call goja.FunctionCall) goja.Value {
		const msg = "process.exit is not supported in the sandbox"
		var errObj *goja.Object
		if obj, err := c.rt.New(c.rt.Get("Error"), c.rt.ToValue(msg)); err == nil {
			errObj = obj
		}
		if errObj == nil {
			errObj = c.rt.NewObject()
			_ = errObj.Set("message", msg)
		}
		_ = errObj.Set("name", "ProcessExit")
		_ = errObj.Set("code", call.Argument(0).ToInteger())
		panic(errObj)
	}); err != nil {
		return err
	}

	return c.rt.Set("process", process)
}
