// Package vm manages goja interpreter contexts: the injected globals
// (console, process, timers, microtasks), the virtual-clock timer queue
// the session drains, and the handle registry that makes disposal a
// single pass.
package vm

import (
	"sync"

	"github.com/dop251/goja"

	"github.com/yangshun/nodepack/internal/logging"
	"github.com/yangshun/nodepack/internal/monitoring"
	"github.com/yangshun/nodepack/internal/types"
)

// Options configures context creation.
type Options struct {
	// MaxCallStackSize bounds interpreter recursion depth.
	MaxCallStackSize int

	// Logger receives host-side diagnostics. Nil means no-op.
	Logger *logging.Logger

	// Metrics receives lifecycle observations. Nil disables collection.
	Metrics *monitoring.Metrics
}

// Context owns one goja interpreter instance plus its injected globals
// and timer queue. A context is exclusively owned by the runtime instance
// that created it and is disposed exactly once.
type Context struct {
	rt      *goja.Runtime
	timers  *TimerQueue
	handles *HandleRegistry
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	sink     types.LogFunc
	argv     []string
	env      map[string]string
	disposed bool

	stringify goja.Callable
}

// New creates a context and installs the console, process, timer, and
// microtask bridges. Every host resource wired here registers a release
// on the handle registry so disposal is a single well-defined path.
func New(opts Options) (*Context, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	rt := goja.New()
	if opts.MaxCallStackSize > 0 {
		rt.SetMaxCallStackSize(opts.MaxCallStackSize)
	}
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	c := &Context{
		rt:      rt,
		timers:  NewTimerQueue(opts.Metrics),
		handles: NewHandleRegistry(),
		log:     opts.Logger.Named("vm"),
		metrics: opts.Metrics,
		env:     map[string]string{"NODE_ENV": "sandbox"},
	}

	jsonObj := rt.Get("JSON").ToObject(rt)
	if fn, ok := goja.AssertFunction(jsonObj.Get("stringify")); ok {
		c.stringify = fn
	}

	if err := c.installConsole(); err != nil {
		return nil, err
	}
	if err := c.installTimers(); err != nil {
		return nil, err
	}
	if err := c.installProcess(); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.ContextsActive.Inc()
		c.handles.Register(func() { c.metrics.ContextsActive.Dec() })
	}
	c.handles.Register(c.timers.Reset)

	return c, nil
}

// Runtime returns the underlying interpreter. All mutation must happen on
// the goroutine that owns the context.
func (c *Context) Runtime() *goja.Runtime { return c.rt }

// Timers returns the context's timer queue.
func (c *Context) Timers() *TimerQueue { return c.timers }

// Handles returns the context's handle registry for callers that wire
// additional host resources into the interpreter.
func (c *Context) Handles() *HandleRegistry { return c.handles }

// SetGlobal installs a value on the interpreter's global object.
func (c *Context) SetGlobal(name string, v interface{}) error {
	return c.rt.Set(name, v)
}

// SetLogSink routes console output to fn for the duration of a session.
// Passing nil detaches the sink; writes with no sink are dropped.
func (c *Context) SetLogSink(fn types.LogFunc) {
	c.mu.Lock()
	c.sink = fn
	c.mu.Unlock()
}

// SetArgv sets the argv the process global reports for the next call.
func (c *Context) SetArgv(argv []string) {
	c.mu.Lock()
	c.argv = argv
	c.mu.Unlock()
}

// Interrupt stops a running guest computation with the given reason. The
// interpreter surfaces it as an *goja.InterruptedError from the active
// RunProgram or callable invocation.
func (c *Context) Interrupt(reason string) {
	c.rt.Interrupt(reason)
}

// ClearInterrupt re-arms the interpreter after an interrupt so the
// context can service the next call.
func (c *Context) ClearInterrupt() {
	c.rt.ClearInterrupt()
}

// Disposed reports whether Dispose has run.
func (c *Context) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Dispose releases every registered handle exactly once. It tolerates
// being called after a guest-triggered fatal error, and calling it twice
// is a no-op: teardown can be triggered from multiple failure paths.
func (c *Context) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.sink = nil
	c.mu.Unlock()

	c.rt.Interrupt(types.ErrDisposed.Error())
	c.handles.ReleaseAll()
	c.log.Debug("context disposed")
}

func (c *Context) emitLog(line string) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(line)
	}
}
