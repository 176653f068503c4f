// Package session ties a VM context, a module loader, and the result
// marshaler into one execute call pipeline: load the entry module,
// drain scheduled work to a fixpoint, marshal the outcome. A session
// answers one call at a time; concurrent Execute calls queue on its
// lock rather than interleave on the interpreter.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/yangshun/nodepack/internal/config"
	"github.com/yangshun/nodepack/internal/loader"
	"github.com/yangshun/nodepack/internal/logging"
	"github.com/yangshun/nodepack/internal/marshal"
	"github.com/yangshun/nodepack/internal/monitoring"
	"github.com/yangshun/nodepack/internal/types"
	"github.com/yangshun/nodepack/internal/vfs"
	"github.com/yangshun/nodepack/internal/vm"
)

// Session owns one VM context and its module graph. The context
// persists across Execute calls, so module caches and globals survive
// until Reset or Close.
type Session struct {
	cfg     config.ExecutionConfig
	fs      *vfs.FS
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu     sync.Mutex
	ctx    *vm.Context
	loader *loader.Loader
	closed bool
}

// New creates a session with a fresh context bound to fs.
func New(fs *vfs.FS, cfg config.ExecutionConfig, log *logging.Logger, metrics *monitoring.Metrics) (*Session, error) {
	if log == nil {
		log = logging.NewNop()
	}
	s := &Session{
		cfg:     cfg,
		fs:      fs,
		log:     log.Named("session"),
		metrics: metrics,
	}
	if err := s.initContext(); err != nil {
		return nil, err
	}
	return s, nil
}

// initContext builds the context plus loader pair and installs the
// globals module code expects outside any module scope.
func (s *Session) initContext() error {
	c, err := vm.New(vm.Options{
		MaxCallStackSize: s.cfg.MaxCallStackSize,
		Logger:           s.log,
		Metrics:          s.metrics,
	})
	if err != nil {
		return err
	}
	l, err := loader.New(c.Runtime(), s.fs, s.log, s.metrics)
	if err != nil {
		c.Dispose()
		return err
	}

	if err := c.SetGlobal("require", l.MakeGlobalRequire()); err != nil {
		c.Dispose()
		return err
	}
	if err := c.SetGlobal("global", c.Runtime().GlobalObject()); err != nil {
		c.Dispose()
		return err
	}
	// Buffer is a global in Node, not only a module export.
	bufExports, err := l.Require("buffer", "/")
	if err != nil {
		c.Dispose()
		return fmt.Errorf("session: buffer module unavailable: %w", err)
	}
	if obj, ok := bufExports.(*goja.Object); ok {
		if err := c.SetGlobal("Buffer", obj.Get("Buffer")); err != nil {
			c.Dispose()
			return err
		}
	}

	s.ctx = c
	s.loader = l
	return nil
}

// FS returns the session's virtual filesystem.
func (s *Session) FS() *vfs.FS { return s.fs }

// CachedModules reports the module cache size, for diagnostics.
func (s *Session) CachedModules() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	return s.loader.CachedModules()
}

// Reset disposes the context and builds a fresh one. The module cache,
// pending timers, and globals guest code added are all gone; the
// virtual filesystem is untouched.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrNotInitialized
	}
	s.ctx.Dispose()
	return s.initContext()
}

// Close disposes the context permanently. Execute afterwards returns
// ErrNotInitialized.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.ctx.Dispose()
}

// Execute runs req.Code as the entry module and returns its terminal
// result. Guest failures of every kind, including thrown values,
// rejected promises, timeouts, and unserializable results, come back
// inside the result; the Go error is reserved for infrastructure
// faults such as a closed session.
func (s *Session) Execute(ctx context.Context, req types.ExecutionRequest) (types.ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ExecutionResult{}, types.ErrNotInitialized
	}

	started := time.Now()
	logs := []string{}
	s.ctx.SetLogSink(func(line string) {
		logs = append(logs, line)
		if req.OnLog != nil {
			req.OnLog(line)
		}
	})
	defer s.ctx.SetLogSink(nil)

	filename := req.Filename
	if filename == "" {
		filename = loader.DefaultEntryPath
	}
	s.ctx.SetArgv(append([]string{"node", filename}, req.Argv...))

	stop := s.watchdog(ctx)
	v, serr := s.run(filename, req.Code)
	stop()
	s.ctx.ClearInterrupt()

	result := s.finish(v, serr, logs)
	s.metrics.ObserveExecution(result.OK, time.Since(started))
	return result, nil
}

// watchdog interrupts the interpreter when the call outlives its
// wall-clock budget or the caller's context. The returned stop function
// blocks until the goroutine has exited, so a late interrupt can never
// leak into the next call.
func (s *Session) watchdog(ctx context.Context) func() {
	timeout := s.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-done:
		case <-t.C:
			s.ctx.Interrupt("execution timed out after " + timeout.String())
		case <-ctx.Done():
			s.ctx.Interrupt("execution canceled")
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func (s *Session) finish(v goja.Value, serr *types.StructuredError, logs []string) types.ExecutionResult {
	if serr != nil {
		return types.Failure(serr, logs)
	}
	data, err := marshal.Data(s.ctx.Runtime(), v, s.cfg.MarshalDepth)
	if err != nil {
		return types.Failure(marshal.FromError(err), logs)
	}
	return types.Success(data, logs)
}

func (s *Session) run(filename, code string) (goja.Value, *types.StructuredError) {
	m, err := s.loader.LoadEntry(filename, code)
	if err != nil {
		return nil, s.guestFailure(err)
	}

	completion := loader.EntryCompletion(m)
	if serr := s.drain(completion); serr != nil {
		return nil, serr
	}
	return resultValue(m), nil
}

// drain pumps microtasks and timers on the virtual clock until no work
// remains, bounded by MaxTicks. Promise continuation jobs run inside
// the interpreter whenever a callback returns; the loop only has to
// feed it timer and microtask callbacks.
func (s *Session) drain(completion *goja.Promise) *types.StructuredError {
	q := s.ctx.Timers()
	for ticks := 0; ; ticks++ {
		if completion != nil && completion.State() == goja.PromiseStateRejected {
			return marshal.GuestError(s.ctx.Runtime(), completion.Result())
		}
		if !q.Pending() {
			if completion != nil && completion.State() == goja.PromiseStatePending {
				return &types.StructuredError{
					Name:    "UnsettledPromise",
					Message: "execution finished with a pending top-level promise and no scheduled work",
				}
			}
			return nil
		}
		if ticks >= s.cfg.MaxTicks {
			return &types.StructuredError{
				Name:    "TimeoutError",
				Message: fmt.Sprintf("scheduled work did not finish within %d ticks", s.cfg.MaxTicks),
			}
		}
		ran, err := q.Tick()
		if err != nil {
			return s.guestFailure(err)
		}
		if !ran {
			return nil
		}
	}
}

// guestFailure folds any evaluation error into a structured error,
// preferring the originally thrown guest value when one exists.
func (s *Session) guestFailure(err error) *types.StructuredError {
	var intr *goja.InterruptedError
	if errors.As(err, &intr) {
		return &types.StructuredError{Name: "TimeoutError", Message: fmt.Sprint(intr.Value())}
	}
	var ee *loader.EvalError
	if errors.As(err, &ee) && ee.Thrown != nil {
		return marshal.GuestError(s.ctx.Runtime(), ee.Thrown)
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return marshal.GuestError(s.ctx.Runtime(), ex.Value())
	}
	var nf *loader.NotFoundError
	if errors.As(err, &nf) {
		return &types.StructuredError{Name: "Error", Message: nf.Error(), Properties: map[string]interface{}{"code": "MODULE_NOT_FOUND"}}
	}
	return marshal.FromError(err)
}

// resultValue picks the value an execute call resolves with: the
// default export for an ES entry, module.exports for CommonJS.
func resultValue(m *loader.Module) goja.Value {
	exports := m.Exports()
	if m.Kind != loader.KindESM {
		return exports
	}
	obj, ok := exports.(*goja.Object)
	if !ok {
		return exports
	}
	if d := obj.Get("default"); d != nil && !goja.IsUndefined(d) {
		return d
	}
	return exports
}
