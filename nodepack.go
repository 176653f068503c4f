// Package nodepack embeds a sandboxed JavaScript execution core: an
// interpreter context with Node-flavored globals, a CommonJS/ES module
// loader over a virtual filesystem, and a result pipeline that folds
// every guest outcome into one structured result. Code runs either
// inline with the caller or on an isolated worker goroutine behind a
// message protocol; both modes expose the same Execute contract.
package nodepack

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yangshun/nodepack/internal/config"
	"github.com/yangshun/nodepack/internal/logging"
	"github.com/yangshun/nodepack/internal/monitoring"
	"github.com/yangshun/nodepack/internal/session"
	"github.com/yangshun/nodepack/internal/types"
	"github.com/yangshun/nodepack/internal/vfs"
	"github.com/yangshun/nodepack/internal/worker"
)

// Re-exported request/result types, so embedders need only this
// package.
type (
	// ExecutionRequest describes one execute call.
	ExecutionRequest = types.ExecutionRequest

	// ExecutionResult is the terminal outcome of one execute call.
	ExecutionResult = types.ExecutionResult

	// StructuredError is the host-safe form of a guest failure.
	StructuredError = types.StructuredError

	// Config holds all runtime configuration.
	Config = config.Config
)

// Sentinel errors surfaced by Execute.
var (
	ErrNotInitialized = types.ErrNotInitialized
	ErrDisposed       = types.ErrDisposed
)

// LoadConfig reads configuration from NODEPACK_* environment variables.
func LoadConfig() (*Config, error) { return config.Load() }

// DefaultConfig returns the configuration used when the environment is
// empty: direct mode, 10s timeout.
func DefaultConfig() *Config { return config.Default() }

// Options configures runtime construction. The zero value works:
// default config, no-op logger, metrics disabled, fresh filesystem.
type Options struct {
	// Config supplies all execution knobs. Nil means DefaultConfig.
	Config *Config

	// Logger receives host-side diagnostics. Nil means no-op; guest
	// console output is never routed here.
	Logger *logging.Logger

	// Registerer, when set, receives the runtime's Prometheus
	// collectors.
	Registerer prometheus.Registerer

	// FS is the virtual filesystem guest code sees. Nil means a fresh
	// empty one.
	FS *vfs.FS
}

// executor is the mode-independent execution surface.
type executor interface {
	Execute(ctx context.Context, req types.ExecutionRequest) (types.ExecutionResult, error)
}

// Runtime is the embedding surface: one sandboxed execution core plus
// its virtual filesystem.
type Runtime struct {
	cfg     *Config
	log     *logging.Logger
	metrics *monitoring.Metrics
	fs      *vfs.FS

	mode config.Mode
	exec executor

	sess *session.Session // direct mode
	w    *worker.Worker   // isolated mode
}

// New builds a runtime in the configured mode.
func New(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	fs := opts.FS
	if fs == nil {
		fs = vfs.New()
	}

	var metrics *monitoring.Metrics
	if opts.Registerer != nil {
		metrics = monitoring.NewMetrics(opts.Registerer)
	}

	r := &Runtime{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		fs:      fs,
		mode:    config.Mode(cfg.Execution.Mode),
	}
	if err := r.start(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) start() error {
	switch r.mode {
	case config.ModeDirect:
		sess, err := session.New(r.fs, r.cfg.Execution, r.log, r.metrics)
		if err != nil {
			return err
		}
		r.sess = sess
		r.exec = sess
	case config.ModeIsolated:
		w, err := worker.Spawn(r.fs, r.cfg.Execution, r.log, r.metrics)
		if err != nil {
			return err
		}
		r.w = w
		r.exec = worker.NewClient(w)
	default:
		return fmt.Errorf("unknown execution mode %q", r.mode)
	}
	return nil
}

// Execute runs req.Code as an entry module. Guest failures come back
// inside the result; the Go error is reserved for infrastructure
// faults.
func (r *Runtime) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	if r.exec == nil {
		return ExecutionResult{}, ErrNotInitialized
	}
	return r.exec.Execute(ctx, req)
}

// ExecuteCode runs code with default request settings.
func (r *Runtime) ExecuteCode(ctx context.Context, code string) (ExecutionResult, error) {
	return r.Execute(ctx, ExecutionRequest{Code: code})
}

// FS returns the runtime's virtual filesystem. It is shared with guest
// code and survives Reset.
func (r *Runtime) FS() *vfs.FS { return r.fs }

// Reset discards all guest state: module cache, globals, pending
// timers. The filesystem is untouched. In isolated mode the worker is
// replaced wholesale.
func (r *Runtime) Reset() error {
	switch r.mode {
	case config.ModeDirect:
		if r.sess == nil {
			return ErrNotInitialized
		}
		return r.sess.Reset()
	case config.ModeIsolated:
		if r.w == nil {
			return ErrNotInitialized
		}
		r.w.Terminate()
		return r.start()
	}
	return ErrNotInitialized
}

// Close releases the runtime permanently.
func (r *Runtime) Close() {
	if r.sess != nil {
		r.sess.Close()
		r.sess = nil
	}
	if r.w != nil {
		r.w.Terminate()
		r.w = nil
	}
	r.exec = nil
}
