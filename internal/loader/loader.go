package loader

import (
	"fmt"
	gopath "path"

	"github.com/dop251/goja"

	"github.com/yangshun/nodepack/internal/builtins"
	"github.com/yangshun/nodepack/internal/logging"
	"github.com/yangshun/nodepack/internal/monitoring"
	"github.com/yangshun/nodepack/internal/vfs"
)

// DefaultEntryPath is the synthetic path entry code executes under when
// the caller does not name one.
const DefaultEntryPath = "/main.js"

// Loader resolves, caches, and evaluates modules inside a single VM
// context. It is not safe for concurrent use; the owning session
// serializes access along with everything else touching the runtime.
type Loader struct {
	rt      *goja.Runtime
	fs      *vfs.FS
	log     *logging.Logger
	metrics *monitoring.Metrics
	cache   *moduleCache

	jsonParse goja.Callable
}

// New builds a loader bound to rt and fs. The runtime must be the one
// all subsequent Require and LoadEntry calls run on.
func New(rt *goja.Runtime, fs *vfs.FS, log *logging.Logger, metrics *monitoring.Metrics) (*Loader, error) {
	jsonObj, ok := rt.Get("JSON").(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("loader: runtime is missing the JSON global")
	}
	parse, ok := goja.AssertFunction(jsonObj.Get("parse"))
	if !ok {
		return nil, fmt.Errorf("loader: runtime is missing JSON.parse")
	}
	return &Loader{
		rt:        rt,
		fs:        fs,
		log:       log.Named("loader"),
		metrics:   metrics,
		cache:     newModuleCache(),
		jsonParse: parse,
	}, nil
}

// CachedModules reports how many modules the cache holds.
func (l *Loader) CachedModules() int {
	return l.cache.len()
}

// Module returns the cached module for (path, kind), if loaded.
func (l *Loader) Module(path string, kind Kind) (*Module, bool) {
	return l.cache.get(path, kind)
}

// Require resolves and evaluates specifier relative to fromDir and
// returns its exports. Results are cached by resolved path: a second
// require of the same module returns the identical exports reference,
// and a module that threw during evaluation re-throws the same value
// without re-executing.
func (l *Loader) Require(specifier, fromDir string) (goja.Value, error) {
	if builtins.IsBuiltin(specifier) {
		return l.requireBuiltin(specifier, fromDir)
	}

	path, err := l.Resolve(specifier, fromDir)
	if err != nil {
		return nil, err
	}
	data, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, &NotFoundError{Specifier: specifier, From: fromDir}
	}
	source := string(data)
	kind := l.classify(path, source)

	m, err := l.load(path, kind, source, false)
	if err != nil {
		return nil, err
	}
	m.addDependent(fromDir)
	return m.Exports(), nil
}

// LoadEntry evaluates code as the session's entry module under the
// given synthetic path. Entry code is treated as an ES module unless it
// contains CommonJS markers and no module syntax. An ES entry is
// wrapped in an async function so top-level await works; the completion
// promise is stored on the module object under __npTLA.
func (l *Loader) LoadEntry(path, code string) (*Module, error) {
	if path == "" {
		path = DefaultEntryPath
	}
	kind := KindESM
	if !HasModuleSyntax(code) && HasCommonJSMarkers(code) {
		kind = KindCommonJS
	}
	return l.load(vfs.Clean(path), kind, code, true)
}

// EntryCompletion returns the entry module's top-level-await promise,
// or nil for a CommonJS entry.
func EntryCompletion(m *Module) *goja.Promise {
	v := m.ModuleObject().Get("__npTLA")
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	p, _ := v.Export().(*goja.Promise)
	return p
}

func (l *Loader) load(path string, kind Kind, source string, entry bool) (*Module, error) {
	if !entry {
		if m, ok := l.cache.get(path, kind); ok {
			l.metrics.ObserveCacheHit()
			if m.State == StateFailed {
				return nil, &EvalError{Path: path, Thrown: m.thrown, Err: m.err}
			}
			return m, nil
		}
	}

	m := &Module{Path: path, Kind: kind, State: StateLoading}
	m.moduleObj = l.newModuleObject(path)
	// Cached before evaluation so a cyclic require sees the partial
	// exports instead of re-entering the module body. The entry module
	// is evicted again afterwards: successive calls reuse the same
	// synthetic path for different code, so its cache entry only lives
	// for the duration of its own evaluation.
	l.cache.put(m)
	if entry {
		defer l.cache.delete(path, kind)
	}
	l.metrics.ObserveModule(string(kind))

	var err error
	if kind == KindJSON {
		err = l.evalJSON(m, source)
	} else {
		err = l.evalSource(m, lowerModule(source, kind, entry))
	}
	if err != nil {
		m.State = StateFailed
		m.err = err
		if ex, ok := err.(*goja.Exception); ok {
			m.thrown = ex.Value()
		}
		l.log.Debug("module evaluation failed: " + path)
		return nil, &EvalError{Path: path, Thrown: m.thrown, Err: err}
	}

	m.State = StateEvaluated
	m.moduleObj.Set("loaded", true)
	return m, nil
}

type loweredSource struct {
	body string
	err  error
}

func lowerModule(source string, kind Kind, entry bool) loweredSource {
	if kind == KindESM {
		body, err := LowerESM(source, entry)
		return loweredSource{body: body, err: err}
	}
	return loweredSource{body: LowerCommonJS(source)}
}

func (l *Loader) newModuleObject(path string) *goja.Object {
	m := l.rt.NewObject()
	m.Set("id", path)
	m.Set("filename", path)
	m.Set("path", gopath.Dir(path))
	m.Set("exports", l.rt.NewObject())
	m.Set("loaded", false)
	return m
}

// evalSource compiles the lowered body inside the module function
// wrapper and invokes it with the module's own require, __filename, and
// __dirname.
func (l *Loader) evalSource(m *Module, lowered loweredSource) error {
	if lowered.err != nil {
		return lowered.err
	}
	wrapped := "(function (exports, require, module, __filename, __dirname) {\n" + lowered.body + "\n})"
	prg, err := goja.Compile(m.Path, wrapped, false)
	if err != nil {
		return err
	}
	fnVal, err := l.rt.RunProgram(prg)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return fmt.Errorf("loader: wrapper for %s did not compile to a function", m.Path)
	}

	dir := gopath.Dir(m.Path)
	m.State = StateEvaluating
	_, err = fn(goja.Undefined(),
		m.moduleObj.Get("exports"),
		l.makeRequire(dir),
		m.moduleObj,
		l.rt.ToValue(m.Path),
		l.rt.ToValue(dir),
	)
	return err
}

func (l *Loader) evalJSON(m *Module, source string) error {
	parsed, err := l.jsonParse(goja.Undefined(), l.rt.ToValue(source))
	if err != nil {
		return err
	}
	m.moduleObj.Set("exports", parsed)
	return nil
}

// MakeGlobalRequire returns a require function resolving against the
// filesystem root, installed as a global for code evaluated outside any
// module.
func (l *Loader) MakeGlobalRequire() goja.Value {
	return l.makeRequire("/")
}

// makeRequire builds a per-module require function resolving relative
// specifiers against fromDir, with a resolve property mirroring
// require.resolve.
func (l *Loader) makeRequire(fromDir string) goja.Value {
	fn := l.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		v, err := l.Require(specifier, fromDir)
		if err != nil {
			panic(l.throwable(err))
		}
		return v
	})
	obj := fn.ToObject(l.rt)
	obj.Set("resolve", func(call goja.FunctionCall) goja.Value {
		specifier := call.Argument(0).String()
		if builtins.IsBuiltin(specifier) {
			return l.rt.ToValue("node:" + builtins.Normalize(specifier))
		}
		path, err := l.Resolve(specifier, fromDir)
		if err != nil {
			panic(l.throwable(err))
		}
		return l.rt.ToValue(path)
	})
	return obj
}

// throwable converts a loader error into the value thrown to guest
// code. Evaluation failures re-throw the original guest value;
// resolution failures become an Error with code MODULE_NOT_FOUND.
func (l *Loader) throwable(err error) goja.Value {
	if ee, ok := err.(*EvalError); ok && ee.Thrown != nil {
		return ee.Thrown
	}
	if nf, ok := err.(*NotFoundError); ok {
		ctor, _ := l.rt.Get("Error").(*goja.Object)
		errObj, cerr := l.rt.New(ctor, l.rt.ToValue(nf.Error()))
		if cerr == nil {
			errObj.Set("code", "MODULE_NOT_FOUND")
			return errObj
		}
	}
	return l.rt.NewGoError(err)
}

// requireBuiltin evaluates a catalog module, caching it under its
// normalized node: path.
func (l *Loader) requireBuiltin(specifier, fromDir string) (goja.Value, error) {
	name := builtins.Normalize(specifier)
	path := "node:" + name
	if m, ok := l.cache.get(path, KindBuiltin); ok {
		l.metrics.ObserveCacheHit()
		if m.State == StateFailed {
			return nil, &EvalError{Path: path, Thrown: m.thrown, Err: m.err}
		}
		m.addDependent(fromDir)
		return m.Exports(), nil
	}

	ctor, ok := builtins.Lookup(name)
	if !ok {
		return nil, &NotFoundError{Specifier: specifier, From: fromDir}
	}

	m := &Module{Path: path, Kind: KindBuiltin, State: StateEvaluating}
	m.moduleObj = l.newModuleObject(path)
	l.cache.put(m)
	l.metrics.ObserveModule(string(KindBuiltin))

	env := &builtins.Env{
		Runtime: l.rt,
		FS:      l.fs,
		Logger:  l.log,
		Require: func(dep string) (*goja.Object, error) {
			v, err := l.requireBuiltin(dep, path)
			if err != nil {
				return nil, err
			}
			obj, ok := v.(*goja.Object)
			if !ok {
				return nil, fmt.Errorf("loader: builtin %s exported a non-object", dep)
			}
			return obj, nil
		},
	}
	exports, err := ctor(env)
	if err != nil {
		m.State = StateFailed
		m.err = err
		if ex, ok := err.(*goja.Exception); ok {
			m.thrown = ex.Value()
		}
		return nil, &EvalError{Path: path, Thrown: m.thrown, Err: err}
	}

	m.moduleObj.Set("exports", exports)
	m.moduleObj.Set("loaded", true)
	m.State = StateEvaluated
	m.addDependent(fromDir)
	return exports, nil
}
