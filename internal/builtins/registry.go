// Package builtins exposes the catalog of Node-compatible modules to
// guest code.
//
// The catalog is a closed, statically registered map from module name to
// constructor: adding a built-in is a registration in an init function,
// not a branch in a conditional. Two construction patterns exist: pure
// guest-language façades evaluated from embedded JavaScript sources, and
// façades that delegate specific operations to host-native functions
// merged onto the exports object after construction. Merged natives use
// a double-underscore prefix so guest code never calls a host function
// by an unprefixed name.
package builtins

import (
	"sort"
	"strings"

	"github.com/dop251/goja"

	"github.com/yangshun/nodepack/internal/logging"
	"github.com/yangshun/nodepack/internal/vfs"
)

// Env carries everything a constructor may need.
type Env struct {
	Runtime *goja.Runtime
	FS      *vfs.FS

	// Require resolves sibling built-ins (stream needs events, fs needs
	// buffer). Wired by the module loader.
	Require func(name string) (*goja.Object, error)

	Logger *logging.Logger
}

// Constructor builds one guest-visible façade object.
type Constructor func(env *Env) (*goja.Object, error)

var registry = map[string]Constructor{}

func register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Normalize strips the optional node: prefix from a specifier.
func Normalize(name string) string {
	return strings.TrimPrefix(name, "node:")
}

// Lookup returns the constructor for name, if the catalog has one.
func Lookup(name string) (Constructor, bool) {
	ctor, ok := registry[Normalize(name)]
	return ctor, ok
}

// IsBuiltin reports whether name identifies a catalog module.
func IsBuiltin(name string) bool {
	_, ok := registry[Normalize(name)]
	return ok
}

// Names returns the catalog names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// evalFacade evaluates an embedded JavaScript façade source inside a
// CommonJS-style wrapper and returns its exports object.
func evalFacade(env *Env, name, source string) (*goja.Object, error) {
	wrapped := "(function (exports, require, module) {\n" + source + "\n})"
	prg, err := goja.Compile("node:"+name, wrapped, false)
	if err != nil {
		return nil, err
	}
	fnVal, err := env.Runtime.RunProgram(prg)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, errFacadeShape(name)
	}

	rt := env.Runtime
	exports := rt.NewObject()
	module := rt.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	require := func(call goja.FunctionCall) goja.Value {
		dep := call.Argument(0).String()
		obj, err := env.Require(dep)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return obj
	}

	if _, err := fn(goja.Undefined(), exports, rt.ToValue(require), module); err != nil {
		return nil, err
	}

	// The façade may have reassigned module.exports.
	final := module.Get("exports")
	obj, ok := final.(*goja.Object)
	if !ok {
		return nil, errFacadeShape(name)
	}
	return obj, nil
}

type facadeShapeError string

func errFacadeShape(name string) error { return facadeShapeError(name) }

func (e facadeShapeError) Error() string {
	return "builtin " + string(e) + " did not produce an exports object"
}

// throwError raises a Node-style error into the guest: a real Error
// instance when the Error constructor is reachable, with code and
// optional path properties attached.
func throwError(rt *goja.Runtime, code, message, path string) {
	var errObj *goja.Object
	if obj, err := rt.New(rt.Get("Error"), rt.ToValue(message)); err == nil {
		errObj = obj
	}
	if errObj == nil {
		errObj = rt.NewObject()
		_ = errObj.Set("name", "Error")
		_ = errObj.Set("message", message)
	}
	_ = errObj.Set("code", code)
	if path != "" {
		_ = errObj.Set("path", path)
	}
	panic(errObj)
}
